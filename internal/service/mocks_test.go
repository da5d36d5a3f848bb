package service

import (
	"context"
	"sync"
	"time"

	"github.com/vipul43/invy-worker/internal/extraction"
	"github.com/vipul43/invy-worker/internal/models"
)

type mockMailClient struct {
	listFunc       func(ctx context.Context, accessToken, query string, maxResults int) ([]string, error)
	fetchFunc      func(ctx context.Context, accessToken, messageID string) (*MailMessage, error)
	attachmentFunc func(ctx context.Context, accessToken, messageID, attachmentID string) ([]byte, error)

	mu      sync.Mutex
	fetched []string
}

func (m *mockMailClient) ListMessageIDs(ctx context.Context, accessToken string, query string, maxResults int) ([]string, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, accessToken, query, maxResults)
	}
	return nil, nil
}

func (m *mockMailClient) FetchMessage(ctx context.Context, accessToken string, messageID string) (*MailMessage, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, messageID)
	m.mu.Unlock()
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, accessToken, messageID)
	}
	return &MailMessage{ID: messageID}, nil
}

func (m *mockMailClient) GetAttachment(ctx context.Context, accessToken string, messageID string, attachmentID string) ([]byte, error) {
	if m.attachmentFunc != nil {
		return m.attachmentFunc(ctx, accessToken, messageID, attachmentID)
	}
	return []byte("%PDF-1.4"), nil
}

type mockIdentityProvider struct {
	refreshFunc  func(ctx context.Context, refreshToken string) (*TokenRefreshResult, error)
	exchangeFunc func(ctx context.Context, code string) (*TokenRefreshResult, error)

	mu           sync.Mutex
	refreshCalls int
}

func (m *mockIdentityProvider) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenRefreshResult, error) {
	m.mu.Lock()
	m.refreshCalls++
	m.mu.Unlock()
	if m.refreshFunc != nil {
		return m.refreshFunc(ctx, refreshToken)
	}
	return nil, nil
}

func (m *mockIdentityProvider) ExchangeCode(ctx context.Context, code string) (*TokenRefreshResult, error) {
	if m.exchangeFunc != nil {
		return m.exchangeFunc(ctx, code)
	}
	return nil, nil
}

type mockProfileFetcher struct {
	getProfileFunc func(ctx context.Context, accessToken string) (string, error)
}

func (m *mockProfileFetcher) GetProfile(ctx context.Context, accessToken string) (string, error) {
	if m.getProfileFunc != nil {
		return m.getProfileFunc(ctx, accessToken)
	}
	return "", nil
}

type mockStorage struct {
	ensureFunc func(ctx context.Context, accessToken string, folderPath []string) (string, error)
	uploadFunc func(ctx context.Context, accessToken, folderID, name, mimeType string, data []byte) (*StoredFile, error)

	mu      sync.Mutex
	paths   [][]string
	deleted []string
}

func (m *mockStorage) EnsureFolder(ctx context.Context, accessToken string, folderPath []string) (string, error) {
	m.mu.Lock()
	m.paths = append(m.paths, folderPath)
	m.mu.Unlock()
	if m.ensureFunc != nil {
		return m.ensureFunc(ctx, accessToken, folderPath)
	}
	return "folder-1", nil
}

func (m *mockStorage) Upload(ctx context.Context, accessToken string, folderID string, name string, mimeType string, data []byte) (*StoredFile, error) {
	if m.uploadFunc != nil {
		return m.uploadFunc(ctx, accessToken, folderID, name, mimeType, data)
	}
	return &StoredFile{ID: "file-" + name, Link: "https://drive.test/" + name}, nil
}

func (m *mockStorage) Delete(ctx context.Context, accessToken string, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, fileID)
	return nil
}

type mockExtractor struct {
	extractFunc func(ctx context.Context, req extraction.Request) (*extraction.Verdict, error)

	mu       sync.Mutex
	requests []extraction.Request
}

func (m *mockExtractor) Extract(ctx context.Context, req extraction.Request) (*extraction.Verdict, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.extractFunc != nil {
		return m.extractFunc(ctx, req)
	}
	return &extraction.Verdict{Accepted: false}, nil
}

// memoryHistory is an unbounded in-memory HistoryStore
type memoryHistory struct {
	mu         sync.Mutex
	ids        map[string]bool
	containsFn func(messageID string) (bool, error)
}

func newMemoryHistory(ids ...string) *memoryHistory {
	h := &memoryHistory{ids: make(map[string]bool)}
	for _, id := range ids {
		h.ids[id] = true
	}
	return h
}

func (h *memoryHistory) Contains(ctx context.Context, messageID string) (bool, error) {
	if h.containsFn != nil {
		return h.containsFn(messageID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ids[messageID], nil
}

func (h *memoryHistory) MarkProcessed(ctx context.Context, messageID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ids[messageID] = true
	return nil
}

func (h *memoryHistory) has(messageID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ids[messageID]
}

type mockAccountTokenStore struct {
	updateFunc func(ctx context.Context, accountID, accessToken, refreshToken string, expiresAt time.Time) error

	mu    sync.Mutex
	calls int
}

func (m *mockAccountTokenStore) UpdateTokens(ctx context.Context, accountID string, accessToken string, refreshToken string, tokenExpiresAt time.Time) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.updateFunc != nil {
		return m.updateFunc(ctx, accountID, accessToken, refreshToken, tokenExpiresAt)
	}
	return nil
}

// memoryInvoiceStore mirrors the ON CONFLICT (owner_id, invoice_number) upsert
type memoryInvoiceStore struct {
	mu       sync.Mutex
	invoices map[string]models.Invoice
	err      error
}

func newMemoryInvoiceStore() *memoryInvoiceStore {
	return &memoryInvoiceStore{invoices: make(map[string]models.Invoice)}
}

func (s *memoryInvoiceStore) Upsert(ctx context.Context, inv models.Invoice) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inv.OwnerID + "|" + inv.InvoiceNumber
	existing, ok := s.invoices[key]
	if !ok {
		s.invoices[key] = inv
		return true, nil
	}

	existing.Status = inv.Status
	existing.TotalAmount = inv.TotalAmount
	if inv.TotalAmountINR != nil {
		existing.TotalAmountINR = inv.TotalAmountINR
	}
	existing.Currency = inv.Currency
	existing.Category = inv.Category
	existing.Link = inv.Link
	existing.UpdatedAt = inv.UpdatedAt
	s.invoices[key] = existing
	return false, nil
}

func (s *memoryInvoiceStore) all() []models.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		out = append(out, inv)
	}
	return out
}

type mockOwnerGetter struct {
	getByIDFunc func(ctx context.Context, ownerID string) (*models.Owner, error)
}

func (m *mockOwnerGetter) GetByID(ctx context.Context, ownerID string) (*models.Owner, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, ownerID)
	}
	return &models.Owner{ID: ownerID}, nil
}

type mockAccountUpserter struct {
	upsertFunc func(ctx context.Context, account *models.Account) error
	saved      []*models.Account
}

func (m *mockAccountUpserter) Upsert(ctx context.Context, account *models.Account) error {
	m.saved = append(m.saved, account)
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, account)
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}
