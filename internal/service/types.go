package service

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/vipul43/invy-worker/internal/extraction"
	"github.com/vipul43/invy-worker/internal/models"
)

// MailClient is the mailbox provider. Every call authenticates with a bearer access token.
type MailClient interface {
	ListMessageIDs(ctx context.Context, accessToken string, query string, maxResults int) ([]string, error)
	FetchMessage(ctx context.Context, accessToken string, messageID string) (*MailMessage, error)
	GetAttachment(ctx context.Context, accessToken string, messageID string, attachmentID string) ([]byte, error)
}

// IdentityProvider exchanges refresh tokens and authorization codes for credentials
type IdentityProvider interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenRefreshResult, error)
	ExchangeCode(ctx context.Context, code string) (*TokenRefreshResult, error)
}

// ProfileFetcher resolves the mailbox address behind an access token
type ProfileFetcher interface {
	GetProfile(ctx context.Context, accessToken string) (string, error)
}

// FileStorage keeps a copy of each attachment in the owner's storage
type FileStorage interface {
	EnsureFolder(ctx context.Context, accessToken string, folderPath []string) (string, error)
	Upload(ctx context.Context, accessToken string, folderID string, name string, mimeType string, data []byte) (*StoredFile, error)
	Delete(ctx context.Context, accessToken string, fileID string) error
}

// Extractor is the external extraction service
type Extractor interface {
	Extract(ctx context.Context, req extraction.Request) (*extraction.Verdict, error)
}

// HistoryStore is the bounded set of fully handled message ids
type HistoryStore interface {
	Contains(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
}

// AccountTokenStore persists refreshed credentials
type AccountTokenStore interface {
	UpdateTokens(ctx context.Context, accountID string, accessToken string, refreshToken string, tokenExpiresAt time.Time) error
}

// InvoiceStore writes invoices keyed by (owner, invoice number)
type InvoiceStore interface {
	Upsert(ctx context.Context, inv models.Invoice) (bool, error)
}

type TokenRefreshResult struct {
	AccessToken  string
	ExpiresAt    time.Time
	RefreshToken string // May be same or new
}

// MailMessage is a fetched message reduced to what invoice extraction needs
type MailMessage struct {
	ID           string
	Subject      string
	From         string
	Date         time.Time
	InternalDate time.Time
	Attachments  []AttachmentRef
}

// AttachmentRef points at an attachment without carrying its bytes
type AttachmentRef struct {
	AttachmentID string
	Filename     string
	MimeType     string
	Size         int64
}

type StoredFile struct {
	ID   string
	Link string
}

// SentAt is the Date header, or the provider's receive time when the header was unusable
func (m *MailMessage) SentAt() time.Time {
	if !m.Date.IsZero() {
		return m.Date
	}
	return m.InternalDate
}

// PDFAttachments returns the attachments whose filename ends in .pdf, in any case
func (m *MailMessage) PDFAttachments() []AttachmentRef {
	var pdfs []AttachmentRef
	for _, att := range m.Attachments {
		if IsPDF(att.Filename) {
			pdfs = append(pdfs, att)
		}
	}
	return pdfs
}

func IsPDF(filename string) bool {
	return strings.EqualFold(path.Ext(strings.TrimSpace(filename)), ".pdf")
}
