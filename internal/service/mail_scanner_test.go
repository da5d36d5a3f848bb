package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vipul43/invy-worker/internal/models"
)

func pdfMessage(id string, filenames ...string) *MailMessage {
	msg := &MailMessage{ID: id, Subject: "Invoice " + id, From: "billing@acme.test"}
	for i, name := range filenames {
		msg.Attachments = append(msg.Attachments, AttachmentRef{
			AttachmentID: fmt.Sprintf("%s-att-%d", id, i),
			Filename:     name,
			MimeType:     "application/pdf",
			Size:         1024,
		})
	}
	return msg
}

func TestBuildQuery(t *testing.T) {
	since := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, fmt.Sprintf("has:attachment filename:pdf in:inbox after:%d", since.Unix()), BuildQuery(since))
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("invoice.pdf"))
	assert.True(t, IsPDF("INVOICE.PDF"))
	assert.True(t, IsPDF(" scan.Pdf "))
	assert.False(t, IsPDF("invoice.pdf.zip"))
	assert.False(t, IsPDF("pdf"))
	assert.False(t, IsPDF(""))
}

func TestMailScanner_Scan(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	messages := map[string]*MailMessage{
		"new-pdf":   pdfMessage("new-pdf", "a.pdf", "notes.txt", "b.PDF"),
		"no-pdf":    pdfMessage("no-pdf", "photo.jpg"),
		"seen":      pdfMessage("seen", "old.pdf"),
		"fetch-err": nil,
	}

	var gotQuery string
	mail := &mockMailClient{
		listFunc: func(ctx context.Context, accessToken, query string, maxResults int) ([]string, error) {
			assert.Equal(t, "token", accessToken)
			assert.Equal(t, 10, maxResults)
			gotQuery = query
			return []string{"seen", "new-pdf", "no-pdf", "fetch-err"}, nil
		},
		fetchFunc: func(ctx context.Context, accessToken, messageID string) (*MailMessage, error) {
			if msg := messages[messageID]; msg != nil {
				return msg, nil
			}
			return nil, errors.New("503 backend error")
		},
	}
	history := newMemoryHistory("seen")

	scanner := NewMailScanner(mail, history, 5*time.Minute, 10)
	scanner.now = func() time.Time { return now }

	found, err := scanner.Scan(context.Background(), models.Account{ID: "acc-1"}, "token")
	require.NoError(t, err)

	assert.Equal(t, BuildQuery(now.Add(-5*time.Minute)), gotQuery)
	assert.NotContains(t, mail.fetched, "seen", "processed messages are never refetched")

	require.Len(t, found, 1)
	assert.Equal(t, "new-pdf", found[0].ID)
	require.Len(t, found[0].Attachments, 2)
	assert.Equal(t, "a.pdf", found[0].Attachments[0].Filename)
	assert.Equal(t, "b.PDF", found[0].Attachments[1].Filename)

	assert.True(t, history.has("no-pdf"), "messages without a PDF are marked processed")
	assert.False(t, history.has("new-pdf"))
	assert.False(t, history.has("fetch-err"), "failed fetches are left for the next sweep")
}

func TestMailScanner_ListFailure(t *testing.T) {
	mail := &mockMailClient{
		listFunc: func(ctx context.Context, accessToken, query string, maxResults int) ([]string, error) {
			return nil, errors.New("401 unauthorized")
		},
	}
	scanner := NewMailScanner(mail, newMemoryHistory(), time.Minute, 10)

	_, err := scanner.Scan(context.Background(), models.Account{ID: "acc-1"}, "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list messages")
}

func TestMailScanner_HistoryFailureSkipsMessage(t *testing.T) {
	mail := &mockMailClient{
		listFunc: func(ctx context.Context, accessToken, query string, maxResults int) ([]string, error) {
			return []string{"m1"}, nil
		},
	}
	history := newMemoryHistory()
	history.containsFn = func(messageID string) (bool, error) {
		return false, errors.New("connection refused")
	}

	scanner := NewMailScanner(mail, history, time.Minute, 10)
	found, err := scanner.Scan(context.Background(), models.Account{ID: "acc-1"}, "token")
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Empty(t, mail.fetched)
}

// afterFilter mimics the provider's after:<unix> search operator
func afterFilter(t *testing.T, arrivals map[string]time.Time) func(ctx context.Context, accessToken, query string, maxResults int) ([]string, error) {
	return func(ctx context.Context, accessToken, query string, maxResults int) ([]string, error) {
		var after int64
		_, err := fmt.Sscanf(query[strings.Index(query, "after:"):], "after:%d", &after)
		require.NoError(t, err)

		var ids []string
		for id, at := range arrivals {
			if at.Unix() > after {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		return ids, nil
	}
}

func TestMailScanner_UnmarkedMessageListedAgainNextSweep(t *testing.T) {
	interval := 5 * time.Minute
	tests := []struct {
		name     string
		lookback time.Duration
	}{
		{"default window", 24 * time.Hour},
		{"shortest allowed window", 2 * interval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t0 := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
			mail := &mockMailClient{
				listFunc: afterFilter(t, map[string]time.Time{
					"m1":  t0.Add(-time.Minute),
					"old": t0.Add(-72 * time.Hour),
				}),
				fetchFunc: func(ctx context.Context, accessToken, messageID string) (*MailMessage, error) {
					return pdfMessage(messageID, "inv.pdf"), nil
				},
			}
			history := newMemoryHistory()
			scanner := NewMailScanner(mail, history, tt.lookback, 100)

			now := t0
			scanner.now = func() time.Time { return now }

			found, err := scanner.Scan(context.Background(), models.Account{ID: "acc-1"}, "token")
			require.NoError(t, err)
			require.Len(t, found, 1)
			assert.Equal(t, "m1", found[0].ID)

			// m1 stays unmarked, as after a webhook timeout
			now = t0.Add(interval)
			found, err = scanner.Scan(context.Background(), models.Account{ID: "acc-1"}, "token")
			require.NoError(t, err)
			require.Len(t, found, 1, "an unmarked message is re-attempted on the next sweep")
			assert.Equal(t, "m1", found[0].ID)

			require.NoError(t, history.MarkProcessed(context.Background(), "m1"))
			now = t0.Add(2 * interval)
			found, err = scanner.Scan(context.Background(), models.Account{ID: "acc-1"}, "token")
			require.NoError(t, err)
			assert.Empty(t, found)
		})
	}
}
