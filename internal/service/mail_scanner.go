package service

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vipul43/invy-worker/internal/models"
)

// MailScanner finds new messages with PDF attachments in one mailbox
type MailScanner struct {
	mail       MailClient
	history    HistoryStore
	lookback   time.Duration
	maxResults int
	now        func() time.Time
}

func NewMailScanner(mail MailClient, history HistoryStore, lookback time.Duration, maxResults int) *MailScanner {
	return &MailScanner{
		mail:       mail,
		history:    history,
		lookback:   lookback,
		maxResults: maxResults,
		now:        time.Now,
	}
}

// BuildQuery selects inbox messages with a PDF attachment received after since
func BuildQuery(since time.Time) string {
	return fmt.Sprintf("has:attachment filename:pdf in:inbox after:%d", since.Unix())
}

// Scan returns messages not yet in history that carry at least one PDF.
// Messages without a PDF are marked processed on the spot. A failure on one
// message is logged and leaves it for the next sweep.
func (s *MailScanner) Scan(ctx context.Context, account models.Account, accessToken string) ([]*MailMessage, error) {
	logger := log.WithField("account", account.ID)

	query := BuildQuery(s.now().Add(-s.lookback))
	messageIDs, err := s.mail.ListMessageIDs(ctx, accessToken, query, s.maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	if len(messageIDs) == 0 {
		logger.Debug("No new messages")
		return nil, nil
	}

	var messages []*MailMessage
	for _, messageID := range messageIDs {
		msgLogger := logger.WithField("message_id", messageID)

		seen, err := s.history.Contains(ctx, messageID)
		if err != nil {
			msgLogger.Errorf("History lookup failed, skipping message: %v", err)
			continue
		}
		if seen {
			continue
		}

		msg, err := s.mail.FetchMessage(ctx, accessToken, messageID)
		if err != nil {
			msgLogger.Errorf("Failed to fetch message: %v", err)
			continue
		}

		pdfs := msg.PDFAttachments()
		if len(pdfs) == 0 {
			if err := s.history.MarkProcessed(ctx, messageID); err != nil {
				msgLogger.Errorf("Failed to mark message without PDF processed: %v", err)
			}
			continue
		}

		msg.Attachments = pdfs
		messages = append(messages, msg)
	}

	logger.Infof("Found %d new message(s) with PDF attachments", len(messages))
	return messages, nil
}
