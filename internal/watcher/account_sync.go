package watcher

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vipul43/invy-worker/internal/breaker"
	"github.com/vipul43/invy-worker/internal/models"
	"github.com/vipul43/invy-worker/internal/repository"
	"github.com/vipul43/invy-worker/internal/service"
	"github.com/vipul43/invy-worker/internal/workerpool"
)

type sweepStats struct {
	accounts       int
	failedAccounts int
	messagesMarked int
	invoices       int
	rejected       int
	retryLater     int
}

func (s *sweepStats) add(o sweepStats) {
	s.accounts += o.accounts
	s.failedAccounts += o.failedAccounts
	s.messagesMarked += o.messagesMarked
	s.invoices += o.invoices
	s.rejected += o.rejected
	s.retryLater += o.retryLater
}

// syncAccountSafely is the failure boundary around one account
func (w *Watcher) syncAccountSafely(ctx context.Context, owner models.Owner, account models.Account) (stats sweepStats) {
	logger := log.WithFields(log.Fields{"owner": owner.ID, "account": account.ID})

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Account sync panicked: %v", r)
			stats.accounts = 1
			stats.failedAccounts = 1
		}
	}()

	stats, err := w.syncAccount(ctx, owner, account)
	if err != nil {
		logger.Errorf("Account sync failed: %v", err)
		stats.failedAccounts = 1
	}
	stats.accounts = 1
	return stats
}

func (w *Watcher) syncAccount(ctx context.Context, owner models.Owner, account models.Account) (sweepStats, error) {
	var stats sweepStats
	logger := log.WithFields(log.Fields{"owner": owner.ID, "account": account.ID})

	// Provider calls for this mailbox trip only this mailbox's breakers
	ctx = breaker.WithKey(ctx, account.ID)

	accessToken, err := w.tokens.AccessToken(ctx, &account)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			logger.Info("Account was removed during the sweep, skipping")
			return stats, nil
		}
		if errors.Is(err, service.ErrCredentialRefresh) && w.notifier != nil {
			if notifyErr := w.notifier.NotifyCredentialFailure(ctx, owner, account); notifyErr != nil {
				logger.Warnf("Failed to notify owner: %v", notifyErr)
			}
		}
		return stats, err
	}

	messages, err := w.scanner.Scan(ctx, account, accessToken)
	if err != nil {
		return stats, fmt.Errorf("scan failed: %w", err)
	}
	if len(messages) == 0 {
		return stats, nil
	}

	var jobs []service.AttachmentJob
	for _, msg := range messages {
		for _, att := range msg.Attachments {
			jobs = append(jobs, service.AttachmentJob{
				Account:     account,
				AccessToken: accessToken,
				Message:     msg,
				Attachment:  att,
			})
		}
	}

	results := workerpool.Run(ctx, jobs, w.cfg.MaxConcurrentAttachments, w.processor.Process)

	unresolved := make(map[string]bool)
	for _, r := range results {
		if r.Err != nil {
			logger.WithFields(log.Fields{
				"message_id": r.Item.Message.ID,
				"attachment": r.Item.Attachment.Filename,
			}).Warnf("Attachment left for the next sweep: %v", r.Err)
			unresolved[r.Item.Message.ID] = true
			stats.retryLater++
			continue
		}
		switch r.Value {
		case service.OutcomeRejected:
			stats.rejected++
		default:
			stats.invoices++
		}
	}

	for _, msg := range messages {
		if unresolved[msg.ID] {
			continue
		}
		if err := w.history.MarkProcessed(ctx, msg.ID); err != nil {
			logger.WithField("message_id", msg.ID).Errorf("Failed to mark message processed: %v", err)
			continue
		}
		stats.messagesMarked++
	}

	return stats, nil
}
