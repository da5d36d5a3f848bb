package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vipul43/invy-worker/internal/config"
	"github.com/vipul43/invy-worker/internal/currency"
	"github.com/vipul43/invy-worker/internal/models"
	"github.com/vipul43/invy-worker/internal/service"
)

type OwnerLister interface {
	List(ctx context.Context) ([]models.Owner, error)
}

type AccountLister interface {
	ListByOwner(ctx context.Context, ownerID string) ([]models.Account, error)
}

type TokenProvider interface {
	AccessToken(ctx context.Context, account *models.Account) (string, error)
}

type Scanner interface {
	Scan(ctx context.Context, account models.Account, accessToken string) ([]*service.MailMessage, error)
}

type AttachmentHandler interface {
	Process(ctx context.Context, job service.AttachmentJob) (service.Outcome, error)
}

type Notifier interface {
	NotifyCredentialFailure(ctx context.Context, owner models.Owner, account models.Account) error
}

type RateRefresher interface {
	Refresh(ctx context.Context, prev currency.Rate, ttl time.Duration) currency.Rate
}

// Watcher runs a sweep over every owner's mailboxes at startup and then on every tick.
// A slow sweep does not delay the next one; sweeps may overlap.
type Watcher struct {
	cfg       *config.Config
	owners    OwnerLister
	accounts  AccountLister
	tokens    TokenProvider
	scanner   Scanner
	processor AttachmentHandler
	history   service.HistoryStore
	notifier  Notifier
	rates     RateRefresher

	interval time.Duration
	rateTTL  time.Duration

	rateMu sync.Mutex
	rate   currency.Rate

	sweeps   sync.WaitGroup
	sweepSeq atomic.Uint64
}

func New(
	cfg *config.Config,
	owners OwnerLister,
	accounts AccountLister,
	tokens TokenProvider,
	scanner Scanner,
	processor AttachmentHandler,
	history service.HistoryStore,
	notifier Notifier,
	rates RateRefresher,
) *Watcher {
	return &Watcher{
		cfg:       cfg,
		owners:    owners,
		accounts:  accounts,
		tokens:    tokens,
		scanner:   scanner,
		processor: processor,
		history:   history,
		notifier:  notifier,
		rates:     rates,
		interval:  cfg.SweepEvery(),
		rateTTL:   time.Duration(cfg.RateCacheHours) * time.Hour,
	}
}

// Start sweeps immediately and then every interval until ctx is done.
// Sweeps already running keep going after Start returns; use Wait to drain them.
func (w *Watcher) Start(ctx context.Context) error {
	log.Infof("Starting watcher, sweeping every %s", w.interval)

	// In-flight sweeps finish their work on shutdown instead of being cut off mid-write
	sweepCtx := context.WithoutCancel(ctx)

	w.launch(sweepCtx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Watcher shutting down...")
			return ctx.Err()
		case <-ticker.C:
			w.launch(sweepCtx)
		}
	}
}

func (w *Watcher) launch(ctx context.Context) {
	w.sweeps.Add(1)
	go func() {
		defer w.sweeps.Done()
		w.RunSweep(ctx)
	}()
}

// Wait blocks until running sweeps finish or timeout passes. Reports whether they finished.
func (w *Watcher) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		w.sweeps.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// RunSweep processes every account of every owner once. Failures are logged per
// owner and per account; nothing here aborts the rest of the sweep.
func (w *Watcher) RunSweep(ctx context.Context) {
	id := w.sweepSeq.Add(1)
	logger := log.WithField("sweep", id)
	start := time.Now()

	if w.rates != nil {
		ctx = currency.WithRate(ctx, w.currentRate(ctx))
	}

	owners, err := w.owners.List(ctx)
	if err != nil {
		logger.Errorf("Failed to list owners: %v", err)
		return
	}

	var total sweepStats
	for _, owner := range owners {
		accounts, err := w.accounts.ListByOwner(ctx, owner.ID)
		if err != nil {
			logger.WithField("owner", owner.ID).Errorf("Failed to list accounts: %v", err)
			continue
		}

		for _, account := range accounts {
			stats := w.syncAccountSafely(ctx, owner, account)
			total.add(stats)
		}
	}

	logger.WithFields(log.Fields{
		"owners":      len(owners),
		"accounts":    total.accounts,
		"failed":      total.failedAccounts,
		"messages":    total.messagesMarked,
		"invoices":    total.invoices,
		"rejected":    total.rejected,
		"retry_later": total.retryLater,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Sweep finished")
}

// currentRate refreshes the shared exchange rate when it has expired
func (w *Watcher) currentRate(ctx context.Context) currency.Rate {
	w.rateMu.Lock()
	prev := w.rate
	w.rateMu.Unlock()

	next := w.rates.Refresh(ctx, prev, w.rateTTL)

	w.rateMu.Lock()
	if w.rate.Value <= 0 || next.FetchedAt.After(w.rate.FetchedAt) {
		w.rate = next
	}
	w.rateMu.Unlock()

	return next
}
