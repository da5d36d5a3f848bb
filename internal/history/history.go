// Package history tracks which mail messages have already been fully handled.
package history

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vipul43/invy-worker/internal/config"
	"github.com/vipul43/invy-worker/internal/repository"
	"gorm.io/gorm"
)

// Store is a bounded set of processed message ids. Once the limit is exceeded the
// oldest ids are evicted first. Implementations must be safe for concurrent sweeps.
type Store interface {
	Contains(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
}

// New builds the store selected by cfg.HistoryBackend
func New(cfg *config.Config, db *gorm.DB) (Store, error) {
	switch cfg.HistoryBackend {
	case "", config.HistoryBackendPostgres:
		return repository.NewHistoryRepository(db, cfg.HistoryLimit), nil
	case config.HistoryBackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		return NewRedisStore(redis.NewClient(opts), cfg.HistoryLimit), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
}
