package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vipul43/invy-worker/internal/models"
	"gorm.io/gorm"
)

// HistoryRepository is the Postgres-backed set of processed message ids.
// Inserts rely on the unique message_id constraint, so concurrent sweeps never
// read-modify-write the whole set.
type HistoryRepository struct {
	db    *gorm.DB
	limit int
}

func NewHistoryRepository(db *gorm.DB, limit int) *HistoryRepository {
	if limit <= 0 {
		limit = models.DefaultHistoryLimit
	}
	return &HistoryRepository{db: db, limit: limit}
}

// Contains reports whether the message id was already processed
func (r *HistoryRepository) Contains(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := r.db.WithContext(ctx).
		Raw(`SELECT EXISTS (SELECT 1 FROM processed_message WHERE message_id = ?)`, messageID).
		Scan(&exists).Error
	if err != nil {
		return false, fmt.Errorf("failed to check history: %w", err)
	}
	return exists, nil
}

// MarkProcessed adds the message id if absent and evicts the oldest entries beyond the limit
func (r *HistoryRepository) MarkProcessed(ctx context.Context, messageID string) error {
	result := r.db.WithContext(ctx).Exec(
		`INSERT INTO processed_message (message_id, processed_at) VALUES (?, ?) ON CONFLICT (message_id) DO NOTHING`,
		messageID, time.Now(),
	)
	if result.Error != nil {
		return fmt.Errorf("failed to mark message processed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil
	}

	// Everything at or below the (limit+1)-th newest id goes
	trim := r.db.WithContext(ctx).Exec(
		`DELETE FROM processed_message WHERE id <= (SELECT id FROM processed_message ORDER BY id DESC OFFSET ? LIMIT 1)`,
		r.limit,
	)
	if trim.Error != nil {
		return fmt.Errorf("failed to trim history: %w", trim.Error)
	}
	return nil
}
