package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vipul43/invy-worker/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrAccountNotFound = errors.New("account not found")

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// ListByOwner retrieves every connected mailbox of an owner, oldest first
func (r *AccountRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Account, error) {
	var accounts []models.Account
	result := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", result.Error)
	}
	return accounts, nil
}

// UpdateTokens updates access token, refresh token, and the access token expiry.
// Returns ErrAccountNotFound when the account was deleted in the meantime.
func (r *AccountRepository) UpdateTokens(ctx context.Context, accountID string, accessToken string, refreshToken string, tokenExpiresAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"access_token":     accessToken,
			"refresh_token":    refreshToken,
			"token_expires_at": tokenExpiresAt,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update tokens: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Upsert stores a freshly connected mailbox; reconnecting the same mailbox replaces its tokens
func (r *AccountRepository) Upsert(ctx context.Context, account *models.Account) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "mailbox_address"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "token_expires_at", "updated_at"}),
	}).Create(account)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert account: %w", result.Error)
	}
	return nil
}
