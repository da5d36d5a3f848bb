package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/vipul43/invy-worker/internal/models"
	"gorm.io/gorm"
)

var ErrOwnerNotFound = errors.New("owner not found")

type OwnerRepository struct {
	db *gorm.DB
}

func NewOwnerRepository(db *gorm.DB) *OwnerRepository {
	return &OwnerRepository{db: db}
}

// List retrieves all owners
func (r *OwnerRepository) List(ctx context.Context) ([]models.Owner, error) {
	var owners []models.Owner
	result := r.db.WithContext(ctx).Order("created_at ASC").Find(&owners)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list owners: %w", result.Error)
	}
	return owners, nil
}

// GetByID retrieves owner by ID
func (r *OwnerRepository) GetByID(ctx context.Context, ownerID string) (*models.Owner, error) {
	var owner models.Owner
	result := r.db.WithContext(ctx).First(&owner, "id = ?", ownerID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrOwnerNotFound
		}
		return nil, fmt.Errorf("failed to get owner: %w", result.Error)
	}
	return &owner, nil
}
