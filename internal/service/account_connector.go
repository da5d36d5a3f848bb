package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vipul43/invy-worker/internal/models"
)

// OwnerGetter interface for dependency injection
type OwnerGetter interface {
	GetByID(ctx context.Context, ownerID string) (*models.Owner, error)
}

// AccountUpserter persists a connected mailbox
type AccountUpserter interface {
	Upsert(ctx context.Context, account *models.Account) error
}

// AccountConnector completes the OAuth connect flow for an owner's mailbox
type AccountConnector struct {
	owners   OwnerGetter
	accounts AccountUpserter
	identity IdentityProvider
	profiles ProfileFetcher
	storage  FileStorage // nil skips folder bootstrap
	now      func() time.Time
}

func NewAccountConnector(owners OwnerGetter, accounts AccountUpserter, identity IdentityProvider, profiles ProfileFetcher, storage FileStorage) *AccountConnector {
	return &AccountConnector{
		owners:   owners,
		accounts: accounts,
		identity: identity,
		profiles: profiles,
		storage:  storage,
		now:      time.Now,
	}
}

// Connect exchanges the authorization code and stores the mailbox for the owner.
// Connecting the same mailbox again replaces its credentials.
func (c *AccountConnector) Connect(ctx context.Context, ownerID string, code string) (*models.Account, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("authorization code is required")
	}

	owner, err := c.owners.GetByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}

	tokens, err := c.identity.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	// Without a refresh token the account would stop working within the hour
	if tokens.RefreshToken == "" {
		return nil, fmt.Errorf("identity provider returned no refresh token, offline access was not granted")
	}

	mailbox, err := c.profiles.GetProfile(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{"owner": owner.ID, "mailbox": mailbox})

	if c.storage != nil {
		if _, err := c.storage.EnsureFolder(ctx, tokens.AccessToken, InvoiceFolderPath(mailbox, c.now())); err != nil {
			logger.Warnf("Could not prepare storage folder: %v", err)
		}
	}

	now := c.now()
	expiresAt := tokens.ExpiresAt
	account := &models.Account{
		ID:             uuid.NewString(),
		OwnerID:        owner.ID,
		MailboxAddress: mailbox,
		AccessToken:    &tokens.AccessToken,
		RefreshToken:   &tokens.RefreshToken,
		TokenExpiresAt: &expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := c.accounts.Upsert(ctx, account); err != nil {
		return nil, err
	}

	logger.Info("Mailbox connected")
	return account, nil
}
