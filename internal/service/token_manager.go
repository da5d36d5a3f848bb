package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vipul43/invy-worker/internal/models"
)

// TokenExpiryMargin is how close to expiry an access token is refreshed
const TokenExpiryMargin = 5 * time.Minute

var errNoRefreshToken = errors.New("no refresh token available")

// TokenManager hands out valid access tokens, refreshing and persisting them when near expiry
type TokenManager struct {
	identity IdentityProvider
	accounts AccountTokenStore
	now      func() time.Time
}

func NewTokenManager(identity IdentityProvider, accounts AccountTokenStore) *TokenManager {
	return &TokenManager{
		identity: identity,
		accounts: accounts,
		now:      time.Now,
	}
}

// AccessToken returns a usable access token for the account. A refreshed token is
// persisted and copied onto account before returning. Refresh failures come back as
// *CredentialRefreshError; a deleted account as repository.ErrAccountNotFound.
func (m *TokenManager) AccessToken(ctx context.Context, account *models.Account) (string, error) {
	if account.AccessToken != nil && *account.AccessToken != "" && !m.isTokenExpired(account.TokenExpiresAt) {
		return *account.AccessToken, nil
	}

	if account.RefreshToken == nil || *account.RefreshToken == "" {
		return "", m.refreshFailure(account, errNoRefreshToken)
	}

	log.WithField("account", account.ID).Info("Access token expired, refreshing")

	result, err := m.identity.RefreshAccessToken(ctx, *account.RefreshToken)
	if err != nil {
		return "", m.refreshFailure(account, err)
	}

	refreshToken := result.RefreshToken
	if refreshToken == "" {
		refreshToken = *account.RefreshToken
	}

	if err := m.accounts.UpdateTokens(ctx, account.ID, result.AccessToken, refreshToken, result.ExpiresAt); err != nil {
		return "", fmt.Errorf("failed to update tokens in database: %w", err)
	}

	account.AccessToken = &result.AccessToken
	account.RefreshToken = &refreshToken
	expiresAt := result.ExpiresAt
	account.TokenExpiresAt = &expiresAt

	log.WithField("account", account.ID).Infof("Token refreshed, expires at %s", result.ExpiresAt)
	return result.AccessToken, nil
}

// isTokenExpired checks if access token is expired or will expire within 5 minutes
func (m *TokenManager) isTokenExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return true // Assume expired if no expiry time
	}
	return m.now().Add(TokenExpiryMargin).After(*expiresAt)
}

func (m *TokenManager) refreshFailure(account *models.Account, err error) error {
	return &CredentialRefreshError{
		AccountID:      account.ID,
		MailboxAddress: account.MailboxAddress,
		Err:            err,
	}
}
