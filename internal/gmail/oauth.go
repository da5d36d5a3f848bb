package gmail

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/vipul43/invy-worker/internal/service"
)

// RefreshAccessToken refreshes the OAuth2 access token
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*service.TokenRefreshResult, error) {
	token := &oauth2.Token{
		RefreshToken: refreshToken,
	}

	newToken, err := c.oauthConfig.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	result := &service.TokenRefreshResult{
		AccessToken:  newToken.AccessToken,
		ExpiresAt:    newToken.Expiry,
		RefreshToken: refreshToken,
	}

	// Google only sometimes rotates the refresh token
	if newToken.RefreshToken != "" && newToken.RefreshToken != refreshToken {
		result.RefreshToken = newToken.RefreshToken
	}

	log.Debugf("Token refreshed, expires at: %s", result.ExpiresAt)

	return result, nil
}

// ExchangeCode trades an authorization code for the initial token pair
func (c *Client) ExchangeCode(ctx context.Context, code string) (*service.TokenRefreshResult, error) {
	token, err := c.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	return &service.TokenRefreshResult{
		AccessToken:  token.AccessToken,
		ExpiresAt:    token.Expiry,
		RefreshToken: token.RefreshToken,
	}, nil
}

// AuthCodeURL is where the owner grants offline mailbox access
func (c *Client) AuthCodeURL(state string) string {
	return c.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}
