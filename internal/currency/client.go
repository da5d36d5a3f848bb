package currency

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

const DefaultAPIURL = "https://api.frankfurter.app"

// Client reads rates from the Frankfurter API
type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		now: time.Now,
	}
}

// FetchUSDToINR returns the latest INR per USD
func (c *Client) FetchUSDToINR(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/latest?from=USD&to=INR", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch exchange rate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate API error (status %d)", resp.StatusCode)
	}

	var parsed struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse rate response: %w", err)
	}

	rate, ok := parsed.Rates[INR]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("rate response has no INR rate")
	}
	return rate, nil
}

// Refresh returns prev while it is fresh. Otherwise it fetches a new rate,
// falling back to prev and then to FallbackRate when the fetch fails.
func (c *Client) Refresh(ctx context.Context, prev Rate, ttl time.Duration) Rate {
	now := c.now()
	if !prev.Expired(now, ttl) {
		return prev
	}

	value, err := c.FetchUSDToINR(ctx)
	if err != nil {
		if prev.Value > 0 {
			log.Warnf("Exchange rate refresh failed, using stale rate %.4f: %v", prev.Value, err)
			return prev
		}
		log.Warnf("Exchange rate refresh failed, using fallback rate %.2f: %v", FallbackRate, err)
		return Rate{Value: FallbackRate}
	}

	log.Infof("Exchange rate updated: %.4f INR per USD", value)
	return Rate{Value: value, FetchedAt: now}
}
