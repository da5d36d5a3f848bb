// Package currency converts invoice totals to INR for reporting.
package currency

import (
	"context"
	"strings"
	"time"
)

const (
	USD = "USD"
	INR = "INR"

	// FallbackRate is used when no rate was ever fetched
	FallbackRate = 85.0
)

// Rate is a USD to INR rate and the time it was fetched.
// A zero FetchedAt marks a rate that did not come from the API.
type Rate struct {
	Value     float64
	FetchedAt time.Time
}

// Expired reports whether the rate should be fetched again
func (r Rate) Expired(now time.Time, ttl time.Duration) bool {
	if r.Value <= 0 || r.FetchedAt.IsZero() {
		return true
	}
	return now.Sub(r.FetchedAt) >= ttl
}

// ToINR converts amount. INR passes through; any other currency is treated as USD.
func (r Rate) ToINR(amount float64, currency string) float64 {
	if strings.EqualFold(strings.TrimSpace(currency), INR) {
		return amount
	}
	return amount * r.Value
}

type rateKey struct{}

// WithRate returns a context carrying rate
func WithRate(ctx context.Context, rate Rate) context.Context {
	return context.WithValue(ctx, rateKey{}, rate)
}

// RateFrom returns the rate carried by ctx, if any
func RateFrom(ctx context.Context) (Rate, bool) {
	rate, ok := ctx.Value(rateKey{}).(Rate)
	if !ok || rate.Value <= 0 {
		return Rate{}, false
	}
	return rate, true
}
