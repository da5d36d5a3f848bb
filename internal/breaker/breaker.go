// Package breaker wraps Google API calls in circuit breakers so a failing
// mailbox fails fast instead of stalling its own sweep. Breakers are kept per
// account: one account's failures never open the circuit for another.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"
)

type keyCtx struct{}

// WithKey scopes Google API calls made with ctx to the breaker of key
func WithKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, keyCtx{}, key)
}

// KeyFrom returns the breaker key carried by ctx, empty when none was set
func KeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(keyCtx{}).(string)
	return key
}

// New returns a breaker that opens after more than 5 consecutive failures, or a
// 60% failure ratio over at least 10 requests
func New(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: IsSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

// IsSuccessful reports errors that say nothing about provider health as successes:
// client errors, per-user rate limits and cancelled or expired contexts.
func IsSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 400, 401, 403, 404, 429:
			return true
		}
	}
	return false
}

// Group hands out one breaker per key, created on first use
type Group struct {
	name string

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewGroup(name string) *Group {
	return &Group{
		name:     name,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// For returns the breaker for the key carried by ctx
func (g *Group) For(ctx context.Context) *gobreaker.CircuitBreaker {
	key := KeyFrom(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	cb, ok := g.breakers[key]
	if !ok {
		name := g.name
		if key != "" {
			name = g.name + ":" + key
		}
		cb = New(name)
		g.breakers[key] = cb
	}
	return cb
}

// Execute runs fn through the breaker selected by ctx
func (g *Group) Execute(ctx context.Context, operation string, fn func() error) error {
	return Execute(g.For(ctx), operation, fn)
}

// Execute runs fn through cb
func Execute(cb *gobreaker.CircuitBreaker, operation string, fn func() error) error {
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil && (errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)) {
		log.WithField("operation", operation).Warnf("Circuit breaker %s rejected call: %v", cb.Name(), err)
	}
	return err
}
