// Package ratelimit spaces consecutive page requests with a token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum interval between page fetches.
type Pacer struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// Config holds pacer configuration.
type Config struct {
	// Interval is the minimum spacing between two fetches. Zero disables pacing.
	Interval time.Duration
}

// New creates a Pacer with a single-token bucket, so the first fetch is
// immediate and each following one waits for Interval.
func New(cfg Config) *Pacer {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &Pacer{
		limiter:  rate.NewLimiter(limit, 1),
		interval: cfg.Interval,
	}
}

// Interval reports the configured spacing.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Wait blocks until the next fetch may start, respecting the context.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait: %w", err)
	}
	return nil
}
