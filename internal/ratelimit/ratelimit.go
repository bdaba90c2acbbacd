// Package ratelimit paces and retries outbound Bluesky API calls (A5).
package ratelimit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Limiter paces calls at a fixed interval and retries failed calls with
// exponential backoff, generalizing the single "wait then call" pattern
// every upstream-facing collaborator in this module needs.
type Limiter struct {
	rl        *rate.Limiter
	retryBase time.Duration
	retryMax  int
}

// New builds a Limiter allowing one call per interval (bursts of 1), with
// up to retryMax retries on failure using retryBase as the initial backoff.
func New(interval time.Duration, retryBase time.Duration, retryMax int) *Limiter {
	var rl *rate.Limiter
	if interval <= 0 {
		rl = rate.NewLimiter(rate.Inf, 1)
	} else {
		rl = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &Limiter{rl: rl, retryBase: retryBase, retryMax: retryMax}
}

// Do waits for a rate-limit slot, then calls fn, retrying on error with
// exponential backoff up to retryMax times after the first attempt.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.retryBase
	bctx := backoff.WithContext(b, ctx)

	attempt := 0
	return backoff.Retry(func() error {
		if err := l.rl.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		err := fn(ctx)
		if err != nil && attempt > l.retryMax {
			return backoff.Permanent(err)
		}
		return err
	}, bctx)
}
