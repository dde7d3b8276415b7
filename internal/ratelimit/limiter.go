package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces requests against the yield endpoint. All fetch workers share
// one Limiter, passed in explicitly rather than read from ambient state.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter allowing perSecond requests per second with a burst
// of one. perSecond <= 0 disables limiting entirely.
func New(perSecond float64) *Limiter {
	if perSecond <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Wait blocks until the limiter permits an event. It returns an error if the
// context is canceled before the event can proceed.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether an event may happen now without blocking.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}
