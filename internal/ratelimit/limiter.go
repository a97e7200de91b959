// Package ratelimit paces outbound sends on a connection.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter bounds how many sends are admitted per period.
type Limiter struct {
	limiter *rate.Limiter
	metrics *Metrics
}

// Metrics tracks statistics about limiter usage.
type Metrics struct {
	totalSends   atomic.Int64
	allowedSends atomic.Int64
	deniedSends  atomic.Int64
}

// New creates a Limiter admitting the given number of sends per period,
// with a burst of the same size.
func New(sends int, period time.Duration) *Limiter {
	rps := float64(sends) / period.Seconds()
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), sends),
		metrics: &Metrics{},
	}
}

// Allow reports whether a send is admitted immediately.
func (l *Limiter) Allow() bool {
	l.metrics.totalSends.Add(1)
	allowed := l.limiter.Allow()
	if allowed {
		l.metrics.allowedSends.Add(1)
	} else {
		l.metrics.deniedSends.Add(1)
	}
	return allowed
}

// Wait blocks until a send is admitted or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	l.metrics.totalSends.Add(1)
	if err := l.limiter.Wait(ctx); err != nil {
		l.metrics.deniedSends.Add(1)
		return err
	}
	l.metrics.allowedSends.Add(1)
	return nil
}

// SetLimit updates the limit to the specified sends per period.
func (l *Limiter) SetLimit(sends int, period time.Duration) {
	rps := float64(sends) / period.Seconds()
	l.limiter.SetLimit(rate.Limit(rps))
	l.limiter.SetBurst(sends)
}

// Metrics returns a snapshot of the current limiter statistics.
func (l *Limiter) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalSends:   l.metrics.totalSends.Load(),
		AllowedSends: l.metrics.allowedSends.Load(),
		DeniedSends:  l.metrics.deniedSends.Load(),
	}
}

// MetricsSnapshot is a point-in-time capture of limiter statistics.
type MetricsSnapshot struct {
	// TotalSends is the total number of admission checks performed.
	TotalSends int64
	// AllowedSends is the number of sends that were admitted.
	AllowedSends int64
	// DeniedSends is the number of sends that were refused or cancelled.
	DeniedSends int64
}
