// Package ratelimit provides the per-provider call limiters used by the
// valuation pipeline.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/appraisal/pkg/metrics"
)

// Limiter blocks until the caller may issue one external call.
type Limiter interface {
	Wait(ctx context.Context) error
}

// MinInterval returns a limiter that admits one call per interval with no
// burst. A non-positive interval yields an unlimited limiter.
func MinInterval(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Unlimited returns a limiter that never blocks.
func Unlimited() Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// Instrumented wraps a limiter and records wait time under name.
func Instrumented(name string, l Limiter) Limiter {
	return &instrumented{name: name, next: l}
}

type instrumented struct {
	name string
	next Limiter
}

func (i *instrumented) Wait(ctx context.Context) error {
	start := time.Now()
	err := i.next.Wait(ctx)
	metrics.RecordLimiterWait(i.name, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return fmt.Errorf("%s limiter: %w", i.name, err)
	}
	return nil
}

// Func adapts a function to Limiter. Tests use it to count waits.
type Func func(ctx context.Context) error

// Wait calls f.
func (f Func) Wait(ctx context.Context) error { return f(ctx) }
