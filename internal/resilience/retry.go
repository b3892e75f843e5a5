// Package resilience provides bounded retry and circuit breaking for page
// loads and external lookups.
package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first try).
	// A value of 1 means no retries. Default: 3.
	MaxAttempts int

	// InitialBackoff is the delay scheduled after the first failure. Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration. Default: 30s.
	MaxBackoff time.Duration

	// Multiplier scales the backoff after each attempt. Default: 2.0.
	Multiplier float64

	// ShouldRetry optionally overrides the default transient-error check.
	// If nil, IsTransient is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with attempt number and error.
	OnRetry func(attempt int, err error)

	// Sleep waits between attempts. Tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig returns the page-load retry policy: three attempts,
// backoff 1s doubling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// Attempt records one failed try.
type Attempt struct {
	N   int
	Err error
	// Backoff is the delay scheduled after this failure. The final attempt
	// still reports its scheduled delay, but Slept is false.
	Backoff time.Duration
	Slept   bool
}

// String renders the attempt as an evidence line.
func (a Attempt) String() string {
	if a.Slept {
		return fmt.Sprintf("attempt %d failed: %v (backoff %s)", a.N, a.Err, a.Backoff)
	}
	return fmt.Sprintf("attempt %d failed: %v (backoff %s skipped, attempts exhausted)", a.N, a.Err, a.Backoff)
}

// Run executes op with retry logic according to cfg and returns every failed
// attempt alongside the result. Only errors deemed transient are retried.
// Context cancellation stops retries immediately.
func Run[T any](ctx context.Context, cfg RetryConfig, op func(ctx context.Context) (T, error)) (T, []Attempt, error) {
	cfg = applyDefaults(cfg)

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var attempts []Attempt
	for n := 1; ; n++ {
		val, err := op(ctx)
		if err == nil {
			return val, attempts, nil
		}

		a := Attempt{N: n, Err: err, Backoff: computeBackoff(n-1, cfg)}

		if ctx.Err() != nil || !shouldRetry(err) || n == cfg.MaxAttempts {
			attempts = append(attempts, a)
			return zero, attempts, err
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(n, err)
		}

		a.Slept = true
		attempts = append(attempts, a)
		if serr := cfg.Sleep(ctx, a.Backoff); serr != nil {
			attempts[len(attempts)-1].Slept = false
			return zero, attempts, err
		}
	}
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	return cfg
}

func computeBackoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxBackoff) {
		delay = float64(cfg.MaxBackoff)
	}
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
