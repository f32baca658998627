// Package retry provides retry with exponential backoff and jitter.
// Callers classify their errors: wrap in Retryable to back off and try
// again, wrap in Permanent to fail immediately. Unclassified errors are
// not retried, so a forgotten wrap fails loud instead of looping.
// No external dependencies - uses only standard library.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// RetryableError marks an error as transient.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so the retrier will back off and try again.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is marked transient.
func IsRetryable(err error) bool {
	var target *RetryableError
	return errors.As(err, &target)
}

// PermanentError marks an error as not worth retrying.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the retrier fails immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is marked permanent.
func IsPermanent(err error) bool {
	var target *PermanentError
	return errors.As(err, &target)
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Config holds retry configuration. Zero values fall back to the
// defaults noted per field.
type Config struct {
	// MaxAttempts counts the first attempt too. Default 3.
	MaxAttempts int

	// InitialDelay precedes the first retry. Default 100ms.
	InitialDelay time.Duration

	// MaxDelay caps the backoff. Default 30s.
	MaxDelay time.Duration

	// Multiplier grows the delay after each attempt. Default 2.0.
	Multiplier float64

	// JitterFactor randomizes each delay by ±factor. Default 0.1.
	JitterFactor float64

	// OnRetry is invoked before each sleep, for logging or metrics.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier < 1.0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1.0 {
		c.JitterFactor = 0.1
	}
	return c
}

// Retrier executes operations under a fixed retry policy.
type Retrier struct {
	cfg Config
}

// New creates a Retrier from cfg, filling in defaults.
func New(cfg Config) *Retrier {
	return &Retrier{cfg: cfg.withDefaults()}
}

// Do runs op until it succeeds, exhausts attempts, or returns an error
// that is not Retryable. The wrapper is stripped from the returned
// error so callers match on their own sentinel errors.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == r.cfg.MaxAttempts {
			return errors.Unwrap(err)
		}

		delay := r.backoff(attempt)
		if r.cfg.OnRetry != nil {
			r.cfg.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}

	return lastErr
}

func (r *Retrier) backoff(attempt int) time.Duration {
	d := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.Multiplier, float64(attempt-1))
	if d > float64(r.cfg.MaxDelay) {
		d = float64(r.cfg.MaxDelay)
	}
	if r.cfg.JitterFactor > 0 {
		d += d * r.cfg.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// ConflictRetrier is tuned for optimistic-concurrency conflicts on
// per-user-per-day rows. Conflicts resolve quickly, so delays stay short.
func ConflictRetrier() *Retrier {
	return New(Config{
		MaxAttempts:  4,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		JitterFactor: 0.2,
	})
}

// NotifierRetrier is tuned for webhook notification delivery.
func NotifierRetrier() *Retrier {
	return New(Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		JitterFactor: 0.2,
	})
}
