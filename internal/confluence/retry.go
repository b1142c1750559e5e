package confluence

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig controls how transient API failures are retried.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	// Jitter is the fraction of each wait that is randomized, so
	// concurrent workers do not retry in lockstep.
	Jitter float64
}

// DefaultRetryConfig retries three times with exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     8 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

// retryableError marks an error as safe to retry: network failures,
// 5xx responses, rate limits. Client errors are never wrapped.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// withRetry runs fn until it succeeds, fails permanently, or attempts
// run out. The retryable marker is stripped from the returned error.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	wait := cfg.InitialWait
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var re *retryableError
		if !errors.As(err, &re) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			return re.err
		}

		select {
		case <-time.After(jittered(wait, cfg.Jitter)):
		case <-ctx.Done():
			return ctx.Err()
		}
		wait = time.Duration(float64(wait) * cfg.Multiplier)
		if wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}
}

func jittered(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	delta := frac * float64(d)
	return time.Duration(float64(d) - delta/2 + rand.Float64()*delta)
}
