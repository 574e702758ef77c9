// Package retry re-runs backing store requests that failed with a retryable error,
// backing off exponentially between attempts.
//
// The caching layer itself never retries. Only concrete backing stores use this
// package, and by default only Throttled errors are retried.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/objectfs/cachingfs/pkg/errors"
)

// Config defines retry behavior configuration
type Config struct {
	// MaxAttempts counts the initial attempt.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`

	// MaxDelay caps every delay, jitter included.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`

	// Multiplier is the factor by which delay increases after each retry
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`

	// Jitter spreads each delay by up to 20% either way.
	Jitter bool `yaml:"jitter" json:"jitter"`

	// RetryableErrors lists codes retried in addition to errors flagged Retryable
	RetryableErrors []errors.ErrorCode `yaml:"retryable_errors" json:"retryable_errors"`

	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`
}

// DefaultConfig returns the default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     4,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
		RetryableErrors: []errors.ErrorCode{errors.ErrCodeThrottled},
	}
}

// Retryer runs requests under a Config. It holds no per-request state and may be
// shared.
type Retryer struct {
	config Config
}

// New creates a Retryer. Non-positive fields take the DefaultConfig values.
func New(config Config) *Retryer {
	d := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = d.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = d.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = d.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = d.Multiplier
	}
	return &Retryer{config: config}
}

// Do calls fn until it succeeds, fails with a non-retryable error, or MaxAttempts
// is reached. Giving up yields ErrCodeRetryExhausted wrapping the last error, so
// errors.IsThrottled and friends still see it.
func (r *Retryer) Do(ctx context.Context, fn func(context.Context) error) error {
	delay := r.config.InitialDelay

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("operation canceled: %w", err)
		}

		err := fn(ctx)
		if err == nil || !r.retryable(err) {
			return err
		}
		if attempt >= r.config.MaxAttempts {
			return errors.NewError(errors.ErrCodeRetryExhausted,
				fmt.Sprintf("gave up after %d attempts", attempt)).WithCause(err)
		}

		wait := r.jitter(delay)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("operation canceled after %d attempts: %w", attempt, ctx.Err())
		case <-timer.C:
		}

		delay = min(time.Duration(float64(delay)*r.config.Multiplier), r.config.MaxDelay)
	}
}

func (r *Retryer) retryable(err error) bool {
	return errors.IsRetryable(err) || slices.Contains(r.config.RetryableErrors, errors.CodeOf(err))
}

func (r *Retryer) jitter(delay time.Duration) time.Duration {
	delay = min(delay, r.config.MaxDelay)
	if !r.config.Jitter {
		return delay
	}
	spread := float64(delay) * 0.2 * (rand.Float64()*2 - 1)
	return min(delay+time.Duration(spread), r.config.MaxDelay)
}
