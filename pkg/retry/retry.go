// Package retry retries a fallible action with exponential backoff,
// used by pkg/fetch to wrap repo-client calls against transient
// transport failures.
package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/windowsadmins/cimian/pkg/logging"
)

// NonRetryable wraps an error to signal it should not be retried (e.g.
// a hash mismatch, which no amount of retrying will fix).
type NonRetryable struct{ Err error }

func (e *NonRetryable) Error() string { return e.Err.Error() }
func (e *NonRetryable) Unwrap() error { return e.Err }

// Config defines the retry schedule.
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
}

// DefaultConfig is three attempts starting at one second, doubling each time.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, InitialInterval: time.Second, Multiplier: 2}
}

// Do retries action with exponential backoff until it succeeds, a
// NonRetryable error is returned, or MaxAttempts is exhausted.
func Do(cfg Config, action func() error) error {
	interval := cfg.InitialInterval
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := action()
		if err == nil {
			return nil
		}
		lastErr = err

		var nonRetryable *NonRetryable
		if errors.As(err, &nonRetryable) {
			logging.Warn("non-retryable error, giving up", "attempt", attempt, "error", err.Error())
			return nonRetryable.Err
		}

		if attempt < cfg.MaxAttempts {
			logging.Warn("attempt failed, retrying", "attempt", attempt, "max_attempts", cfg.MaxAttempts,
				"delay", interval.String(), "error", err.Error())
			time.Sleep(interval)
			interval = time.Duration(float64(interval) * cfg.Multiplier)
		}
	}
	return fmt.Errorf("action failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
