// Package retry wraps fallible units of work with exponential backoff.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultMaxAttempts   = 3
	defaultInitialDelay  = 30 * time.Second
	defaultBackoffFactor = 2.0
)

// Config holds backoff settings for a Retryer.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the wait after the first failed attempt.
	InitialDelay time.Duration
	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64
}

// Retryer re-runs an operation until it succeeds or attempts run out.
type Retryer struct {
	cfg Config
	log *logrus.Logger
}

// New constructs a Retryer, filling in defaults for unset fields.
func New(cfg Config, log *logrus.Logger) *Retryer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	if cfg.BackoffFactor <= 1.0 {
		cfg.BackoffFactor = defaultBackoffFactor
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Retryer{cfg: cfg, log: log}
}

// Do runs fn, retrying on failure with exponential backoff. The first
// attempt runs immediately; after attempt i fails (0-based) the wait is
// InitialDelay * BackoffFactor^i. Once attempts are exhausted the last
// error is returned unchanged. A cancelled context cuts a backoff sleep
// short and returns ctx.Err().
func (r *Retryer) Do(ctx context.Context, op string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				r.log.WithField("operation", op).Infof("Succeeded on attempt %d", attempt+1)
			}
			return nil
		}
		lastErr = err

		if attempt == r.cfg.MaxAttempts-1 {
			r.log.WithField("operation", op).Errorf(
				"Failed after %d attempts: %v", r.cfg.MaxAttempts, err)
			break
		}

		delay := r.delay(attempt)
		r.log.WithField("operation", op).Warnf(
			"Attempt %d/%d failed: %v. Retrying in %s",
			attempt+1, r.cfg.MaxAttempts, err, delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

func (r *Retryer) delay(attempt int) time.Duration {
	return time.Duration(float64(r.cfg.InitialDelay) * math.Pow(r.cfg.BackoffFactor, float64(attempt)))
}
