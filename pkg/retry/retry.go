// Package retry wraps I/O operations with exponential backoff.
//
// The default policy never gives up: a background pipeline with nobody waiting
// on the result prefers to block until the dependency comes back. A bounded
// policy (MaxAttempts > 0) is available for tests and one-shot tooling.
package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/creasty/defaults"
	"go.uber.org/zap"

	"github.com/moviesearch/movies-etl/internal/metrics"
)

// ErrAttemptsExhausted is returned by a bounded Retrier when the last attempt failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Policy describes the backoff schedule.
type Policy struct {
	// StartSleepTime is the delay after the first failure.
	StartSleepTime time.Duration `mapstructure:"start_sleep_time" default:"100ms"`
	// Factor multiplies the delay after every failure.
	Factor float64 `mapstructure:"factor" default:"2"`
	// BorderSleepTime caps the delay.
	BorderSleepTime time.Duration `mapstructure:"border_sleep_time" default:"10s"`
	// MaxAttempts bounds the number of attempts; 0 retries forever.
	MaxAttempts uint64 `mapstructure:"max_attempts"`
}

// DefaultPolicy returns the unbounded policy: 0.1s, doubling, capped at 10s.
func DefaultPolicy() Policy {
	var p Policy
	_ = defaults.Set(&p)
	return p
}

// Validate checks the policy values.
func (p Policy) Validate() error {
	if p.StartSleepTime <= 0 {
		return fmt.Errorf("start_sleep_time must be positive, got %s", p.StartSleepTime)
	}
	if p.Factor < 1 {
		return fmt.Errorf("factor must be >= 1, got %v", p.Factor)
	}
	if p.BorderSleepTime < p.StartSleepTime {
		return fmt.Errorf("border_sleep_time %s is below start_sleep_time %s", p.BorderSleepTime, p.StartSleepTime)
	}
	return nil
}

// Permanent marks err as not worth retrying. Do returns the wrapped error as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

// Retrier runs operations under a Policy and counts failed attempts.
type Retrier struct {
	policy   Policy
	logger   *zap.Logger
	attempts atomic.Uint64
}

// New creates a Retrier. Zero fields of p are filled from the defaults.
func New(p Policy, logger *zap.Logger) (*Retrier, error) {
	if err := defaults.Set(&p); err != nil {
		return nil, fmt.Errorf("apply retry defaults: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{policy: p, logger: logger}, nil
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Attempts returns the number of failed attempts observed so far.
func (r *Retrier) Attempts() uint64 {
	return r.attempts.Load()
}

// Do calls fn until it succeeds, returns a permanent error, the context is
// canceled, or a bounded policy runs out of attempts. Every failed attempt is
// logged and counted.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var b backoff.BackOff = r.newBackOff()
	if r.policy.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, r.policy.MaxAttempts-1)
	}
	b = backoff.WithContext(b, ctx)

	var failures uint64
	permanent := false
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			permanent = true
			return err
		}
		failures++
		r.attempts.Add(1)
		metrics.RetryAttempts.WithLabelValues(operation).Inc()
		return err
	}
	notify := func(err error, delay time.Duration) {
		r.logger.Warn("Operation failed, backing off",
			zap.String("operation", operation),
			zap.Uint64("attempt", failures),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	err := backoff.RetryNotify(op, b, notify)
	switch {
	case err == nil:
		if failures > 0 {
			r.logger.Debug("Backoff successful",
				zap.String("operation", operation),
				zap.Uint64("failed_attempts", failures))
		}
		return nil
	case permanent:
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	case r.policy.MaxAttempts > 0:
		r.logger.Error("Operation failed, giving up",
			zap.String("operation", operation),
			zap.Uint64("attempts", failures),
			zap.Error(err))
		return fmt.Errorf("%s: %w: %w", operation, ErrAttemptsExhausted, err)
	default:
		return err
	}
}

func (r *Retrier) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.StartSleepTime
	b.Multiplier = r.policy.Factor
	b.MaxInterval = r.policy.BorderSleepTime
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
