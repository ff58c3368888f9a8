// Package backoff computes retry schedules and drives retryable operations.
//
// A Policy is a pure description of how many attempts an operation gets and
// how long to wait before each retry. Do runs an operation under a policy
// with an injectable Sleeper so schedules can be tested without a clock.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Kinds accepted by New.
const (
	KindFixed       = "fixed"
	KindExponential = "exponential"
)

var (
	ErrInvalidAttempts = errors.New("backoff attempts must be at least 1")
	ErrInvalidDelay    = errors.New("backoff delay cannot be negative")
	ErrUnknownKind     = errors.New("unknown backoff kind")
)

// Policy describes a bounded retry schedule.
type Policy interface {
	// MaxAttempts is the total number of attempts, first call included.
	MaxAttempts() int
	// Delay is the wait before retry n, where n starts at 1.
	Delay(retry int) time.Duration
}

// Fixed waits the same interval before every retry.
type Fixed struct {
	Attempts int
	Interval time.Duration
}

func (f Fixed) MaxAttempts() int { return f.Attempts }

func (f Fixed) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	return f.Interval
}

// Exponential multiplies the delay after every retry, capped at Max.
type Exponential struct {
	Attempts   int
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

func (e Exponential) MaxAttempts() int { return e.Attempts }

func (e Exponential) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	multiplier := e.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}
	delay := float64(e.Initial) * math.Pow(multiplier, float64(retry-1))
	if e.Max > 0 && delay > float64(e.Max) {
		return e.Max
	}
	return time.Duration(delay)
}

// Config selects and parameterizes a policy.
type Config struct {
	Kind       string
	Attempts   int
	Delay      time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// New builds the policy described by cfg.
func New(cfg Config) (Policy, error) {
	if cfg.Attempts < 1 {
		return nil, ErrInvalidAttempts
	}
	if cfg.Delay < 0 || cfg.MaxDelay < 0 {
		return nil, ErrInvalidDelay
	}

	switch cfg.Kind {
	case "", KindFixed:
		return Fixed{Attempts: cfg.Attempts, Interval: cfg.Delay}, nil
	case KindExponential:
		return Exponential{
			Attempts:   cfg.Attempts,
			Initial:    cfg.Delay,
			Multiplier: cfg.Multiplier,
			Max:        cfg.MaxDelay,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// Schedule lists the waits a policy produces between its attempts.
func Schedule(p Policy) []time.Duration {
	if p.MaxAttempts() <= 1 {
		return nil
	}
	delays := make([]time.Duration, 0, p.MaxAttempts()-1)
	for retry := 1; retry < p.MaxAttempts(); retry++ {
		delays = append(delays, p.Delay(retry))
	}
	return delays
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the timer-based Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retrier drives an operation under a policy.
type Retrier struct {
	Policy Policy
	// Retryable decides whether an error earns another attempt.
	Retryable func(error) bool
	// Sleep defaults to the timer-based Sleep.
	Sleep Sleeper
	// OnRetry is called before each wait with the upcoming retry number.
	OnRetry func(retry int, delay time.Duration, err error)
}

// Do calls op until it succeeds, returns a non-retryable error, or the
// policy runs out of attempts. The last error is returned.
func (r Retrier) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var err error
	for attempt := 1; attempt <= r.Policy.MaxAttempts(); attempt++ {
		err = op(ctx, attempt)
		if err == nil {
			return nil
		}
		if r.Retryable == nil || !r.Retryable(err) {
			return err
		}
		if attempt == r.Policy.MaxAttempts() {
			break
		}

		delay := r.Policy.Delay(attempt)
		if r.OnRetry != nil {
			r.OnRetry(attempt, delay, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("retry wait interrupted: %w", errors.Join(sleepErr, err))
		}
	}
	return err
}
