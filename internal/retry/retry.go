// Package retry provides an explicit retry policy for external API calls.
package retry

import (
	"context"
	"errors"
	"time"
)

// Transienter is implemented by errors that may succeed on a later attempt.
type Transienter interface {
	Transient() bool
}

// Transient reports whether err is marked as retryable.
func Transient(err error) bool {
	var t Transienter
	return errors.As(err, &t) && t.Transient()
}

// Policy describes how an operation is retried. The zero value performs a
// single attempt with no waiting.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Default matches the schedule used for embedding and completion calls:
// five attempts with exponential backoff between 2s and 60s, retrying only
// transient failures.
func Default() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
		Retryable:   Transient,
	}
}

// Do runs op, retrying per the policy. The last error is returned when all
// attempts fail or when an attempt returns a non-retryable error.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = Transient
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = wait
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if werr := sleep(ctx, p.delay(attempt-1)); werr != nil {
				return werr
			}
		}
		if err = op(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}

// delay returns the backoff before retry n (0-based): BaseDelay doubled per
// retry, capped at MaxDelay.
func (p Policy) delay(n int) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
