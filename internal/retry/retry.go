// Package retry implements the fixed-delay retry used for (re)connecting to
// the datastore.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const DefaultDelay = 5 * time.Second

var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Policy waits Delay between attempts. MaxAttempts <= 0 retries forever.
type Policy struct {
	Delay       time.Duration
	MaxAttempts int
}

func Default() Policy {
	return Policy{Delay: DefaultDelay}
}

func (p Policy) Unbounded() bool {
	return p.MaxAttempts <= 0
}

// Do calls fn until it succeeds. onFailure, if set, is called after every
// failed attempt with the 1-based attempt number, before the delay.
//
// Do returns ctx.Err() if ctx is cancelled, and ErrAttemptsExhausted wrapping
// the last failure when a bounded policy runs out.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, onFailure func(attempt int, err error)) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		if onFailure != nil {
			onFailure(attempt, err)
		}

		if !p.Unbounded() && attempt >= p.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempt, err)
		}

		if err := Sleep(ctx, p.Delay); err != nil {
			return err
		}
	}
}

// Sleep waits d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
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
