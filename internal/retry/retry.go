// Package retry runs an operation until it succeeds, pausing a fixed delay
// between attempts.
//
// The link and session managers use it for their blocking reconnect loops.
// MaxAttempts of zero keeps retrying until the context is cancelled.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nerrad567/devagent/internal/clock"
)

// ErrAttemptsExhausted is returned when MaxAttempts attempts all failed.
// The last attempt's error is wrapped alongside it.
var ErrAttemptsExhausted = errors.New("retry: attempts exhausted")

// Policy controls a retry loop.
type Policy struct {
	// Delay is the pause after each failed attempt.
	Delay time.Duration

	// MaxAttempts bounds the number of attempts. 0 means unlimited.
	MaxAttempts int

	// Clock provides Sleep. Defaults to clock.Real.
	Clock clock.Clock

	// OnFailure is called after every failed attempt, including the last,
	// before any pause. Optional.
	OnFailure func(attempt int, err error)
}

// Do calls op until it returns nil, the attempt budget is spent, or ctx is
// cancelled. It returns the number of attempts made.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	clk := p.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx, attempt)
		if err != nil && p.OnFailure != nil {
			p.OnFailure(attempt, err)
		}
		return err
	}

	err := backoff.RetryNotifyWithTimer(operation, p.backOff(ctx), nil, &clockTimer{ctx: ctx, clock: clk})
	switch {
	case err == nil:
		return attempt, nil
	case ctx.Err() != nil:
		return attempt, ctx.Err()
	case p.MaxAttempts > 0 && attempt >= p.MaxAttempts:
		return attempt, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempt, err)
	default:
		return attempt, err
	}
}

// backOff builds the constant schedule. WithMaxRetries counts retries, not
// attempts, so the budget is one less than MaxAttempts.
func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// clockTimer adapts a clock.Clock to backoff.Timer. Start sleeps on the
// clock, so a fake clock makes every pause instantaneous.
type clockTimer struct {
	ctx   context.Context
	clock clock.Clock
	c     chan time.Time
}

func (t *clockTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)
	if err := t.clock.Sleep(t.ctx, d); err != nil {
		// Leave the channel empty; the retry loop observes ctx instead.
		return
	}
	t.c <- t.clock.Now()
}

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time { return t.c }
