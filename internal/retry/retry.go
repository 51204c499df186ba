// Package retry runs an operation with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds the number of attempts and the delay between them
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

// exponential doubles BaseDelay up to MaxDelay without jitter
func (p Policy) exponential() *backoff.ExponentialBackOff {
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = backoff.DefaultMaxInterval
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     max(p.BaseDelay, 0),
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Delay returns the wait before the given retry, counting from 1
func (p Policy) Delay(retry int) time.Duration {
	if retry < 1 || p.BaseDelay <= 0 {
		return 0
	}
	b := p.exponential()
	var d time.Duration
	for range retry {
		d = b.NextBackOff()
	}
	return d
}

// Do calls fn until it succeeds, returns a permanent error, the attempts
// run out or ctx is done. A permanent error is returned unwrapped. When ctx
// ends the wait, the last error of fn is joined with the context error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	attempts := max(p.MaxAttempts, 1)

	var last error
	op := func() error {
		last = fn(ctx)
		return last
	}
	b := backoff.WithContext(backoff.WithMaxRetries(p.exponential(), uint64(attempts-1)), ctx)
	err := backoff.Retry(op, b)
	if err != nil && last != nil && !errors.Is(err, last) && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", last, err)
	}
	return err
}
