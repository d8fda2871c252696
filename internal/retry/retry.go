// Package retry runs an operation a bounded number of times with a fixed delay
// between attempts. Callers decide what exhaustion means for them: some surface the
// error, others degrade to a default value.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// ErrExhausted is wrapped into the error returned once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes how an operation is retried.
type Policy struct {
	Name        string        // Used in logs and error messages
	MaxAttempts int           // Total attempts including the first one, at least 1
	Delay       time.Duration // Fixed wait between two attempts

	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Permanent marks err as not worth retrying. The policy stops immediately and
// returns err unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Do runs op until it succeeds or the policy is exhausted.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Get(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Get runs op until it succeeds or the policy is exhausted and returns its value.
func Get[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	maxAttempts := p.attempts()
	attempt := 0
	stopped := false

	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			stopped = true
			return v, err
		}

		log.Warn().Err(err).
			Str("policy", p.Name).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Msg("attempt failed")

		if attempt < maxAttempts && p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(uint(maxAttempts)),
	)
	if err == nil {
		return res, nil
	}

	var zero T
	if stopped || ctx.Err() != nil {
		return zero, err
	}
	return zero, fmt.Errorf("%s: %w after %d attempts: %w", p.Name, ErrExhausted, attempt, err)
}
