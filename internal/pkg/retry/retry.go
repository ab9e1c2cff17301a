// Package retry is the bounded retry combinator shared by the embedding
// client, the indexer visibility probe and the retriever.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retry loop. Attempts counts the first call.
type Policy struct {
	Attempts    int
	Delay       time.Duration
	Exponential bool
}

// Notify is called before each wait with the attempt that just failed.
type Notify func(attempt int, err error, next time.Duration)

var errNotReady = errors.New("condition not met")

func (p Policy) backOff() backoff.BackOff {
	if !p.Exponential {
		return backoff.NewConstantBackOff(p.Delay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay
	b.RandomizationFactor = 0
	return b
}

func (p Policy) tries() uint {
	if p.Attempts < 1 {
		return 1
	}
	return uint(p.Attempts)
}

// Do runs op until it succeeds, returns a Permanent error, the context ends
// or the attempts run out. The last error is returned unwrapped.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error), notify Notify) (T, error) {
	attempt := 0
	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(p.tries()),
		backoff.WithMaxElapsedTime(0),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(func(err error, next time.Duration) {
			notify(attempt, err, next)
		}))
	}

	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		return op(ctx, attempt)
	}, opts...)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return res, err
}

// Until polls cond until it reports true. It returns the number of attempts
// made and whether the condition was met. Running out of attempts is not an
// error; an error from cond or the context is.
func Until(ctx context.Context, p Policy, cond func(ctx context.Context) (bool, error), notify Notify) (int, bool, error) {
	attempts := 0
	_, err := Do(ctx, p, func(ctx context.Context, attempt int) (struct{}, error) {
		attempts = attempt
		ok, err := cond(ctx)
		if err != nil {
			return struct{}{}, Permanent(err)
		}
		if !ok {
			return struct{}{}, errNotReady
		}
		return struct{}{}, nil
	}, notify)

	switch {
	case err == nil:
		return attempts, true, nil
	case errors.Is(err, errNotReady):
		return attempts, false, nil
	default:
		return attempts, false, err
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
