package retry

import (
	"context"
	"errors"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CoinSchool/internal/pkg/apperror"
)

const (
	// DefaultAttempts is the total number of tries, including the first one.
	DefaultAttempts = 3
	// DefaultBaseDelay is the wait before the second attempt; it doubles afterwards.
	DefaultBaseDelay = 200 * time.Millisecond

	RequestDeadline   = 25 * time.Second
	BodyReadDeadline  = 5 * time.Second
	maxBackoffElapsed = 10 * time.Second
)

// Policy controls how often and how fast an operation is retried.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultPolicy returns the policy used for every processor and database call.
func DefaultPolicy() Policy {
	return Policy{Attempts: DefaultAttempts, BaseDelay: DefaultBaseDelay}
}

func (p Policy) newBackOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultBaseDelay
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = maxBackoffElapsed
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs fn with the default policy.
func Do(ctx context.Context, op string, fn func() error) error {
	return DefaultPolicy().Do(ctx, op, fn)
}

// Do runs fn until it succeeds, returns a permanent error or the attempts are used up.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return fn()
	}, p.newBackOff(ctx), func(err error, wait time.Duration) {
		log.Warnw("[Retry] attempt failed", "op", op, "attempt", attempt, "next_in", wait.String(), "error", err.Error())
	})
	if err != nil {
		log.Errorw("[Retry] giving up", "op", op, "attempts", attempt, "elapsed", time.Since(start).String(), "error", err.Error())
	}
	return err
}

// Value is Do for functions that also return a result.
func Value[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, op, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

type result[T any] struct {
	val T
	err error
}

// WithDeadline races fn against d. When the deadline fires first a TimeoutError
// is returned and fn keeps running in the background; its result is dropped.
func WithDeadline[T any](d time.Duration, op string, fn func() (T, error)) (T, error) {
	done := make(chan result[T], 1)
	go func() {
		v, err := fn()
		done <- result[T]{val: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.val, r.err
	case <-timer.C:
		var zero T
		log.Errorw("[Retry] deadline exceeded", "op", op, "deadline", d.String())
		return zero, apperror.Timeout(op)
	}
}

// IsTimeout reports whether err came from an expired deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, &apperror.Error{Kind: apperror.KindTimeout})
}
