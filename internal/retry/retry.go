// Package retry is the single place where backoff policy for network-bound
// operations is defined. Extraction, image rehosting, classification and
// publishing all wrap their calls through Do with a per-call Policy.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Policy bounds a retried operation. MaxAttempts includes the initial
// attempt. The delay before attempt n is
// min(MaxDelay, BaseDelay*2^(n-1)), scaled by a random jitter factor in
// [0.5, 1.5) when Jitter is set.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool

	// OnRetry, when non-nil, observes each scheduled retry. Used by tests
	// and by callers that want per-stage retry accounting.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Default is the policy used for ordinary network calls.
var Default = Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 60 * time.Second, Jitter: true}

// permanentError marks a failure that must not be retried, such as an
// authentication error or malformed input.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so that Do fails immediately instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent anywhere in its
// chain.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// sleepFn is replaced in tests so backoff does not slow the suite down.
var sleepFn = sleepContext

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op until it succeeds, the policy is exhausted, op returns a
// permanent error, or ctx is done. The zero value of T is returned alongside
// the final error on failure.
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Debug().Str("op", name).Int("attempt", attempt).Msg("succeeded after retry")
			}
			return v, nil
		}
		if IsPermanent(err) {
			log.Debug().Str("op", name).Err(err).Msg("permanent failure; not retrying")
			return zero, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		delay := p.delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		log.Warn().Str("op", name).Int("attempt", attempt).Int("max", attempts).
			Dur("delay", delay).Err(err).Msg("retrying after failure")
		if err := sleepFn(ctx, delay); err != nil {
			return zero, err
		}
	}
	log.Error().Str("op", name).Int("attempts", attempts).Err(lastErr).Msg("retries exhausted")
	return zero, lastErr
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	}
	return d
}
