package llm

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds how often and how patiently an operation is repeated.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// Retryable reports whether a failed attempt may be repeated. Nil means
	// every error is retryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy waits 1s, 2s, 4s, 8s, 10s, ... between attempts and
// retries only transient upstream failures.
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
		Retryable: func(err error) bool {
			return Classify(err) == KindTransient
		},
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.InitialInterval
	expo.MaxInterval = p.MaxInterval
	expo.Multiplier = p.Multiplier
	if expo.Multiplier < 1 {
		expo.Multiplier = 1
	}
	expo.RandomizationFactor = 0
	// The attempt budget is the only stop condition.
	expo.MaxElapsedTime = 0
	expo.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(p.attempts()-1)), ctx)
}

// Do runs op until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. The error of the last attempt is returned as is.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", p.attempts()).
			Dur("retry_in", next).
			Msg("Upstream call failed, retrying")
	}

	return backoff.RetryNotify(operation, p.backOff(ctx), notify)
}
