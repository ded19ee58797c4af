package panel

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// linearBackOff implements backoff.BackOff with a delay*attempt schedule:
// the first retry waits base, the second 2*base, and so on.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.base
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// RetryPolicy bounds the retry behavior of the request executor: total
// attempt budget and the base delay of the linear backoff schedule.
// The retryable-status decision lives in the executor itself because it
// needs the response body for the fallback-page sniff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// options converts the policy into backoff.Retry options.
func (p RetryPolicy) options() []backoff.RetryOption {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return []backoff.RetryOption{
		backoff.WithBackOff(&linearBackOff{base: p.BaseDelay}),
		backoff.WithMaxTries(uint(maxAttempts)),
	}
}
