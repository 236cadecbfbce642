package persist

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy decides whether a failed record may be requeued and how long
// it should wait first.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// NewRetryPolicy builds a policy from the reconciler configuration.
func NewRetryPolicy(cfg Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Initial:     time.Duration(cfg.BackoffInitialMS) * time.Millisecond,
		Max:         time.Duration(cfg.BackoffMaxMS) * time.Millisecond,
	}
}

// Fail records one more failed attempt on rec and reports whether the
// ceiling has been reached. The increment always happens first.
func (p RetryPolicy) Fail(rec *Record) (fatal bool) {
	rec.Attempt++
	return rec.Attempt >= p.MaxAttempts
}

// Delay returns the backoff for the given attempt number (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Initial <= 0 || attempt < 1 {
		return 0
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	b.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
