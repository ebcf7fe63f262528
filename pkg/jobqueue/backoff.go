package jobqueue

import (
	"time"
)

// RetryPolicy bounds redelivery of failed publish jobs: exponential delays
// capped at MaxDelay, up to MaxAttempts total attempts.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  8,
		InitialDelay: 2 * time.Second,
		MaxDelay:     5 * time.Minute,
	}
}

// Delay returns the redelivery delay after the given 1-based attempt,
// doubling each attempt until the cap.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether the given 1-based attempt consumed the budget.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
