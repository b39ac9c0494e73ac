package serialbridge

import "time"

// RetryPolicy bounds the execution protocol for a single command. The
// default mirrors the firmware's behaviour: a 5 second overall deadline with
// no delay between attempts (a tight busy-retry, not a backoff). Tests
// substitute a short deadline instead of waiting out real seconds.
type RetryPolicy struct {
	// Overall is the deadline for the whole send-and-classify loop.
	Overall time.Duration

	// Delay, when non-zero, is slept between attempts.
	Delay time.Duration
}

// DefaultRetryPolicy returns the production policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Overall: 5 * time.Second}
}
