package operations

import (
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy defines the arguments to control the retry behavior of a step.
type RetryPolicy struct {
	MaxAttempts uint
	// Delay is the base delay between attempts. It backs off exponentially.
	Delay time.Duration
}

// DefaultRetryPolicy is used by WithRetry when the policy leaves MaxAttempts unset.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	Delay:       2 * time.Second,
}

// options returns the 'avast/retry' functional options for the retry policy.
func (p RetryPolicy) options() []retry.Option {
	opts := []retry.Option{
		retry.Attempts(p.MaxAttempts),
		retry.LastErrorOnly(true),
	}
	if p.Delay > 0 {
		opts = append(opts, retry.Delay(p.Delay), retry.DelayType(retry.BackOffDelay))
	}

	return opts
}

// NewUnrecoverableError creates an error that indicates an unrecoverable error.
// If this error is returned inside a step action or handle, the step will no longer retry.
// This allows the step to fail fast if it encounters an unrecoverable error.
func NewUnrecoverableError(err error) error {
	return retry.Unrecoverable(err)
}
