package operations

import (
	"errors"
	"fmt"
)

// ErrNotCurrentOwner is returned by ownership steps when the signer does not own the contract or
// account being transferred.
var ErrNotCurrentOwner = errors.New("not current owner")

// ConfigurationError reports an invalid or missing configuration field. It is raised while
// building a plan, before anything is sent on chain.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// NewConfigurationError is shorthand for &ConfigurationError{Field: field, Reason: ...}.
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StepFailure is the error of a run aborted at Step. Earlier effects are not rolled back.
type StepFailure struct {
	Step  string
	Cause error
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Cause)
}

func (e *StepFailure) Unwrap() error { return e.Cause }

// VerificationMismatch describes a property whose live value differs from the expected one.
// It is reported, never raised by the verification pass.
type VerificationMismatch struct {
	Property string
	Expected any
	Actual   any
}

func (e *VerificationMismatch) Error() string {
	return fmt.Sprintf("%s: expected %v, got %v", e.Property, e.Expected, e.Actual)
}
