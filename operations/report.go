package operations

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StepStatus is the outcome of an executed step.
type StepStatus string

const (
	StatusSuccess StepStatus = "success"
	StatusFailure StepStatus = "failure"
)

// StepResult records the outcome of one executed step. Results are appended, never mutated.
type StepResult struct {
	ID       string       `json:"id" yaml:"id" toml:"id"`
	Def      Definition   `json:"definition" yaml:"definition" toml:"definition"`
	Required bool         `json:"required" yaml:"required" toml:"required"`
	Status   StepStatus   `json:"status" yaml:"status" toml:"status"`
	Value    any          `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
	Err      *ReportError `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
	// HandleID is the transaction hash or signature the step waited on, if any.
	HandleID  string     `json:"handleId,omitempty" yaml:"handleId,omitempty" toml:"handleId,omitempty"`
	Attempts  uint       `json:"attempts" yaml:"attempts" toml:"attempts"`
	Timestamp *time.Time `json:"timestamp" yaml:"timestamp" toml:"timestamp"`

	cause error
}

// NewStepResult creates a result for def. A non nil err makes it a failure.
func NewStepResult(def Definition, required bool, value any, handleID string, err error) StepResult {
	now := time.Now()
	r := StepResult{
		ID:        uuid.New().String(),
		Def:       def,
		Required:  required,
		Status:    StatusSuccess,
		Value:     value,
		HandleID:  handleID,
		Attempts:  1,
		Timestamp: &now,
	}
	if err != nil {
		r.Status = StatusFailure
		r.Value = nil
		r.Err = &ReportError{Message: err.Error()}
		r.cause = err
	}

	return r
}

// Succeeded reports whether the step succeeded.
func (r StepResult) Succeeded() bool { return r.Status == StatusSuccess }

// Cause returns the original error of a failed step. It is lost once a result is serialized,
// in which case the ReportError is returned.
func (r StepResult) Cause() error {
	if r.cause != nil {
		return r.cause
	}
	if r.Err != nil {
		return r.Err
	}

	return nil
}

// ReportError represents an error in a StepResult. Its purpose is to have an exported field
// Message for marshalling, as the native error cannot be marshalled.
type ReportError struct {
	Message string `json:"message" yaml:"message" toml:"message"`
}

// Error implements the error interface.
func (o ReportError) Error() string {
	return o.Message
}

var ErrReportNotFound = errors.New("report not found")

// Reporter stores step results as they are produced. It can store them in memory, in the FS,
// etc.
type Reporter interface {
	GetResult(id string) (StepResult, error)
	GetResults() ([]StepResult, error)
	AddResult(result StepResult) error
}

// MemoryReporter stores results in memory.
// This is thread-safe and can be used in a multi-threaded environment.
type MemoryReporter struct {
	results []StepResult
	mu      sync.RWMutex
}

// NewMemoryReporter creates a new, empty MemoryReporter.
func NewMemoryReporter() *MemoryReporter {
	return &MemoryReporter{}
}

// AddResult adds a result to the memory reporter.
func (e *MemoryReporter) AddResult(result StepResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.results = append(e.results, result)

	return nil
}

// GetResults returns all results.
func (e *MemoryReporter) GetResults() ([]StepResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return slices.Clone(e.results), nil
}

// GetResult returns a result by ID.
// Returns ErrReportNotFound if the result is not found.
func (e *MemoryReporter) GetResult(id string) (StepResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, r := range e.results {
		if r.ID == id {
			return r, nil
		}
	}

	return StepResult{}, fmt.Errorf("result_id %s: %w", id, ErrReportNotFound)
}

// RecentReporter is a wrapper around a Reporter that keeps track of the results added through
// it. Run uses one to collect the results of a single run when the bundle reporter is shared
// across runs.
type RecentReporter struct {
	Reporter
	recent []StepResult
	mu     sync.RWMutex
}

// AddResult adds a result to the underlying reporter, then to the recent results.
func (e *RecentReporter) AddResult(result StepResult) error {
	if err := e.Reporter.AddResult(result); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.recent = append(e.recent, result)

	return nil
}

// GetRecentResults returns the results added since the RecentReporter was constructed.
func (e *RecentReporter) GetRecentResults() []StepResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return slices.Clone(e.recent)
}

// NewRecentMemoryReporter creates a new RecentReporter.
func NewRecentMemoryReporter(reporter Reporter) *RecentReporter {
	return &RecentReporter{
		Reporter: reporter,
		recent:   []StepResult{},
	}
}
