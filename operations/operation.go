package operations

import (
	"context"
	"errors"

	"github.com/Masterminds/semver/v3"

	"github.com/ntzs/deployments/pkg/logger"
)

// Bundle contains the dependencies shared by every step of a run: the Logger, the Reporter and
// the context. Use NewBundle to create a new Bundle.
type Bundle struct {
	Logger     logger.Logger
	GetContext func() context.Context
	reporter   Reporter
}

// NewBundle creates and returns a new Bundle. A nil reporter is replaced with a MemoryReporter
// and a nil logger with a no-op one.
func NewBundle(getContext func() context.Context, lggr logger.Logger, reporter Reporter) Bundle {
	if lggr == nil {
		lggr = logger.Nop()
	}
	if reporter == nil {
		reporter = NewMemoryReporter()
	}

	return Bundle{
		Logger:     lggr,
		GetContext: getContext,
		reporter:   reporter,
	}
}

// Reporter returns the reporter results are forwarded to.
func (b Bundle) Reporter() Reporter {
	return b.reporter
}

// withContext returns a copy of the bundle whose GetContext returns ctx.
func (b Bundle) withContext(ctx context.Context) Bundle {
	b.GetContext = func() context.Context { return ctx }

	return b
}

// Definition is the metadata of a step: its ID, version and description.
type Definition struct {
	ID          string          `json:"id" yaml:"id" toml:"id"`
	Version     *semver.Version `json:"version" yaml:"version" toml:"version"`
	Description string          `json:"description" yaml:"description" toml:"description"`
}

// Action performs the side effect of a step. It may read the run Context, but only the
// outcome's Then hook may write to it, and only once the outcome is final.
//
// An action either submits a transaction and returns Submitted, or reads chain state and
// returns Queried. A returned error fails the step without waiting on anything.
type Action func(b Bundle, rc *Context) (Outcome, error)

// Step is a single named unit of work in a Plan. Steps are immutable once built.
type Step struct {
	def      Definition
	action   Action
	required bool
}

// StepOption configures a Step.
type StepOption func(*Step)

// Optional marks the step as not required: its failure is recorded and the run continues.
func Optional() StepOption {
	return func(s *Step) {
		s.required = false
	}
}

// NewStep creates a required step. Version can be created using semver.MustParse("1.0.0").
func NewStep(id string, version *semver.Version, description string, action Action, opts ...StepOption) Step {
	s := Step{
		def: Definition{
			ID:          id,
			Version:     version,
			Description: description,
		},
		action:   action,
		required: true,
	}
	for _, opt := range opts {
		opt(&s)
	}

	return s
}

// ID returns the step ID.
func (s Step) ID() string { return s.def.ID }

// Def returns the step definition.
func (s Step) Def() Definition { return s.def }

// Required reports whether a failure of this step aborts the run.
func (s Step) Required() bool { return s.required }

// Handle tracks a submitted transaction until it is final.
type Handle interface {
	// ID identifies the submission, usually the transaction hash or signature.
	ID() string
	// Wait blocks until the transaction is final and returns the value the step produces, or
	// fails. It must honour ctx.
	Wait(ctx context.Context) (any, error)
}

// Outcome is what an Action hands back to the engine.
type Outcome struct {
	handle Handle
	value  any
	then   func(rc *Context, value any) error
}

// Submitted is the outcome of an action that sent a transaction. The engine blocks on h.Wait.
func Submitted(h Handle) Outcome {
	return Outcome{handle: h}
}

// Queried is the outcome of an action whose value is already known, such as a read.
func Queried(v any) Outcome {
	return Outcome{value: v}
}

// Then registers fn to run after the outcome is final and successful. fn receives the final
// value and is the only place a step may write to the run Context.
func (o Outcome) Then(fn func(rc *Context, value any) error) Outcome {
	o.then = fn
	return o
}

// Handle returns the handle of a submitted outcome, or nil.
func (o Outcome) Handle() Handle { return o.handle }

// resolve waits for the outcome to become final.
func (o Outcome) resolve(ctx context.Context) (any, string, error) {
	if o.handle == nil {
		return o.value, "", nil
	}

	v, err := o.handle.Wait(ctx)

	return v, o.handle.ID(), err
}

var errNilAction = errors.New("step has no action")
