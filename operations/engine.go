package operations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/ntzs/deployments/pkg/logger"
)

// DefaultStepTimeout bounds a single step, including the wait for finality.
const DefaultStepTimeout = 10 * time.Minute

type runConfig struct {
	stepTimeout time.Duration
	retry       *RetryPolicy
}

// RunOption configures Run.
type RunOption func(*runConfig)

// WithStepTimeout sets the per step timeout. Non positive values keep the default.
func WithStepTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		if d > 0 {
			c.stepTimeout = d
		}
	}
}

// WithRetry enables retrying failed steps under policy. Retries are disabled by default, a
// failed submission or finality wait is surfaced as is.
//
// To cancel the retry early, return an error wrapped with NewUnrecoverableError.
func WithRetry(policy RetryPolicy) RunOption {
	return func(c *runConfig) {
		if policy.MaxAttempts == 0 {
			policy.MaxAttempts = DefaultRetryPolicy.MaxAttempts
		}
		c.retry = &policy
	}
}

// RunReport is the outcome of a Run.
type RunReport struct {
	ID      string       `json:"id" yaml:"id" toml:"id"`
	Plan    string       `json:"plan" yaml:"plan" toml:"plan"`
	State   RunState     `json:"state" yaml:"state" toml:"state"`
	Results []StepResult `json:"results" yaml:"results" toml:"results"`
	// NotRun lists the steps skipped because the run aborted, in plan order.
	NotRun []string `json:"notRun,omitempty" yaml:"notRun,omitempty" toml:"notRun,omitempty"`

	err error
}

// Err returns the reason the run aborted: a *StepFailure or the context error. It is nil for a
// completed run, even when optional steps failed.
func (r *RunReport) Err() error {
	if r == nil {
		return nil
	}

	return r.err
}

// Failed returns the results of the failed steps, required or not.
func (r *RunReport) Failed() []StepResult {
	var failed []StepResult
	for _, res := range r.Results {
		if !res.Succeeded() {
			failed = append(failed, res)
		}
	}

	return failed
}

// Run executes the steps of plan in order against rc.
//
// A step's action is invoked with a bundle whose context is bounded by the step timeout. When
// the action submits a transaction, Run blocks on the handle until the transaction is final.
// Each executed step is recorded in rc and forwarded to the bundle reporter.
//
// A failed required step aborts the run and the remaining steps are not executed. Nothing is
// rolled back. A failed optional step is recorded and the run continues. The bundle context is
// checked between steps, a cancelled run is aborted.
//
// The returned error is the abort reason, the same as RunReport.Err, or an error recording a
// result.
func Run(b Bundle, plan *Plan, rc *Context, opts ...RunOption) (*RunReport, error) {
	if plan == nil {
		return nil, errors.New("plan is nil")
	}
	if rc == nil {
		return nil, errors.New("run context is nil")
	}

	cfg := &runConfig{stepTimeout: DefaultStepTimeout}
	for _, opt := range opts {
		opt(cfg)
	}

	report := &RunReport{
		ID:    uuid.New().String(),
		Plan:  plan.name,
		State: StatePending,
	}

	state, err := report.State.transition(StateRunning)
	if err != nil {
		return nil, err
	}
	report.State = state

	lggr := b.Logger.With("run", report.ID, "plan", plan.name)
	recent := NewRecentMemoryReporter(b.reporter)
	ctx := b.GetContext()

	finish := func(to RunState, cause error) (*RunReport, error) {
		report.Results = recent.GetRecentResults()
		st, terr := report.State.transition(to)
		if terr != nil {
			return report, terr
		}
		report.State = st
		report.err = cause

		return report, cause
	}

	for i, step := range plan.steps {
		if err := ctx.Err(); err != nil {
			report.NotRun = stepIDs(plan.steps[i:])
			lggr.Errorw("Run cancelled", "next", step.def.ID, "error", err)

			return finish(StateAborted, fmt.Errorf("run cancelled before step %s: %w", step.def.ID, err))
		}

		lggr.Infow("Executing step", "step", step.def.ID, "version", step.def.Version,
			"required", step.required, "description", step.def.Description)

		result := execute(b, lggr, step, rc, cfg)

		rc.record(result)
		if err := recent.AddResult(result); err != nil {
			return finish(StateAborted, fmt.Errorf("record result of step %s: %w", step.def.ID, err))
		}

		if result.Succeeded() {
			lggr.Infow("Step succeeded", "step", step.def.ID, "handle", result.HandleID)
			continue
		}

		if !step.required {
			lggr.Warnw("Optional step failed, continuing", "step", step.def.ID, "error", result.Err.Message)
			continue
		}

		lggr.Errorw("Required step failed, aborting run", "step", step.def.ID, "error", result.Err.Message)
		report.NotRun = stepIDs(plan.steps[i+1:])

		return finish(StateAborted, &StepFailure{Step: step.def.ID, Cause: result.Cause()})
	}

	lggr.Infow("Run completed", "steps", plan.Len())

	return finish(StateCompleted, nil)
}

type resolved struct {
	value any
	then  func(rc *Context, value any) error
}

// execute runs one step, including retries and the Then hook, and returns its result.
func execute(b Bundle, lggr logger.Logger, step Step, rc *Context, cfg *runConfig) StepResult {
	ctx := b.GetContext()

	var (
		handleID string
		attempts uint
	)

	attempt := func() (resolved, error) {
		attempts++

		stepCtx, cancel := context.WithTimeout(ctx, cfg.stepTimeout)
		defer cancel()

		out, err := step.action(b.withContext(stepCtx), rc)
		if err != nil {
			return resolved{}, err
		}

		v, id, err := out.resolve(stepCtx)
		if id != "" {
			handleID = id
		}
		if err != nil {
			if h := out.Handle(); h != nil {
				return resolved{}, fmt.Errorf("transaction %s: %w", h.ID(), err)
			}

			return resolved{}, err
		}

		return resolved{value: v, then: out.then}, nil
	}

	var (
		res resolved
		err error
	)
	if cfg.retry != nil {
		retryOpts := append(cfg.retry.options(),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, err error) {
				lggr.Infow("Step failed. Retrying...", "step", step.def.ID, "attempt", n+1, "error", err)
			}),
		)
		res, err = retry.DoWithData(attempt, retryOpts...)
	} else {
		res, err = attempt()
	}

	if err == nil && res.then != nil {
		if herr := res.then(rc, res.value); herr != nil {
			err = fmt.Errorf("store result: %w", herr)
		}
	}

	result := NewStepResult(step.def, step.required, res.value, handleID, err)
	result.Attempts = attempts

	return result
}

func stepIDs(steps []Step) []string {
	ids := make([]string, 0, len(steps))
	for _, s := range steps {
		ids = append(ids, s.def.ID)
	}

	return ids
}
