package operations

import (
	"context"
	"fmt"
	"reflect"
)

// Expectation is one post-condition: the value a named on-chain property must hold once a run
// completed, e.g. "token.owner". Value must have the exact type its query returns; see Equal.
type Expectation struct {
	Property string
	Value    any
}

// ExpectedState is the ordered list of post-conditions of a plan. Verification reports follow
// this order.
type ExpectedState []Expectation

// Query reads the live value of a property. Queries must not change chain state.
type Query func(ctx context.Context) (any, error)

// Queries maps a property name to the query reading it.
type Queries map[string]Query

// PropertyCheck is the comparison of one expectation with the live value.
type PropertyCheck struct {
	Property string `json:"property" yaml:"property" toml:"property"`
	Expected any    `json:"expected" yaml:"expected" toml:"expected"`
	Actual   any    `json:"actual,omitempty" yaml:"actual,omitempty" toml:"actual,omitempty"`
	Match    bool   `json:"match" yaml:"match" toml:"match"`
	// Error is the query failure, if any. A failed query is a mismatch.
	Error string `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
}

// VerificationReport holds one check per expectation.
type VerificationReport struct {
	Checks []PropertyCheck `json:"checks" yaml:"checks" toml:"checks"`
}

// AllMatch reports whether every expectation matched.
func (r *VerificationReport) AllMatch() bool {
	if r == nil {
		return true
	}
	for _, c := range r.Checks {
		if !c.Match {
			return false
		}
	}

	return true
}

// Mismatches returns the failed checks as errors, in expectation order.
func (r *VerificationReport) Mismatches() []*VerificationMismatch {
	if r == nil {
		return nil
	}

	var out []*VerificationMismatch
	for _, c := range r.Checks {
		if c.Match {
			continue
		}
		actual := c.Actual
		if c.Error != "" {
			actual = "error: " + c.Error
		}
		out = append(out, &VerificationMismatch{Property: c.Property, Expected: c.Expected, Actual: actual})
	}

	return out
}

// Verify queries each expected property and compares it with the expected value. It only
// reads: it never returns an error, a failed or missing query is recorded as a mismatch.
// Running it twice over unchanged state yields identical reports.
func Verify(ctx context.Context, expected ExpectedState, live Queries) *VerificationReport {
	report := &VerificationReport{Checks: make([]PropertyCheck, 0, len(expected))}

	for _, exp := range expected {
		check := PropertyCheck{Property: exp.Property, Expected: exp.Value}

		q, ok := live[exp.Property]
		switch {
		case !ok || q == nil:
			check.Error = "no query for property"
		default:
			actual, err := runQuery(ctx, q)
			if err != nil {
				check.Error = err.Error()
				break
			}
			check.Actual = actual
			check.Match = Equal(exp.Value, actual)
		}

		report.Checks = append(report.Checks, check)
	}

	return report
}

func runQuery(ctx context.Context, q Query) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("query panicked: %v", r)
		}
	}()

	return q(ctx)
}

// Equal compares an expected and an actual value. Types with an Equal or Equals method taking
// their own type, such as chain.Address or solana.PublicKey, are compared with it. Anything else
// is compared with reflect.DeepEqual, so values of different types never match: uint64(1) is
// not int(1).
func Equal(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == actual
	}

	ev := reflect.ValueOf(expected)
	av := reflect.ValueOf(actual)
	for _, name := range []string{"Equal", "Equals"} {
		m := ev.MethodByName(name)
		if !m.IsValid() {
			continue
		}
		mt := m.Type()
		if mt.NumIn() != 1 || mt.NumOut() != 1 || mt.Out(0).Kind() != reflect.Bool {
			continue
		}
		if !av.Type().AssignableTo(mt.In(0)) {
			continue
		}

		return m.Call([]reflect.Value{av})[0].Bool()
	}

	return reflect.DeepEqual(expected, actual)
}

// Summary is the final outcome of a run followed by its verification pass.
type Summary struct {
	Run          *RunReport          `json:"run" yaml:"run" toml:"run"`
	Verification *VerificationReport `json:"verification,omitempty" yaml:"verification,omitempty" toml:"verification,omitempty"`
}

// Success reports whether the run completed and every expectation matched. A run that
// completed with failed optional steps is still a success.
func (s Summary) Success() bool {
	return s.Run != nil && s.Run.State == StateCompleted && s.Verification.AllMatch()
}
