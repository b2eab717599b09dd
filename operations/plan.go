package operations

import (
	"errors"
	"fmt"
)

// Plan is an ordered list of steps. The order is fixed when the plan is built.
type Plan struct {
	name  string
	steps []Step
}

// NewPlan builds a plan from steps in the order given. Step IDs must be non empty and unique,
// and every step needs an action.
func NewPlan(name string, steps ...Step) (*Plan, error) {
	if name == "" {
		return nil, errors.New("plan name is required")
	}

	seen := make(map[string]struct{}, len(steps))
	for i, s := range steps {
		if s.def.ID == "" {
			return nil, fmt.Errorf("step %d of plan %s has no id", i, name)
		}
		if _, ok := seen[s.def.ID]; ok {
			return nil, fmt.Errorf("plan %s: duplicate step id %q", name, s.def.ID)
		}
		if s.action == nil {
			return nil, fmt.Errorf("plan %s: step %q: %w", name, s.def.ID, errNilAction)
		}
		seen[s.def.ID] = struct{}{}
	}

	return &Plan{
		name:  name,
		steps: append([]Step(nil), steps...),
	}, nil
}

// Name returns the plan name.
func (p *Plan) Name() string { return p.name }

// Len returns the number of steps.
func (p *Plan) Len() int { return len(p.steps) }

// Steps returns a copy of the steps in execution order.
func (p *Plan) Steps() []Step {
	return append([]Step(nil), p.steps...)
}
