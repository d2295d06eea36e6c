package plan

import "context"

// Submitter persists a complete plan.
type Submitter interface {
	SubmitPlan(ctx context.Context, p Plan) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, p Plan) error

// SubmitPlan calls f(ctx, p).
func (f SubmitterFunc) SubmitPlan(ctx context.Context, p Plan) error {
	return f(ctx, p)
}

// Editor holds the current plan for one authoring flow and reports the full
// next value after every change. An Editor is not safe for concurrent use.
type Editor struct {
	current  Plan
	onChange func(Plan)
}

// NewEditor starts editing initial. onChange may be nil.
func NewEditor(initial Plan, onChange func(Plan)) *Editor {
	return &Editor{
		current:  initial.Clone(),
		onChange: onChange,
	}
}

// Plan returns a copy of the current value.
func (e *Editor) Plan() Plan {
	return e.current.Clone()
}

// ToggleChannel includes or excludes c.
func (e *Editor) ToggleChannel(c Channel, included bool) {
	e.apply(ToggleChannel(e.current, c, included))
}

// AddOffset appends an unsent offset; amount must already be validated.
func (e *Editor) AddOffset(unit Unit, amount int) {
	e.apply(AddOffset(e.current, unit, amount))
}

// RemoveOffset deletes the offset at index and panics when it is out of range.
func (e *Editor) RemoveOffset(index int) {
	e.apply(RemoveOffset(e.current, index))
}

// Submit hands the whole current plan to s.
func (e *Editor) Submit(ctx context.Context, s Submitter) error {
	return s.SubmitPlan(ctx, e.Plan())
}

func (e *Editor) apply(next Plan) {
	e.current = next
	if e.onChange != nil {
		e.onChange(next.Clone())
	}
}
