package task

import (
	"time"
)

// Status represents the resolution of a step.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Step is a single recorded step of a task execution.
type Step[E any] struct {
	Description string
	Status      Status
	// Message is the resolution message, set once the step succeeds or fails.
	Message string
	// ErrorValue is the typed error detail of a failed step.
	ErrorValue    E
	HasErrorValue bool
	// Err is the underlying Go error that caused the failure, if any.
	Err       error
	StartedAt time.Time
}

// Failed returns true when the step resolved as a failure.
func (s Step[E]) Failed() bool { return s.Status == StatusFailed }

// Result is the sealed outcome of a task. A result is either a success carrying
// a value or a failure carrying the errors of its failed steps.
type Result[E, A any] struct {
	Value  A
	Steps  []Step[E]
	failed bool
}

// Failed returns true when the task finished as a failure.
func (r Result[E, A]) Failed() bool { return r.failed }

// Errors returns the error values of the failed steps in encounter order.
func (r Result[E, A]) Errors() []E {
	errs := []E{}
	for _, s := range r.Steps {
		if s.Failed() && s.HasErrorValue {
			errs = append(errs, s.ErrorValue)
		}
	}
	return errs
}

// LastError returns the most specific error of the result.
func (r Result[E, A]) LastError() (E, bool) {
	errs := r.Errors()
	if len(errs) == 0 {
		var zero E
		return zero, false
	}
	return errs[len(errs)-1], true
}

// LastStep returns the last step of the result.
func (r Result[E, A]) LastStep() (Step[E], bool) {
	if len(r.Steps) == 0 {
		return Step[E]{}, false
	}
	return r.Steps[len(r.Steps)-1], true
}

// Discard drops the value type of a result, used to store results whose value
// doesn't matter (e.g login failures on an account state).
func Discard[E, A any](r Result[E, A]) Result[E, struct{}] {
	return Result[E, struct{}]{Steps: r.Steps, failed: r.failed}
}
