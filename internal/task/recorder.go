package task

import (
	"time"
)

// Recorder is the step by step ledger of a task execution. A recorder is owned by
// a single task execution and is not safe for concurrent use.
type Recorder[E any] struct {
	steps  []Step[E]
	sealed bool
	now    func() time.Time
}

// NewRecorder returns a new empty recorder.
func NewRecorder[E any]() *Recorder[E] {
	return &Recorder[E]{now: time.Now}
}

// BeginNewStep appends a new pending step and returns a copy of it.
func (r *Recorder[E]) BeginNewStep(description string) Step[E] {
	step := Step[E]{
		Description: description,
		Status:      StatusPending,
		StartedAt:   r.now(),
	}
	if r.sealed {
		return step
	}

	r.steps = append(r.steps, step)
	return step
}

// CurrentStepSucceeded marks the current step as done.
func (r *Recorder[E]) CurrentStepSucceeded(message string) {
	s := r.current()
	if s == nil {
		return
	}
	s.Status = StatusDone
	s.Message = message
}

// CurrentStepFailed marks the current step as failed with the error value.
func (r *Recorder[E]) CurrentStepFailed(message string, errorValue E, err error) {
	s := r.current()
	if s == nil {
		return
	}
	s.Status = StatusFailed
	s.Message = message
	s.ErrorValue = errorValue
	s.HasErrorValue = true
	s.Err = err
}

// CurrentStepFailedAppending appends a new failed step after the current one, the
// current step keeps its own resolution.
func (r *Recorder[E]) CurrentStepFailedAppending(message string, errorValue E, err error) {
	if r.sealed {
		return
	}

	desc := message
	if s := r.current(); s != nil {
		desc = s.Description
	}
	r.BeginNewStep(desc)
	r.CurrentStepFailed(message, errorValue, err)
}

// AddAll appends the steps of another ledger, used to merge sub task results.
func (r *Recorder[E]) AddAll(steps []Step[E]) {
	if r.sealed {
		return
	}
	r.steps = append(r.steps, steps...)
}

// Steps returns a copy of the current steps.
func (r *Recorder[E]) Steps() []Step[E] {
	steps := make([]Step[E], len(r.steps))
	copy(steps, r.steps)
	return steps
}

// Sealed returns true once the recorder has been finished.
func (r *Recorder[E]) Sealed() bool { return r.sealed }

func (r *Recorder[E]) current() *Step[E] {
	if r.sealed || len(r.steps) == 0 {
		return nil
	}
	return &r.steps[len(r.steps)-1]
}

// FinishSuccess seals the recorder into a successful result. A still pending
// last step is marked as done.
func FinishSuccess[E, A any](r *Recorder[E], value A) Result[E, A] {
	if s := r.current(); s != nil && s.Status == StatusPending {
		s.Status = StatusDone
	}
	r.sealed = true
	return Result[E, A]{Value: value, Steps: r.Steps()}
}

// FinishFailure seals the recorder into a failed result. A still pending last
// step is marked as failed.
func FinishFailure[E, A any](r *Recorder[E]) Result[E, A] {
	if s := r.current(); s != nil && s.Status == StatusPending {
		s.Status = StatusFailed
	}
	r.sealed = true
	return Result[E, A]{Steps: r.Steps(), failed: true}
}
