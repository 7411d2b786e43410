package task_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/internal/task"
)

func TestRecorderFinish(t *testing.T) {
	tests := map[string]struct {
		record     func(r *task.Recorder[string]) task.Result[string, int]
		expFailed  bool
		expValue   int
		expErrors  []string
		expStatus  []task.Status
		expLastMsg string
	}{
		"A successful task should have all its steps done.": {
			record: func(r *task.Recorder[string]) task.Result[string, int] {
				r.BeginNewStep("step 1")
				r.CurrentStepSucceeded("ok 1")
				r.BeginNewStep("step 2")
				r.CurrentStepSucceeded("ok 2")
				return task.FinishSuccess(r, 42)
			},
			expValue:   42,
			expErrors:  []string{},
			expStatus:  []task.Status{task.StatusDone, task.StatusDone},
			expLastMsg: "ok 2",
		},
		"A pending last step on success should be marked as done.": {
			record: func(r *task.Recorder[string]) task.Result[string, int] {
				r.BeginNewStep("step 1")
				return task.FinishSuccess(r, 1)
			},
			expValue:  1,
			expErrors: []string{},
			expStatus: []task.Status{task.StatusDone},
		},
		"A failed task should project the error values of the failed steps in order.": {
			record: func(r *task.Recorder[string]) task.Result[string, int] {
				r.BeginNewStep("step 1")
				r.CurrentStepFailed("failed 1", "e1", nil)
				r.BeginNewStep("step 2")
				r.CurrentStepSucceeded("ok 2")
				r.BeginNewStep("step 3")
				r.CurrentStepFailed("failed 3", "e3", errors.New("boom"))
				return task.FinishFailure[string, int](r)
			},
			expFailed:  true,
			expErrors:  []string{"e1", "e3"},
			expStatus:  []task.Status{task.StatusFailed, task.StatusDone, task.StatusFailed},
			expLastMsg: "failed 3",
		},
		"Failing appending should keep the current step resolution and add a new failed step.": {
			record: func(r *task.Recorder[string]) task.Result[string, int] {
				r.BeginNewStep("step 1")
				r.CurrentStepSucceeded("ok 1")
				r.CurrentStepFailedAppending("unexpected", "e2", errors.New("boom"))
				return task.FinishFailure[string, int](r)
			},
			expFailed:  true,
			expErrors:  []string{"e2"},
			expStatus:  []task.Status{task.StatusDone, task.StatusFailed},
			expLastMsg: "unexpected",
		},
		"Adding sub task steps should merge them in order.": {
			record: func(r *task.Recorder[string]) task.Result[string, int] {
				sub := task.NewRecorder[string]()
				sub.BeginNewStep("sub 1")
				sub.CurrentStepFailed("sub failed", "sub-error", nil)
				subRes := task.FinishFailure[string, int](sub)

				r.BeginNewStep("step 1")
				r.CurrentStepSucceeded("ok 1")
				r.AddAll(subRes.Steps)
				return task.FinishFailure[string, int](r)
			},
			expFailed:  true,
			expErrors:  []string{"sub-error"},
			expStatus:  []task.Status{task.StatusDone, task.StatusFailed},
			expLastMsg: "sub failed",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			res := test.record(task.NewRecorder[string]())

			assert.Equal(test.expFailed, res.Failed())
			assert.Equal(test.expValue, res.Value)
			assert.Equal(test.expErrors, res.Errors())

			gotStatus := []task.Status{}
			for _, s := range res.Steps {
				gotStatus = append(gotStatus, s.Status)
			}
			assert.Equal(test.expStatus, gotStatus)

			last, ok := res.LastStep()
			require.True(ok)
			assert.Equal(test.expLastMsg, last.Message)
			if test.expFailed {
				assert.True(last.Failed())
			} else {
				assert.False(last.Failed())
			}
		})
	}
}

func TestRecorderSealed(t *testing.T) {
	assert := assert.New(t)

	r := task.NewRecorder[string]()
	r.BeginNewStep("step 1")
	res := task.FinishSuccess(r, "ok")
	assert.True(r.Sealed())

	r.BeginNewStep("step 2")
	r.CurrentStepFailed("late", "late", nil)
	r.AddAll([]task.Step[string]{{Description: "extra"}})

	assert.Len(r.Steps(), 1)
	assert.Len(res.Steps, 1)
	assert.Equal(task.StatusDone, r.Steps()[0].Status)
}

func TestResultLastError(t *testing.T) {
	assert := assert.New(t)

	r := task.NewRecorder[string]()
	r.BeginNewStep("step 1")
	_, ok := task.FinishSuccess(r, 0).LastError()
	assert.False(ok)

	r = task.NewRecorder[string]()
	r.BeginNewStep("step 1")
	r.CurrentStepFailed("a", "first", nil)
	r.BeginNewStep("step 2")
	r.CurrentStepFailed("b", "second", nil)
	e, ok := task.FinishFailure[string, int](r).LastError()
	assert.True(ok)
	assert.Equal("second", e)
}

func TestNewRecord(t *testing.T) {
	assert := assert.New(t)

	r := task.NewRecorder[string]()
	r.BeginNewStep("fetch")
	r.CurrentStepSucceeded("fetched")
	r.BeginNewStep("parse")
	r.CurrentStepFailed("unparseable", "parse error", nil)
	rec := task.NewRecord("booksync", "account-1", task.FinishFailure[string, int](r))

	assert.Equal("booksync", rec.Operation)
	assert.Equal("account-1", rec.Subject)
	assert.True(rec.Failed)
	assert.Equal([]task.RecordStep{
		{Sequence: 1, Description: "fetch", Status: task.StatusDone, Message: "fetched"},
		{Sequence: 2, Description: "parse", Status: task.StatusFailed, Message: "unparseable", Error: "parse error"},
	}, rec.Steps)
}
