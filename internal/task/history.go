package task

import (
	"context"
	"fmt"
	"time"
)

// Record is the persisted summary of a finished task execution.
type Record struct {
	ID        string
	Operation string
	// Subject is the entity the task worked on (book or account ID).
	Subject   string
	Failed    bool
	Steps     []RecordStep
	CreatedAt time.Time
}

// RecordStep is a persisted step of a task execution.
type RecordStep struct {
	Sequence    int
	Description string
	Status      Status
	Message     string
	Error       string
}

// History stores finished task executions so failures can be inspected afterwards.
type History interface {
	RecordTask(ctx context.Context, r Record) error
	ListTaskRecords(ctx context.Context, subject string) ([]Record, error)
}

// NewRecord converts a result into a record ready to be stored.
func NewRecord[E, A any](operation, subject string, r Result[E, A]) Record {
	rec := Record{
		Operation: operation,
		Subject:   subject,
		Failed:    r.Failed(),
		CreatedAt: time.Now().UTC(),
	}
	for i, s := range r.Steps {
		rs := RecordStep{
			Sequence:    i + 1,
			Description: s.Description,
			Status:      s.Status,
			Message:     s.Message,
		}
		switch {
		case s.HasErrorValue:
			rs.Error = fmt.Sprintf("%v", s.ErrorValue)
		case s.Err != nil:
			rs.Error = s.Err.Error()
		}
		rec.Steps = append(rec.Steps, rs)
	}
	return rec
}
