package sqlite

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/slok/lendr/internal/task"
)

// RecordTask stores a finished task with its steps.
func (r *Repository) RecordTask(ctx context.Context, rec task.Record) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // Rollback is safe to call after Commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_records (id, operation, subject, failed, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, rec.Operation, rec.Subject, rec.Failed, rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("could not insert task record: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO task_steps (record_id, sequence, description, status, message, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("could not prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, s := range rec.Steps {
		seq := s.Sequence
		if seq == 0 {
			seq = i + 1
		}
		_, err := stmt.ExecContext(ctx, rec.ID, seq, s.Description, string(s.Status), s.Message, s.Error)
		if err != nil {
			return fmt.Errorf("could not insert task step: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Recorded %s task %s for %s", rec.Operation, rec.ID, rec.Subject)
	return nil
}

// ListTaskRecords returns the finished tasks of a subject in execution order, all
// of them when subject is empty.
func (r *Repository) ListTaskRecords(ctx context.Context, subject string) ([]task.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.operation, r.subject, r.failed, r.created_at,
			s.sequence, s.description, s.status, s.message, s.error
		FROM task_records r
		LEFT JOIN task_steps s ON s.record_id = r.id
		WHERE ? = '' OR r.subject = ?
		ORDER BY r.id ASC, s.sequence ASC
	`, subject, subject)
	if err != nil {
		return nil, fmt.Errorf("could not query task records: %w", err)
	}
	defer rows.Close()

	records := []task.Record{}
	for rows.Next() {
		var (
			rec       task.Record
			createdAt int64
			seq       *int
			desc      *string
			status    *string
			msg       *string
			errMsg    *string
		)
		err := rows.Scan(&rec.ID, &rec.Operation, &rec.Subject, &rec.Failed, &createdAt, &seq, &desc, &status, &msg, &errMsg)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}

		if len(records) == 0 || records[len(records)-1].ID != rec.ID {
			rec.CreatedAt = timeFromUnix(createdAt)
			records = append(records, rec)
		}
		if seq == nil {
			continue
		}

		last := &records[len(records)-1]
		last.Steps = append(last.Steps, task.RecordStep{
			Sequence:    *seq,
			Description: deref(desc),
			Status:      task.Status(deref(status)),
			Message:     deref(msg),
			Error:       deref(errMsg),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
