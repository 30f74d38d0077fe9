package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is one recorded sign-in attempt.
type Entry struct {
	ID            uuid.UUID
	TickID        uuid.UUID
	StudentNumber string
	CourseSchedID string
	CourseName    string
	Outcome       string
	AttemptedAt   time.Time
}

// Recorder persists sign-in attempts. Recording is best-effort; failures
// must never block the attendance cycle.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

type sqlRecorder struct {
	db *sql.DB
}

// NewSQLRecorder creates a Recorder backed by the sign_in_history table.
func NewSQLRecorder(db *sql.DB) Recorder {
	return &sqlRecorder{db: db}
}

// Record inserts one attempt row.
func (r *sqlRecorder) Record(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	query := `
		INSERT INTO sign_in_history (id, tick_id, student_number, course_sched_id, course_name, outcome, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID.String(),
		e.TickID.String(),
		e.StudentNumber,
		e.CourseSchedID,
		e.CourseName,
		e.Outcome,
		e.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sign-in history: %w", err)
	}
	return nil
}

type nopRecorder struct{}

// NewNopRecorder returns a Recorder that discards everything; used when no
// DATABASE_URL is configured.
func NewNopRecorder() Recorder {
	return nopRecorder{}
}

func (nopRecorder) Record(context.Context, Entry) error { return nil }
