package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/driveline/lessons-api/internal/models"
)

const lessonColumns = `id, student_id, instructor_id, scheduled_at, requested_at, response_deadline,
       status, price, payment_method, payment_id, reject_reason, cancelled_by, created_at, updated_at`

// LessonRepository persists lesson lifecycle data.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// Create inserts a new lesson row in REQUESTED state.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now
	const query = `INSERT INTO lessons
	(id, student_id, instructor_id, scheduled_at, requested_at, response_deadline, status, price, payment_method, payment_id, reject_reason, cancelled_by, created_at, updated_at)
	VALUES (:id, :student_id, :instructor_id, :scheduled_at, :requested_at, :response_deadline, :status, :price, :payment_method, :payment_id, :reject_reason, :cancelled_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// GetByID fetches a lesson by identifier, rejecting unknown status values
// rather than propagating them.
func (r *LessonRepository) GetByID(ctx context.Context, id string) (*models.Lesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE id = $1`, lessonColumns)
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	if _, err := models.ParseLessonStatus(string(lesson.Status)); err != nil {
		return nil, fmt.Errorf("lesson %s: %w", id, err)
	}
	return &lesson, nil
}

// List returns lessons matching the filter (latest requests first).
func (r *LessonRepository) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM lessons`, lessonColumns))

	conditions := make([]string, 0, 3)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.InstructorID != "" {
		args = append(args, filter.InstructorID)
		conditions = append(conditions, fmt.Sprintf("instructor_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY requested_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// UpdateLessonStatusParams groups the mutable columns for a transition.
type UpdateLessonStatusParams struct {
	ID           string
	From         models.LessonStatus
	To           models.LessonStatus
	RejectReason *string
	CancelledBy  *string
}

// UpdateStatus performs the conditional state change that serializes
// conflicting transitions: the row is updated only while its status still
// matches the expected prior status. Zero rows affected means another
// transition won the race and is surfaced as sql.ErrNoRows.
func (r *LessonRepository) UpdateStatus(ctx context.Context, params UpdateLessonStatusParams) error {
	setParts := []string{
		"status = :to",
		"updated_at = :updated_at",
	}
	if params.RejectReason != nil {
		setParts = append(setParts, "reject_reason = :reject_reason")
	}
	if params.CancelledBy != nil {
		setParts = append(setParts, "cancelled_by = :cancelled_by")
	}
	query := fmt.Sprintf("UPDATE lessons SET %s WHERE id = :id AND status = :from",
		strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":            params.ID,
		"from":          params.From,
		"to":            params.To,
		"reject_reason": params.RejectReason,
		"cancelled_by":  params.CancelledBy,
		"updated_at":    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("update lesson status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check lesson update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateSchedule moves a confirmed lesson to a new slot. Guarded on
// CONFIRMED so a concurrent cancel or start cannot be overwritten.
func (r *LessonRepository) UpdateSchedule(ctx context.Context, id string, scheduledAt time.Time) error {
	const query = `UPDATE lessons SET scheduled_at = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, id, scheduledAt, time.Now().UTC(), models.LessonStatusConfirmed)
	if err != nil {
		return fmt.Errorf("update lesson schedule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check lesson schedule rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ExistsOpenWithInstructor checks for an outstanding lesson between the
// pair. Requests whose response window already closed are excluded so a
// stale row never blocks a new request before its lazy expiry lands.
func (r *LessonRepository) ExistsOpenWithInstructor(ctx context.Context, studentID, instructorID string, now time.Time) (bool, error) {
	const query = `SELECT 1 FROM lessons
	WHERE student_id = $1 AND instructor_id = $2
	  AND status IN ($3, $4, $5)
	  AND NOT (status = $3 AND response_deadline < $6)
	LIMIT 1`
	var exists int
	err := r.db.GetContext(ctx, &exists, query,
		studentID, instructorID,
		models.LessonStatusRequested, models.LessonStatusConfirmed, models.LessonStatusInProgress,
		now)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check open lesson: %w", err)
	}
	return true, nil
}

// ExpireOverdue transitions every overdue REQUESTED lesson to EXPIRED.
// Used by the optional periodic sweep; lazy per-read expiry does not
// depend on it.
func (r *LessonRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE lessons SET status = $1, updated_at = $2 WHERE status = $3 AND response_deadline < $4`
	result, err := r.db.ExecContext(ctx, query, models.LessonStatusExpired, now, models.LessonStatusRequested, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue lessons: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check expired rows: %w", err)
	}
	return rows, nil
}
