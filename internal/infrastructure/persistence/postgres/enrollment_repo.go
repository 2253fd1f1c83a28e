package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements enrollment.Repository.
type EnrollmentRepository struct {
	q Querier
}

const enrollmentColumns = `
	id, user_id, course_id, status, progress_percentage, invited_by, drop_reason,
	enrolled_at, started_at, completed_at, dropped_at, updated_at`

func scanEnrollment(row pgx.Row) (*enrollment.Enrollment, error) {
	var e enrollment.Enrollment
	var status string
	var invitedBy *string
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.CourseID,
		&status,
		&e.ProgressPercentage,
		&invitedBy,
		&e.DropReason,
		&e.EnrolledAt,
		&e.StartedAt,
		&e.CompletedAt,
		&e.DroppedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = state.EnrollmentState(status)
	e.InvitedBy = deref(invitedBy)
	return &e, nil
}

func (r *EnrollmentRepository) findOne(ctx context.Context, op, key, query string, args ...any) (*enrollment.Enrollment, error) {
	e, err := scanEnrollment(r.q.QueryRow(ctx, query, args...))
	if IsNoRows(err) {
		return nil, shared.NotFound("enrollment", "enrollment", key)
	}
	if err != nil {
		return nil, mapError("enrollment", op, err)
	}
	return e, nil
}

// FindByID returns an enrollment.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	return r.findOne(ctx, "FindByID", id,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`, id)
}

// FindByUserAndCourse returns the (user, course) enrollment in any state.
func (r *EnrollmentRepository) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*enrollment.Enrollment, error) {
	return r.findOne(ctx, "FindByUserAndCourse", userID+"/"+courseID,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = $1 AND course_id = $2`, userID, courseID)
}

// LockByUserAndCourse reads the row FOR UPDATE. A missing row takes no lock;
// the unique index decides between concurrent inserts.
func (r *EnrollmentRepository) LockByUserAndCourse(ctx context.Context, userID, courseID string) (*enrollment.Enrollment, error) {
	return r.findOne(ctx, "LockByUserAndCourse", userID+"/"+courseID,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = $1 AND course_id = $2 FOR UPDATE`, userID, courseID)
}

// Create inserts a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO enrollments (`+enrollmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		e.ID,
		e.UserID,
		e.CourseID,
		string(e.Status),
		e.ProgressPercentage,
		nullable(e.InvitedBy),
		e.DropReason,
		e.EnrolledAt,
		e.StartedAt,
		e.CompletedAt,
		e.DroppedAt,
		e.UpdatedAt,
	)
	return mapError("enrollment", "Create", err)
}

// Update persists status, timestamps and the cached percentage.
func (r *EnrollmentRepository) Update(ctx context.Context, e *enrollment.Enrollment) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE enrollments SET
			status = $2,
			progress_percentage = $3,
			drop_reason = $4,
			enrolled_at = $5,
			started_at = $6,
			completed_at = $7,
			dropped_at = $8,
			updated_at = $9
		WHERE id = $1
	`,
		e.ID,
		string(e.Status),
		e.ProgressPercentage,
		e.DropReason,
		e.EnrolledAt,
		e.StartedAt,
		e.CompletedAt,
		e.DroppedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return mapError("enrollment", "Update", err)
	}
	return requireRow(tag.RowsAffected(), "enrollment", "enrollment", e.ID)
}

// ListActive pages through active enrollments by id.
func (r *EnrollmentRepository) ListActive(ctx context.Context, afterID string, limit int) ([]*enrollment.Enrollment, error) {
	// Ids are uuids; the text comparison keeps ordering stable for any cursor.
	rows, err := r.q.Query(ctx, `
		SELECT `+enrollmentColumns+`
		FROM enrollments
		WHERE status = 'active' AND id::text > $1
		ORDER BY id::text
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, mapError("enrollment", "ListActive", err)
	}
	defer rows.Close()

	var out []*enrollment.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, mapError("enrollment", "ListActive", err)
		}
		out = append(out, e)
	}
	return out, mapError("enrollment", "ListActive", rows.Err())
}

// ══════════════════════════════════════════════════════════════════════════════
// LESSON PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// LessonProgressRepository implements enrollment.LessonProgressRepository.
type LessonProgressRepository struct {
	q Querier
}

const lessonProgressColumns = `
	id, enrollment_id, lesson_id, is_completed, progress_percentage, time_spent_seconds,
	current_page, total_pages, highest_page_reached, media_position_seconds, media_duration_seconds,
	completed_at, last_accessed_at, created_at, updated_at`

func scanLessonProgress(row pgx.Row) (enrollment.LessonProgress, error) {
	var p enrollment.LessonProgress
	err := row.Scan(
		&p.ID,
		&p.EnrollmentID,
		&p.LessonID,
		&p.IsCompleted,
		&p.ProgressPercentage,
		&p.TimeSpentSeconds,
		&p.CurrentPage,
		&p.TotalPages,
		&p.HighestPageReached,
		&p.MediaPositionSeconds,
		&p.MediaDurationSeconds,
		&p.CompletedAt,
		&p.LastAccessedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

// GetOrCreateForUpdate inserts fresh unless a row exists for its
// (enrollment, lesson), then reads the stored row FOR UPDATE.
func (r *LessonProgressRepository) GetOrCreateForUpdate(ctx context.Context, fresh *enrollment.LessonProgress) (*enrollment.LessonProgress, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO lesson_progress (`+lessonProgressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (enrollment_id, lesson_id) DO NOTHING
	`,
		fresh.ID,
		fresh.EnrollmentID,
		fresh.LessonID,
		fresh.IsCompleted,
		fresh.ProgressPercentage,
		fresh.TimeSpentSeconds,
		fresh.CurrentPage,
		fresh.TotalPages,
		fresh.HighestPageReached,
		fresh.MediaPositionSeconds,
		fresh.MediaDurationSeconds,
		fresh.CompletedAt,
		fresh.LastAccessedAt,
		fresh.CreatedAt,
		fresh.UpdatedAt,
	)
	if err != nil {
		return nil, mapError("enrollment", "GetOrCreateLessonProgress", err)
	}

	p, err := scanLessonProgress(r.q.QueryRow(ctx, `
		SELECT `+lessonProgressColumns+`
		FROM lesson_progress
		WHERE enrollment_id = $1 AND lesson_id = $2
		FOR UPDATE
	`, fresh.EnrollmentID, fresh.LessonID))
	if err != nil {
		return nil, mapError("enrollment", "GetOrCreateLessonProgress", err)
	}
	return &p, nil
}

// Update persists the row. highest_page_reached never moves backwards.
func (r *LessonProgressRepository) Update(ctx context.Context, p *enrollment.LessonProgress) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE lesson_progress SET
			is_completed = $2,
			progress_percentage = $3,
			time_spent_seconds = $4,
			current_page = $5,
			total_pages = $6,
			highest_page_reached = GREATEST(highest_page_reached, $7),
			media_position_seconds = $8,
			media_duration_seconds = $9,
			completed_at = $10,
			last_accessed_at = $11,
			updated_at = $12
		WHERE id = $1
	`,
		p.ID,
		p.IsCompleted,
		p.ProgressPercentage,
		p.TimeSpentSeconds,
		p.CurrentPage,
		p.TotalPages,
		p.HighestPageReached,
		p.MediaPositionSeconds,
		p.MediaDurationSeconds,
		p.CompletedAt,
		p.LastAccessedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return mapError("enrollment", "UpdateLessonProgress", err)
	}
	return requireRow(tag.RowsAffected(), "enrollment", "lesson progress", p.ID)
}

// ListByEnrollment returns every progress row of an enrollment.
func (r *LessonProgressRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]enrollment.LessonProgress, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+lessonProgressColumns+`
		FROM lesson_progress
		WHERE enrollment_id = $1
		ORDER BY lesson_id
	`, enrollmentID)
	if err != nil {
		return nil, mapError("enrollment", "ListLessonProgress", err)
	}
	defer rows.Close()

	var out []enrollment.LessonProgress
	for rows.Next() {
		p, err := scanLessonProgress(rows)
		if err != nil {
			return nil, mapError("enrollment", "ListLessonProgress", err)
		}
		out = append(out, p)
	}
	return out, mapError("enrollment", "ListLessonProgress", rows.Err())
}

// CompletedLessonIDs returns the completed lesson ids of an enrollment.
func (r *LessonProgressRepository) CompletedLessonIDs(ctx context.Context, enrollmentID string) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT lesson_id FROM lesson_progress
		WHERE enrollment_id = $1 AND is_completed
		ORDER BY lesson_id
	`, enrollmentID)
	if err != nil {
		return nil, mapError("enrollment", "CompletedLessonIDs", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, mapError("enrollment", "CompletedLessonIDs", err)
}

// DeleteByEnrollment removes every progress row of an enrollment.
func (r *LessonProgressRepository) DeleteByEnrollment(ctx context.Context, enrollmentID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM lesson_progress WHERE enrollment_id = $1`, enrollmentID)
	return mapError("enrollment", "DeleteLessonProgress", err)
}
