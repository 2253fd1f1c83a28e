package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/satriyop/enteraksi/internal/domain/course"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository implements course.Repository.
type CatalogRepository struct {
	q Querier
}

const courseColumns = `id, title, status, price, created_at, updated_at`

func scanCourse(row pgx.Row) (*course.Course, error) {
	var c course.Course
	var status string
	if err := row.Scan(&c.ID, &c.Title, &status, &c.Price, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = state.CourseState(status)
	return &c, nil
}

// FindByID returns a course.
func (r *CatalogRepository) FindByID(ctx context.Context, id string) (*course.Course, error) {
	c, err := scanCourse(r.q.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, shared.NotFound("course", "course", id)
	}
	if err != nil {
		return nil, mapError("course", "FindByID", err)
	}
	return c, nil
}

// FindByIDs returns the courses that exist, keyed by id.
func (r *CatalogRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*course.Course, error) {
	out := make(map[string]*course.Course, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.q.Query(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, mapError("course", "FindByIDs", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, mapError("course", "FindByIDs", err)
		}
		out[c.ID] = c
	}
	return out, mapError("course", "FindByIDs", rows.Err())
}

const lessonColumns = `id, course_id, title, position, content_type, estimated_duration_minutes, deleted_at`

func scanLesson(row pgx.Row) (course.Lesson, error) {
	var l course.Lesson
	var contentType string
	err := row.Scan(&l.ID, &l.CourseID, &l.Title, &l.Position, &contentType, &l.EstimatedDurationMinutes, &l.DeletedAt)
	l.ContentType = course.ContentType(contentType)
	return l, err
}

// FindLesson returns a lesson that is not soft-deleted.
func (r *CatalogRepository) FindLesson(ctx context.Context, lessonID string) (*course.Lesson, error) {
	l, err := scanLesson(r.q.QueryRow(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE id = $1 AND deleted_at IS NULL`, lessonID))
	if IsNoRows(err) {
		return nil, shared.NotFound("course", "lesson", lessonID)
	}
	if err != nil {
		return nil, mapError("course", "FindLesson", err)
	}
	return &l, nil
}

// ListLessons returns the live lessons of a course in position order.
func (r *CatalogRepository) ListLessons(ctx context.Context, courseID string) ([]course.Lesson, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+lessonColumns+`
		FROM lessons
		WHERE course_id = $1 AND deleted_at IS NULL
		ORDER BY position, id
	`, courseID)
	if err != nil {
		return nil, mapError("course", "ListLessons", err)
	}
	defer rows.Close()

	var out []course.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, mapError("course", "ListLessons", err)
		}
		out = append(out, l)
	}
	return out, mapError("course", "ListLessons", rows.Err())
}

// ListAssessments returns the published assessments of a course.
func (r *CatalogRepository) ListAssessments(ctx context.Context, courseID string) ([]course.Assessment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, course_id, title, is_required, is_published
		FROM assessments
		WHERE course_id = $1 AND is_published
		ORDER BY id
	`, courseID)
	if err != nil {
		return nil, mapError("course", "ListAssessments", err)
	}
	defer rows.Close()

	var out []course.Assessment
	for rows.Next() {
		var a course.Assessment
		if err := rows.Scan(&a.ID, &a.CourseID, &a.Title, &a.IsRequired, &a.IsPublished); err != nil {
			return nil, mapError("course", "ListAssessments", err)
		}
		out = append(out, a)
	}
	return out, mapError("course", "ListAssessments", rows.Err())
}

// ListOutcomes folds the user's attempts into one outcome per attempted
// assessment: passed if any graded attempt passed, pending if the latest
// attempt awaits grading.
func (r *CatalogRepository) ListOutcomes(ctx context.Context, userID, courseID string) ([]course.Outcome, error) {
	rows, err := r.q.Query(ctx, `
		SELECT a.id,
		       COALESCE(bool_or(t.status = 'graded' AND t.passed), FALSE),
		       COALESCE((array_agg(t.status ORDER BY t.created_at DESC))[1] = 'submitted', FALSE)
		FROM assessments a
		JOIN assessment_attempts t ON t.assessment_id = a.id AND t.user_id = $1
		WHERE a.course_id = $2
		GROUP BY a.id
		ORDER BY a.id
	`, userID, courseID)
	if err != nil {
		return nil, mapError("course", "ListOutcomes", err)
	}
	defer rows.Close()

	var out []course.Outcome
	for rows.Next() {
		var o course.Outcome
		if err := rows.Scan(&o.AssessmentID, &o.Passed, &o.PendingGrading); err != nil {
			return nil, mapError("course", "ListOutcomes", err)
		}
		out = append(out, o)
	}
	return out, mapError("course", "ListOutcomes", rows.Err())
}
