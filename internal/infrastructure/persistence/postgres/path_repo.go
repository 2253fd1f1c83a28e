package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/satriyop/enteraksi/internal/domain/learningpath"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNING PATH REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// PathRepository implements learningpath.Repository.
type PathRepository struct {
	q Querier
}

// FindByID returns a path with its courses in position order. Course title
// and price come from the catalog.
func (r *PathRepository) FindByID(ctx context.Context, id string) (*learningpath.LearningPath, error) {
	var p learningpath.LearningPath
	err := r.q.QueryRow(ctx, `
		SELECT id, title, is_published, prerequisite_mode, created_at, updated_at
		FROM learning_paths
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Title, &p.IsPublished, &p.PrerequisiteMode, &p.CreatedAt, &p.UpdatedAt)
	if IsNoRows(err) {
		return nil, shared.NotFound("learningpath", "learning path", id)
	}
	if err != nil {
		return nil, mapError("learningpath", "FindByID", err)
	}

	rows, err := r.q.Query(ctx, `
		SELECT pc.course_id, c.title, c.price, pc.position, pc.is_required,
		       pc.min_completion_percentage, pc.prerequisites
		FROM learning_path_courses pc
		JOIN courses c ON c.id = pc.course_id
		WHERE pc.learning_path_id = $1
		ORDER BY pc.position, pc.course_id
	`, id)
	if err != nil {
		return nil, mapError("learningpath", "FindByID", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pc learningpath.PathCourse
		if err := rows.Scan(
			&pc.CourseID,
			&pc.CourseTitle,
			&pc.CoursePrice,
			&pc.Position,
			&pc.IsRequired,
			&pc.MinCompletionPercentage,
			&pc.Prerequisites,
		); err != nil {
			return nil, mapError("learningpath", "FindByID", err)
		}
		p.Courses = append(p.Courses, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("learningpath", "FindByID", err)
	}
	return &p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PATH ENROLLMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// PathEnrollmentRepository implements learningpath.EnrollmentRepository.
type PathEnrollmentRepository struct {
	q Querier
}

const pathEnrollmentColumns = `
	id, user_id, learning_path_id, state, progress_percentage, drop_reason,
	enrolled_at, completed_at, dropped_at, updated_at`

func scanPathEnrollment(row pgx.Row) (*learningpath.Enrollment, error) {
	var e learningpath.Enrollment
	var st string
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.LearningPathID,
		&st,
		&e.ProgressPercentage,
		&e.DropReason,
		&e.EnrolledAt,
		&e.CompletedAt,
		&e.DroppedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.State = state.PathEnrollmentState(st)
	return &e, nil
}

func collectPathEnrollments(rows pgx.Rows, op string) ([]*learningpath.Enrollment, error) {
	defer rows.Close()
	var out []*learningpath.Enrollment
	for rows.Next() {
		e, err := scanPathEnrollment(rows)
		if err != nil {
			return nil, mapError("learningpath", op, err)
		}
		out = append(out, e)
	}
	return out, mapError("learningpath", op, rows.Err())
}

// FindByID returns a path enrollment.
func (r *PathEnrollmentRepository) FindByID(ctx context.Context, id string) (*learningpath.Enrollment, error) {
	e, err := scanPathEnrollment(r.q.QueryRow(ctx,
		`SELECT `+pathEnrollmentColumns+` FROM learning_path_enrollments WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, shared.NotFound("learningpath", "path enrollment", id)
	}
	if err != nil {
		return nil, mapError("learningpath", "FindEnrollment", err)
	}
	return e, nil
}

// LockByUserAndPath reads the (user, path) row FOR UPDATE.
func (r *PathEnrollmentRepository) LockByUserAndPath(ctx context.Context, userID, pathID string) (*learningpath.Enrollment, error) {
	e, err := scanPathEnrollment(r.q.QueryRow(ctx, `
		SELECT `+pathEnrollmentColumns+`
		FROM learning_path_enrollments
		WHERE user_id = $1 AND learning_path_id = $2
		FOR UPDATE
	`, userID, pathID))
	if IsNoRows(err) {
		return nil, shared.NotFound("learningpath", "path enrollment", userID+"/"+pathID)
	}
	if err != nil {
		return nil, mapError("learningpath", "LockByUserAndPath", err)
	}
	return e, nil
}

// ListByUserAndCourse returns the user's non-dropped path enrollments whose
// path contains the course. The rows are locked so concurrent completions
// in the same path apply one after another.
func (r *PathEnrollmentRepository) ListByUserAndCourse(ctx context.Context, userID, courseID string) ([]*learningpath.Enrollment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT e.id, e.user_id, e.learning_path_id, e.state, e.progress_percentage, e.drop_reason,
		       e.enrolled_at, e.completed_at, e.dropped_at, e.updated_at
		FROM learning_path_enrollments e
		JOIN learning_path_courses pc ON pc.learning_path_id = e.learning_path_id
		WHERE e.user_id = $1 AND pc.course_id = $2 AND e.state <> 'dropped'
		ORDER BY e.id
		FOR UPDATE OF e
	`, userID, courseID)
	if err != nil {
		return nil, mapError("learningpath", "ListByUserAndCourse", err)
	}
	return collectPathEnrollments(rows, "ListByUserAndCourse")
}

// ListActive pages through active path enrollments by id.
func (r *PathEnrollmentRepository) ListActive(ctx context.Context, afterID string, limit int) ([]*learningpath.Enrollment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+pathEnrollmentColumns+`
		FROM learning_path_enrollments
		WHERE state = 'active' AND id::text > $1
		ORDER BY id::text
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, mapError("learningpath", "ListActive", err)
	}
	return collectPathEnrollments(rows, "ListActive")
}

// Create inserts a path enrollment.
func (r *PathEnrollmentRepository) Create(ctx context.Context, e *learningpath.Enrollment) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO learning_path_enrollments (`+pathEnrollmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		e.ID,
		e.UserID,
		e.LearningPathID,
		string(e.State),
		e.ProgressPercentage,
		e.DropReason,
		e.EnrolledAt,
		e.CompletedAt,
		e.DroppedAt,
		e.UpdatedAt,
	)
	return mapError("learningpath", "CreateEnrollment", err)
}

// Update persists state, timestamps and the cached percentage.
func (r *PathEnrollmentRepository) Update(ctx context.Context, e *learningpath.Enrollment) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE learning_path_enrollments SET
			state = $2,
			progress_percentage = $3,
			drop_reason = $4,
			enrolled_at = $5,
			completed_at = $6,
			dropped_at = $7,
			updated_at = $8
		WHERE id = $1
	`,
		e.ID,
		string(e.State),
		e.ProgressPercentage,
		e.DropReason,
		e.EnrolledAt,
		e.CompletedAt,
		e.DroppedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return mapError("learningpath", "UpdateEnrollment", err)
	}
	return requireRow(tag.RowsAffected(), "learningpath", "path enrollment", e.ID)
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CourseProgressRepository implements learningpath.CourseProgressRepository.
type CourseProgressRepository struct {
	q Querier
}

const courseProgressColumns = `
	id, path_enrollment_id, course_id, position, state, course_enrollment_id,
	unlocked_at, started_at, completed_at, updated_at`

func scanCourseProgress(row pgx.Row) (*learningpath.CourseProgress, error) {
	var p learningpath.CourseProgress
	var st string
	var enrollmentID *string
	err := row.Scan(
		&p.ID,
		&p.PathEnrollmentID,
		&p.CourseID,
		&p.Position,
		&st,
		&enrollmentID,
		&p.UnlockedAt,
		&p.StartedAt,
		&p.CompletedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.State = state.CourseProgressState(st)
	p.CourseEnrollmentID = deref(enrollmentID)
	return &p, nil
}

func (r *CourseProgressRepository) list(ctx context.Context, op, where string, arg string) ([]*learningpath.CourseProgress, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+courseProgressColumns+`
		FROM learning_path_course_progress
		WHERE `+where+`
		ORDER BY position, id
		FOR UPDATE
	`, arg)
	if err != nil {
		return nil, mapError("learningpath", op, err)
	}
	defer rows.Close()

	var out []*learningpath.CourseProgress
	for rows.Next() {
		p, err := scanCourseProgress(rows)
		if err != nil {
			return nil, mapError("learningpath", op, err)
		}
		out = append(out, p)
	}
	return out, mapError("learningpath", op, rows.Err())
}

// ListByPathEnrollment returns all rows of a path enrollment by position.
func (r *CourseProgressRepository) ListByPathEnrollment(ctx context.Context, pathEnrollmentID string) ([]*learningpath.CourseProgress, error) {
	return r.list(ctx, "ListCourseProgress", "path_enrollment_id = $1", pathEnrollmentID)
}

// ListByCourseEnrollment returns every row linked to a course enrollment.
func (r *CourseProgressRepository) ListByCourseEnrollment(ctx context.Context, courseEnrollmentID string) ([]*learningpath.CourseProgress, error) {
	if courseEnrollmentID == "" {
		return nil, nil
	}
	return r.list(ctx, "ListLinkedCourseProgress", "course_enrollment_id = $1", courseEnrollmentID)
}

// CreateBatch inserts the rows in one round trip.
func (r *CourseProgressRepository) CreateBatch(ctx context.Context, rows []*learningpath.CourseProgress) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range rows {
		batch.Queue(`
			INSERT INTO learning_path_course_progress (`+courseProgressColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			p.ID,
			p.PathEnrollmentID,
			p.CourseID,
			p.Position,
			string(p.State),
			nullable(p.CourseEnrollmentID),
			p.UnlockedAt,
			p.StartedAt,
			p.CompletedAt,
			p.UpdatedAt,
		)
	}

	results := r.q.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return mapError("learningpath", "CreateCourseProgress", err)
		}
	}
	return mapError("learningpath", "CreateCourseProgress", results.Close())
}

// Update persists state, link and timestamps.
func (r *CourseProgressRepository) Update(ctx context.Context, p *learningpath.CourseProgress) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE learning_path_course_progress SET
			state = $2,
			course_enrollment_id = $3,
			unlocked_at = $4,
			started_at = $5,
			completed_at = $6,
			updated_at = $7
		WHERE id = $1
	`,
		p.ID,
		string(p.State),
		nullable(p.CourseEnrollmentID),
		p.UnlockedAt,
		p.StartedAt,
		p.CompletedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return mapError("learningpath", "UpdateCourseProgress", err)
	}
	return requireRow(tag.RowsAffected(), "learningpath", "course progress", p.ID)
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENTS
// ══════════════════════════════════════════════════════════════════════════════

// PaymentVerifier implements prerequisite.PaymentVerifier over course_payments.
type PaymentVerifier struct {
	conn *Connection
}

// NewPaymentVerifier creates a new PaymentVerifier.
func NewPaymentVerifier(conn *Connection) *PaymentVerifier {
	return &PaymentVerifier{conn: conn}
}

// HasPaid reports whether a payment row exists for (user, course).
func (v *PaymentVerifier) HasPaid(ctx context.Context, userID, courseID string) (bool, error) {
	var paid bool
	err := v.conn.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM course_payments WHERE user_id = $1 AND course_id = $2)`,
		userID, courseID,
	).Scan(&paid)
	if err != nil {
		return false, mapError("payment", "HasPaid", err)
	}
	return paid, nil
}
