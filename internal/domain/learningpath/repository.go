package learningpath

import "context"

// Repository gives read access to learning paths and their course lists.
type Repository interface {
	// FindByID returns a path with its courses, or a not-found error.
	FindByID(ctx context.Context, id string) (*LearningPath, error)
}

// EnrollmentRepository defines persistence for path enrollments.
type EnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*Enrollment, error)

	// LockByUserAndPath returns the (user, path) enrollment in any state,
	// locked until the unit of work ends.
	LockByUserAndPath(ctx context.Context, userID, pathID string) (*Enrollment, error)

	// ListByUserAndCourse returns the user's non-dropped path enrollments
	// whose path contains the course.
	ListByUserAndCourse(ctx context.Context, userID, courseID string) ([]*Enrollment, error)

	// ListActive pages through active path enrollments ordered by id.
	ListActive(ctx context.Context, afterID string, limit int) ([]*Enrollment, error)

	// Create inserts a path enrollment; a duplicate (user, path) fails with already-exists.
	Create(ctx context.Context, e *Enrollment) error

	Update(ctx context.Context, e *Enrollment) error
}

// CourseProgressRepository defines persistence for per-course path progress.
type CourseProgressRepository interface {
	// ListByPathEnrollment returns all rows of a path enrollment ordered by position.
	ListByPathEnrollment(ctx context.Context, pathEnrollmentID string) ([]*CourseProgress, error)

	// ListByCourseEnrollment returns every row linked to a course enrollment.
	ListByCourseEnrollment(ctx context.Context, courseEnrollmentID string) ([]*CourseProgress, error)

	// CreateBatch inserts rows; a duplicate (path enrollment, course) fails with already-exists.
	CreateBatch(ctx context.Context, rows []*CourseProgress) error

	Update(ctx context.Context, p *CourseProgress) error
}
