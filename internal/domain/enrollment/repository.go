package enrollment

import "context"

// Repository defines persistence for enrollments.
type Repository interface {
	// FindByID returns an enrollment or a not-found error.
	FindByID(ctx context.Context, id string) (*Enrollment, error)

	// FindByUserAndCourse returns the (user, course) enrollment in any state.
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*Enrollment, error)

	// LockByUserAndCourse is FindByUserAndCourse holding a row lock until the
	// unit of work ends.
	LockByUserAndCourse(ctx context.Context, userID, courseID string) (*Enrollment, error)

	// Create inserts a new enrollment. A second row for the same (user, course)
	// fails with an already-exists error.
	Create(ctx context.Context, e *Enrollment) error

	// Update persists state, timestamps and the cached percentage.
	Update(ctx context.Context, e *Enrollment) error

	// ListActive pages through active enrollments ordered by id.
	ListActive(ctx context.Context, afterID string, limit int) ([]*Enrollment, error)
}

// LessonProgressRepository defines persistence for lesson progress rows.
type LessonProgressRepository interface {
	// GetOrCreateForUpdate inserts fresh if no row exists for its
	// (enrollment, lesson) and returns the stored row locked for update.
	GetOrCreateForUpdate(ctx context.Context, fresh *LessonProgress) (*LessonProgress, error)

	// Update persists the row. highest_page_reached never decreases.
	Update(ctx context.Context, p *LessonProgress) error

	// ListByEnrollment returns every progress row of an enrollment.
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]LessonProgress, error)

	// CompletedLessonIDs returns the ids of completed lessons of an enrollment.
	CompletedLessonIDs(ctx context.Context, enrollmentID string) ([]string, error)

	// DeleteByEnrollment removes every progress row of an enrollment.
	DeleteByEnrollment(ctx context.Context, enrollmentID string) error
}
