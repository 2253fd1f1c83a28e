package course

import "context"

// Repository gives read access to the catalog.
type Repository interface {
	// FindByID returns a course or a not-found error.
	FindByID(ctx context.Context, id string) (*Course, error)

	// FindByIDs returns the courses that exist, keyed by id.
	FindByIDs(ctx context.Context, ids []string) (map[string]*Course, error)

	// FindLesson returns a non-deleted lesson or a not-found error.
	FindLesson(ctx context.Context, lessonID string) (*Lesson, error)

	// ListLessons returns the non-deleted lessons of a course ordered by position.
	ListLessons(ctx context.Context, courseID string) ([]Lesson, error)

	// ListAssessments returns the published assessments of a course.
	ListAssessments(ctx context.Context, courseID string) ([]Assessment, error)

	// ListOutcomes returns the user's outcomes for the given course's assessments.
	// Assessments the user never attempted are absent.
	ListOutcomes(ctx context.Context, userID, courseID string) ([]Outcome, error)
}
