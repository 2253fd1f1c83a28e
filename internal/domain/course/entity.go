// Package course holds the catalog read models the progress engine
// consults: courses, their lessons and their assessments.
package course

import (
	"time"

	"github.com/satriyop/enteraksi/internal/domain/state"
)

// Course is a catalog course.
type Course struct {
	ID     string
	Title  string
	Status state.CourseState
	// Price in minor currency units. Zero means free.
	Price     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsFree reports whether the course can be taken without payment.
func (c *Course) IsFree() bool { return c.Price <= 0 }

// ChangeStatus moves the course through its publication machine.
func (c *Course) ChangeStatus(to state.CourseState, at time.Time) error {
	next, err := state.CourseMachine.Transition(c.Status, to, c.ID)
	if err != nil {
		return err
	}
	c.Status = next
	c.UpdatedAt = at
	return nil
}

// ContentType drives which completion threshold applies to a lesson.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentDocument ContentType = "document"
	ContentVideo    ContentType = "video"
	ContentAudio    ContentType = "audio"
)

// IsMedia reports whether progress is measured by playback position.
func (t ContentType) IsMedia() bool { return t == ContentVideo || t == ContentAudio }

// Lesson belongs to a course. Soft-deleted lessons are excluded from progress.
type Lesson struct {
	ID                       string
	CourseID                 string
	Title                    string
	Position                 int
	ContentType              ContentType
	EstimatedDurationMinutes int
	DeletedAt                *time.Time
}

// IsDeleted reports whether the lesson was soft-deleted.
func (l *Lesson) IsDeleted() bool { return l.DeletedAt != nil }

// Assessment belongs to a course.
type Assessment struct {
	ID          string
	CourseID    string
	Title       string
	IsRequired  bool
	IsPublished bool
}

// Outcome is a user's standing on one assessment, derived from their attempts.
type Outcome struct {
	AssessmentID string
	// Passed is true when any graded attempt passed.
	Passed bool
	// PendingGrading is true when the latest attempt is submitted but not graded.
	PendingGrading bool
}
