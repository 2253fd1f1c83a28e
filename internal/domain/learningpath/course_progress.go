package learningpath

import (
	"time"

	"github.com/satriyop/enteraksi/internal/domain/state"
)

// CourseProgress is one course inside a learner's path enrollment.
type CourseProgress struct {
	ID               string
	PathEnrollmentID string
	CourseID         string
	Position         int
	State            state.CourseProgressState
	// CourseEnrollmentID links to the underlying course enrollment once the
	// learner starts the course. Empty until then.
	CourseEnrollmentID string

	UnlockedAt  *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// NewCourseProgress creates a locked row.
func NewCourseProgress(id, pathEnrollmentID, courseID string, position int, at time.Time) *CourseProgress {
	return &CourseProgress{
		ID:               id,
		PathEnrollmentID: pathEnrollmentID,
		CourseID:         courseID,
		Position:         position,
		State:            state.CourseProgressMachine.Default(),
		UpdatedAt:        at,
	}
}

func (p *CourseProgress) IsLocked() bool    { return p.State == state.ProgressLocked }
func (p *CourseProgress) IsCompleted() bool { return p.State == state.ProgressCompleted }

func (p *CourseProgress) moveTo(to state.CourseProgressState) error {
	next, err := state.CourseProgressMachine.Transition(p.State, to, p.ID)
	if err != nil {
		return err
	}
	p.State = next
	return nil
}

// Unlock makes a locked course available.
func (p *CourseProgress) Unlock(at time.Time) error {
	if err := p.moveTo(state.ProgressAvailable); err != nil {
		return err
	}
	p.UnlockedAt = &at
	p.UpdatedAt = at
	return nil
}

// Start marks an available course as in progress.
func (p *CourseProgress) Start(at time.Time) error {
	if err := p.moveTo(state.ProgressInProgress); err != nil {
		return err
	}
	if p.StartedAt == nil {
		p.StartedAt = &at
	}
	p.UpdatedAt = at
	return nil
}

// Complete marks the course completed from available or in_progress.
func (p *CourseProgress) Complete(at time.Time) error {
	if err := p.moveTo(state.ProgressCompleted); err != nil {
		return err
	}
	p.CompletedAt = &at
	p.UpdatedAt = at
	return nil
}

// RevertCompletion moves a completed course back to available and clears
// completed_at. It never re-locks.
func (p *CourseProgress) RevertCompletion(at time.Time) error {
	next, err := state.CourseProgressMachine.Revert(p.State, state.ProgressAvailable, p.ID)
	if err != nil {
		return err
	}
	p.State = next
	p.CompletedAt = nil
	p.UpdatedAt = at
	return nil
}

// LinkEnrollment records the course enrollment backing this row.
// Reports whether the link changed.
func (p *CourseProgress) LinkEnrollment(enrollmentID string, at time.Time) bool {
	if p.CourseEnrollmentID == enrollmentID {
		return false
	}
	p.CourseEnrollmentID = enrollmentID
	p.UpdatedAt = at
	return true
}
