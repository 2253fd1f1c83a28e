// Package enrollment contains the course enrollment aggregate and the
// per-lesson progress rows hanging off it.
package enrollment

import (
	"time"

	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
)

// Enrollment links a user to a course. One row exists per (user, course);
// a dropped row is reactivated in place rather than duplicated.
type Enrollment struct {
	ID                 string
	UserID             string
	CourseID           string
	Status             state.EnrollmentState
	ProgressPercentage int
	InvitedBy          string
	DropReason         string

	EnrolledAt  time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	DroppedAt   *time.Time
	UpdatedAt   time.Time
}

// New creates an active enrollment.
func New(id, userID, courseID, invitedBy string, at time.Time) *Enrollment {
	return &Enrollment{
		ID:         id,
		UserID:     userID,
		CourseID:   courseID,
		Status:     state.EnrollmentMachine.Default(),
		InvitedBy:  invitedBy,
		EnrolledAt: at,
		UpdatedAt:  at,
	}
}

// IsActive reports whether progress can be tracked.
func (e *Enrollment) IsActive() bool { return e.Status == state.EnrollmentActive }

// IsCompleted reports whether the enrollment reached completion.
func (e *Enrollment) IsCompleted() bool { return e.Status == state.EnrollmentCompleted }

// IsDropped reports whether the learner left the course.
func (e *Enrollment) IsDropped() bool { return e.Status == state.EnrollmentDropped }

// MarkStarted stamps started_at on first interaction. Reports whether it changed.
func (e *Enrollment) MarkStarted(at time.Time) bool {
	if e.StartedAt != nil {
		return false
	}
	e.StartedAt = &at
	e.UpdatedAt = at
	return true
}

// SetProgress caches a computed percentage. Reports whether the cached value changed.
func (e *Enrollment) SetProgress(pct float64, at time.Time) bool {
	rounded := shared.RoundPercentage(pct)
	if rounded == e.ProgressPercentage {
		return false
	}
	e.ProgressPercentage = rounded
	e.UpdatedAt = at
	return true
}

// Complete moves the enrollment to completed. Completing an already
// completed enrollment is a no-op and reports false; completed_at keeps its
// first value.
func (e *Enrollment) Complete(at time.Time) (bool, error) {
	if e.IsCompleted() {
		return false, nil
	}
	next, err := state.EnrollmentMachine.Transition(e.Status, state.EnrollmentCompleted, e.ID)
	if err != nil {
		return false, err
	}
	e.Status = next
	e.CompletedAt = &at
	e.UpdatedAt = at
	return true, nil
}

// Drop moves an active enrollment to dropped.
func (e *Enrollment) Drop(reason string, at time.Time) error {
	next, err := state.EnrollmentMachine.Transition(e.Status, state.EnrollmentDropped, e.ID)
	if err != nil {
		return err
	}
	e.Status = next
	e.DroppedAt = &at
	e.DropReason = reason
	e.UpdatedAt = at
	return nil
}

// Reactivate brings a dropped enrollment back to active on the same row.
// Without preserveProgress the cached percentage and started_at are reset.
func (e *Enrollment) Reactivate(at time.Time, preserveProgress bool) error {
	next, err := state.EnrollmentMachine.Transition(e.Status, state.EnrollmentActive, e.ID)
	if err != nil {
		return err
	}
	e.Status = next
	e.DroppedAt = nil
	e.DropReason = ""
	e.CompletedAt = nil
	e.EnrolledAt = at
	e.UpdatedAt = at
	if !preserveProgress {
		e.ProgressPercentage = 0
		e.StartedAt = nil
	}
	return nil
}
