package learningpath

import (
	"time"

	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
)

// Enrollment links a user to a learning path. Like course enrollments, one
// row exists per (user, path) and a dropped row is reactivated in place.
type Enrollment struct {
	ID                 string
	UserID             string
	LearningPathID     string
	State              state.PathEnrollmentState
	ProgressPercentage int
	DropReason         string

	EnrolledAt  time.Time
	CompletedAt *time.Time
	DroppedAt   *time.Time
	UpdatedAt   time.Time
}

// NewEnrollment creates an active path enrollment.
func NewEnrollment(id, userID, pathID string, at time.Time) *Enrollment {
	return &Enrollment{
		ID:             id,
		UserID:         userID,
		LearningPathID: pathID,
		State:          state.PathEnrollmentMachine.Default(),
		EnrolledAt:     at,
		UpdatedAt:      at,
	}
}

func (e *Enrollment) IsActive() bool    { return e.State == state.PathActive }
func (e *Enrollment) IsCompleted() bool { return e.State == state.PathCompleted }
func (e *Enrollment) IsDropped() bool   { return e.State == state.PathDropped }

// SetProgress caches a computed percentage and returns the previous value.
func (e *Enrollment) SetProgress(pct float64, at time.Time) (previous int, changed bool) {
	previous = e.ProgressPercentage
	rounded := shared.RoundPercentage(pct)
	if rounded == previous {
		return previous, false
	}
	e.ProgressPercentage = rounded
	e.UpdatedAt = at
	return previous, true
}

// Complete moves an active path enrollment to completed. A second call is a no-op.
func (e *Enrollment) Complete(at time.Time) (bool, error) {
	if e.IsCompleted() {
		return false, nil
	}
	next, err := state.PathEnrollmentMachine.Transition(e.State, state.PathCompleted, e.ID)
	if err != nil {
		return false, err
	}
	e.State = next
	e.CompletedAt = &at
	e.UpdatedAt = at
	return true, nil
}

// RevertCompletion moves a completed path enrollment back to active and
// clears completed_at. Used when a required course is dropped.
func (e *Enrollment) RevertCompletion(at time.Time) error {
	next, err := state.PathEnrollmentMachine.Revert(e.State, state.PathActive, e.ID)
	if err != nil {
		return err
	}
	e.State = next
	e.CompletedAt = nil
	e.UpdatedAt = at
	return nil
}

// Drop moves an active path enrollment to dropped.
func (e *Enrollment) Drop(reason string, at time.Time) error {
	next, err := state.PathEnrollmentMachine.Transition(e.State, state.PathDropped, e.ID)
	if err != nil {
		return err
	}
	e.State = next
	e.DroppedAt = &at
	e.DropReason = reason
	e.UpdatedAt = at
	return nil
}

// Reactivate brings a dropped path enrollment back to active on the same row.
func (e *Enrollment) Reactivate(at time.Time) error {
	next, err := state.PathEnrollmentMachine.Transition(e.State, state.PathActive, e.ID)
	if err != nil {
		return err
	}
	e.State = next
	e.DroppedAt = nil
	e.DropReason = ""
	e.EnrolledAt = at
	e.UpdatedAt = at
	return nil
}
