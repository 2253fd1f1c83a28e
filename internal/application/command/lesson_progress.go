package command

import (
	"context"
	"fmt"

	"github.com/satriyop/enteraksi/internal/application/service"
	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/uow"
)

// ══════════════════════════════════════════════════════════════════════════════
// LESSON PROGRESS COMMANDS
// Report reading or playback progress on a lesson, or mark it done outright.
// Both recompute the course percentage and may complete the enrollment.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateLessonProgressCommand carries one progress report from a client.
type UpdateLessonProgressCommand struct {
	EnrollmentID string
	LessonID     string

	// Paged content. Both or neither.
	CurrentPage *int
	TotalPages  *int

	// Media content. Both or neither.
	PositionSeconds *int
	DurationSeconds *int

	// TimeSpentSeconds is added to the lesson's accumulated time.
	TimeSpentSeconds int

	ActorID string
}

func (c UpdateLessonProgressCommand) update() enrollment.Update {
	return enrollment.Update{
		EnrollmentID:     c.EnrollmentID,
		LessonID:         c.LessonID,
		CurrentPage:      c.CurrentPage,
		TotalPages:       c.TotalPages,
		PositionSeconds:  c.PositionSeconds,
		DurationSeconds:  c.DurationSeconds,
		TimeSpentSeconds: c.TimeSpentSeconds,
	}
}

// Validate validates the command.
func (c UpdateLessonProgressCommand) Validate() error {
	return c.update().Validate()
}

// CompleteLessonCommand marks a lesson as done regardless of thresholds.
type CompleteLessonCommand struct {
	EnrollmentID string
	LessonID     string
	ActorID      string
}

// Validate validates the command.
func (c CompleteLessonCommand) Validate() error {
	const op = "CompleteLesson"
	if err := requireID(op, "enrollment_id", c.EnrollmentID); err != nil {
		return err
	}
	return requireID(op, "lesson_id", c.LessonID)
}

// LessonProgressResult contains the outcome of either lesson command.
type LessonProgressResult struct {
	*service.LessonResult

	// Events contains the domain events published after commit.
	Events []shared.Event
}

// LessonProgressHandler handles both lesson commands.
type LessonProgressHandler struct {
	units     uow.Factory
	publisher shared.EventPublisher
	tracking  *service.ProgressTracking
}

// NewLessonProgressHandler creates a new LessonProgressHandler.
func NewLessonProgressHandler(units uow.Factory, publisher shared.EventPublisher, tracking *service.ProgressTracking) *LessonProgressHandler {
	return &LessonProgressHandler{units: units, publisher: publisher, tracking: tracking}
}

// HandleUpdate executes an UpdateLessonProgressCommand.
func (h *LessonProgressHandler) HandleUpdate(ctx context.Context, cmd UpdateLessonProgressCommand) (*LessonProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("update_lesson_progress: validation failed: %w", err)
	}
	return h.run(ctx, "update_lesson_progress", func(ctx context.Context, u uow.UnitOfWork) (*service.LessonResult, error) {
		return h.tracking.UpdateProgress(ctx, u, cmd.update(), cmd.ActorID)
	})
}

// HandleComplete executes a CompleteLessonCommand.
func (h *LessonProgressHandler) HandleComplete(ctx context.Context, cmd CompleteLessonCommand) (*LessonProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("complete_lesson: validation failed: %w", err)
	}
	return h.run(ctx, "complete_lesson", func(ctx context.Context, u uow.UnitOfWork) (*service.LessonResult, error) {
		return h.tracking.CompleteLesson(ctx, u, cmd.EnrollmentID, cmd.LessonID, cmd.ActorID)
	})
}

func (h *LessonProgressHandler) run(
	ctx context.Context,
	name string,
	fn func(context.Context, uow.UnitOfWork) (*service.LessonResult, error),
) (*LessonProgressResult, error) {
	result := &LessonProgressResult{}
	err := uow.Run(ctx, h.units, h.publisher, func(ctx context.Context, u uow.UnitOfWork) error {
		res, err := fn(ctx, u)
		if err != nil {
			return err
		}
		result.LessonResult = res
		result.Events = u.Events()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return result, nil
}
