package command

import (
	"context"
	"fmt"

	"github.com/satriyop/enteraksi/internal/application/service"
	"github.com/satriyop/enteraksi/internal/domain/learningpath"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/uow"
	"github.com/satriyop/enteraksi/pkg/logger"
	"github.com/satriyop/enteraksi/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PATH ENROLLMENT COMMANDS
// Enroll in, reactivate and drop learning paths. A new path enrollment gets
// one progress row per course and picks up courses the learner already
// finished or started.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollInPathCommand contains the data to enroll a user in a learning path.
type EnrollInPathCommand struct {
	UserID  string
	PathID  string
	ActorID string
}

// Validate validates the command.
func (c EnrollInPathCommand) Validate() error {
	const op = "EnrollInPath"
	if err := requireID(op, "user_id", c.UserID); err != nil {
		return err
	}
	return requireID(op, "learning_path_id", c.PathID)
}

// EnrollInPathResult contains the result of a path enrollment.
type EnrollInPathResult struct {
	Enrollment  *learningpath.Enrollment
	Progress    []*learningpath.CourseProgress
	Reactivated bool
	Events      []shared.Event
}

// DropPathEnrollmentCommand contains the data to drop a path enrollment.
type DropPathEnrollmentCommand struct {
	PathEnrollmentID string
	Reason           string
	ActorID          string
}

// Validate validates the command.
func (c DropPathEnrollmentCommand) Validate() error {
	return requireID("DropPathEnrollment", "path_enrollment_id", c.PathEnrollmentID)
}

// PathEnrollmentHandler handles both path enrollment commands.
type PathEnrollmentHandler struct {
	units     uow.Factory
	publisher shared.EventPublisher
	paths     *service.PathProgress
	clock     timeutil.Clock
	ids       shared.IDGenerator
	logger    *logger.Logger
}

// NewPathEnrollmentHandler creates a new PathEnrollmentHandler.
func NewPathEnrollmentHandler(
	units uow.Factory,
	publisher shared.EventPublisher,
	paths *service.PathProgress,
	clock timeutil.Clock,
	ids shared.IDGenerator,
	log *logger.Logger,
) *PathEnrollmentHandler {
	return &PathEnrollmentHandler{
		units:     units,
		publisher: publisher,
		paths:     paths,
		clock:     clock,
		ids:       ids,
		logger:    log.With(logger.KeyOperation, "path_enrollment"),
	}
}

// HandleEnroll executes an EnrollInPathCommand.
func (h *PathEnrollmentHandler) HandleEnroll(ctx context.Context, cmd EnrollInPathCommand) (*EnrollInPathResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("enroll_in_path: validation failed: %w", err)
	}
	actor := cmd.ActorID
	if actor == "" {
		actor = cmd.UserID
	}

	result := &EnrollInPathResult{}
	err := uow.Run(ctx, h.units, h.publisher, func(ctx context.Context, u uow.UnitOfWork) error {
		now := h.clock.Now()

		path, err := u.Paths().FindByID(ctx, cmd.PathID)
		if err != nil {
			return err
		}
		if !path.IsPublished {
			return shared.NewPrecondition(shared.CodePathNotPublished, "learning path is not published",
				"learning_path_id", path.ID)
		}

		existing, err := u.PathEnrollments().LockByUserAndPath(ctx, cmd.UserID, cmd.PathID)
		switch {
		case err == nil && existing.IsDropped():
			if err := existing.Reactivate(now); err != nil {
				return err
			}
			if err := u.PathEnrollments().Update(ctx, existing); err != nil {
				return err
			}
			if err := h.paths.Recalculate(ctx, u, existing, actor); err != nil {
				return err
			}
			result.Enrollment = existing
			result.Reactivated = true

		case err == nil:
			return shared.NewPrecondition(shared.CodeAlreadyEnrolledInPath,
				fmt.Sprintf("user already has a %s enrollment in this path", existing.State),
				"path_enrollment_id", existing.ID, "user_id", cmd.UserID, "learning_path_id", cmd.PathID)

		case shared.IsNotFound(err):
			pe := learningpath.NewEnrollment(h.ids.NewID(), cmd.UserID, cmd.PathID, now)
			if err := u.PathEnrollments().Create(ctx, pe); err != nil {
				if shared.IsAlreadyExists(err) {
					return shared.NewPrecondition(shared.CodeAlreadyEnrolledInPath, "user is already enrolled in this path",
						"user_id", cmd.UserID, "learning_path_id", cmd.PathID)
				}
				return err
			}
			if _, err := h.paths.InitializeCourseProgress(ctx, u, pe, actor); err != nil {
				return err
			}
			if err := h.catchUp(ctx, u, pe, path, actor); err != nil {
				return err
			}
			result.Enrollment = pe

		default:
			return fmt.Errorf("lock path enrollment: %w", err)
		}

		rows, err := u.CourseProgress().ListByPathEnrollment(ctx, result.Enrollment.ID)
		if err != nil {
			return err
		}
		result.Progress = rows

		u.Record(shared.NewPathEnrolledEvent(
			shared.Origin{ActorID: actor, At: now},
			result.Enrollment.ID, cmd.UserID, cmd.PathID, result.Reactivated,
		))
		result.Events = u.Events()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enroll_in_path: %w", err)
	}

	h.logger.Info("user enrolled in learning path",
		logger.KeyPathEnrollmentID, result.Enrollment.ID,
		logger.KeyUserID, cmd.UserID,
		logger.KeyPathID, cmd.PathID,
		"reactivated", result.Reactivated,
	)
	return result, nil
}

// catchUp applies course enrollments that predate the path enrollment.
func (h *PathEnrollmentHandler) catchUp(ctx context.Context, u uow.UnitOfWork, pe *learningpath.Enrollment, path *learningpath.LearningPath, actor string) error {
	for _, c := range path.Ordered() {
		enr, err := u.Enrollments().FindByUserAndCourse(ctx, pe.UserID, c.CourseID)
		if shared.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		switch {
		case enr.IsCompleted():
			if _, err := h.paths.OnCourseCompleted(ctx, u, pe, enr.ID, c.CourseID, actor); err != nil {
				return err
			}
		case enr.IsActive():
			if _, err := h.paths.LinkCourseEnrollment(ctx, u, pe.UserID, c.CourseID, enr.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// HandleDrop executes a DropPathEnrollmentCommand.
func (h *PathEnrollmentHandler) HandleDrop(ctx context.Context, cmd DropPathEnrollmentCommand) (*learningpath.Enrollment, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("drop_path_enrollment: validation failed: %w", err)
	}

	var dropped *learningpath.Enrollment
	err := uow.Run(ctx, h.units, h.publisher, func(ctx context.Context, u uow.UnitOfWork) error {
		now := h.clock.Now()
		pe, err := u.PathEnrollments().FindByID(ctx, cmd.PathEnrollmentID)
		if err != nil {
			return err
		}
		if !pe.IsActive() {
			return shared.NewPrecondition(shared.CodePathEnrollmentClosed,
				fmt.Sprintf("path enrollment is %s", pe.State),
				"path_enrollment_id", pe.ID)
		}
		if err := pe.Drop(cmd.Reason, now); err != nil {
			return err
		}
		if err := u.PathEnrollments().Update(ctx, pe); err != nil {
			return err
		}
		u.Record(shared.NewPathDroppedEvent(
			shared.Origin{ActorID: cmd.ActorID, At: now},
			pe.ID, pe.UserID, pe.LearningPathID, cmd.Reason,
		))
		dropped = pe
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drop_path_enrollment: %w", err)
	}

	h.logger.Info("learning path dropped",
		logger.KeyPathEnrollmentID, dropped.ID,
		logger.KeyPathID, dropped.LearningPathID,
	)
	return dropped, nil
}
