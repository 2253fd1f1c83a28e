package command

import (
	"context"
	"fmt"

	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/uow"
	"github.com/satriyop/enteraksi/pkg/logger"
	"github.com/satriyop/enteraksi/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL IN COURSE COMMAND
// Enrolls a user in a published course. A previously dropped enrollment is
// reactivated in place, so a (user, course) pair never has two rows.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollInCourseCommand contains the data to enroll a user.
type EnrollInCourseCommand struct {
	// UserID is the learner being enrolled.
	UserID string

	// CourseID is the target course.
	CourseID string

	// InvitedBy is the user who invited the learner, if any.
	InvitedBy string

	// PreserveProgress keeps lesson progress when a dropped enrollment is
	// reactivated. Otherwise the learner starts over.
	PreserveProgress bool

	// ActorID is recorded on emitted events. Defaults to UserID.
	ActorID string
}

// Validate validates the command.
func (c EnrollInCourseCommand) Validate() error {
	const op = "EnrollInCourse"
	if err := requireID(op, "user_id", c.UserID); err != nil {
		return err
	}
	if err := requireID(op, "course_id", c.CourseID); err != nil {
		return err
	}
	return optionalID(op, "invited_by", c.InvitedBy)
}

func (c EnrollInCourseCommand) actor() string {
	if c.ActorID != "" {
		return c.ActorID
	}
	return c.UserID
}

// EnrollInCourseResult contains the result of an enrollment.
type EnrollInCourseResult struct {
	// Enrollment is the stored enrollment.
	Enrollment *enrollment.Enrollment

	// Reactivated is true when a dropped enrollment was brought back.
	Reactivated bool

	// Events contains the domain events published after commit.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EnrollInCourseHandler handles the EnrollInCourseCommand.
type EnrollInCourseHandler struct {
	units     uow.Factory
	publisher shared.EventPublisher
	clock     timeutil.Clock
	ids       shared.IDGenerator
	logger    *logger.Logger
}

// NewEnrollInCourseHandler creates a new EnrollInCourseHandler.
func NewEnrollInCourseHandler(
	units uow.Factory,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	ids shared.IDGenerator,
	log *logger.Logger,
) *EnrollInCourseHandler {
	return &EnrollInCourseHandler{
		units:     units,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		logger:    log.With(logger.KeyOperation, "enroll_in_course"),
	}
}

// Handle executes the enroll command.
func (h *EnrollInCourseHandler) Handle(ctx context.Context, cmd EnrollInCourseCommand) (*EnrollInCourseResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("enroll_in_course: validation failed: %w", err)
	}

	result := &EnrollInCourseResult{}
	err := uow.Run(ctx, h.units, h.publisher, func(ctx context.Context, u uow.UnitOfWork) error {
		now := h.clock.Now()

		c, err := u.Courses().FindByID(ctx, cmd.CourseID)
		if err != nil {
			return err
		}
		if !c.Status.CanEnroll() {
			return shared.NewPrecondition(shared.CodeCourseNotPublished,
				fmt.Sprintf("course is %s", c.Status),
				"course_id", c.ID)
		}

		// The row lock serializes concurrent enrollments of the same pair.
		existing, err := u.Enrollments().LockByUserAndCourse(ctx, cmd.UserID, cmd.CourseID)
		switch {
		case err == nil && existing.IsDropped():
			if err := existing.Reactivate(now, cmd.PreserveProgress); err != nil {
				return err
			}
			if !cmd.PreserveProgress {
				if err := u.LessonProgress().DeleteByEnrollment(ctx, existing.ID); err != nil {
					return fmt.Errorf("reset lesson progress: %w", err)
				}
			}
			if err := u.Enrollments().Update(ctx, existing); err != nil {
				return err
			}
			result.Enrollment = existing
			result.Reactivated = true

		case err == nil:
			return alreadyEnrolled(existing)

		case shared.IsNotFound(err):
			enr := enrollment.New(h.ids.NewID(), cmd.UserID, cmd.CourseID, cmd.InvitedBy, now)
			if err := u.Enrollments().Create(ctx, enr); err != nil {
				if shared.IsAlreadyExists(err) {
					return shared.NewPrecondition(shared.CodeAlreadyEnrolled, "user is already enrolled in this course",
						"user_id", cmd.UserID, "course_id", cmd.CourseID)
				}
				return err
			}
			result.Enrollment = enr

		default:
			return fmt.Errorf("lock enrollment: %w", err)
		}

		u.Record(shared.NewUserEnrolledEvent(
			shared.Origin{ActorID: cmd.actor(), At: now},
			result.Enrollment.ID, cmd.UserID, cmd.CourseID, result.Reactivated,
		))
		result.Events = u.Events()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enroll_in_course: %w", err)
	}

	h.logger.Info("user enrolled",
		logger.KeyEnrollmentID, result.Enrollment.ID,
		logger.KeyUserID, cmd.UserID,
		logger.KeyCourseID, cmd.CourseID,
		"reactivated", result.Reactivated,
	)
	return result, nil
}

func alreadyEnrolled(e *enrollment.Enrollment) error {
	return shared.NewPrecondition(shared.CodeAlreadyEnrolled,
		fmt.Sprintf("user already has a %s enrollment in this course", e.Status),
		"enrollment_id", e.ID, "user_id", e.UserID, "course_id", e.CourseID)
}
