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
// DROP ENROLLMENT COMMAND
// Drops an active course enrollment. Learning paths react to the emitted
// event and revert any completion backed by this enrollment.
// ══════════════════════════════════════════════════════════════════════════════

// DropEnrollmentCommand contains the data to drop an enrollment.
type DropEnrollmentCommand struct {
	EnrollmentID string

	// Reason is free text kept on the enrollment.
	Reason string

	ActorID string
}

// Validate validates the command.
func (c DropEnrollmentCommand) Validate() error {
	const op = "DropEnrollment"
	if err := requireID(op, "enrollment_id", c.EnrollmentID); err != nil {
		return err
	}
	if len(c.Reason) > 1000 {
		return shared.NewDomainError("command", op, shared.ErrValueOutOfRange, "reason is longer than 1000 characters")
	}
	return nil
}

// DropEnrollmentResult contains the result of a drop.
type DropEnrollmentResult struct {
	Enrollment *enrollment.Enrollment
	Events     []shared.Event
}

// DropEnrollmentHandler handles the DropEnrollmentCommand.
type DropEnrollmentHandler struct {
	units     uow.Factory
	publisher shared.EventPublisher
	clock     timeutil.Clock
	logger    *logger.Logger
}

// NewDropEnrollmentHandler creates a new DropEnrollmentHandler.
func NewDropEnrollmentHandler(units uow.Factory, publisher shared.EventPublisher, clock timeutil.Clock, log *logger.Logger) *DropEnrollmentHandler {
	return &DropEnrollmentHandler{
		units:     units,
		publisher: publisher,
		clock:     clock,
		logger:    log.With(logger.KeyOperation, "drop_enrollment"),
	}
}

// Handle executes the drop command.
func (h *DropEnrollmentHandler) Handle(ctx context.Context, cmd DropEnrollmentCommand) (*DropEnrollmentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("drop_enrollment: validation failed: %w", err)
	}

	result := &DropEnrollmentResult{}
	err := uow.Run(ctx, h.units, h.publisher, func(ctx context.Context, u uow.UnitOfWork) error {
		now := h.clock.Now()
		enr, err := u.Enrollments().FindByID(ctx, cmd.EnrollmentID)
		if err != nil {
			return err
		}
		if err := enr.Drop(cmd.Reason, now); err != nil {
			return err
		}
		if err := u.Enrollments().Update(ctx, enr); err != nil {
			return err
		}

		u.Record(shared.NewUserDroppedEvent(
			shared.Origin{ActorID: cmd.ActorID, At: now},
			enr.ID, enr.UserID, enr.CourseID, cmd.Reason,
		))
		result.Enrollment = enr
		result.Events = u.Events()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drop_enrollment: %w", err)
	}

	h.logger.Info("enrollment dropped",
		logger.KeyEnrollmentID, result.Enrollment.ID,
		logger.KeyUserID, result.Enrollment.UserID,
		logger.KeyCourseID, result.Enrollment.CourseID,
	)
	return result, nil
}
