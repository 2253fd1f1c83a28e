// Package eventhandler contains the listeners that keep learning path
// progress in step with course enrollments.
package eventhandler

import (
	"context"
	"errors"
	"fmt"

	"github.com/satriyop/enteraksi/internal/application/service"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/uow"
	"github.com/satriyop/enteraksi/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// PATH LISTENERS
// React to course enrollment events. Each event is handled in its own unit
// of work, and delivery is at-least-once, so every handler tolerates replays.
//
// 1. enrollment.completed     -> complete the course in every path containing it
// 2. enrollment.user_dropped  -> revert completions backed by the enrollment
// 3. enrollment.user_enrolled -> link rows to the enrollment, start available rows
// ═══════════════════════════════════════════════════════════════════════════

// PathListeners handles course enrollment events on behalf of learning paths.
type PathListeners struct {
	units     uow.Factory
	publisher shared.EventPublisher
	paths     *service.PathProgress
	logger    *logger.Logger
}

// NewPathListeners creates the listeners. publisher receives the events the
// listeners themselves record, such as path completion.
func NewPathListeners(units uow.Factory, publisher shared.EventPublisher, paths *service.PathProgress, log *logger.Logger) *PathListeners {
	if log == nil {
		log = logger.Default()
	}
	return &PathListeners{
		units:     units,
		publisher: publisher,
		paths:     paths,
		logger:    log.With(logger.KeyComponent, "path_listeners"),
	}
}

// Register subscribes every listener.
func (l *PathListeners) Register(sub shared.EventSubscriber) error {
	handlers := map[shared.EventName]shared.EventHandler{
		shared.EventEnrollmentCompleted: l.OnEnrollmentCompleted,
		shared.EventUserDropped:         l.OnUserDropped,
		shared.EventUserEnrolled:        l.OnUserEnrolled,
	}
	for name, h := range handlers {
		if err := sub.Subscribe(name, h); err != nil {
			return fmt.Errorf("subscribe %s: %w", name, err)
		}
	}
	return nil
}

type courseEventData struct {
	enrollmentID string
	userID       string
	courseID     string
}

func (l *PathListeners) decode(event shared.Event, want shared.EventName) (courseEventData, bool) {
	if event.Name != want {
		l.logger.Warn("unexpected event", logger.KeyEvent, event.Name, "expected", want)
		return courseEventData{}, false
	}
	d := courseEventData{
		enrollmentID: event.AggregateID,
		userID:       event.String(shared.MetaUserID),
		courseID:     event.String(shared.MetaCourseID),
	}
	if d.enrollmentID == "" || d.userID == "" || d.courseID == "" {
		l.logger.Warn("event is missing enrollment data",
			logger.KeyEvent, event.Name,
			logger.KeyEventID, event.ID,
		)
		return courseEventData{}, false
	}
	return d, true
}

// OnEnrollmentCompleted completes the course in each of the user's
// non-dropped path enrollments that contain it.
func (l *PathListeners) OnEnrollmentCompleted(ctx context.Context, event shared.Event) error {
	d, ok := l.decode(event, shared.EventEnrollmentCompleted)
	if !ok {
		return nil
	}

	err := uow.Run(ctx, l.units, l.publisher, func(ctx context.Context, u uow.UnitOfWork) error {
		pes, err := u.PathEnrollments().ListByUserAndCourse(ctx, d.userID, d.courseID)
		if err != nil {
			return fmt.Errorf("list path enrollments: %w", err)
		}
		for _, pe := range pes {
			out, err := l.paths.OnCourseCompleted(ctx, u, pe, d.enrollmentID, d.courseID, event.ActorID)
			if err != nil {
				return fmt.Errorf("path enrollment %s: %w", pe.ID, err)
			}
			l.logger.Debug("course completion applied to path",
				logger.KeyPathEnrollmentID, pe.ID,
				logger.KeyCourseID, d.courseID,
				"unlocked", len(out.Unlocked),
				"percentage", out.Percentage,
			)
		}
		return nil
	})
	return l.settle(event, err)
}

// OnUserDropped reverts path completions backed by the dropped enrollment.
func (l *PathListeners) OnUserDropped(ctx context.Context, event shared.Event) error {
	d, ok := l.decode(event, shared.EventUserDropped)
	if !ok {
		return nil
	}

	err := uow.Run(ctx, l.units, l.publisher, func(ctx context.Context, u uow.UnitOfWork) error {
		affected, err := l.paths.RevertCourseDrop(ctx, u, d.enrollmentID, event.ActorID)
		if err != nil {
			return err
		}
		if len(affected) > 0 {
			l.logger.Info("course drop reverted path progress",
				logger.KeyEnrollmentID, d.enrollmentID,
				"path_enrollments", len(affected),
			)
		}
		return nil
	})
	return l.settle(event, err)
}

// OnUserEnrolled links the new course enrollment into the user's paths.
func (l *PathListeners) OnUserEnrolled(ctx context.Context, event shared.Event) error {
	d, ok := l.decode(event, shared.EventUserEnrolled)
	if !ok {
		return nil
	}

	err := uow.Run(ctx, l.units, l.publisher, func(ctx context.Context, u uow.UnitOfWork) error {
		_, err := l.paths.LinkCourseEnrollment(ctx, u, d.userID, d.courseID, d.enrollmentID)
		return err
	})
	return l.settle(event, err)
}

// settle turns a publish failure after commit into success. A redelivery
// would find the rows already updated and record nothing, so the lost events
// are logged instead and the reconcile job repairs path state.
func (l *PathListeners) settle(event shared.Event, err error) error {
	var pubErr *uow.PublishError
	if !errors.As(err, &pubErr) {
		return err
	}
	lost := make([]string, len(pubErr.Events))
	for i, e := range pubErr.Events {
		lost[i] = string(e.Name) + "/" + e.ID
	}
	l.logger.Error("cascade committed but its events were not published",
		logger.KeyEvent, event.Name,
		logger.KeyEventID, event.ID,
		"lost_events", lost,
		logger.KeyError, pubErr.Err,
	)
	return nil
}
