// Package uow defines the unit of work every command and listener runs in:
// one transaction over all repositories, plus the domain events recorded
// while it ran. Events leave the process only after a successful commit.
package uow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/satriyop/enteraksi/internal/domain/course"
	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/learningpath"
	"github.com/satriyop/enteraksi/internal/domain/shared"
)

// Repositories are the transaction-scoped repositories.
type Repositories interface {
	Courses() course.Repository
	Enrollments() enrollment.Repository
	LessonProgress() enrollment.LessonProgressRepository
	Paths() learningpath.Repository
	PathEnrollments() learningpath.EnrollmentRepository
	CourseProgress() learningpath.CourseProgressRepository
}

// UnitOfWork is one open transaction.
type UnitOfWork interface {
	Repositories

	// Record queues events for publication after commit.
	Record(events ...shared.Event)

	// Events returns the queued events in record order.
	Events() []shared.Event

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory opens units of work.
type Factory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// Recorder is an embeddable event queue for UnitOfWork implementations.
type Recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

// Record implements UnitOfWork.
func (r *Recorder) Record(events ...shared.Event) {
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
}

// Events implements UnitOfWork.
func (r *Recorder) Events() []shared.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.Event, len(r.events))
	copy(out, r.events)
	return out
}

// ErrPublish marks a failure to hand committed events to the bus. The
// database changes are already durable when this is returned.
var ErrPublish = errors.New("publish committed events")

// PublishError carries the committed events the bus did not accept. It
// matches ErrPublish with errors.Is.
type PublishError struct {
	Events []shared.Event
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%v: %v", ErrPublish, e.Err)
}

func (e *PublishError) Unwrap() []error { return []error{ErrPublish, e.Err} }

// Committed reports whether err means the unit of work committed and only
// publication failed. Retrying such a unit would find nothing left to do.
func Committed(err error) bool { return errors.Is(err, ErrPublish) }

// Run executes fn in a new unit of work. On success it commits and then
// publishes the recorded events; on error or panic it rolls back and
// publishes nothing. publisher may be nil.
func Run(ctx context.Context, f Factory, publisher shared.EventPublisher, fn func(ctx context.Context, u UnitOfWork) error) (err error) {
	u, err := f.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = u.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, u); err != nil {
		if rbErr := u.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := u.Commit(ctx); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}

	events := u.Events()
	if publisher == nil || len(events) == 0 {
		return nil
	}
	if err := publisher.Publish(ctx, events...); err != nil {
		return &PublishError{Events: events, Err: err}
	}
	return nil
}
