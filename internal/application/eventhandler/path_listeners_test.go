package eventhandler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriyop/enteraksi/internal/application/command"
	"github.com/satriyop/enteraksi/internal/application/service"
	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/learningpath"
	"github.com/satriyop/enteraksi/internal/domain/prerequisite"
	"github.com/satriyop/enteraksi/internal/domain/progress"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
	"github.com/satriyop/enteraksi/internal/domain/uow"
	"github.com/satriyop/enteraksi/internal/infrastructure/persistence/memory"
	"github.com/satriyop/enteraksi/internal/testutil"
	"github.com/satriyop/enteraksi/pkg/logger"
	"github.com/satriyop/enteraksi/pkg/timeutil"
)

var (
	userID  = testutil.ID("user-1")
	courseA = testutil.ID("course-a")
	courseB = testutil.ID("course-b")
	courseC = testutil.ID("course-c")
	pathID  = testutil.ID("path-1")
)

type harness struct {
	store     *memory.Store
	clock     *timeutil.FixedClock
	bus       *testutil.SyncBus
	listeners *PathListeners
	enroll    *command.EnrollInCourseHandler
	drop      *command.DropEnrollmentHandler
	lessons   *command.LessonProgressHandler
	paths     *command.PathEnrollmentHandler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	for _, id := range []string{courseA, courseB, courseC} {
		testutil.SeedCourse(store, id, 1)
	}
	testutil.SeedPath(store, pathID, prerequisite.SequentialName, courseA, courseB, courseC)

	clock := timeutil.NewFixedClock(testutil.Epoch)
	ids := &testutil.SeqIDs{}
	log := logger.Nop()
	bus := &testutil.SyncBus{}

	tracking := service.NewProgressTracking(progress.LessonBased{}, enrollment.DefaultThresholds(), clock, ids, log)
	pathSvc := service.NewPathProgress(
		prerequisite.DefaultRegistry(prerequisite.SequentialName, prerequisite.ModeInternal, store), clock, ids, log)

	listeners := NewPathListeners(store, bus, pathSvc, log)
	require.NoError(t, listeners.Register(bus))

	return &harness{
		store:     store,
		clock:     clock,
		bus:       bus,
		listeners: listeners,
		enroll:    command.NewEnrollInCourseHandler(store, bus, clock, ids, log),
		drop:      command.NewDropEnrollmentHandler(store, bus, clock, log),
		lessons:   command.NewLessonProgressHandler(store, bus, tracking),
		paths:     command.NewPathEnrollmentHandler(store, bus, pathSvc, clock, ids, log),
	}
}

func (h *harness) enrollInPath(t *testing.T) *learningpath.Enrollment {
	t.Helper()
	res, err := h.paths.HandleEnroll(context.Background(), command.EnrollInPathCommand{UserID: userID, PathID: pathID})
	require.NoError(t, err)
	return res.Enrollment
}

func (h *harness) enrollAndFinish(t *testing.T, courseID string) *enrollment.Enrollment {
	t.Helper()
	ctx := context.Background()
	res, err := h.enroll.Handle(ctx, command.EnrollInCourseCommand{UserID: userID, CourseID: courseID})
	require.NoError(t, err)
	_, err = h.lessons.HandleComplete(ctx, command.CompleteLessonCommand{
		EnrollmentID: res.Enrollment.ID,
		LessonID:     testutil.LessonID(courseID, 1),
		ActorID:      userID,
	})
	require.NoError(t, err)
	return res.Enrollment
}

func (h *harness) rowStates(t *testing.T, pe *learningpath.Enrollment) []state.CourseProgressState {
	t.Helper()
	rows, err := h.store.Repositories().CourseProgress().ListByPathEnrollment(context.Background(), pe.ID)
	require.NoError(t, err)
	out := make([]state.CourseProgressState, len(rows))
	for i, r := range rows {
		out[i] = r.State
	}
	return out
}

func (h *harness) pathEnrollment(t *testing.T, id string) *learningpath.Enrollment {
	t.Helper()
	pe, err := h.store.Repositories().PathEnrollments().FindByID(context.Background(), id)
	require.NoError(t, err)
	return pe
}

func TestCompletionCascade(t *testing.T) {
	h := newHarness(t)
	pe := h.enrollInPath(t)

	h.enrollAndFinish(t, courseA)
	assert.Equal(t, []state.CourseProgressState{
		state.ProgressCompleted, state.ProgressAvailable, state.ProgressLocked,
	}, h.rowStates(t, pe))

	// Enrolling starts the newly available course.
	res, err := h.enroll.Handle(context.Background(), command.EnrollInCourseCommand{UserID: userID, CourseID: courseB})
	require.NoError(t, err)
	assert.Equal(t, []state.CourseProgressState{
		state.ProgressCompleted, state.ProgressInProgress, state.ProgressLocked,
	}, h.rowStates(t, pe))

	_, err = h.lessons.HandleComplete(context.Background(), command.CompleteLessonCommand{
		EnrollmentID: res.Enrollment.ID, LessonID: testutil.LessonID(courseB, 1),
	})
	require.NoError(t, err)
	h.enrollAndFinish(t, courseC)

	stored := h.pathEnrollment(t, pe.ID)
	assert.Equal(t, state.PathCompleted, stored.State)
	assert.Equal(t, 100, stored.ProgressPercentage)
	assert.Len(t, h.bus.Named(shared.EventPathCompleted), 1)
}

func TestOnEnrollmentCompleted_Replay(t *testing.T) {
	h := newHarness(t)
	pe := h.enrollInPath(t)
	h.enrollAndFinish(t, courseA)

	completed := h.bus.Named(shared.EventEnrollmentCompleted)
	require.Len(t, completed, 1)
	before := len(h.bus.Events())
	snapshot := h.pathEnrollment(t, pe.ID)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.listeners.OnEnrollmentCompleted(context.Background(), completed[0]))
	}

	assert.Len(t, h.bus.Events(), before, "replays publish nothing")
	assert.Equal(t, snapshot, h.pathEnrollment(t, pe.ID))
	assert.Equal(t, []state.CourseProgressState{
		state.ProgressCompleted, state.ProgressAvailable, state.ProgressLocked,
	}, h.rowStates(t, pe))
}

func TestOnUserDropped_RevertsCompletion(t *testing.T) {
	h := newHarness(t)
	pe := h.enrollInPath(t)
	h.enrollAndFinish(t, courseA)
	enrB := h.enrollAndFinish(t, courseB)
	h.enrollAndFinish(t, courseC)
	require.True(t, h.pathEnrollment(t, pe.ID).IsCompleted())

	// A completed course enrollment cannot be dropped through the state
	// machine, so deliver the drop notification directly.
	dropped := shared.NewUserDroppedEvent(shared.Origin{ActorID: userID, At: h.clock.Now()},
		enrB.ID, userID, courseB, "refund")
	for i := 0; i < 2; i++ {
		require.NoError(t, h.listeners.OnUserDropped(context.Background(), dropped))
	}

	assert.Equal(t, []state.CourseProgressState{
		state.ProgressCompleted, state.ProgressAvailable, state.ProgressCompleted,
	}, h.rowStates(t, pe))
	stored := h.pathEnrollment(t, pe.ID)
	assert.Equal(t, state.PathActive, stored.State)
	assert.Nil(t, stored.CompletedAt)
	assert.Equal(t, 67, stored.ProgressPercentage)
}

func TestOnUserDropped_InProgressCourseUntouched(t *testing.T) {
	h := newHarness(t)
	pe := h.enrollInPath(t)
	res, err := h.enroll.Handle(context.Background(), command.EnrollInCourseCommand{UserID: userID, CourseID: courseA})
	require.NoError(t, err)

	_, err = h.drop.Handle(context.Background(), command.DropEnrollmentCommand{EnrollmentID: res.Enrollment.ID, ActorID: userID})
	require.NoError(t, err)

	assert.Equal(t, []state.CourseProgressState{
		state.ProgressInProgress, state.ProgressLocked, state.ProgressLocked,
	}, h.rowStates(t, pe))
	assert.Equal(t, state.PathActive, h.pathEnrollment(t, pe.ID).State)
}

// failingPathUnits opens units of work whose path enrollment updates fail,
// after the course progress rows of the same unit were already written.
type failingPathUnits struct {
	inner uow.Factory
	err   error
}

func (f failingPathUnits) Begin(ctx context.Context) (uow.UnitOfWork, error) {
	u, err := f.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return failingPathUnit{UnitOfWork: u, err: f.err}, nil
}

type failingPathUnit struct {
	uow.UnitOfWork
	err error
}

func (u failingPathUnit) PathEnrollments() learningpath.EnrollmentRepository {
	return failingPathEnrollments{EnrollmentRepository: u.UnitOfWork.PathEnrollments(), err: u.err}
}

type failingPathEnrollments struct {
	learningpath.EnrollmentRepository
	err error
}

func (r failingPathEnrollments) Update(context.Context, *learningpath.Enrollment) error { return r.err }

func TestCascadeFailureRollsBackEveryRow(t *testing.T) {
	errSave := errors.New("path enrollment save failed")

	tests := []struct {
		name    string
		prepare func(t *testing.T, h *harness) shared.Event
		handle  func(l *PathListeners) shared.EventHandler
	}{
		{
			name: "drop revert",
			prepare: func(t *testing.T, h *harness) shared.Event {
				h.enrollAndFinish(t, courseA)
				enrB := h.enrollAndFinish(t, courseB)
				h.enrollAndFinish(t, courseC)
				return shared.NewUserDroppedEvent(shared.Origin{ActorID: userID, At: h.clock.Now()},
					enrB.ID, userID, courseB, "refund")
			},
			handle: func(l *PathListeners) shared.EventHandler { return l.OnUserDropped },
		},
		{
			name: "completion",
			prepare: func(t *testing.T, h *harness) shared.Event {
				h.enrollAndFinish(t, courseA)
				return shared.NewEnrollmentCompletedEvent(shared.Origin{ActorID: userID, At: h.clock.Now()},
					testutil.ID("enr-b"), userID, courseB)
			},
			handle: func(l *PathListeners) shared.EventHandler { return l.OnEnrollmentCompleted },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			pe := h.enrollInPath(t)
			event := tt.prepare(t, h)

			statesBefore := h.rowStates(t, pe)
			pathBefore := h.pathEnrollment(t, pe.ID)
			published := len(h.bus.Events())

			pathSvc := service.NewPathProgress(
				prerequisite.DefaultRegistry(prerequisite.SequentialName, prerequisite.ModeInternal, h.store),
				h.clock, &testutil.SeqIDs{}, logger.Nop())
			failing := NewPathListeners(failingPathUnits{inner: h.store, err: errSave}, h.bus, pathSvc, logger.Nop())

			err := tt.handle(failing)(context.Background(), event)
			require.ErrorIs(t, err, errSave)

			assert.Equal(t, statesBefore, h.rowStates(t, pe))
			pathAfter := h.pathEnrollment(t, pe.ID)
			assert.Equal(t, pathBefore.State, pathAfter.State)
			assert.Equal(t, pathBefore.ProgressPercentage, pathAfter.ProgressPercentage)
			assert.Len(t, h.bus.Events(), published, "a rolled back cascade publishes nothing")
		})
	}
}

type closedPublisher struct{ err error }

func (p closedPublisher) Publish(context.Context, ...shared.Event) error { return p.err }

func TestPublishFailureAfterCommitIsNotRetried(t *testing.T) {
	h := newHarness(t)
	pe := h.enrollInPath(t)
	h.enrollAndFinish(t, courseA)

	pathSvc := service.NewPathProgress(
		prerequisite.DefaultRegistry(prerequisite.SequentialName, prerequisite.ModeInternal, h.store),
		h.clock, &testutil.SeqIDs{}, logger.Nop())
	listeners := NewPathListeners(h.store, closedPublisher{err: errors.New("bus closed")}, pathSvc, logger.Nop())

	completedB := shared.NewEnrollmentCompletedEvent(shared.Origin{ActorID: userID, At: h.clock.Now()},
		testutil.ID("enr-b"), userID, courseB)
	require.NoError(t, listeners.OnEnrollmentCompleted(context.Background(), completedB))

	assert.Equal(t, []state.CourseProgressState{
		state.ProgressCompleted, state.ProgressCompleted, state.ProgressAvailable,
	}, h.rowStates(t, pe), "the cascade is committed")
	assert.Equal(t, 67, h.pathEnrollment(t, pe.ID).ProgressPercentage)

	err := uow.Run(context.Background(), h.store, closedPublisher{err: errors.New("bus closed")},
		func(_ context.Context, u uow.UnitOfWork) error {
			u.Record(completedB)
			return nil
		})
	assert.True(t, uow.Committed(err))
	var pubErr *uow.PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Len(t, pubErr.Events, 1)
}

func TestDroppedPathIgnoresCompletions(t *testing.T) {
	h := newHarness(t)
	pe := h.enrollInPath(t)
	_, err := h.paths.HandleDrop(context.Background(), command.DropPathEnrollmentCommand{PathEnrollmentID: pe.ID})
	require.NoError(t, err)

	h.enrollAndFinish(t, courseA)

	assert.Equal(t, []state.CourseProgressState{
		state.ProgressAvailable, state.ProgressLocked, state.ProgressLocked,
	}, h.rowStates(t, pe))
}

func TestDecodeRejectsIncompleteEvents(t *testing.T) {
	h := newHarness(t)
	ev := shared.NewEvent(shared.EventEnrollmentCompleted, shared.AggregateEnrollment, "", shared.Origin{}, nil)
	assert.NoError(t, h.listeners.OnEnrollmentCompleted(context.Background(), ev))

	wrong := shared.NewUserDroppedEvent(shared.Origin{}, testutil.ID("e"), userID, courseA, "")
	assert.NoError(t, h.listeners.OnEnrollmentCompleted(context.Background(), wrong))
}

type fakeInvalidator struct {
	ids []string
	err error
}

func (f *fakeInvalidator) Invalidate(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return f.err
}

func TestPathCacheInvalidator(t *testing.T) {
	cache := &fakeInvalidator{}
	h := NewPathCacheInvalidator(cache, logger.Nop())
	origin := shared.Origin{At: testutil.Epoch}

	require.NoError(t, h.Handle(context.Background(), shared.NewPathCompletedEvent(origin, "pe-1", userID, pathID)))
	require.NoError(t, h.Handle(context.Background(), shared.NewEnrollmentCompletedEvent(origin, "e-1", userID, courseA)))
	require.NoError(t, h.Handle(context.Background(), shared.NewPathCourseChangedEvent(origin, "pe-3", userID, pathID, courseA, "available", "in_progress")))
	assert.Equal(t, []string{"pe-1", "pe-3"}, cache.ids)

	cache.err = errors.New("redis down")
	err := h.Handle(context.Background(), shared.NewPathDroppedEvent(origin, "pe-2", userID, pathID, ""))
	assert.True(t, shared.IsRetryable(err))
}
