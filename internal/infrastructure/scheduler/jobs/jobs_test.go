package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriyop/enteraksi/internal/application/service"
	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/learningpath"
	"github.com/satriyop/enteraksi/internal/domain/prerequisite"
	"github.com/satriyop/enteraksi/internal/domain/progress"
	"github.com/satriyop/enteraksi/internal/domain/shared"
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
	pathID  = testutil.ID("path-1")
)

type fixture struct {
	store  *memory.Store
	clock  *timeutil.FixedClock
	ids    *testutil.SeqIDs
	events *testutil.Capture
	paths  *service.PathProgress
	job    *ReconcileProgressJob
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	testutil.SeedCourse(store, courseA, 2)
	testutil.SeedCourse(store, courseB, 2)
	testutil.SeedPath(store, pathID, prerequisite.SequentialName, courseA, courseB)

	clock := timeutil.NewFixedClock(testutil.Epoch)
	ids := &testutil.SeqIDs{}
	log := logger.Nop()
	events := &testutil.Capture{}

	tracking := service.NewProgressTracking(progress.LessonBased{}, enrollment.DefaultThresholds(), clock, ids, log)
	paths := service.NewPathProgress(
		prerequisite.DefaultRegistry(prerequisite.SequentialName, prerequisite.ModeInternal, store), clock, ids, log)

	job := NewReconcileProgressJob(store, events, tracking, paths, clock, log, ReconcileConfig{BatchSize: 1})
	return &fixture{store: store, clock: clock, ids: ids, events: events, paths: paths, job: job}
}

func (f *fixture) run(t *testing.T, fn func(ctx context.Context, u uow.UnitOfWork) error) {
	t.Helper()
	require.NoError(t, uow.Run(context.Background(), f.store, nil, fn))
}

// enrollWithCompletedLessons writes lesson rows directly, leaving the cached
// percentage stale.
func (f *fixture) enrollWithCompletedLessons(t *testing.T, courseID string, completed ...int) *enrollment.Enrollment {
	t.Helper()
	enr := enrollment.New(f.ids.NewID(), userID, courseID, "", f.clock.Now())
	f.run(t, func(ctx context.Context, u uow.UnitOfWork) error {
		if err := u.Enrollments().Create(ctx, enr); err != nil {
			return err
		}
		for _, i := range completed {
			row, err := u.LessonProgress().GetOrCreateForUpdate(ctx,
				enrollment.NewLessonProgress(f.ids.NewID(), enr.ID, testutil.LessonID(courseID, i), f.clock.Now()))
			if err != nil {
				return err
			}
			row.MarkCompleted(f.clock.Now())
			if err := u.LessonProgress().Update(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
	return enr
}

func (f *fixture) enrollment(t *testing.T, id string) *enrollment.Enrollment {
	t.Helper()
	enr, err := f.store.Repositories().Enrollments().FindByID(context.Background(), id)
	require.NoError(t, err)
	return enr
}

func TestReconcileProgressJob_FixesStalePercentages(t *testing.T) {
	f := newFixture(t)
	done := f.enrollWithCompletedLessons(t, courseA, 1, 2)
	half := f.enrollWithCompletedLessons(t, courseB, 1)

	require.NoError(t, f.job.Run(context.Background()))

	got := f.enrollment(t, done.ID)
	assert.True(t, got.IsCompleted())
	assert.Equal(t, 100, got.ProgressPercentage)

	got = f.enrollment(t, half.ID)
	assert.True(t, got.IsActive())
	assert.Equal(t, 50, got.ProgressPercentage)

	completed := f.events.Named(shared.EventEnrollmentCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, done.ID, completed[0].AggregateID)
	assert.Equal(t, ReconcileActorID, completed[0].ActorID)

	stats := f.job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.CoursesChecked)
	assert.Equal(t, 1, stats.CoursesCompleted)
	assert.Zero(t, stats.Failures)
}

func TestReconcileProgressJob_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.enrollWithCompletedLessons(t, courseA, 1, 2)

	require.NoError(t, f.job.Run(context.Background()))
	f.events.Reset()
	require.NoError(t, f.job.Run(context.Background()))

	assert.Empty(t, f.events.Events())
	assert.Zero(t, f.job.LastStats().CoursesChecked, "completed enrollments are no longer active")
}

func TestReconcileProgressJob_VisitsActivePaths(t *testing.T) {
	f := newFixture(t)
	pe := learningpath.NewEnrollment(f.ids.NewID(), userID, pathID, f.clock.Now())
	f.run(t, func(ctx context.Context, u uow.UnitOfWork) error {
		if err := u.PathEnrollments().Create(ctx, pe); err != nil {
			return err
		}
		_, err := f.paths.InitializeCourseProgress(ctx, u, pe, userID)
		return err
	})

	require.NoError(t, f.job.Run(context.Background()))

	stats := f.job.LastStats()
	assert.Equal(t, 1, stats.PathsChecked)
	assert.Zero(t, stats.Failures)

	got, err := f.store.Repositories().PathEnrollments().FindByID(context.Background(), pe.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive())
	assert.Equal(t, 0, got.ProgressPercentage)
}

func TestReconcileProgressJob_AppliesCompletionsPathsMissed(t *testing.T) {
	f := newFixture(t)
	pe := learningpath.NewEnrollment(f.ids.NewID(), userID, pathID, f.clock.Now())
	f.run(t, func(ctx context.Context, u uow.UnitOfWork) error {
		if err := u.PathEnrollments().Create(ctx, pe); err != nil {
			return err
		}
		_, err := f.paths.InitializeCourseProgress(ctx, u, pe, userID)
		return err
	})
	// No listeners are wired, so the enrollment.completed event this run
	// emits never reaches the path.
	enr := f.enrollWithCompletedLessons(t, courseA, 1, 2)

	require.NoError(t, f.job.Run(context.Background()))

	rows, err := f.store.Repositories().CourseProgress().ListByPathEnrollment(context.Background(), pe.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	byCourse := map[string]*learningpath.CourseProgress{}
	for _, r := range rows {
		byCourse[r.CourseID] = r
	}
	assert.True(t, byCourse[courseA].IsCompleted())
	assert.Equal(t, enr.ID, byCourse[courseA].CourseEnrollmentID)
	assert.False(t, byCourse[courseB].IsLocked(), "the next course is unlocked")

	got, err := f.store.Repositories().PathEnrollments().FindByID(context.Background(), pe.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.ProgressPercentage)
	assert.Equal(t, 1, f.job.LastStats().PathCoursesRepaired)
	assert.Len(t, f.events.Named(shared.EventCourseUnlockedInPath), 1)

	f.events.Reset()
	require.NoError(t, f.job.Run(context.Background()))
	assert.Zero(t, f.job.LastStats().PathCoursesRepaired)
	assert.Empty(t, f.events.Events())
}

func TestReconcileProgressJob_StopsOnCancelledContext(t *testing.T) {
	f := newFixture(t)
	f.enrollWithCompletedLessons(t, courseA, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.job.Run(ctx), context.Canceled)
}

type fakeDeadLetters struct {
	size             int
	delivered, fails int
	calls            int
}

func (q *fakeDeadLetters) Size() int { return q.size }

func (q *fakeDeadLetters) Redeliver(context.Context, func() time.Time) (int, int) {
	q.calls++
	return q.delivered, q.fails
}

func TestRedeliverDeadLettersJob(t *testing.T) {
	clock := timeutil.NewFixedClock(testutil.Epoch)

	empty := &fakeDeadLetters{}
	require.NoError(t, NewRedeliverDeadLettersJob(empty, clock, logger.Nop()).Run(context.Background()))
	assert.Zero(t, empty.calls)

	q := &fakeDeadLetters{size: 3, delivered: 2, fails: 1}
	job := NewRedeliverDeadLettersJob(q, clock, logger.Nop())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, q.calls)
	assert.Equal(t, "redeliver_dead_letters", job.Name())
}
