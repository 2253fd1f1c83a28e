package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriyop/enteraksi/internal/application/service"
	"github.com/satriyop/enteraksi/internal/domain/course"
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
	pathID  = testutil.ID("path-1")
)

type mapCache struct {
	views   map[string]*PathProgressView
	gets    int
	failGet bool
}

func (c *mapCache) Get(_ context.Context, id string) (*PathProgressView, bool, error) {
	c.gets++
	if c.failGet {
		return nil, false, errors.New("unreachable")
	}
	v, ok := c.views[id]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, v *PathProgressView) error {
	c.views[v.PathEnrollmentID] = v
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, id string) error {
	delete(c.views, id)
	return nil
}

type world struct {
	store    *memory.Store
	clock    *timeutil.FixedClock
	ids      *testutil.SeqIDs
	tracking *service.ProgressTracking
	paths    *service.PathProgress
	evals    *prerequisite.Registry
}

func newWorld(t *testing.T) *world {
	t.Helper()
	store := memory.NewStore()
	testutil.SeedCourse(store, courseA, 4)
	testutil.SeedCourse(store, courseB, 1)
	testutil.SeedPath(store, pathID, prerequisite.SequentialName, courseA, courseB)
	store.PutAssessment(course.Assessment{ID: testutil.ID("quiz"), CourseID: courseA, IsRequired: true, IsPublished: true})

	clock := timeutil.NewFixedClock(testutil.Epoch)
	ids := &testutil.SeqIDs{}
	evals := prerequisite.DefaultRegistry(prerequisite.SequentialName, prerequisite.ModeInternal, store)
	return &world{
		store:    store,
		clock:    clock,
		ids:      ids,
		tracking: service.NewProgressTracking(progress.AssessmentInclusive{}, enrollment.DefaultThresholds(), clock, ids, logger.Nop()),
		paths:    service.NewPathProgress(evals, clock, ids, logger.Nop()),
		evals:    evals,
	}
}

func (w *world) run(t *testing.T, fn func(ctx context.Context, u uow.UnitOfWork) error) {
	t.Helper()
	require.NoError(t, uow.Run(context.Background(), w.store, nil, fn))
}

func TestGetCourseProgress(t *testing.T) {
	w := newWorld(t)
	enr := enrollment.New(w.ids.NewID(), userID, courseA, "", w.clock.Now())
	w.run(t, func(ctx context.Context, u uow.UnitOfWork) error {
		if err := u.Enrollments().Create(ctx, enr); err != nil {
			return err
		}
		for i := 1; i <= 2; i++ {
			if _, err := w.tracking.CompleteLesson(ctx, u, enr.ID, testutil.LessonID(courseA, i), userID); err != nil {
				return err
			}
		}
		return nil
	})

	h := NewGetCourseProgressHandler(w.store.Repositories(), w.tracking)
	view, err := h.Handle(context.Background(), GetCourseProgressQuery{EnrollmentID: enr.ID})
	require.NoError(t, err)

	assert.Equal(t, 2, view.LessonsCompleted)
	assert.Equal(t, 4, view.LessonsTotal)
	assert.InDelta(t, 35.0, view.Calculated, 1e-9)
	assert.Equal(t, 35, view.Percentage)
	assert.Equal(t, progress.AssessmentInclusiveName, view.Calculator)
	assert.Equal(t, 1, view.Assessments.RequiredTotal)
	assert.False(t, view.IsComplete)
	assert.Equal(t, state.EnrollmentActive, view.Status)

	_, err = h.Handle(context.Background(), GetCourseProgressQuery{EnrollmentID: "nope"})
	assert.True(t, shared.IsValidation(err))
	_, err = h.Handle(context.Background(), GetCourseProgressQuery{EnrollmentID: testutil.ID("missing")})
	assert.True(t, shared.IsNotFound(err))
}

func TestGetPathProgress(t *testing.T) {
	w := newWorld(t)
	pe := learningpath.NewEnrollment(w.ids.NewID(), userID, pathID, w.clock.Now())
	w.run(t, func(ctx context.Context, u uow.UnitOfWork) error {
		if err := u.PathEnrollments().Create(ctx, pe); err != nil {
			return err
		}
		_, err := w.paths.InitializeCourseProgress(ctx, u, pe, userID)
		return err
	})

	cache := &mapCache{views: map[string]*PathProgressView{}}
	h := NewGetPathProgressHandler(w.store.Repositories(), w.evals, cache, w.clock, logger.Nop())

	view, err := h.Handle(context.Background(), GetPathProgressQuery{PathEnrollmentID: pe.ID})
	require.NoError(t, err)
	assert.Equal(t, prerequisite.SequentialName, view.Evaluator)
	require.Len(t, view.Courses, 2)

	first, second := view.Courses[0], view.Courses[1]
	assert.Equal(t, courseA, first.CourseID)
	assert.True(t, first.CanStart)
	assert.True(t, first.Prerequisites.IsMet)
	assert.Equal(t, prerequisite.ReasonFirstCourse, first.Prerequisites.Reason)

	assert.Equal(t, state.ProgressLocked, second.State)
	assert.False(t, second.Prerequisites.IsMet)
	require.Len(t, second.Prerequisites.MissingPrerequisites, 1)
	assert.Equal(t, courseA, second.Prerequisites.MissingPrerequisites[0].ID)
	assert.Equal(t, "Course "+courseA, second.Prerequisites.MissingPrerequisites[0].Title)

	// Served from cache until invalidated.
	w.run(t, func(ctx context.Context, u uow.UnitOfWork) error {
		_, err := w.paths.OnCourseCompleted(ctx, u, pe, "", courseA, userID)
		return err
	})
	cached, err := h.Handle(context.Background(), GetPathProgressQuery{PathEnrollmentID: pe.ID})
	require.NoError(t, err)
	assert.Same(t, view, cached)

	require.NoError(t, cache.Invalidate(context.Background(), pe.ID))
	fresh, err := h.Handle(context.Background(), GetPathProgressQuery{PathEnrollmentID: pe.ID})
	require.NoError(t, err)
	assert.Equal(t, 50, fresh.Percentage)
	assert.Equal(t, state.ProgressAvailable, fresh.Courses[1].State)
	assert.True(t, fresh.Courses[1].Prerequisites.IsMet)
}

func TestGetPathProgress_CacheFailureFallsBack(t *testing.T) {
	w := newWorld(t)
	pe := learningpath.NewEnrollment(w.ids.NewID(), userID, pathID, w.clock.Now())
	w.run(t, func(ctx context.Context, u uow.UnitOfWork) error {
		if err := u.PathEnrollments().Create(ctx, pe); err != nil {
			return err
		}
		_, err := w.paths.InitializeCourseProgress(ctx, u, pe, userID)
		return err
	})

	cache := &mapCache{views: map[string]*PathProgressView{}, failGet: true}
	h := NewGetPathProgressHandler(w.store.Repositories(), w.evals, cache, w.clock, logger.Nop())

	view, err := h.Handle(context.Background(), GetPathProgressQuery{PathEnrollmentID: pe.ID})
	require.NoError(t, err)
	assert.Len(t, view.Courses, 2)
	assert.Equal(t, 1, cache.gets)

	_, err = h.Handle(context.Background(), GetPathProgressQuery{PathEnrollmentID: pe.ID, SkipCache: true})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.gets)
}
