package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/learningpath"
	"github.com/satriyop/enteraksi/internal/domain/prerequisite"
	"github.com/satriyop/enteraksi/internal/domain/progress"
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

type env struct {
	store    *memory.Store
	clock    *timeutil.FixedClock
	ids      *testutil.SeqIDs
	events   *testutil.Capture
	tracking *ProgressTracking
	paths    *PathProgress
}

func newEnv(t *testing.T, calculator progress.Calculator) *env {
	t.Helper()
	store := memory.NewStore()
	for _, id := range []string{courseA, courseB, courseC} {
		testutil.SeedCourse(store, id, 2)
	}
	testutil.SeedPath(store, pathID, prerequisite.SequentialName, courseA, courseB, courseC)

	clock := timeutil.NewFixedClock(testutil.Epoch)
	ids := &testutil.SeqIDs{}
	log := logger.Nop()
	evaluators := prerequisite.DefaultRegistry(prerequisite.SequentialName, prerequisite.ModeInternal, store)

	return &env{
		store:    store,
		clock:    clock,
		ids:      ids,
		events:   &testutil.Capture{},
		tracking: NewProgressTracking(calculator, enrollment.DefaultThresholds(), clock, ids, log),
		paths:    NewPathProgress(evaluators, clock, ids, log),
	}
}

func (e *env) run(t *testing.T, fn func(ctx context.Context, u uow.UnitOfWork) error) {
	t.Helper()
	require.NoError(t, uow.Run(context.Background(), e.store, e.events, fn))
}

func (e *env) enroll(t *testing.T, courseID string) *enrollment.Enrollment {
	t.Helper()
	enr := enrollment.New(e.ids.NewID(), userID, courseID, "", e.clock.Now())
	e.run(t, func(ctx context.Context, u uow.UnitOfWork) error {
		return u.Enrollments().Create(ctx, enr)
	})
	return enr
}

func (e *env) enrollInPath(t *testing.T) *learningpath.Enrollment {
	t.Helper()
	pe := learningpath.NewEnrollment(e.ids.NewID(), userID, pathID, e.clock.Now())
	e.run(t, func(ctx context.Context, u uow.UnitOfWork) error {
		if err := u.PathEnrollments().Create(ctx, pe); err != nil {
			return err
		}
		_, err := e.paths.InitializeCourseProgress(ctx, u, pe, userID)
		return err
	})
	return pe
}

func (e *env) pathEnrollment(t *testing.T, id string) *learningpath.Enrollment {
	t.Helper()
	pe, err := e.store.Repositories().PathEnrollments().FindByID(context.Background(), id)
	require.NoError(t, err)
	return pe
}

func (e *env) rows(t *testing.T, pe *learningpath.Enrollment) map[string]*learningpath.CourseProgress {
	t.Helper()
	rows, err := e.store.Repositories().CourseProgress().ListByPathEnrollment(context.Background(), pe.ID)
	require.NoError(t, err)
	out := make(map[string]*learningpath.CourseProgress, len(rows))
	for _, r := range rows {
		out[r.CourseID] = r
	}
	return out
}

func intp(v int) *int { return &v }
