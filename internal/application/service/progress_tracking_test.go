package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriyop/enteraksi/internal/domain/course"
	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/progress"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
	"github.com/satriyop/enteraksi/internal/domain/uow"
	"github.com/satriyop/enteraksi/internal/testutil"
)

func TestUpdateProgress_PagedLessonsCompleteCourse(t *testing.T) {
	e := newEnv(t, progress.LessonBased{})
	enr := e.enroll(t, courseA)

	read := func(lesson int, page int) *LessonResult {
		var res *LessonResult
		e.run(t, func(ctx context.Context, u uow.UnitOfWork) error {
			var err error
			res, err = e.tracking.UpdateProgress(ctx, u, enrollment.Update{
				EnrollmentID: enr.ID,
				LessonID:     testutil.LessonID(courseA, lesson),
				CurrentPage:  intp(page),
				TotalPages:   intp(4),
			}, userID)
			return err
		})
		return res
	}

	res := read(1, 2)
	assert.False(t, res.LessonCompleted)
	assert.Equal(t, 0, res.Enrollment.ProgressPercentage)
	assert.NotNil(t, res.Enrollment.StartedAt)
	assert.InDelta(t, 50.0, res.Lesson.ProgressPercentage, 0.001)

	res = read(1, 4)
	assert.True(t, res.LessonCompleted)
	assert.Equal(t, 50, res.Enrollment.ProgressPercentage)
	assert.Len(t, e.events.Named(shared.EventLessonCompleted), 1)

	res = read(2, 4)
	assert.True(t, res.CourseCompleted)
	assert.Equal(t, 100, res.Enrollment.ProgressPercentage)
	assert.Equal(t, state.EnrollmentCompleted, res.Enrollment.Status)
	require.Len(t, e.events.Named(shared.EventEnrollmentCompleted), 1)

	stored, err := e.store.Repositories().Enrollments().FindByID(context.Background(), enr.ID)
	require.NoError(t, err)
	assert.Equal(t, state.EnrollmentCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestUpdateProgress_MediaThreshold(t *testing.T) {
	e := newEnv(t, progress.LessonBased{})
	enr := e.enroll(t, courseA)

	watch := func(pos int) *LessonResult {
		var res *LessonResult
		e.run(t, func(ctx context.Context, u uow.UnitOfWork) error {
			var err error
			res, err = e.tracking.UpdateProgress(ctx, u, enrollment.Update{
				EnrollmentID:    enr.ID,
				LessonID:        testutil.LessonID(courseA, 1),
				PositionSeconds: intp(pos),
				DurationSeconds: intp(100),
			}, userID)
			return err
		})
		return res
	}

	assert.False(t, watch(89).LessonCompleted)
	assert.True(t, watch(90).LessonCompleted)
	assert.False(t, watch(95).LessonCompleted, "completion is reported once")
}

func TestUpdateProgress_Rejections(t *testing.T) {
	e := newEnv(t, progress.LessonBased{})
	enr := e.enroll(t, courseA)

	t.Run("lesson of another course", func(t *testing.T) {
		err := uow.Run(context.Background(), e.store, nil, func(ctx context.Context, u uow.UnitOfWork) error {
			_, err := e.tracking.CompleteLesson(ctx, u, enr.ID, testutil.LessonID(courseB, 1), userID)
			return err
		})
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("malformed update", func(t *testing.T) {
		err := uow.Run(context.Background(), e.store, nil, func(ctx context.Context, u uow.UnitOfWork) error {
			_, err := e.tracking.UpdateProgress(ctx, u, enrollment.Update{
				EnrollmentID: enr.ID,
				LessonID:     testutil.LessonID(courseA, 1),
				CurrentPage:  intp(1),
			}, userID)
			return err
		})
		assert.True(t, shared.IsValidation(err))
	})

	t.Run("dropped enrollment", func(t *testing.T) {
		e.run(t, func(ctx context.Context, u uow.UnitOfWork) error {
			stored, err := u.Enrollments().FindByID(ctx, enr.ID)
			if err != nil {
				return err
			}
			if err := stored.Drop("", e.clock.Now()); err != nil {
				return err
			}
			return u.Enrollments().Update(ctx, stored)
		})

		err := uow.Run(context.Background(), e.store, nil, func(ctx context.Context, u uow.UnitOfWork) error {
			_, err := e.tracking.CompleteLesson(ctx, u, enr.ID, testutil.LessonID(courseA, 1), userID)
			return err
		})
		assert.True(t, shared.HasPreconditionCode(err, shared.CodeEnrollmentNotActive))
	})
}

func TestRecalculateCourseProgress_AssessmentsGateCompletion(t *testing.T) {
	e := newEnv(t, progress.AssessmentInclusive{})
	quiz := testutil.ID("quiz-a")
	e.store.PutAssessment(course.Assessment{ID: quiz, CourseID: courseA, Title: "Quiz", IsRequired: true, IsPublished: true})
	enr := e.enroll(t, courseA)

	for i := 1; i <= 2; i++ {
		e.run(t, func(ctx context.Context, u uow.UnitOfWork) error {
			_, err := e.tracking.CompleteLesson(ctx, u, enr.ID, testutil.LessonID(courseA, i), userID)
			return err
		})
	}

	stored, err := e.store.Repositories().Enrollments().FindByID(context.Background(), enr.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, stored.ProgressPercentage)
	assert.True(t, stored.IsActive())

	stats, err := e.tracking.GetAssessmentStats(context.Background(), e.store.Repositories(), stored)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RequiredTotal)
	assert.Equal(t, 0, stats.RequiredPassed)

	e.store.PutOutcome(userID, course.Outcome{AssessmentID: quiz, Passed: true})
	var completed bool
	e.run(t, func(ctx context.Context, u uow.UnitOfWork) error {
		cur, err := u.Enrollments().FindByID(ctx, enr.ID)
		if err != nil {
			return err
		}
		completed, err = e.tracking.RecalculateCourseProgress(ctx, u, cur, "")
		return err
	})
	assert.True(t, completed)

	stored, err = e.store.Repositories().Enrollments().FindByID(context.Background(), enr.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, stored.ProgressPercentage)
	assert.True(t, stored.IsCompleted())

	done, err := e.tracking.IsEnrollmentComplete(context.Background(), e.store.Repositories(), stored)
	require.NoError(t, err)
	assert.True(t, done)

	// A further recalculation does not complete again.
	e.run(t, func(ctx context.Context, u uow.UnitOfWork) error {
		completed, err = e.tracking.RecalculateCourseProgress(ctx, u, stored, "")
		return err
	})
	assert.False(t, completed)
	assert.Len(t, e.events.Named(shared.EventEnrollmentCompleted), 1)
}
