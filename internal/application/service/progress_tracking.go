// Package service holds the two orchestration services of the progress
// engine. Both operate inside a unit of work supplied by the caller and only
// record events; publication happens after the caller commits.
package service

import (
	"context"
	"fmt"

	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/progress"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/uow"
	"github.com/satriyop/enteraksi/pkg/logger"
	"github.com/satriyop/enteraksi/pkg/timeutil"
)

// ProgressTracking records lesson progress and keeps the enrollment's cached
// percentage and completion state in line with it.
type ProgressTracking struct {
	calculator progress.Calculator
	thresholds enrollment.Thresholds
	clock      timeutil.Clock
	ids        shared.IDGenerator
	logger     *logger.Logger
}

// NewProgressTracking creates the service.
func NewProgressTracking(
	calculator progress.Calculator,
	thresholds enrollment.Thresholds,
	clock timeutil.Clock,
	ids shared.IDGenerator,
	log *logger.Logger,
) *ProgressTracking {
	return &ProgressTracking{
		calculator: calculator,
		thresholds: thresholds,
		clock:      clock,
		ids:        ids,
		logger:     log.With(logger.KeyComponent, "progress_tracking", "calculator", calculator.Name()),
	}
}

// Calculator returns the active calculator.
func (s *ProgressTracking) Calculator() progress.Calculator { return s.calculator }

// LessonResult is the outcome of a lesson-level operation.
type LessonResult struct {
	Lesson          *enrollment.LessonProgress
	Enrollment      *enrollment.Enrollment
	LessonCompleted bool
	CourseCompleted bool
}

// UpdateProgress merges a progress report into the lesson row, applies the
// auto-completion thresholds and recomputes the course percentage.
func (s *ProgressTracking) UpdateProgress(ctx context.Context, u uow.UnitOfWork, upd enrollment.Update, actorID string) (*LessonResult, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	return s.touchLesson(ctx, u, upd.EnrollmentID, upd.LessonID, actorID, func(p *enrollment.LessonProgress, o shared.Origin) bool {
		return p.Apply(upd, s.thresholds, o.At)
	})
}

// CompleteLesson force-completes a lesson ("mark as done").
func (s *ProgressTracking) CompleteLesson(ctx context.Context, u uow.UnitOfWork, enrollmentID, lessonID, actorID string) (*LessonResult, error) {
	return s.touchLesson(ctx, u, enrollmentID, lessonID, actorID, func(p *enrollment.LessonProgress, o shared.Origin) bool {
		p.LastAccessedAt = o.At
		return p.MarkCompleted(o.At)
	})
}

func (s *ProgressTracking) touchLesson(
	ctx context.Context,
	u uow.UnitOfWork,
	enrollmentID, lessonID, actorID string,
	mutate func(*enrollment.LessonProgress, shared.Origin) bool,
) (*LessonResult, error) {
	origin := shared.Origin{ActorID: actorID, At: s.clock.Now()}

	enr, err := u.Enrollments().FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	if !enr.Status.CanTrackProgress() {
		return nil, shared.NewPrecondition(shared.CodeEnrollmentNotActive,
			fmt.Sprintf("enrollment is %s", enr.Status),
			"enrollment_id", enr.ID, "user_id", enr.UserID, "course_id", enr.CourseID)
	}

	lesson, err := u.Courses().FindLesson(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("load lesson: %w", err)
	}
	if lesson.CourseID != enr.CourseID {
		return nil, shared.NotFound("course", "lesson", lessonID+" in course "+enr.CourseID)
	}

	row, err := u.LessonProgress().GetOrCreateForUpdate(ctx,
		enrollment.NewLessonProgress(s.ids.NewID(), enr.ID, lesson.ID, origin.At))
	if err != nil {
		return nil, fmt.Errorf("load lesson progress: %w", err)
	}

	crossed := mutate(row, origin)
	if err := u.LessonProgress().Update(ctx, row); err != nil {
		return nil, fmt.Errorf("save lesson progress: %w", err)
	}
	if crossed {
		u.Record(shared.NewLessonCompletedEvent(origin, enr.ID, enr.UserID, enr.CourseID, lesson.ID))
		s.logger.Debug("lesson completed",
			logger.KeyEnrollmentID, enr.ID,
			logger.KeyLessonID, lesson.ID,
		)
	}

	enr.MarkStarted(origin.At)
	completed, err := s.recalculate(ctx, u, enr, origin, true)
	if err != nil {
		return nil, err
	}

	return &LessonResult{
		Lesson:          row,
		Enrollment:      enr,
		LessonCompleted: crossed,
		CourseCompleted: completed,
	}, nil
}

// RecalculateCourseProgress recomputes and caches the percentage, completing
// the enrollment the first time the calculator reports completion. Reports
// whether this call completed it.
func (s *ProgressTracking) RecalculateCourseProgress(ctx context.Context, u uow.UnitOfWork, enr *enrollment.Enrollment, actorID string) (bool, error) {
	return s.recalculate(ctx, u, enr, shared.Origin{ActorID: actorID, At: s.clock.Now()}, false)
}

func (s *ProgressTracking) recalculate(ctx context.Context, u uow.UnitOfWork, enr *enrollment.Enrollment, origin shared.Origin, dirty bool) (bool, error) {
	src := progress.NewSource(u.Courses(), u.LessonProgress())

	pct, err := s.calculator.Calculate(ctx, src, enr)
	if err != nil {
		return false, fmt.Errorf("calculate progress of enrollment %s: %w", enr.ID, err)
	}
	if enr.SetProgress(pct, origin.At) {
		dirty = true
	}

	completedNow := false
	if enr.IsActive() {
		done, err := s.calculator.IsComplete(ctx, src, enr)
		if err != nil {
			return false, fmt.Errorf("check completion of enrollment %s: %w", enr.ID, err)
		}
		if done {
			completedNow, err = enr.Complete(origin.At)
			if err != nil {
				return false, err
			}
		}
	}

	if completedNow {
		dirty = true
		u.Record(shared.NewEnrollmentCompletedEvent(origin, enr.ID, enr.UserID, enr.CourseID))
		s.logger.Info("enrollment completed",
			logger.KeyEnrollmentID, enr.ID,
			logger.KeyUserID, enr.UserID,
			logger.KeyCourseID, enr.CourseID,
		)
	}

	if dirty {
		if err := u.Enrollments().Update(ctx, enr); err != nil {
			return false, fmt.Errorf("save enrollment: %w", err)
		}
	}
	return completedNow, nil
}

// IsEnrollmentComplete asks the calculator without changing anything.
func (s *ProgressTracking) IsEnrollmentComplete(ctx context.Context, r uow.Repositories, enr *enrollment.Enrollment) (bool, error) {
	return s.calculator.IsComplete(ctx, progress.NewSource(r.Courses(), r.LessonProgress()), enr)
}

// GetAssessmentStats explains why full lesson completion may not equal course completion.
func (s *ProgressTracking) GetAssessmentStats(ctx context.Context, r uow.Repositories, enr *enrollment.Enrollment) (progress.AssessmentStats, error) {
	return progress.Stats(ctx, progress.NewSource(r.Courses(), r.LessonProgress()), enr)
}
