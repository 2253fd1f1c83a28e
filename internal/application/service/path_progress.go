package service

import (
	"context"
	"fmt"

	"github.com/satriyop/enteraksi/internal/domain/learningpath"
	"github.com/satriyop/enteraksi/internal/domain/prerequisite"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
	"github.com/satriyop/enteraksi/internal/domain/uow"
	"github.com/satriyop/enteraksi/pkg/logger"
	"github.com/satriyop/enteraksi/pkg/timeutil"
)

// PathProgress maintains per-course progress rows inside path enrollments:
// unlocking, completion cascade and drop revert.
type PathProgress struct {
	evaluators *prerequisite.Registry
	clock      timeutil.Clock
	ids        shared.IDGenerator
	logger     *logger.Logger
}

// NewPathProgress creates the service.
func NewPathProgress(evaluators *prerequisite.Registry, clock timeutil.Clock, ids shared.IDGenerator, log *logger.Logger) *PathProgress {
	return &PathProgress{
		evaluators: evaluators,
		clock:      clock,
		ids:        ids,
		logger:     log.With(logger.KeyComponent, "path_progress"),
	}
}

// pathView is a path enrollment with its path and rows loaded once.
type pathView struct {
	enrollment *learningpath.Enrollment
	path       *learningpath.LearningPath
	rows       []*learningpath.CourseProgress
}

func (v *pathView) row(courseID string) *learningpath.CourseProgress {
	for _, r := range v.rows {
		if r.CourseID == courseID {
			return r
		}
	}
	return nil
}

func (v *pathView) input(courseID string) prerequisite.Input {
	return prerequisite.Input{
		Enrollment: v.enrollment,
		Path:       v.path,
		Progress:   v.rows,
		CourseID:   courseID,
	}
}

// percentage is completed required courses over required courses. A path
// without required courses reports 0.
func (v *pathView) percentage() float64 {
	required := v.path.RequiredCourseIDs()
	if len(required) == 0 {
		return 0
	}
	done := 0
	for _, id := range required {
		if r := v.row(id); r != nil && r.IsCompleted() {
			done++
		}
	}
	return shared.Ratio(float64(done), float64(len(required)))
}

// complete reports whether every required course is completed. A path
// without required courses never completes automatically.
func (v *pathView) complete() bool {
	required := v.path.RequiredCourseIDs()
	if len(required) == 0 {
		return false
	}
	for _, id := range required {
		if r := v.row(id); r == nil || !r.IsCompleted() {
			return false
		}
	}
	return true
}

func (s *PathProgress) load(ctx context.Context, r uow.Repositories, pe *learningpath.Enrollment) (*pathView, error) {
	path, err := r.Paths().FindByID(ctx, pe.LearningPathID)
	if err != nil {
		return nil, fmt.Errorf("load learning path: %w", err)
	}
	rows, err := r.CourseProgress().ListByPathEnrollment(ctx, pe.ID)
	if err != nil {
		return nil, fmt.Errorf("load course progress: %w", err)
	}
	return &pathView{enrollment: pe, path: path, rows: rows}, nil
}

func (s *PathProgress) evaluate(ctx context.Context, v *pathView, courseID string) (prerequisite.Result, error) {
	eval, err := s.evaluators.ForPath(v.path)
	if err != nil {
		return prerequisite.Result{}, err
	}
	return eval.Evaluate(ctx, v.input(courseID))
}

// CalculateProgressPercentage returns the path completion percentage.
func (s *PathProgress) CalculateProgressPercentage(ctx context.Context, r uow.Repositories, pe *learningpath.Enrollment) (float64, error) {
	v, err := s.load(ctx, r, pe)
	if err != nil {
		return 0, err
	}
	return v.percentage(), nil
}

// IsPathCompleted reports whether every required course is completed.
func (s *PathProgress) IsPathCompleted(ctx context.Context, r uow.Repositories, pe *learningpath.Enrollment) (bool, error) {
	v, err := s.load(ctx, r, pe)
	if err != nil {
		return false, err
	}
	return v.complete(), nil
}

// CheckPrerequisites evaluates courseID with the path's evaluator.
func (s *PathProgress) CheckPrerequisites(ctx context.Context, r uow.Repositories, pe *learningpath.Enrollment, courseID string) (prerequisite.Result, error) {
	v, err := s.load(ctx, r, pe)
	if err != nil {
		return prerequisite.Result{}, err
	}
	return s.evaluate(ctx, v, courseID)
}

// IsCourseUnlocked reports whether the evaluator allows courseID.
func (s *PathProgress) IsCourseUnlocked(ctx context.Context, r uow.Repositories, pe *learningpath.Enrollment, courseID string) (bool, error) {
	res, err := s.CheckPrerequisites(ctx, r, pe, courseID)
	if err != nil {
		return false, err
	}
	return res.IsMet, nil
}

// InitializeCourseProgress creates one locked row per path course, unlocks
// the first position and then every other course the evaluator allows.
func (s *PathProgress) InitializeCourseProgress(ctx context.Context, u uow.UnitOfWork, pe *learningpath.Enrollment, actorID string) ([]*learningpath.CourseProgress, error) {
	origin := shared.Origin{ActorID: actorID, At: s.clock.Now()}

	path, err := u.Paths().FindByID(ctx, pe.LearningPathID)
	if err != nil {
		return nil, fmt.Errorf("load learning path: %w", err)
	}

	first := path.FirstPosition()
	ordered := path.Ordered()
	rows := make([]*learningpath.CourseProgress, 0, len(ordered))
	var unlocked []*learningpath.CourseProgress
	for _, c := range ordered {
		row := learningpath.NewCourseProgress(s.ids.NewID(), pe.ID, c.CourseID, c.Position, origin.At)
		if c.Position == first {
			if err := row.Unlock(origin.At); err != nil {
				return nil, err
			}
			unlocked = append(unlocked, row)
		}
		rows = append(rows, row)
	}

	if err := u.CourseProgress().CreateBatch(ctx, rows); err != nil {
		return nil, fmt.Errorf("create course progress: %w", err)
	}
	s.recordUnlocks(u, pe, unlocked, origin)

	v := &pathView{enrollment: pe, path: path, rows: rows}
	if _, err := s.unlockNext(ctx, u, v, origin); err != nil {
		return nil, err
	}

	s.logger.Info("path course progress initialized",
		logger.KeyPathEnrollmentID, pe.ID,
		logger.KeyPathID, pe.LearningPathID,
		"courses", len(rows),
	)
	return rows, nil
}

// UnlockNextCourses moves every locked row whose prerequisites are met to
// available. Rows in any other state are left alone, so repeated calls are
// harmless.
func (s *PathProgress) UnlockNextCourses(ctx context.Context, u uow.UnitOfWork, pe *learningpath.Enrollment, actorID string) ([]*learningpath.CourseProgress, error) {
	v, err := s.load(ctx, u, pe)
	if err != nil {
		return nil, err
	}
	return s.unlockNext(ctx, u, v, shared.Origin{ActorID: actorID, At: s.clock.Now()})
}

func (s *PathProgress) unlockNext(ctx context.Context, u uow.UnitOfWork, v *pathView, origin shared.Origin) ([]*learningpath.CourseProgress, error) {
	var unlocked []*learningpath.CourseProgress
	for _, row := range v.rows {
		if !row.IsLocked() {
			continue
		}
		res, err := s.evaluate(ctx, v, row.CourseID)
		if err != nil {
			return nil, fmt.Errorf("evaluate prerequisites of %s: %w", row.CourseID, err)
		}
		if !res.IsMet {
			continue
		}
		if err := row.Unlock(origin.At); err != nil {
			return nil, err
		}
		if err := u.CourseProgress().Update(ctx, row); err != nil {
			return nil, fmt.Errorf("save course progress: %w", err)
		}
		unlocked = append(unlocked, row)
	}
	s.recordUnlocks(u, v.enrollment, unlocked, origin)
	return unlocked, nil
}

func (s *PathProgress) recordUnlocks(u uow.UnitOfWork, pe *learningpath.Enrollment, rows []*learningpath.CourseProgress, origin shared.Origin) {
	for _, row := range rows {
		u.Record(shared.NewCourseUnlockedInPathEvent(origin, pe.ID, pe.UserID, pe.LearningPathID, row.CourseID, row.Position))
		s.logger.Debug("course unlocked",
			logger.KeyPathEnrollmentID, pe.ID,
			logger.KeyCourseID, row.CourseID,
			"position", row.Position,
		)
	}
}

// CompletionOutcome summarises one completion cascade step.
type CompletionOutcome struct {
	Row           *learningpath.CourseProgress
	Unlocked      []*learningpath.CourseProgress
	Percentage    int
	PathCompleted bool
}

// OnCourseCompleted marks the course's row completed, refreshes the path
// percentage, unlocks what became reachable and completes the path enrollment
// once every required course is done. Replays are no-ops.
func (s *PathProgress) OnCourseCompleted(ctx context.Context, u uow.UnitOfWork, pe *learningpath.Enrollment, courseEnrollmentID, courseID, actorID string) (*CompletionOutcome, error) {
	origin := shared.Origin{ActorID: actorID, At: s.clock.Now()}
	v, err := s.load(ctx, u, pe)
	if err != nil {
		return nil, err
	}

	row := v.row(courseID)
	if row == nil {
		return nil, shared.NotFound("learning_path", "course progress", pe.ID+"/"+courseID)
	}

	dirty := false
	if courseEnrollmentID != "" && row.LinkEnrollment(courseEnrollmentID, origin.At) {
		dirty = true
	}
	if !row.IsCompleted() {
		// A course finished outside the path's order still counts.
		if row.IsLocked() {
			if err := row.Unlock(origin.At); err != nil {
				return nil, err
			}
			s.recordUnlocks(u, pe, []*learningpath.CourseProgress{row}, origin)
		}
		if err := row.Complete(origin.At); err != nil {
			return nil, err
		}
		dirty = true
	}
	if dirty {
		if err := u.CourseProgress().Update(ctx, row); err != nil {
			return nil, fmt.Errorf("save course progress: %w", err)
		}
	}

	if err := s.syncEnrollment(ctx, u, v, origin); err != nil {
		return nil, err
	}

	unlocked, err := s.unlockNext(ctx, u, v, origin)
	if err != nil {
		return nil, err
	}

	return &CompletionOutcome{
		Row:           row,
		Unlocked:      unlocked,
		Percentage:    pe.ProgressPercentage,
		PathCompleted: pe.IsCompleted(),
	}, nil
}

// syncEnrollment caches the percentage and completes the path enrollment when due.
func (s *PathProgress) syncEnrollment(ctx context.Context, u uow.UnitOfWork, v *pathView, origin shared.Origin) error {
	pe := v.enrollment
	previous, changed := pe.SetProgress(v.percentage(), origin.At)
	if changed {
		u.Record(shared.NewPathProgressUpdatedEvent(origin, pe.ID, pe.UserID, pe.LearningPathID, previous, pe.ProgressPercentage))
	}

	completedNow := false
	if pe.IsActive() && v.complete() {
		var err error
		if completedNow, err = pe.Complete(origin.At); err != nil {
			return err
		}
	}
	if completedNow {
		u.Record(shared.NewPathCompletedEvent(origin, pe.ID, pe.UserID, pe.LearningPathID))
		s.logger.Info("learning path completed",
			logger.KeyPathEnrollmentID, pe.ID,
			logger.KeyUserID, pe.UserID,
			logger.KeyPathID, pe.LearningPathID,
		)
	}

	if changed || completedNow {
		if err := u.PathEnrollments().Update(ctx, pe); err != nil {
			return fmt.Errorf("save path enrollment: %w", err)
		}
	}
	return nil
}

// Recalculate refreshes the cached percentage and completion of a path
// enrollment and unlocks anything that became reachable.
func (s *PathProgress) Recalculate(ctx context.Context, u uow.UnitOfWork, pe *learningpath.Enrollment, actorID string) error {
	origin := shared.Origin{ActorID: actorID, At: s.clock.Now()}
	v, err := s.load(ctx, u, pe)
	if err != nil {
		return err
	}
	if err := s.syncEnrollment(ctx, u, v, origin); err != nil {
		return err
	}
	_, err = s.unlockNext(ctx, u, v, origin)
	return err
}

// ApplyCompletedCourses runs the completion cascade for every row of pe whose
// course enrollment is completed but whose row is not. It repairs paths that
// missed an enrollment.completed delivery and returns the rows it completed.
func (s *PathProgress) ApplyCompletedCourses(ctx context.Context, u uow.UnitOfWork, pe *learningpath.Enrollment, actorID string) (int, error) {
	rows, err := u.CourseProgress().ListByPathEnrollment(ctx, pe.ID)
	if err != nil {
		return 0, fmt.Errorf("load course progress: %w", err)
	}

	applied := 0
	for _, row := range rows {
		if row.IsCompleted() {
			continue
		}
		enr, err := u.Enrollments().FindByUserAndCourse(ctx, pe.UserID, row.CourseID)
		if shared.IsNotFound(err) {
			continue
		}
		if err != nil {
			return applied, fmt.Errorf("load course enrollment: %w", err)
		}
		if !enr.IsCompleted() {
			continue
		}
		if _, err := s.OnCourseCompleted(ctx, u, pe, enr.ID, row.CourseID, actorID); err != nil {
			return applied, err
		}
		applied++
	}
	if applied > 0 {
		s.logger.Info("missed course completions applied",
			logger.KeyPathEnrollmentID, pe.ID,
			"courses", applied,
		)
	}
	return applied, nil
}

// LinkCourseEnrollment attaches a course enrollment to the matching row of
// every path enrollment of the user containing the course, starting rows
// that are available.
func (s *PathProgress) LinkCourseEnrollment(ctx context.Context, u uow.UnitOfWork, userID, courseID, courseEnrollmentID string) (int, error) {
	at := s.clock.Now()
	origin := shared.Origin{ActorID: userID, At: at}
	pes, err := u.PathEnrollments().ListByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return 0, fmt.Errorf("list path enrollments: %w", err)
	}

	touched := 0
	for _, pe := range pes {
		rows, err := u.CourseProgress().ListByPathEnrollment(ctx, pe.ID)
		if err != nil {
			return touched, fmt.Errorf("load course progress: %w", err)
		}
		for _, row := range rows {
			if row.CourseID != courseID {
				continue
			}
			previous := row.State
			dirty := row.LinkEnrollment(courseEnrollmentID, at)
			if row.State == state.ProgressAvailable {
				if err := row.Start(at); err != nil {
					return touched, err
				}
				dirty = true
			}
			if dirty {
				if err := u.CourseProgress().Update(ctx, row); err != nil {
					return touched, fmt.Errorf("save course progress: %w", err)
				}
				u.Record(shared.NewPathCourseChangedEvent(origin, pe.ID, pe.UserID, pe.LearningPathID,
					row.CourseID, string(previous), string(row.State)))
				touched++
			}
		}
	}
	return touched, nil
}

// RevertCourseDrop undoes completion of every row linked to the dropped
// course enrollment. Rows go back to available, never locked, and courses
// unlocked downstream stay unlocked. A completed path enrollment that no
// longer has all required courses done returns to active.
func (s *PathProgress) RevertCourseDrop(ctx context.Context, u uow.UnitOfWork, courseEnrollmentID, actorID string) ([]*learningpath.Enrollment, error) {
	origin := shared.Origin{ActorID: actorID, At: s.clock.Now()}

	linked, err := u.CourseProgress().ListByCourseEnrollment(ctx, courseEnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("list linked course progress: %w", err)
	}

	revertedRows := make(map[string][]*learningpath.CourseProgress)
	var order []string
	for _, row := range linked {
		if !row.IsCompleted() {
			continue
		}
		if err := row.RevertCompletion(origin.At); err != nil {
			return nil, err
		}
		if err := u.CourseProgress().Update(ctx, row); err != nil {
			return nil, fmt.Errorf("save course progress: %w", err)
		}
		if _, seen := revertedRows[row.PathEnrollmentID]; !seen {
			order = append(order, row.PathEnrollmentID)
		}
		revertedRows[row.PathEnrollmentID] = append(revertedRows[row.PathEnrollmentID], row)
	}

	affected := make([]*learningpath.Enrollment, 0, len(order))
	for _, id := range order {
		pe, err := u.PathEnrollments().FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load path enrollment: %w", err)
		}
		for _, row := range revertedRows[id] {
			u.Record(shared.NewPathCourseChangedEvent(origin, pe.ID, pe.UserID, pe.LearningPathID,
				row.CourseID, string(state.ProgressCompleted), string(row.State)))
		}
		v, err := s.load(ctx, u, pe)
		if err != nil {
			return nil, err
		}

		previous, changed := pe.SetProgress(v.percentage(), origin.At)
		if changed {
			u.Record(shared.NewPathProgressUpdatedEvent(origin, pe.ID, pe.UserID, pe.LearningPathID, previous, pe.ProgressPercentage))
		}
		revertedPath := false
		if pe.IsCompleted() && !v.complete() {
			if err := pe.RevertCompletion(origin.At); err != nil {
				return nil, err
			}
			revertedPath = true
		}
		if changed || revertedPath {
			if err := u.PathEnrollments().Update(ctx, pe); err != nil {
				return nil, fmt.Errorf("save path enrollment: %w", err)
			}
		}

		s.logger.Info("course completion reverted in path",
			logger.KeyPathEnrollmentID, pe.ID,
			logger.KeyEnrollmentID, courseEnrollmentID,
			"path_reactivated", revertedPath,
		)
		affected = append(affected, pe)
	}
	return affected, nil
}
