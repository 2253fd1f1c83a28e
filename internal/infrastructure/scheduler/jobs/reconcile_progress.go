// Package jobs contains the worker's scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/satriyop/enteraksi/internal/application/service"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/uow"
	"github.com/satriyop/enteraksi/pkg/logger"
	"github.com/satriyop/enteraksi/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE PROGRESS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileActorID is recorded as the actor of events this job emits.
const ReconcileActorID = "system:reconcile"

// ReconcileProgressJob recomputes the cached percentages of every active
// course enrollment and path enrollment from their source rows. Each
// enrollment is reconciled in its own unit of work so one failure does not
// stop the run. Completions it discovers are published like any other.
type ReconcileProgressJob struct {
	units     uow.Factory
	publisher shared.EventPublisher
	tracking  *service.ProgressTracking
	paths     *service.PathProgress
	clock     timeutil.Clock
	logger    *logger.Logger
	config    ReconcileConfig

	lastStats atomic.Pointer[ReconcileStats]
}

// ReconcileConfig configures the job.
type ReconcileConfig struct {
	// BatchSize is the page size when listing active enrollments.
	BatchSize int

	// Timeout bounds one run.
	Timeout time.Duration
}

// DefaultReconcileConfig returns sensible defaults.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		BatchSize: 200,
		Timeout:   10 * time.Minute,
	}
}

// ReconcileStats summarises one run.
type ReconcileStats struct {
	StartedAt        time.Time
	Duration         time.Duration
	CoursesChecked   int
	CoursesCompleted int
	PathsChecked     int

	// PathCoursesRepaired counts path rows completed from a course
	// enrollment whose completion event never reached the path.
	PathCoursesRepaired int
	Failures            int
}

// NewReconcileProgressJob creates the job.
func NewReconcileProgressJob(
	units uow.Factory,
	publisher shared.EventPublisher,
	tracking *service.ProgressTracking,
	paths *service.PathProgress,
	clock timeutil.Clock,
	log *logger.Logger,
	config ReconcileConfig,
) *ReconcileProgressJob {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultReconcileConfig().BatchSize
	}
	return &ReconcileProgressJob{
		units:     units,
		publisher: publisher,
		tracking:  tracking,
		paths:     paths,
		clock:     clock,
		logger:    log.With(logger.KeyComponent, "reconcile_progress"),
		config:    config,
	}
}

func (j *ReconcileProgressJob) Name() string { return "reconcile_progress" }

func (j *ReconcileProgressJob) Description() string {
	return "Recompute cached course and path percentages from source rows"
}

// LastStats returns the stats of the last finished run, or nil.
func (j *ReconcileProgressJob) LastStats() *ReconcileStats {
	return j.lastStats.Load()
}

// Run reconciles course enrollments first so path rows see the completions
// they produce.
func (j *ReconcileProgressJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	stats := &ReconcileStats{StartedAt: j.clock.Now()}
	defer func() {
		stats.Duration = j.clock.Now().Sub(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	if err := j.reconcileCourses(ctx, stats); err != nil {
		return err
	}
	if err := j.reconcilePaths(ctx, stats); err != nil {
		return err
	}

	j.logger.Info("progress reconciled",
		"courses_checked", stats.CoursesChecked,
		"courses_completed", stats.CoursesCompleted,
		"paths_checked", stats.PathsChecked,
		"path_courses_repaired", stats.PathCoursesRepaired,
		"failures", stats.Failures,
	)
	if stats.Failures > 0 {
		return fmt.Errorf("reconcile progress: %d enrollments failed", stats.Failures)
	}
	return nil
}

type enrollmentKey struct {
	id, userID, targetID string
}

func (j *ReconcileProgressJob) reconcileCourses(ctx context.Context, stats *ReconcileStats) error {
	return j.page(ctx, func(ctx context.Context, u uow.UnitOfWork, after string) ([]enrollmentKey, error) {
		list, err := u.Enrollments().ListActive(ctx, after, j.config.BatchSize)
		if err != nil {
			return nil, err
		}
		keys := make([]enrollmentKey, len(list))
		for i, e := range list {
			keys[i] = enrollmentKey{id: e.ID, userID: e.UserID, targetID: e.CourseID}
		}
		return keys, nil
	}, func(k enrollmentKey) {
		stats.CoursesChecked++
		completed := false
		err := uow.Run(ctx, j.units, j.publisher, func(ctx context.Context, u uow.UnitOfWork) error {
			enr, err := u.Enrollments().LockByUserAndCourse(ctx, k.userID, k.targetID)
			if err != nil {
				return err
			}
			if !enr.IsActive() {
				return nil
			}
			completed, err = j.tracking.RecalculateCourseProgress(ctx, u, enr, ReconcileActorID)
			return err
		})
		if completed {
			stats.CoursesCompleted++
		}
		j.recordFailure(stats, err, logger.KeyEnrollmentID, k.id)
	})
}

func (j *ReconcileProgressJob) reconcilePaths(ctx context.Context, stats *ReconcileStats) error {
	return j.page(ctx, func(ctx context.Context, u uow.UnitOfWork, after string) ([]enrollmentKey, error) {
		list, err := u.PathEnrollments().ListActive(ctx, after, j.config.BatchSize)
		if err != nil {
			return nil, err
		}
		keys := make([]enrollmentKey, len(list))
		for i, e := range list {
			keys[i] = enrollmentKey{id: e.ID, userID: e.UserID, targetID: e.LearningPathID}
		}
		return keys, nil
	}, func(k enrollmentKey) {
		stats.PathsChecked++
		repaired := 0
		err := uow.Run(ctx, j.units, j.publisher, func(ctx context.Context, u uow.UnitOfWork) error {
			pe, err := u.PathEnrollments().LockByUserAndPath(ctx, k.userID, k.targetID)
			if err != nil {
				return err
			}
			if !pe.IsActive() {
				return nil
			}
			applied, err := j.paths.ApplyCompletedCourses(ctx, u, pe, ReconcileActorID)
			if err != nil {
				return err
			}
			repaired = applied
			return j.paths.Recalculate(ctx, u, pe, ReconcileActorID)
		})
		if err == nil || uow.Committed(err) {
			stats.PathCoursesRepaired += repaired
		}
		j.recordFailure(stats, err, logger.KeyPathEnrollmentID, k.id)
	})
}

// page lists keys a page at a time, each page in a short unit of work, and
// hands them to visit outside of it.
func (j *ReconcileProgressJob) page(
	ctx context.Context,
	list func(ctx context.Context, u uow.UnitOfWork, after string) ([]enrollmentKey, error),
	visit func(enrollmentKey),
) error {
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var keys []enrollmentKey
		err := uow.Run(ctx, j.units, nil, func(ctx context.Context, u uow.UnitOfWork) error {
			var err error
			keys, err = list(ctx, u, after)
			return err
		})
		if err != nil {
			return fmt.Errorf("list active enrollments: %w", err)
		}

		for _, k := range keys {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			visit(k)
		}
		if len(keys) < j.config.BatchSize {
			return nil
		}
		after = keys[len(keys)-1].id
	}
}

func (j *ReconcileProgressJob) recordFailure(stats *ReconcileStats, err error, key, id string) {
	if err == nil {
		return
	}
	// The change is committed; failed listener deliveries sit in the dead letter queue.
	if uow.Committed(err) {
		j.logger.Warn("reconciled but not published", key, id, logger.KeyError, err)
		return
	}
	stats.Failures++
	j.logger.Error("reconcile failed", key, id, logger.KeyError, err)
}
