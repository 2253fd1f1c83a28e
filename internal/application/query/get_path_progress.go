package query

import (
	"context"
	"fmt"
	"time"

	"github.com/satriyop/enteraksi/internal/domain/prerequisite"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
	"github.com/satriyop/enteraksi/internal/domain/uow"
	"github.com/satriyop/enteraksi/pkg/logger"
	"github.com/satriyop/enteraksi/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PATH PROGRESS QUERY
// Returns every course of a path enrollment with its state and the reason it
// is or is not unlocked. Views are cached and evicted by path events.
// ══════════════════════════════════════════════════════════════════════════════

// GetPathProgressQuery selects one path enrollment.
type GetPathProgressQuery struct {
	PathEnrollmentID string

	// SkipCache forces a fresh read.
	SkipCache bool
}

// Validate validates the query.
func (q GetPathProgressQuery) Validate() error {
	if err := shared.ValidateID(q.PathEnrollmentID); err != nil {
		return shared.WrapError("query", "GetPathProgress", shared.ErrInvalidID, "invalid path enrollment id", err)
	}
	return nil
}

// PathCourseView is one course inside a path progress view.
type PathCourseView struct {
	CourseID           string                    `json:"course_id"`
	Title              string                    `json:"title"`
	Position           int                       `json:"position"`
	IsRequired         bool                      `json:"is_required"`
	State              state.CourseProgressState `json:"state"`
	StateLabel         string                    `json:"state_label"`
	CanStart           bool                      `json:"can_start"`
	CourseEnrollmentID string                    `json:"course_enrollment_id,omitempty"`
	Prerequisites      prerequisite.Result       `json:"prerequisites"`
}

// PathProgressView is the read model of one path enrollment.
type PathProgressView struct {
	PathEnrollmentID string                    `json:"path_enrollment_id"`
	UserID           string                    `json:"user_id"`
	PathID           string                    `json:"learning_path_id"`
	Title            string                    `json:"title"`
	State            state.PathEnrollmentState `json:"state"`
	Percentage       int                       `json:"progress_percentage"`
	Evaluator        string                    `json:"evaluator"`
	Courses          []PathCourseView          `json:"courses"`
	GeneratedAt      time.Time                 `json:"generated_at"`
}

// PathProgressCache stores PathProgressView values.
type PathProgressCache interface {
	// Get reports false on a miss.
	Get(ctx context.Context, pathEnrollmentID string) (*PathProgressView, bool, error)
	Set(ctx context.Context, view *PathProgressView) error
	Invalidate(ctx context.Context, pathEnrollmentID string) error
}

// GetPathProgressHandler handles GetPathProgressQuery.
type GetPathProgressHandler struct {
	repos      uow.Repositories
	evaluators *prerequisite.Registry
	cache      PathProgressCache
	clock      timeutil.Clock
	logger     *logger.Logger
}

// NewGetPathProgressHandler creates a new GetPathProgressHandler. cache may be nil.
func NewGetPathProgressHandler(
	repos uow.Repositories,
	evaluators *prerequisite.Registry,
	cache PathProgressCache,
	clock timeutil.Clock,
	log *logger.Logger,
) *GetPathProgressHandler {
	return &GetPathProgressHandler{
		repos:      repos,
		evaluators: evaluators,
		cache:      cache,
		clock:      clock,
		logger:     log.With(logger.KeyComponent, "get_path_progress"),
	}
}

// Handle executes the query.
func (h *GetPathProgressHandler) Handle(ctx context.Context, q GetPathProgressQuery) (*PathProgressView, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if h.cache != nil && !q.SkipCache {
		view, ok, err := h.cache.Get(ctx, q.PathEnrollmentID)
		switch {
		case err != nil:
			// Fall through to a fresh read.
			h.logger.Warn("path progress cache read failed",
				logger.KeyPathEnrollmentID, q.PathEnrollmentID,
				logger.KeyError, err,
			)
		case ok:
			return view, nil
		}
	}

	view, err := h.build(ctx, q.PathEnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("get_path_progress: %w", err)
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, view); err != nil {
			h.logger.Warn("path progress cache write failed",
				logger.KeyPathEnrollmentID, view.PathEnrollmentID,
				logger.KeyError, err,
			)
		}
	}
	return view, nil
}

func (h *GetPathProgressHandler) build(ctx context.Context, pathEnrollmentID string) (*PathProgressView, error) {
	pe, err := h.repos.PathEnrollments().FindByID(ctx, pathEnrollmentID)
	if err != nil {
		return nil, err
	}
	path, err := h.repos.Paths().FindByID(ctx, pe.LearningPathID)
	if err != nil {
		return nil, err
	}
	rows, err := h.repos.CourseProgress().ListByPathEnrollment(ctx, pe.ID)
	if err != nil {
		return nil, err
	}
	eval, err := h.evaluators.ForPath(path)
	if err != nil {
		return nil, err
	}

	view := &PathProgressView{
		PathEnrollmentID: pe.ID,
		UserID:           pe.UserID,
		PathID:           path.ID,
		Title:            path.Title,
		State:            pe.State,
		Percentage:       pe.ProgressPercentage,
		Evaluator:        eval.Name(),
		Courses:          make([]PathCourseView, 0, len(rows)),
		GeneratedAt:      h.clock.Now(),
	}
	for _, row := range rows {
		c, _ := path.Course(row.CourseID)
		res, err := eval.Evaluate(ctx, prerequisite.Input{
			Enrollment: pe,
			Path:       path,
			Progress:   rows,
			CourseID:   row.CourseID,
		})
		if err != nil {
			return nil, err
		}
		info := row.State.Info()
		view.Courses = append(view.Courses, PathCourseView{
			CourseID:           row.CourseID,
			Title:              c.CourseTitle,
			Position:           row.Position,
			IsRequired:         c.IsRequired,
			State:              row.State,
			StateLabel:         info.Label,
			CanStart:           info.CanStart,
			CourseEnrollmentID: row.CourseEnrollmentID,
			Prerequisites:      res,
		})
	}
	return view, nil
}
