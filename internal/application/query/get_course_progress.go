// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"fmt"

	"github.com/satriyop/enteraksi/internal/application/service"
	"github.com/satriyop/enteraksi/internal/domain/progress"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
	"github.com/satriyop/enteraksi/internal/domain/uow"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COURSE PROGRESS QUERY
// Reports an enrollment's cached percentage next to a fresh calculation,
// lesson counts and the assessment picture.
// ══════════════════════════════════════════════════════════════════════════════

// GetCourseProgressQuery selects one enrollment.
type GetCourseProgressQuery struct {
	EnrollmentID string
}

// Validate validates the query.
func (q GetCourseProgressQuery) Validate() error {
	if err := shared.ValidateID(q.EnrollmentID); err != nil {
		return shared.WrapError("query", "GetCourseProgress", shared.ErrInvalidID, "invalid enrollment id", err)
	}
	return nil
}

// CourseProgressView is the read model of one enrollment.
type CourseProgressView struct {
	EnrollmentID string                `json:"enrollment_id"`
	UserID       string                `json:"user_id"`
	CourseID     string                `json:"course_id"`
	Status       state.EnrollmentState `json:"status"`
	StatusLabel  string                `json:"status_label"`

	// Percentage is the cached value on the enrollment.
	Percentage int `json:"progress_percentage"`
	// Calculated is what the active calculator reports right now.
	Calculated float64 `json:"calculated_percentage"`
	Calculator string  `json:"calculator"`

	LessonsCompleted int                      `json:"lessons_completed"`
	LessonsTotal     int                      `json:"lessons_total"`
	Assessments      progress.AssessmentStats `json:"assessments"`
	IsComplete       bool                     `json:"is_complete"`
}

// GetCourseProgressHandler handles GetCourseProgressQuery.
type GetCourseProgressHandler struct {
	repos    uow.Repositories
	tracking *service.ProgressTracking
}

// NewGetCourseProgressHandler creates a new GetCourseProgressHandler.
func NewGetCourseProgressHandler(repos uow.Repositories, tracking *service.ProgressTracking) *GetCourseProgressHandler {
	return &GetCourseProgressHandler{repos: repos, tracking: tracking}
}

// Handle executes the query.
func (h *GetCourseProgressHandler) Handle(ctx context.Context, q GetCourseProgressQuery) (*CourseProgressView, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	enr, err := h.repos.Enrollments().FindByID(ctx, q.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("get_course_progress: %w", err)
	}

	calc := h.tracking.Calculator()
	src := progress.NewSource(h.repos.Courses(), h.repos.LessonProgress())
	calculated, err := calc.Calculate(ctx, src, enr)
	if err != nil {
		return nil, fmt.Errorf("get_course_progress: %w", err)
	}
	complete, err := h.tracking.IsEnrollmentComplete(ctx, h.repos, enr)
	if err != nil {
		return nil, fmt.Errorf("get_course_progress: %w", err)
	}
	stats, err := h.tracking.GetAssessmentStats(ctx, h.repos, enr)
	if err != nil {
		return nil, fmt.Errorf("get_course_progress: %w", err)
	}

	lessons, err := h.repos.Courses().ListLessons(ctx, enr.CourseID)
	if err != nil {
		return nil, fmt.Errorf("get_course_progress: %w", err)
	}
	done, err := h.repos.LessonProgress().CompletedLessonIDs(ctx, enr.ID)
	if err != nil {
		return nil, fmt.Errorf("get_course_progress: %w", err)
	}
	live := make(map[string]bool, len(lessons))
	for _, l := range lessons {
		live[l.ID] = true
	}
	completed := 0
	for _, id := range done {
		if live[id] {
			completed++
		}
	}

	return &CourseProgressView{
		EnrollmentID:     enr.ID,
		UserID:           enr.UserID,
		CourseID:         enr.CourseID,
		Status:           enr.Status,
		StatusLabel:      enr.Status.Info().Label,
		Percentage:       enr.ProgressPercentage,
		Calculated:       calculated,
		Calculator:       calc.Name(),
		LessonsCompleted: completed,
		LessonsTotal:     len(lessons),
		Assessments:      stats,
		IsComplete:       complete,
	}, nil
}
