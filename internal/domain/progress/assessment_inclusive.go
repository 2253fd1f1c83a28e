package progress

import (
	"context"
	"fmt"

	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/shared"
)

const (
	lessonWeight     = 0.7
	assessmentWeight = 0.3
)

// AssessmentInclusive blends lesson completion (70%) with the pass rate of
// required assessments (30%). A course without required assessments gets the
// full assessment share, so an empty course reads exactly 30%.
type AssessmentInclusive struct{}

func (AssessmentInclusive) Name() string { return AssessmentInclusiveName }

func (AssessmentInclusive) Calculate(ctx context.Context, src Source, e *enrollment.Enrollment) (float64, error) {
	facts, err := loadLessonFacts(ctx, src, e)
	if err != nil {
		return 0, err
	}
	stats, err := Stats(ctx, src, e)
	if err != nil {
		return 0, err
	}
	done, total := facts.counts()
	lessonPct := shared.Ratio(float64(done), float64(total))

	assessmentPct := 100.0
	if stats.RequiredTotal > 0 {
		assessmentPct = shared.Ratio(float64(stats.RequiredPassed), float64(stats.RequiredTotal))
	}
	return shared.ClampPercentage(lessonPct*lessonWeight + assessmentPct*assessmentWeight), nil
}

func (AssessmentInclusive) IsComplete(ctx context.Context, src Source, e *enrollment.Enrollment) (bool, error) {
	facts, err := loadLessonFacts(ctx, src, e)
	if err != nil {
		return false, err
	}
	if !facts.allDone() {
		return false, nil
	}
	stats, err := Stats(ctx, src, e)
	if err != nil {
		return false, err
	}
	return stats.RequiredPassed == stats.RequiredTotal, nil
}

// AssessmentStats summarises a learner's standing on a course's assessments.
type AssessmentStats struct {
	Total          int `json:"total"`
	Passed         int `json:"passed"`
	Pending        int `json:"pending"`
	RequiredTotal  int `json:"required_total"`
	RequiredPassed int `json:"required_passed"`
}

// Stats counts published assessments of the enrollment's course and the
// user's outcomes on them.
func Stats(ctx context.Context, src Source, e *enrollment.Enrollment) (AssessmentStats, error) {
	assessments, err := src.ListAssessments(ctx, e.CourseID)
	if err != nil {
		return AssessmentStats{}, fmt.Errorf("list assessments of course %s: %w", e.CourseID, err)
	}
	outcomes, err := src.ListOutcomes(ctx, e.UserID, e.CourseID)
	if err != nil {
		return AssessmentStats{}, fmt.Errorf("list outcomes of user %s: %w", e.UserID, err)
	}
	byID := make(map[string]bool, len(outcomes))
	pending := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		if o.Passed {
			byID[o.AssessmentID] = true
		}
		if o.PendingGrading {
			pending[o.AssessmentID] = true
		}
	}

	var s AssessmentStats
	for _, a := range assessments {
		if !a.IsPublished {
			continue
		}
		s.Total++
		passed := byID[a.ID]
		if passed {
			s.Passed++
		} else if pending[a.ID] {
			s.Pending++
		}
		if a.IsRequired {
			s.RequiredTotal++
			if passed {
				s.RequiredPassed++
			}
		}
	}
	return s, nil
}
