package progress

import (
	"context"

	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/shared"
)

// Weighted weighs each lesson by its estimated duration in minutes. A lesson
// without a duration weighs one minute, so a course with no durations at all
// is counted flat.
type Weighted struct{}

func (Weighted) Name() string { return WeightedName }

func (Weighted) Calculate(ctx context.Context, src Source, e *enrollment.Enrollment) (float64, error) {
	facts, err := loadLessonFacts(ctx, src, e)
	if err != nil {
		return 0, err
	}
	var done, total float64
	for _, l := range facts.lessons {
		w := float64(l.EstimatedDurationMinutes)
		if w <= 0 {
			w = 1
		}
		total += w
		if facts.completed[l.ID] {
			done += w
		}
	}
	return shared.Ratio(done, total), nil
}

func (Weighted) IsComplete(ctx context.Context, src Source, e *enrollment.Enrollment) (bool, error) {
	facts, err := loadLessonFacts(ctx, src, e)
	if err != nil {
		return false, err
	}
	return facts.allDone(), nil
}
