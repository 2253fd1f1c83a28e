package progress

import (
	"context"

	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/shared"
)

// LessonBased counts every live lesson equally. Zero lessons read as 0%.
type LessonBased struct{}

func (LessonBased) Name() string { return LessonBasedName }

func (LessonBased) Calculate(ctx context.Context, src Source, e *enrollment.Enrollment) (float64, error) {
	facts, err := loadLessonFacts(ctx, src, e)
	if err != nil {
		return 0, err
	}
	done, total := facts.counts()
	return shared.Ratio(float64(done), float64(total)), nil
}

func (LessonBased) IsComplete(ctx context.Context, src Source, e *enrollment.Enrollment) (bool, error) {
	facts, err := loadLessonFacts(ctx, src, e)
	if err != nil {
		return false, err
	}
	return facts.allDone(), nil
}
