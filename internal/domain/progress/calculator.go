// Package progress computes course completion for an enrollment.
//
// Calculators are pure over the read-only Source: they never write, and the
// same rows always produce the same percentage.
package progress

import (
	"context"
	"fmt"
	"sort"

	"github.com/satriyop/enteraksi/internal/domain/course"
	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/shared"
)

// Calculator names.
const (
	LessonBasedName         = "lesson_based"
	WeightedName            = "weighted"
	AssessmentInclusiveName = "assessment_inclusive"
)

// Calculator computes a 0..100 percentage and a completion flag.
type Calculator interface {
	Name() string
	Calculate(ctx context.Context, src Source, e *enrollment.Enrollment) (float64, error)
	IsComplete(ctx context.Context, src Source, e *enrollment.Enrollment) (bool, error)
}

// Source is the read access calculators need.
type Source interface {
	ListLessons(ctx context.Context, courseID string) ([]course.Lesson, error)
	CompletedLessonIDs(ctx context.Context, enrollmentID string) ([]string, error)
	ListAssessments(ctx context.Context, courseID string) ([]course.Assessment, error)
	ListOutcomes(ctx context.Context, userID, courseID string) ([]course.Outcome, error)
}

type repoSource struct {
	courses course.Repository
	lessons enrollment.LessonProgressRepository
}

// NewSource adapts the catalog and lesson progress repositories into a Source.
func NewSource(courses course.Repository, lessons enrollment.LessonProgressRepository) Source {
	return repoSource{courses: courses, lessons: lessons}
}

func (s repoSource) ListLessons(ctx context.Context, courseID string) ([]course.Lesson, error) {
	return s.courses.ListLessons(ctx, courseID)
}

func (s repoSource) CompletedLessonIDs(ctx context.Context, enrollmentID string) ([]string, error) {
	return s.lessons.CompletedLessonIDs(ctx, enrollmentID)
}

func (s repoSource) ListAssessments(ctx context.Context, courseID string) ([]course.Assessment, error) {
	return s.courses.ListAssessments(ctx, courseID)
}

func (s repoSource) ListOutcomes(ctx context.Context, userID, courseID string) ([]course.Outcome, error) {
	return s.courses.ListOutcomes(ctx, userID, courseID)
}

// Registry maps calculator names to implementations.
type Registry struct {
	calculators map[string]Calculator
}

// NewRegistry builds a registry from calculators, keyed by Name().
func NewRegistry(calculators ...Calculator) *Registry {
	r := &Registry{calculators: make(map[string]Calculator, len(calculators))}
	for _, c := range calculators {
		r.calculators[c.Name()] = c
	}
	return r
}

// DefaultRegistry registers the three built-in calculators.
func DefaultRegistry() *Registry {
	return NewRegistry(LessonBased{}, Weighted{}, AssessmentInclusive{})
}

// Get returns the calculator registered under name.
func (r *Registry) Get(name string) (Calculator, error) {
	c, ok := r.calculators[name]
	if !ok {
		return nil, shared.NewDomainError("progress", "Resolve", shared.ErrUnknownStrategy,
			fmt.Sprintf("no progress calculator named %q (have %v)", name, r.Names()))
	}
	return c, nil
}

// Names lists registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.calculators))
	for n := range r.calculators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// lessonFacts is the shared read every calculator starts from.
type lessonFacts struct {
	lessons   []course.Lesson
	completed map[string]bool
}

func loadLessonFacts(ctx context.Context, src Source, e *enrollment.Enrollment) (lessonFacts, error) {
	lessons, err := src.ListLessons(ctx, e.CourseID)
	if err != nil {
		return lessonFacts{}, fmt.Errorf("list lessons of course %s: %w", e.CourseID, err)
	}
	ids, err := src.CompletedLessonIDs(ctx, e.ID)
	if err != nil {
		return lessonFacts{}, fmt.Errorf("completed lessons of enrollment %s: %w", e.ID, err)
	}
	completed := make(map[string]bool, len(ids))
	for _, id := range ids {
		completed[id] = true
	}
	live := lessons[:0:0]
	for _, l := range lessons {
		if !l.IsDeleted() {
			live = append(live, l)
		}
	}
	return lessonFacts{lessons: live, completed: completed}, nil
}

// counts returns completed and total among live lessons. Completion rows for
// deleted or foreign lessons are ignored.
func (f lessonFacts) counts() (done, total int) {
	for _, l := range f.lessons {
		if f.completed[l.ID] {
			done++
		}
	}
	return done, len(f.lessons)
}

func (f lessonFacts) allDone() bool {
	done, total := f.counts()
	return total > 0 && done == total
}
