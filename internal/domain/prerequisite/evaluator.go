// Package prerequisite decides whether a course inside a learning path can
// be unlocked for a learner.
package prerequisite

import (
	"context"
	"fmt"
	"sort"

	"github.com/satriyop/enteraksi/internal/domain/learningpath"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
)

// Evaluator names.
const (
	NoneName              = "none"
	ImmediatePreviousName = "immediate_previous"
	SequentialName        = "sequential"
	PricingAwareName      = "pricing_aware"
)

// Reasons returned in Result.
const (
	ReasonNotInPath       = "course not found in path"
	ReasonMet             = "prerequisites met"
	ReasonFirstCourse     = "first course in path"
	ReasonNoPrerequisites = "no prerequisites"
	ReasonPrevious        = "previous course not completed"
	ReasonSequential      = "all previous courses must be completed"
	ReasonPayment         = "payment required"
	ReasonFree            = "course is free"
	ReasonPaid            = "course purchased"
	ReasonInternal        = "internal deployment"
)

// Missing names an unmet prerequisite course.
type Missing struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Result is the outcome of an evaluation.
type Result struct {
	IsMet                bool      `json:"is_met"`
	MissingPrerequisites []Missing `json:"missing_prerequisites"`
	Reason               string    `json:"reason"`
}

func met(reason string) Result {
	return Result{IsMet: true, MissingPrerequisites: []Missing{}, Reason: reason}
}

func notMet(reason string, missing ...Missing) Result {
	if missing == nil {
		missing = []Missing{}
	}
	return Result{IsMet: false, MissingPrerequisites: missing, Reason: reason}
}

// Input is everything an evaluator may read. Path and Progress are loaded
// once by the caller and shared across evaluations of the same enrollment.
type Input struct {
	Enrollment *learningpath.Enrollment
	Path       *learningpath.LearningPath
	Progress   []*learningpath.CourseProgress
	CourseID   string
}

// Evaluator decides unlockability of Input.CourseID.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, in Input) (Result, error)
}

// completedCourses returns the set of course ids whose row is completed.
func (in Input) completedCourses() map[string]bool {
	done := make(map[string]bool, len(in.Progress))
	for _, p := range in.Progress {
		if p.State == state.ProgressCompleted {
			done[p.CourseID] = true
		}
	}
	return done
}

// predecessors returns the path courses strictly before target, in position order.
func (in Input) predecessors(target learningpath.PathCourse) []learningpath.PathCourse {
	var out []learningpath.PathCourse
	for _, c := range in.Path.Ordered() {
		if c.Position < target.Position {
			out = append(out, c)
		}
	}
	return out
}

// Registry maps evaluator names to implementations.
type Registry struct {
	evaluators map[string]Evaluator
	fallback   string
}

// NewRegistry builds a registry. fallback is used for paths without a mode.
func NewRegistry(fallback string, evaluators ...Evaluator) *Registry {
	r := &Registry{evaluators: make(map[string]Evaluator, len(evaluators)), fallback: fallback}
	for _, e := range evaluators {
		r.evaluators[e.Name()] = e
	}
	return r
}

// DefaultRegistry registers the four built-in evaluators.
func DefaultRegistry(fallback string, mode DeploymentMode, payments PaymentVerifier) *Registry {
	return NewRegistry(fallback,
		None{},
		ImmediatePrevious{},
		Sequential{},
		NewPricingAware(mode, payments),
	)
}

// Get returns the evaluator registered under name.
func (r *Registry) Get(name string) (Evaluator, error) {
	e, ok := r.evaluators[name]
	if !ok {
		return nil, shared.NewDomainError("prerequisite", "Resolve", shared.ErrUnknownStrategy,
			fmt.Sprintf("no prerequisite evaluator named %q (have %v)", name, r.Names()))
	}
	return e, nil
}

// ForPath returns the path's own evaluator, or the registry fallback.
func (r *Registry) ForPath(p *learningpath.LearningPath) (Evaluator, error) {
	if p != nil && p.PrerequisiteMode != "" {
		return r.Get(p.PrerequisiteMode)
	}
	return r.Get(r.fallback)
}

// Names lists registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.evaluators))
	for n := range r.evaluators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
