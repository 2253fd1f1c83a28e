package prerequisite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriyop/enteraksi/internal/domain/learningpath"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
)

var at = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

// path builds [A@1, B@2, C@3] with the given states for A, B, C.
func path(states ...state.CourseProgressState) Input {
	lp := &learningpath.LearningPath{
		ID: "p-1",
		Courses: []learningpath.PathCourse{
			{CourseID: "A", CourseTitle: "Alpha", Position: 1, IsRequired: true},
			{CourseID: "B", CourseTitle: "Beta", Position: 2, IsRequired: true, CoursePrice: 5000},
			{CourseID: "C", CourseTitle: "Gamma", Position: 3, IsRequired: true, CoursePrice: 9000},
		},
	}
	pe := learningpath.NewEnrollment("pe-1", "u-1", "p-1", at)
	var rows []*learningpath.CourseProgress
	for i, c := range lp.Ordered() {
		if i >= len(states) {
			break
		}
		row := learningpath.NewCourseProgress("cp-"+c.CourseID, pe.ID, c.CourseID, c.Position, at)
		row.State = states[i]
		rows = append(rows, row)
	}
	return Input{Enrollment: pe, Path: lp, Progress: rows}
}

func eval(t *testing.T, e Evaluator, in Input, courseID string) Result {
	t.Helper()
	in.CourseID = courseID
	res, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, res.MissingPrerequisites)
	return res
}

func TestSequential_ListsOnlyIncompletePredecessors(t *testing.T) {
	in := path(state.ProgressCompleted, state.ProgressInProgress, state.ProgressLocked)

	res := eval(t, Sequential{}, in, "C")
	assert.False(t, res.IsMet)
	assert.Equal(t, []Missing{{ID: "B", Title: "Beta"}}, res.MissingPrerequisites)
	assert.Equal(t, ReasonSequential, res.Reason)
}

func TestSequential(t *testing.T) {
	tests := []struct {
		name    string
		states  []state.CourseProgressState
		course  string
		met     bool
		missing []string
	}{
		{name: "first always met", states: nil, course: "A", met: true},
		{name: "nothing done lists all in order", states: []state.CourseProgressState{state.ProgressAvailable, state.ProgressLocked, state.ProgressLocked}, course: "C", missing: []string{"A", "B"}},
		{name: "all predecessors done", states: []state.CourseProgressState{state.ProgressCompleted, state.ProgressCompleted, state.ProgressLocked}, course: "C", met: true},
		{name: "missing rows count as incomplete", states: nil, course: "B", missing: []string{"A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := eval(t, Sequential{}, path(tt.states...), tt.course)
			assert.Equal(t, tt.met, res.IsMet)
			var got []string
			for _, m := range res.MissingPrerequisites {
				got = append(got, m.ID)
			}
			assert.Equal(t, tt.missing, got)
		})
	}
}

func TestImmediatePrevious(t *testing.T) {
	// A incomplete, B complete: C only looks at B.
	in := path(state.ProgressAvailable, state.ProgressCompleted, state.ProgressLocked)
	assert.True(t, eval(t, ImmediatePrevious{}, in, "C").IsMet)

	res := eval(t, ImmediatePrevious{}, in, "B")
	assert.False(t, res.IsMet)
	assert.Equal(t, []Missing{{ID: "A", Title: "Alpha"}}, res.MissingPrerequisites)
	assert.Equal(t, ReasonPrevious, res.Reason)

	assert.True(t, eval(t, ImmediatePrevious{}, in, "A").IsMet)

	noRows := path()
	res = eval(t, ImmediatePrevious{}, noRows, "C")
	assert.False(t, res.IsMet)
	assert.Equal(t, []Missing{{ID: "B", Title: "Beta"}}, res.MissingPrerequisites)
}

func TestImmediatePrevious_PositionGaps(t *testing.T) {
	in := path(state.ProgressCompleted)
	in.Path.Courses = []learningpath.PathCourse{
		{CourseID: "A", CourseTitle: "Alpha", Position: 10},
		{CourseID: "Z", CourseTitle: "Zeta", Position: 40},
	}
	assert.True(t, eval(t, ImmediatePrevious{}, in, "Z").IsMet)
}

func TestCourseNotInPath(t *testing.T) {
	in := path(state.ProgressCompleted, state.ProgressCompleted, state.ProgressCompleted)
	for _, e := range []Evaluator{ImmediatePrevious{}, Sequential{}, NewPricingAware(ModeCommercial, nil)} {
		t.Run(e.Name(), func(t *testing.T) {
			res := eval(t, e, in, "nope")
			assert.False(t, res.IsMet)
			assert.Empty(t, res.MissingPrerequisites)
			assert.Equal(t, ReasonNotInPath, res.Reason)
		})
	}
}

func TestNone(t *testing.T) {
	in := path()
	for _, c := range []string{"A", "B", "C"} {
		assert.True(t, eval(t, None{}, in, c).IsMet)
	}
}

type fakePayments struct {
	paid map[string]bool
	err  error
}

func (f fakePayments) HasPaid(_ context.Context, _, courseID string) (bool, error) {
	return f.paid[courseID], f.err
}

func TestPricingAware(t *testing.T) {
	in := path()
	payments := fakePayments{paid: map[string]bool{"B": true}}

	internal := NewPricingAware(ModeInternal, nil)
	assert.True(t, eval(t, internal, in, "C").IsMet)

	commercial := NewPricingAware(ModeCommercial, payments)
	assert.True(t, eval(t, commercial, in, "A").IsMet, "free course")
	assert.True(t, eval(t, commercial, in, "B").IsMet, "paid and confirmed")

	res := eval(t, commercial, in, "C")
	assert.False(t, res.IsMet)
	assert.Equal(t, ReasonPayment, res.Reason)

	noVerifier := NewPricingAware(ModeCommercial, nil)
	assert.False(t, eval(t, noVerifier, in, "B").IsMet)
}

func TestPricingAware_VerifierError(t *testing.T) {
	boom := errors.New("billing down")
	in := path()
	in.CourseID = "B"
	_, err := NewPricingAware(ModeCommercial, fakePayments{err: boom}).Evaluate(context.Background(), in)
	assert.ErrorIs(t, err, boom)
}

func TestParseDeploymentMode(t *testing.T) {
	m, err := ParseDeploymentMode(" Commercial ")
	require.NoError(t, err)
	assert.Equal(t, ModeCommercial, m)
	_, err = ParseDeploymentMode("saas")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(SequentialName, ModeInternal, nil)
	assert.Equal(t, []string{ImmediatePreviousName, NoneName, PricingAwareName, SequentialName}, r.Names())

	e, err := r.ForPath(&learningpath.LearningPath{})
	require.NoError(t, err)
	assert.Equal(t, SequentialName, e.Name())

	e, err = r.ForPath(&learningpath.LearningPath{PrerequisiteMode: NoneName})
	require.NoError(t, err)
	assert.Equal(t, NoneName, e.Name())

	_, err = r.ForPath(&learningpath.LearningPath{PrerequisiteMode: "astrology"})
	assert.ErrorIs(t, err, shared.ErrUnknownStrategy)
}
