package prerequisite

import "context"

// None unlocks every course immediately.
type None struct{}

func (None) Name() string { return NoneName }

func (None) Evaluate(context.Context, Input) (Result, error) {
	return met(ReasonNoPrerequisites), nil
}

// ImmediatePrevious requires only the course directly before the target.
type ImmediatePrevious struct{}

func (ImmediatePrevious) Name() string { return ImmediatePreviousName }

func (ImmediatePrevious) Evaluate(_ context.Context, in Input) (Result, error) {
	target, ok := in.Path.Course(in.CourseID)
	if !ok {
		return notMet(ReasonNotInPath), nil
	}
	before := in.predecessors(target)
	if len(before) == 0 {
		return met(ReasonFirstCourse), nil
	}
	prev := before[len(before)-1]
	if in.completedCourses()[prev.CourseID] {
		return met(ReasonMet), nil
	}
	return notMet(ReasonPrevious, Missing{ID: prev.CourseID, Title: prev.CourseTitle}), nil
}

// Sequential requires every earlier course to be completed.
type Sequential struct{}

func (Sequential) Name() string { return SequentialName }

func (Sequential) Evaluate(_ context.Context, in Input) (Result, error) {
	target, ok := in.Path.Course(in.CourseID)
	if !ok {
		return notMet(ReasonNotInPath), nil
	}
	before := in.predecessors(target)
	if len(before) == 0 {
		return met(ReasonFirstCourse), nil
	}
	done := in.completedCourses()
	var missing []Missing
	for _, c := range before {
		if !done[c.CourseID] {
			missing = append(missing, Missing{ID: c.CourseID, Title: c.CourseTitle})
		}
	}
	if len(missing) > 0 {
		return notMet(ReasonSequential, missing...), nil
	}
	return met(ReasonMet), nil
}
