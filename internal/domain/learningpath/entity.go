// Package learningpath contains learning paths, the learner's enrollment in
// a path and the per-course progress rows that track unlocking.
package learningpath

import (
	"sort"
	"time"
)

// LearningPath is an ordered set of courses.
type LearningPath struct {
	ID          string
	Title       string
	IsPublished bool
	// PrerequisiteMode names the evaluator for this path. Empty means the system default.
	PrerequisiteMode string
	Courses          []PathCourse
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PathCourse places a course at a position inside a path.
type PathCourse struct {
	CourseID    string
	CourseTitle string
	// Price of the course in minor units, copied from the catalog.
	CoursePrice int64
	Position    int
	IsRequired  bool
	// MinCompletionPercentage is informational; completion is driven by the
	// course enrollment reaching completed.
	MinCompletionPercentage *int
	Prerequisites           []string
}

// Ordered returns the path's courses sorted by position.
func (p *LearningPath) Ordered() []PathCourse {
	out := make([]PathCourse, len(p.Courses))
	copy(out, p.Courses)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// Course returns the path course for a course id.
func (p *LearningPath) Course(courseID string) (PathCourse, bool) {
	for _, c := range p.Courses {
		if c.CourseID == courseID {
			return c, true
		}
	}
	return PathCourse{}, false
}

// FirstPosition returns the lowest position, or 0 for an empty path.
func (p *LearningPath) FirstPosition() int {
	first := 0
	for i, c := range p.Courses {
		if i == 0 || c.Position < first {
			first = c.Position
		}
	}
	return first
}

// RequiredCourseIDs returns the ids of required courses.
func (p *LearningPath) RequiredCourseIDs() []string {
	var ids []string
	for _, c := range p.Ordered() {
		if c.IsRequired {
			ids = append(ids, c.CourseID)
		}
	}
	return ids
}
