package state

// CourseState is the publication status of a course.
type CourseState string

const (
	CourseDraft     CourseState = "draft"
	CoursePublished CourseState = "published"
	CourseArchived  CourseState = "archived"
)

// CourseMachine: every state may move to every other state.
var CourseMachine = NewMachine("course", CourseDraft,
	[]CourseState{CourseDraft, CoursePublished, CourseArchived},
	map[CourseState][]CourseState{
		CourseDraft:     {CoursePublished, CourseArchived},
		CoursePublished: {CourseDraft, CourseArchived},
		CourseArchived:  {CourseDraft, CoursePublished},
	},
	nil,
)

// CourseInfo holds the per-state predicates of a course.
type CourseInfo struct {
	Label     string
	Color     string
	CanEdit   bool
	CanEnroll bool
	IsVisible bool
}

var courseInfo = map[CourseState]CourseInfo{
	CourseDraft:     {Label: "Draft", Color: "gray", CanEdit: true},
	CoursePublished: {Label: "Published", Color: "green", CanEdit: true, CanEnroll: true, IsVisible: true},
	CourseArchived:  {Label: "Archived", Color: "red"},
}

// Info returns the predicates for s. Unknown states have all predicates false.
func (s CourseState) Info() CourseInfo { return courseInfo[s] }

func (s CourseState) CanEnroll() bool { return courseInfo[s].CanEnroll }
func (s CourseState) CanEdit() bool   { return courseInfo[s].CanEdit }
func (s CourseState) String() string  { return string(s) }
