package state

// CourseProgressState is the state of one course inside a learner's path.
type CourseProgressState string

const (
	ProgressLocked     CourseProgressState = "locked"
	ProgressAvailable  CourseProgressState = "available"
	ProgressInProgress CourseProgressState = "in_progress"
	ProgressCompleted  CourseProgressState = "completed"
)

// CourseProgressMachine never re-locks. completed→available is a revert used
// by the drop cascade.
var CourseProgressMachine = NewMachine("learning_path_course_progress", ProgressLocked,
	[]CourseProgressState{ProgressLocked, ProgressAvailable, ProgressInProgress, ProgressCompleted},
	map[CourseProgressState][]CourseProgressState{
		ProgressLocked:     {ProgressAvailable},
		ProgressAvailable:  {ProgressInProgress, ProgressCompleted},
		ProgressInProgress: {ProgressCompleted},
	},
	map[CourseProgressState][]CourseProgressState{
		ProgressCompleted: {ProgressAvailable},
	},
)

// CourseProgressInfo holds the per-state predicates of a course inside a path.
// BlocksNext is descriptive; unlock decisions are made by the prerequisite evaluator.
type CourseProgressInfo struct {
	Label      string
	Color      string
	CanStart   bool
	BlocksNext bool
}

var courseProgressInfo = map[CourseProgressState]CourseProgressInfo{
	ProgressLocked:     {Label: "Locked", Color: "gray", BlocksNext: true},
	ProgressAvailable:  {Label: "Available", Color: "blue", CanStart: true, BlocksNext: true},
	ProgressInProgress: {Label: "In Progress", Color: "yellow", CanStart: true, BlocksNext: true},
	ProgressCompleted:  {Label: "Completed", Color: "green", CanStart: true},
}

func (s CourseProgressState) Info() CourseProgressInfo { return courseProgressInfo[s] }
func (s CourseProgressState) CanStart() bool           { return courseProgressInfo[s].CanStart }
func (s CourseProgressState) BlocksNext() bool         { return courseProgressInfo[s].BlocksNext }
func (s CourseProgressState) String() string           { return string(s) }
