package state

// PathEnrollmentState is the status of a user's enrollment in a learning path.
type PathEnrollmentState string

const (
	PathActive    PathEnrollmentState = "active"
	PathCompleted PathEnrollmentState = "completed"
	PathDropped   PathEnrollmentState = "dropped"
)

// PathEnrollmentMachine mirrors the course enrollment graph. The only revert
// edge is completed→active, taken when a required course is dropped after the
// path was completed.
var PathEnrollmentMachine = NewMachine("learning_path_enrollment", PathActive,
	[]PathEnrollmentState{PathActive, PathCompleted, PathDropped},
	map[PathEnrollmentState][]PathEnrollmentState{
		PathActive:  {PathCompleted, PathDropped},
		PathDropped: {PathActive},
	},
	map[PathEnrollmentState][]PathEnrollmentState{
		PathCompleted: {PathActive},
	},
)

// PathEnrollmentInfo holds the per-state predicates of a path enrollment.
type PathEnrollmentInfo struct {
	Label            string
	Color            string
	CanAccessContent bool
	CanTrackProgress bool
}

var pathEnrollmentInfo = map[PathEnrollmentState]PathEnrollmentInfo{
	PathActive:    {Label: "In Progress", Color: "blue", CanAccessContent: true, CanTrackProgress: true},
	PathCompleted: {Label: "Completed", Color: "green", CanAccessContent: true},
	PathDropped:   {Label: "Dropped", Color: "gray"},
}

func (s PathEnrollmentState) Info() PathEnrollmentInfo { return pathEnrollmentInfo[s] }
func (s PathEnrollmentState) CanTrackProgress() bool   { return pathEnrollmentInfo[s].CanTrackProgress }
func (s PathEnrollmentState) String() string           { return string(s) }
