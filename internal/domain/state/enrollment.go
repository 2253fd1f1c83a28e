package state

// EnrollmentState is the status of a user's enrollment in a course.
type EnrollmentState string

const (
	EnrollmentActive    EnrollmentState = "active"
	EnrollmentCompleted EnrollmentState = "completed"
	EnrollmentDropped   EnrollmentState = "dropped"
)

// EnrollmentMachine has no edge out of completed.
var EnrollmentMachine = NewMachine("enrollment", EnrollmentActive,
	[]EnrollmentState{EnrollmentActive, EnrollmentCompleted, EnrollmentDropped},
	map[EnrollmentState][]EnrollmentState{
		EnrollmentActive:  {EnrollmentCompleted, EnrollmentDropped},
		EnrollmentDropped: {EnrollmentActive},
	},
	nil,
)

// EnrollmentInfo holds the per-state predicates of an enrollment.
type EnrollmentInfo struct {
	Label            string
	Color            string
	CanAccessContent bool
	CanTrackProgress bool
	IsTerminal       bool
}

var enrollmentInfo = map[EnrollmentState]EnrollmentInfo{
	EnrollmentActive:    {Label: "Active", Color: "blue", CanAccessContent: true, CanTrackProgress: true},
	EnrollmentCompleted: {Label: "Completed", Color: "green", CanAccessContent: true, IsTerminal: true},
	EnrollmentDropped:   {Label: "Dropped", Color: "gray"},
}

func (s EnrollmentState) Info() EnrollmentInfo   { return enrollmentInfo[s] }
func (s EnrollmentState) CanAccessContent() bool { return enrollmentInfo[s].CanAccessContent }
func (s EnrollmentState) CanTrackProgress() bool { return enrollmentInfo[s].CanTrackProgress }
func (s EnrollmentState) String() string         { return string(s) }
