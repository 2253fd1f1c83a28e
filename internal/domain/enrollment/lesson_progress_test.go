package enrollment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriyop/enteraksi/internal/domain/shared"
)

const (
	enrollmentID = "0b6f4a0e-5d43-4c43-9d0a-6a0f1e7e9c11"
	lessonID     = "4f1c2a8e-9b7d-4e0b-8f3a-2c5d6e7f8a9b"
)

func intp(v int) *int { return &v }

func paged(current, total int) Update {
	return Update{EnrollmentID: enrollmentID, LessonID: lessonID, CurrentPage: intp(current), TotalPages: intp(total)}
}

func media(pos, dur int) Update {
	return Update{EnrollmentID: enrollmentID, LessonID: lessonID, PositionSeconds: intp(pos), DurationSeconds: intp(dur)}
}

func TestApply_PagedHighestNeverRegresses(t *testing.T) {
	p := NewLessonProgress("lp-1", enrollmentID, lessonID, t0)
	th := DefaultThresholds()

	assert.False(t, p.Apply(paged(7, 10), th, t0))
	assert.Equal(t, 7, p.HighestPageReached)

	assert.False(t, p.Apply(paged(3, 10), th, t0))
	assert.Equal(t, 3, p.CurrentPage)
	assert.Equal(t, 7, p.HighestPageReached)
	assert.InDelta(t, 70.0, p.ProgressPercentage, 0.001)
}

func TestApply_PagedCompletesAtThreshold(t *testing.T) {
	p := NewLessonProgress("lp-1", enrollmentID, lessonID, t0)
	th := DefaultThresholds()

	assert.False(t, p.Apply(paged(9, 10), th, t0))
	assert.True(t, p.Apply(paged(10, 10), th, t0.Add(time.Minute)))
	assert.True(t, p.IsCompleted)
	first := *p.CompletedAt

	assert.False(t, p.Apply(paged(10, 10), th, t0.Add(time.Hour)), "repeat past threshold is a no-op")
	assert.Equal(t, first, *p.CompletedAt)
}

func TestApply_MediaThreshold(t *testing.T) {
	tests := []struct {
		name      string
		pos, dur  int
		threshold float64
		complete  bool
	}{
		{name: "below default", pos: 89, dur: 100, threshold: 90, complete: false},
		{name: "at default", pos: 90, dur: 100, threshold: 90, complete: true},
		{name: "past end clamps", pos: 150, dur: 100, threshold: 90, complete: true},
		{name: "custom threshold", pos: 50, dur: 100, threshold: 50, complete: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewLessonProgress("lp-1", enrollmentID, lessonID, t0)
			th := Thresholds{MediaPercent: tt.threshold, PagePercent: 100}
			assert.Equal(t, tt.complete, p.Apply(media(tt.pos, tt.dur), th, t0))
			assert.Equal(t, tt.complete, p.IsCompleted)
			assert.LessOrEqual(t, p.MediaPositionSeconds, tt.dur)
		})
	}
}

func TestApply_AccumulatesTimeSpent(t *testing.T) {
	p := NewLessonProgress("lp-1", enrollmentID, lessonID, t0)
	u := Update{EnrollmentID: enrollmentID, LessonID: lessonID, TimeSpentSeconds: 30}
	p.Apply(u, DefaultThresholds(), t0)
	p.Apply(u, DefaultThresholds(), t0)
	assert.Equal(t, 60, p.TimeSpentSeconds)
	assert.False(t, p.IsCompleted)
}

func TestUpdate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		update  Update
		wantErr bool
	}{
		{name: "paged ok", update: paged(1, 5)},
		{name: "media ok", update: media(0, 60)},
		{name: "time only", update: Update{EnrollmentID: enrollmentID, LessonID: lessonID, TimeSpentSeconds: 5}},
		{name: "bad enrollment id", update: Update{EnrollmentID: "nope", LessonID: lessonID}, wantErr: true},
		{name: "missing lesson", update: Update{EnrollmentID: enrollmentID}, wantErr: true},
		{name: "negative time", update: Update{EnrollmentID: enrollmentID, LessonID: lessonID, TimeSpentSeconds: -1}, wantErr: true},
		{name: "zero total pages", update: paged(0, 0), wantErr: true},
		{name: "half paging", update: Update{EnrollmentID: enrollmentID, LessonID: lessonID, CurrentPage: intp(1)}, wantErr: true},
		{name: "zero duration", update: media(10, 0), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.update.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, shared.IsValidation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMarkCompleted(t *testing.T) {
	p := NewLessonProgress("lp-1", enrollmentID, lessonID, t0)
	assert.True(t, p.MarkCompleted(t0))
	assert.False(t, p.MarkCompleted(t0.Add(time.Hour)))
	assert.Equal(t, t0, *p.CompletedAt)
	assert.Equal(t, 100.0, p.ProgressPercentage)
}
