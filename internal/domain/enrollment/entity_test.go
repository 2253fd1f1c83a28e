package enrollment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
)

var t0 = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func newActive() *Enrollment {
	return New("e-1", "u-1", "c-1", "", t0)
}

func TestNew_DefaultsToActive(t *testing.T) {
	e := newActive()
	assert.Equal(t, state.EnrollmentActive, e.Status)
	assert.Equal(t, 0, e.ProgressPercentage)
	assert.Nil(t, e.CompletedAt)
	assert.True(t, e.IsActive())
}

func TestComplete_IsIdempotent(t *testing.T) {
	e := newActive()

	changed, err := e.Complete(t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)
	first := *e.CompletedAt

	changed, err = e.Complete(t0.Add(48 * time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, first, *e.CompletedAt)
	assert.Equal(t, state.EnrollmentCompleted, e.Status)
}

func TestComplete_FromDroppedFails(t *testing.T) {
	e := newActive()
	require.NoError(t, e.Drop("busy", t0))

	_, err := e.Complete(t0)
	assert.True(t, shared.IsStateTransition(err))
	assert.Equal(t, state.EnrollmentDropped, e.Status)
	assert.Nil(t, e.CompletedAt)
}

func TestDrop_OnlyFromActive(t *testing.T) {
	e := newActive()
	_, err := e.Complete(t0)
	require.NoError(t, err)

	err = e.Drop("changed mind", t0.Add(time.Hour))
	require.Error(t, err)
	assert.True(t, shared.IsStateTransition(err))
	assert.Equal(t, state.EnrollmentCompleted, e.Status)
	assert.Nil(t, e.DroppedAt)

	active := newActive()
	require.NoError(t, active.Drop("changed mind", t0))
	assert.Equal(t, state.EnrollmentDropped, active.Status)
	assert.Equal(t, "changed mind", active.DropReason)
	assert.Equal(t, t0, *active.DroppedAt)

	assert.Error(t, active.Drop("again", t0), "dropped has no edge to dropped")
}

func TestReactivate(t *testing.T) {
	tests := []struct {
		name     string
		preserve bool
		wantPct  int
	}{
		{name: "preserve progress", preserve: true, wantPct: 40},
		{name: "reset progress", preserve: false, wantPct: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newActive()
			e.MarkStarted(t0)
			e.SetProgress(40, t0)
			require.NoError(t, e.Drop("", t0.Add(time.Hour)))

			at := t0.Add(24 * time.Hour)
			require.NoError(t, e.Reactivate(at, tt.preserve))
			assert.Equal(t, "e-1", e.ID)
			assert.Equal(t, state.EnrollmentActive, e.Status)
			assert.Equal(t, tt.wantPct, e.ProgressPercentage)
			assert.Nil(t, e.DroppedAt)
			assert.Empty(t, e.DropReason)
			assert.Equal(t, at, e.EnrolledAt)
		})
	}
}

func TestReactivate_OnlyFromDropped(t *testing.T) {
	e := newActive()
	assert.True(t, shared.IsStateTransition(e.Reactivate(t0, true)))
}

func TestSetProgress_RoundsAndClamps(t *testing.T) {
	e := newActive()
	assert.True(t, e.SetProgress(33.333, t0))
	assert.Equal(t, 33, e.ProgressPercentage)
	assert.False(t, e.SetProgress(33.4, t0))
	e.SetProgress(66.5, t0)
	assert.Equal(t, 67, e.ProgressPercentage)
	e.SetProgress(140, t0)
	assert.Equal(t, 100, e.ProgressPercentage)
	e.SetProgress(-3, t0)
	assert.Equal(t, 0, e.ProgressPercentage)
}

func TestMarkStarted_OnlyOnce(t *testing.T) {
	e := newActive()
	assert.True(t, e.MarkStarted(t0))
	assert.False(t, e.MarkStarted(t0.Add(time.Hour)))
	assert.Equal(t, t0, *e.StartedAt)
}
