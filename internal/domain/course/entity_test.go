package course

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
)

func TestCourse_ChangeStatus(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c := &Course{ID: "c-1", Status: state.CourseDraft}

	require.NoError(t, c.ChangeStatus(state.CourseArchived, at))
	require.NoError(t, c.ChangeStatus(state.CoursePublished, at))
	assert.Equal(t, state.CoursePublished, c.Status)
	assert.Equal(t, at, c.UpdatedAt)

	err := c.ChangeStatus(state.CoursePublished, at)
	assert.True(t, shared.IsStateTransition(err))
}

func TestCourse_IsFree(t *testing.T) {
	assert.True(t, (&Course{}).IsFree())
	assert.False(t, (&Course{Price: 150000}).IsFree())
}

func TestContentType_IsMedia(t *testing.T) {
	assert.True(t, ContentVideo.IsMedia())
	assert.True(t, ContentAudio.IsMedia())
	assert.False(t, ContentDocument.IsMedia())
}
