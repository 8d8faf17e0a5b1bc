package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-tools/todomcp/internal/apperr"
	"github.com/kestrel-tools/todomcp/internal/tasks"
)

func TestValidateAddTask(t *testing.T) {
	t.Run("valid arguments", func(t *testing.T) {
		params, err := ValidateAddTask(map[string]any{
			"user_id":     "u1",
			"title":       "Report",
			"description": "write it",
			"priority":    "high",
			"tags":        []any{"Work", "work", " Urgent "},
		})
		require.Nil(t, err)
		assert.Equal(t, "u1", params.UserID)
		assert.Equal(t, "Report", params.Title)
		assert.Equal(t, tasks.PriorityHigh, params.Priority)
		assert.Equal(t, []string{"work", "urgent"}, params.Tags)
	})

	t.Run("blank title fails validation and names the field", func(t *testing.T) {
		_, err := ValidateAddTask(map[string]any{
			"user_id": "u1",
			"title":   "   ",
		})
		require.NotNil(t, err)
		assert.Equal(t, apperr.Validation, err.ErrType)
		assert.Equal(t, "title", err.Details["field"])
	})

	t.Run("unknown priority fails validation", func(t *testing.T) {
		_, err := ValidateAddTask(map[string]any{
			"user_id":  "u1",
			"title":    "x",
			"priority": "urgent",
		})
		require.NotNil(t, err)
		assert.Equal(t, apperr.Validation, err.ErrType)
	})

	t.Run("too many tags fails validation", func(t *testing.T) {
		many := make([]any, 21)
		for i := range many {
			many[i] = "tag"
		}
		_, err := ValidateAddTask(map[string]any{
			"user_id": "u1",
			"title":   "x",
			"tags":    many,
		})
		require.NotNil(t, err)
		assert.Equal(t, apperr.Validation, err.ErrType)
	})

	t.Run("tag with embedded whitespace fails validation", func(t *testing.T) {
		_, err := ValidateAddTask(map[string]any{
			"user_id": "u1",
			"title":   "x",
			"tags":    []any{"foo bar"},
		})
		require.NotNil(t, err)
		assert.Equal(t, apperr.Validation, err.ErrType)
		assert.Equal(t, "tags", err.Details["field"])
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		_, err := ValidateAddTask(map[string]any{
			"user_id": "u1",
			"title":   "x",
			"bogus":   "nope",
		})
		require.NotNil(t, err)
		assert.Equal(t, apperr.Validation, err.ErrType)
	})
}

func TestValidateUpdateTask_CrossFieldRule(t *testing.T) {
	_, _, _, err := ValidateUpdateTask(map[string]any{
		"user_id": "u1",
		"task_id": "t1",
	})
	require.NotNil(t, err)
	assert.Equal(t, apperr.Validation, err.ErrType)
	assert.Equal(t, "fields", err.Details["field"])
}

func TestValidateUpdateTask_TagsAbsentVsEmpty(t *testing.T) {
	t.Run("tags absent leaves TagsSet false", func(t *testing.T) {
		_, _, patch, err := ValidateUpdateTask(map[string]any{
			"user_id":     "u1",
			"task_id":     "t1",
			"description": "draft",
		})
		require.Nil(t, err)
		assert.False(t, patch.TagsSet)
		assert.Nil(t, patch.Tags)
	})

	t.Run("explicit empty tags sets TagsSet true with empty slice", func(t *testing.T) {
		_, _, patch, err := ValidateUpdateTask(map[string]any{
			"user_id": "u1",
			"task_id": "t1",
			"tags":    []any{},
		})
		require.Nil(t, err)
		assert.True(t, patch.TagsSet)
		assert.Empty(t, patch.Tags)
	})
}

func TestValidateListTasks_Defaults(t *testing.T) {
	params, err := ValidateListTasks(map[string]any{"user_id": "u1"})
	require.Nil(t, err)
	assert.Equal(t, tasks.StatusAll, params.Filter.Status)
	assert.Equal(t, "all", params.Filter.Priority)
	assert.Equal(t, tasks.DefaultSort(), params.Sort)
}

func TestValidateCompleteTask_RequiresTaskID(t *testing.T) {
	_, err := ValidateCompleteTask(map[string]any{"user_id": "u1"})
	require.NotNil(t, err)
	assert.Equal(t, apperr.Validation, err.ErrType)
}
