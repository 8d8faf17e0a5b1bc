package todo

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-tools/todomcp/internal/identity"
	"github.com/kestrel-tools/todomcp/internal/store/memtest"
)

func ctxFor(subject string) context.Context {
	return identity.WithSubject(context.Background(), subject)
}

func mustArgs(t *testing.T, v map[string]any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func structuredMap(t *testing.T, result any) map[string]any {
	t.Helper()
	b, err := json.Marshal(result)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	sc, ok := m["structuredContent"]
	require.True(t, ok, "result missing structuredContent: %v", m)
	scMap, ok := sc.(map[string]any)
	require.True(t, ok)
	return scMap
}

func TestAddTaskAndListTasks(t *testing.T) {
	repo := memtest.New()
	add := NewAddTask(repo)
	list := NewListTasks(repo)
	ctx := ctxFor("alice")

	addResult, err := add.Execute(ctx, mustArgs(t, map[string]any{
		"user_id":  "alice",
		"title":    "buy milk",
		"priority": "high",
		"tags":     []string{"Errand", "errand"},
	}))
	require.NoError(t, err)
	require.False(t, addResult.IsError)
	created := structuredMap(t, addResult)
	require.Equal(t, "created", created["status"])
	taskID, _ := created["task_id"].(string)
	require.NotEmpty(t, taskID)

	listResult, err := list.Execute(ctx, mustArgs(t, map[string]any{"user_id": "alice"}))
	require.NoError(t, err)
	listed := structuredMap(t, listResult)
	require.Equal(t, float64(1), listed["count"])
}

func TestTenantIsolationMasksAsNotFound(t *testing.T) {
	repo := memtest.New()
	add := NewAddTask(repo)
	del := NewDeleteTask(repo)

	addResult, err := add.Execute(ctxFor("alice"), mustArgs(t, map[string]any{
		"user_id": "alice",
		"title":   "alice's secret",
	}))
	require.NoError(t, err)
	taskID := structuredMap(t, addResult)["task_id"].(string)

	// Bob, authenticated as himself, tries to delete Alice's task by ID.
	delResult, err := del.Execute(ctxFor("bob"), mustArgs(t, map[string]any{
		"user_id": "bob",
		"task_id": taskID,
	}))
	require.NoError(t, err)
	require.True(t, delResult.IsError)
	env := structuredMap(t, delResult)
	require.Equal(t, "not_found", env["error_type"])
}

func TestIdentityMismatchIsUnauthorized(t *testing.T) {
	repo := memtest.New()
	add := NewAddTask(repo)

	// Authenticated as bob, but claims to act as alice.
	result, err := add.Execute(ctxFor("bob"), mustArgs(t, map[string]any{
		"user_id": "alice",
		"title":   "spoofed",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	env := structuredMap(t, result)
	require.Equal(t, "unauthorized", env["error_type"])
}

func TestCompleteTaskTogglesNonIdempotently(t *testing.T) {
	repo := memtest.New()
	add := NewAddTask(repo)
	complete := NewCompleteTask(repo)
	ctx := ctxFor("alice")

	addResult, err := add.Execute(ctx, mustArgs(t, map[string]any{
		"user_id": "alice",
		"title":   "toggle me",
	}))
	require.NoError(t, err)
	taskID := structuredMap(t, addResult)["task_id"].(string)

	first, err := complete.Execute(ctx, mustArgs(t, map[string]any{"user_id": "alice", "task_id": taskID}))
	require.NoError(t, err)
	require.Equal(t, "completed", structuredMap(t, first)["status"])

	second, err := complete.Execute(ctx, mustArgs(t, map[string]any{"user_id": "alice", "task_id": taskID}))
	require.NoError(t, err)
	require.Equal(t, "uncompleted", structuredMap(t, second)["status"])
}

func TestAddTaskRejectsBlankTitle(t *testing.T) {
	repo := memtest.New()
	add := NewAddTask(repo)

	result, err := add.Execute(ctxFor("alice"), mustArgs(t, map[string]any{
		"user_id": "alice",
		"title":   "   ",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Equal(t, "validation", structuredMap(t, result)["error_type"])
}

func TestAddTaskRejectsInvalidTagNames(t *testing.T) {
	cases := []struct {
		name string
		tag  string
	}{
		{"embedded space", "foo bar"},
		{"embedded tab", "foo\tbar"},
		{"leading/trailing space collapses to embedded space", " foo  bar "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := memtest.New()
			add := NewAddTask(repo)

			result, err := add.Execute(ctxFor("alice"), mustArgs(t, map[string]any{
				"user_id": "alice",
				"title":   "tagged wrong",
				"tags":    []string{tc.tag},
			}))
			require.NoError(t, err)
			require.True(t, result.IsError)
			require.Equal(t, "validation", structuredMap(t, result)["error_type"])
		})
	}
}

func TestUpdateTaskRequiresAtLeastOneField(t *testing.T) {
	repo := memtest.New()
	add := NewAddTask(repo)
	update := NewUpdateTask(repo)
	ctx := ctxFor("alice")

	addResult, err := add.Execute(ctx, mustArgs(t, map[string]any{
		"user_id": "alice",
		"title":   "needs a field",
	}))
	require.NoError(t, err)
	taskID := structuredMap(t, addResult)["task_id"].(string)

	result, err := update.Execute(ctx, mustArgs(t, map[string]any{
		"user_id": "alice",
		"task_id": taskID,
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Equal(t, "validation", structuredMap(t, result)["error_type"])
}

func TestUpdateTaskTagsAbsentVsExplicitEmpty(t *testing.T) {
	repo := memtest.New()
	add := NewAddTask(repo)
	update := NewUpdateTask(repo)
	list := NewListTasks(repo)
	ctx := ctxFor("alice")

	addResult, err := add.Execute(ctx, mustArgs(t, map[string]any{
		"user_id": "alice",
		"title":   "tagged",
		"tags":    []string{"work"},
	}))
	require.NoError(t, err)
	taskID := structuredMap(t, addResult)["task_id"].(string)

	// Updating title only must leave tags untouched.
	_, err = update.Execute(ctx, mustArgs(t, map[string]any{
		"user_id": "alice",
		"task_id": taskID,
		"title":   "still tagged",
	}))
	require.NoError(t, err)

	listResult, err := list.Execute(ctx, mustArgs(t, map[string]any{"user_id": "alice"}))
	require.NoError(t, err)
	items := structuredMap(t, listResult)["tasks"].([]any)
	require.Len(t, items, 1)
	tagsAfterTitleUpdate := items[0].(map[string]any)["tags"].([]any)
	require.Equal(t, []any{"work"}, tagsAfterTitleUpdate)

	// Explicit empty tags must clear them.
	_, err = update.Execute(ctx, mustArgs(t, map[string]any{
		"user_id": "alice",
		"task_id": taskID,
		"tags":    []string{},
	}))
	require.NoError(t, err)

	listResult2, err := list.Execute(ctx, mustArgs(t, map[string]any{"user_id": "alice"}))
	require.NoError(t, err)
	items2 := structuredMap(t, listResult2)["tasks"].([]any)
	tagsAfterClear := items2[0].(map[string]any)["tags"].([]any)
	require.Empty(t, tagsAfterClear)
}

func TestListTasksPrioritySortHighestFirstOnAsc(t *testing.T) {
	repo := memtest.New()
	add := NewAddTask(repo)
	list := NewListTasks(repo)
	ctx := ctxFor("alice")

	for _, p := range []string{"low", "high", "medium"} {
		_, err := add.Execute(ctx, mustArgs(t, map[string]any{
			"user_id":  "alice",
			"title":    p + " task",
			"priority": p,
		}))
		require.NoError(t, err)
	}

	result, err := list.Execute(ctx, mustArgs(t, map[string]any{
		"user_id": "alice",
		"sort":    "priority",
		"order":   "asc",
	}))
	require.NoError(t, err)
	items := structuredMap(t, result)["tasks"].([]any)
	require.Len(t, items, 3)
	require.Equal(t, "high task", items[0].(map[string]any)["title"])
	require.Equal(t, "medium task", items[1].(map[string]any)["title"])
	require.Equal(t, "low task", items[2].(map[string]any)["title"])
}

func TestDeleteTaskCapturesTitleBeforeRemoving(t *testing.T) {
	repo := memtest.New()
	add := NewAddTask(repo)
	del := NewDeleteTask(repo)
	list := NewListTasks(repo)
	ctx := ctxFor("alice")

	addResult, err := add.Execute(ctx, mustArgs(t, map[string]any{
		"user_id": "alice",
		"title":   "gone soon",
	}))
	require.NoError(t, err)
	taskID := structuredMap(t, addResult)["task_id"].(string)

	delResult, err := del.Execute(ctx, mustArgs(t, map[string]any{"user_id": "alice", "task_id": taskID}))
	require.NoError(t, err)
	require.False(t, delResult.IsError)
	require.Equal(t, "gone soon", structuredMap(t, delResult)["title"])
	require.Equal(t, "deleted", structuredMap(t, delResult)["status"])

	listResult, err := list.Execute(ctx, mustArgs(t, map[string]any{"user_id": "alice"}))
	require.NoError(t, err)
	require.Equal(t, float64(0), structuredMap(t, listResult)["count"])
}
