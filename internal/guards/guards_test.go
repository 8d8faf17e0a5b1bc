package guards

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-tools/todomcp/internal/apperr"
	"github.com/kestrel-tools/todomcp/internal/tasks"
)

func TestIdentityMatch(t *testing.T) {
	t.Run("matching subject passes", func(t *testing.T) {
		err := IdentityMatch.Check(context.Background(), &Context{Subject: "alice", ParamsUserID: "alice"})
		require.Nil(t, err)
	})

	t.Run("mismatched subject is unauthorized", func(t *testing.T) {
		err := IdentityMatch.Check(context.Background(), &Context{Subject: "bob", ParamsUserID: "alice"})
		require.NotNil(t, err)
		require.Equal(t, apperr.Unauthorized, err.ErrType)
	})

	t.Run("empty subject is unauthorized", func(t *testing.T) {
		err := IdentityMatch.Check(context.Background(), &Context{Subject: "", ParamsUserID: ""})
		require.NotNil(t, err)
		require.Equal(t, apperr.Unauthorized, err.ErrType)
	})
}

func TestTaskOwnership(t *testing.T) {
	t.Run("owned task passes", func(t *testing.T) {
		err := TaskOwnership.Check(context.Background(), &Context{
			Subject: "alice",
			Task:    &tasks.Task{OwnerID: "alice"},
		})
		require.Nil(t, err)
	})

	t.Run("task owned by someone else is not_found, not unauthorized", func(t *testing.T) {
		err := TaskOwnership.Check(context.Background(), &Context{
			Subject: "bob",
			Task:    &tasks.Task{OwnerID: "alice"},
		})
		require.NotNil(t, err)
		require.Equal(t, apperr.NotFound, err.ErrType)
	})

	t.Run("nil task is not_found", func(t *testing.T) {
		err := TaskOwnership.Check(context.Background(), &Context{Subject: "alice", Task: nil})
		require.NotNil(t, err)
		require.Equal(t, apperr.NotFound, err.ErrType)
	})
}

func TestRunnerStopsAtFirstFailure(t *testing.T) {
	calls := 0
	first := NewGuardFunc("first", func(_ context.Context, _ *Context) *apperr.Error {
		calls++
		return apperr.Unauthorizedf("nope")
	})
	second := NewGuardFunc("second", func(_ context.Context, _ *Context) *apperr.Error {
		calls++
		return nil
	})

	err := NewRunner().Run(context.Background(), &Context{}, []Guard{first, second})
	require.NotNil(t, err)
	require.Equal(t, 1, calls)
}

func TestForTaskScopeOrder(t *testing.T) {
	gs := ForTaskScope()
	require.Len(t, gs, 2)
	require.Equal(t, "identity_match", gs[0].Name())
	require.Equal(t, "task_ownership", gs[1].Name())
}
