package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-tools/todomcp/internal/tasks"
)

func TestApplyStatusFilter(t *testing.T) {
	base := dialect.From(tableTask).Prepared(true).Select("id")

	sql, _, err := applyStatusFilter(base, tasks.StatusPending).ToSQL()
	require.NoError(t, err)
	require.Contains(t, sql, `"completed" IS FALSE`)

	sql, _, err = applyStatusFilter(base, tasks.StatusCompleted).ToSQL()
	require.NoError(t, err)
	require.Contains(t, sql, `"completed" IS TRUE`)

	sql, _, err = applyStatusFilter(base, tasks.StatusAll).ToSQL()
	require.NoError(t, err)
	require.NotContains(t, sql, "completed")
}

func TestApplyPriorityFilter(t *testing.T) {
	base := dialect.From(tableTask).Prepared(true).Select("id")

	sql, args, err := applyPriorityFilter(base, "high").ToSQL()
	require.NoError(t, err)
	require.Contains(t, sql, `"priority"`)
	require.Equal(t, []any{"high"}, args)

	sql, _, err = applyPriorityFilter(base, "all").ToSQL()
	require.NoError(t, err)
	require.NotContains(t, sql, "priority")
}

func TestApplySortPriorityAscIsHighestFirst(t *testing.T) {
	base := dialect.From(tableTask).Prepared(true).Select("id")

	sql, _, err := applySort(base, tasks.Sort{Field: tasks.SortPriority, Order: tasks.OrderAsc}).ToSQL()
	require.NoError(t, err)
	// asc convention means highest-priority-first, i.e. the rank expression
	// sorts descending under the hood (spec.md §4.5's client-UI convention).
	require.Contains(t, sql, "ORDER BY CASE")
	require.Contains(t, sql, "DESC")
}

func TestApplySortTitleTiebreaksOnCreatedAt(t *testing.T) {
	base := dialect.From(tableTask).Prepared(true).Select("id")

	sql, _, err := applySort(base, tasks.Sort{Field: tasks.SortTitle, Order: tasks.OrderAsc}).ToSQL()
	require.NoError(t, err)
	require.Contains(t, sql, `"title" ASC`)
	require.Contains(t, sql, `"created_at" DESC`)
}

func TestIsRetryable(t *testing.T) {
	require.False(t, isRetryable(errors.New("boom")))
	require.True(t, isRetryable(&pgconn.PgError{Code: serializationFailure}))
	require.True(t, isRetryable(&pgconn.PgError{Code: deadlockDetected}))
	require.False(t, isRetryable(&pgconn.PgError{Code: "23505"}))
}

func TestMapErrorPassesThroughNotFound(t *testing.T) {
	require.ErrorIs(t, mapError("get", tasks.ErrNotFound), tasks.ErrNotFound)
	require.Error(t, mapError("get", errors.New("driver detail that must not leak")))
}
