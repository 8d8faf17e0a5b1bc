package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"

	"github.com/kestrel-tools/todomcp/internal/apperr"
	"github.com/kestrel-tools/todomcp/internal/tasks"
)

var _ tasks.Repository = (*Store)(nil)

type taskRow struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Completed   bool
	Priority    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
}

func (s *Store) Create(ctx context.Context, owner string, fields tasks.CreateFields) (*tasks.Task, error) {
	var result *tasks.Task
	err := s.withRetry(ctx, func(ctx context.Context, tx pgx.Tx) error {
		id := newTaskID()
		now := time.Now().UTC()
		priority := fields.Priority
		if priority == "" {
			priority = tasks.PriorityNone
		}

		insertQuery, args, err := dialect.Insert(tableTask).Prepared(true).Rows(
			goqu.Record{
				"id":          id,
				"owner_id":    owner,
				"title":       fields.Title,
				"description": fields.Description,
				"completed":   false,
				"priority":    string(priority),
				"created_at":  now,
				"updated_at":  now,
				"version":     1,
			},
		).ToSQL()
		if err != nil {
			return fmt.Errorf("build insert task: %w", err)
		}
		if _, err := tx.Exec(ctx, insertQuery, args...); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}

		if err := bindTags(ctx, tx, owner, id, fields.Tags); err != nil {
			return err
		}

		task, err := getTaskTx(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		result = task
		return nil
	})
	if err != nil {
		return nil, mapError("create", err)
	}
	return result, nil
}

func (s *Store) Get(ctx context.Context, owner, id string) (*tasks.Task, error) {
	var result *tasks.Task
	err := s.withRetry(ctx, func(ctx context.Context, tx pgx.Tx) error {
		task, err := getTaskTx(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		result = task
		return nil
	})
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			return nil, tasks.ErrNotFound
		}
		return nil, mapError("get", err)
	}
	return result, nil
}

// getTaskTx fetches a single owner-scoped task row plus its tags, taking no
// lock. Callers that intend to mutate the row must lock it separately
// (lockTaskForUpdate).
func getTaskTx(ctx context.Context, tx pgx.Tx, owner, id string) (*tasks.Task, error) {
	query, args, err := dialect.From(tableTask).Prepared(true).
		Select("id", "owner_id", "title", "description", "completed", "priority", "created_at", "updated_at", "version").
		Where(goqu.C("owner_id").Eq(owner), goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get task query: %w", err)
	}

	var row taskRow
	err = tx.QueryRow(ctx, query, args...).Scan(
		&row.ID, &row.OwnerID, &row.Title, &row.Description, &row.Completed,
		&row.Priority, &row.CreatedAt, &row.UpdatedAt, &row.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tasks.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	tagNames, err := tagsForTask(ctx, tx, row.ID)
	if err != nil {
		return nil, err
	}

	return rowToTask(row, tagNames), nil
}

// lockTaskForUpdate re-reads the target row under SELECT ... FOR UPDATE,
// the row-level lock mutating operations take per spec.md §4.5/§5.
func lockTaskForUpdate(ctx context.Context, tx pgx.Tx, owner, id string) (*taskRow, error) {
	query, args, err := dialect.From(tableTask).Prepared(true).
		Select("id", "owner_id", "title", "description", "completed", "priority", "created_at", "updated_at", "version").
		Where(goqu.C("owner_id").Eq(owner), goqu.C("id").Eq(id)).
		ForUpdate(exp.Wait).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build lock task query: %w", err)
	}

	var row taskRow
	err = tx.QueryRow(ctx, query, args...).Scan(
		&row.ID, &row.OwnerID, &row.Title, &row.Description, &row.Completed,
		&row.Priority, &row.CreatedAt, &row.UpdatedAt, &row.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tasks.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock task: %w", err)
	}
	return &row, nil
}

func rowToTask(row taskRow, tagNames []string) *tasks.Task {
	if tagNames == nil {
		tagNames = []string{}
	}
	return &tasks.Task{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Title:       row.Title,
		Description: row.Description,
		Completed:   row.Completed,
		Priority:    tasks.Priority(row.Priority),
		Tags:        tagNames,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		Version:     row.Version,
	}
}

func (s *Store) List(ctx context.Context, owner string, filter tasks.Filter, sort tasks.Sort) ([]*tasks.Task, error) {
	var result []*tasks.Task
	err := s.withRetry(ctx, func(ctx context.Context, tx pgx.Tx) error {
		ds := dialect.From(tableTask).Prepared(true).
			Select(
				goqu.I(tableTask+".id"), goqu.I(tableTask+".owner_id"), goqu.I(tableTask+".title"),
				goqu.I(tableTask+".description"), goqu.I(tableTask+".completed"), goqu.I(tableTask+".priority"),
				goqu.I(tableTask+".created_at"), goqu.I(tableTask+".updated_at"), goqu.I(tableTask+".version"),
			).
			Where(goqu.I(tableTask + ".owner_id").Eq(owner))

		ds = applyStatusFilter(ds, filter.Status)
		ds = applyPriorityFilter(ds, filter.Priority)
		ds, err := applyTagFilter(ctx, tx, owner, ds, filter)
		if err != nil {
			return err
		}
		ds = applySearchFilter(ds, filter.Search)
		ds = applySort(ds, sort)

		query, args, err := ds.ToSQL()
		if err != nil {
			return fmt.Errorf("build list query: %w", err)
		}

		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		defer rows.Close()

		var collected []taskRow
		for rows.Next() {
			var row taskRow
			if err := rows.Scan(
				&row.ID, &row.OwnerID, &row.Title, &row.Description, &row.Completed,
				&row.Priority, &row.CreatedAt, &row.UpdatedAt, &row.Version,
			); err != nil {
				return fmt.Errorf("scan task row: %w", err)
			}
			collected = append(collected, row)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate task rows: %w", err)
		}

		out := make([]*tasks.Task, 0, len(collected))
		for _, row := range collected {
			tagNames, err := tagsForTask(ctx, tx, row.ID)
			if err != nil {
				return err
			}
			out = append(out, rowToTask(row, tagNames))
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, mapError("list", err)
	}
	return result, nil
}

func applyStatusFilter(ds *goqu.SelectDataset, status tasks.Status) *goqu.SelectDataset {
	switch status {
	case tasks.StatusPending:
		return ds.Where(goqu.I(tableTask + ".completed").IsFalse())
	case tasks.StatusCompleted:
		return ds.Where(goqu.I(tableTask + ".completed").IsTrue())
	default:
		return ds
	}
}

func applyPriorityFilter(ds *goqu.SelectDataset, priority string) *goqu.SelectDataset {
	if priority == "" || priority == "all" {
		return ds
	}
	return ds.Where(goqu.I(tableTask + ".priority").Eq(priority))
}

// applyTagFilter implements the OR-semantics tag filter and the no_tags
// precedence rule of spec.md §4.5. Rather than nest a nested EXISTS
// subquery, it resolves the matching task IDs with a separate query in the
// same transaction and folds the result into a plain IN/NOT IN predicate —
// simpler to keep correct across goqu's prepared-placeholder bookkeeping
// than hand-merged nested SQL would be.
func applyTagFilter(ctx context.Context, tx pgx.Tx, owner string, ds *goqu.SelectDataset, filter tasks.Filter) (*goqu.SelectDataset, error) {
	if filter.NoTags {
		taggedIDs, err := taskIDsWithAnyTag(ctx, tx, owner)
		if err != nil {
			return nil, err
		}
		if len(taggedIDs) == 0 {
			return ds, nil
		}
		return ds.Where(goqu.I(tableTask + ".id").NotIn(anySlice(taggedIDs)...)), nil
	}
	if len(filter.Tags) == 0 {
		return ds, nil
	}

	matchingIDs, err := taskIDsWithAnyOfTags(ctx, tx, owner, filter.Tags)
	if err != nil {
		return nil, err
	}
	if len(matchingIDs) == 0 {
		return ds.Where(goqu.L("1 = 0")), nil
	}
	return ds.Where(goqu.I(tableTask + ".id").In(anySlice(matchingIDs)...)), nil
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// taskIDsWithAnyTag returns the IDs of every task under owner that has at
// least one bound tag.
func taskIDsWithAnyTag(ctx context.Context, tx pgx.Tx, owner string) ([]string, error) {
	query, args, err := dialect.From(goqu.T(tableTaskTag).As("tt")).Prepared(true).
		Select(goqu.I("tt.task_id")).
		InnerJoin(goqu.T(tableTask).As("t"), goqu.On(goqu.I("t.id").Eq(goqu.I("tt.task_id")))).
		Where(goqu.I("t.owner_id").Eq(owner)).
		Distinct().
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build tagged task ids query: %w", err)
	}
	return queryTaskIDs(ctx, tx, query, args)
}

// taskIDsWithAnyOfTags returns the IDs of every task under owner bound to
// at least one of names.
func taskIDsWithAnyOfTags(ctx context.Context, tx pgx.Tx, owner string, names []string) ([]string, error) {
	query, args, err := dialect.From(goqu.T(tableTaskTag).As("tt")).Prepared(true).
		Select(goqu.I("tt.task_id")).
		InnerJoin(goqu.T(tableTask).As("t"), goqu.On(goqu.I("t.id").Eq(goqu.I("tt.task_id")))).
		InnerJoin(goqu.T(tableTag).As("tg"), goqu.On(goqu.I("tg.id").Eq(goqu.I("tt.tag_id")))).
		Where(
			goqu.I("t.owner_id").Eq(owner),
			goqu.I("tg.name").In(anySlice(names)...),
		).
		Distinct().
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build tag-matched task ids query: %w", err)
	}
	return queryTaskIDs(ctx, tx, query, args)
}

func queryTaskIDs(ctx context.Context, tx pgx.Tx, query string, args []any) ([]string, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query task ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan task id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func applySearchFilter(ds *goqu.SelectDataset, search string) *goqu.SelectDataset {
	if search == "" {
		return ds
	}
	pattern := "%" + search + "%"
	return ds.Where(goqu.Or(
		goqu.I(tableTask+".title").ILike(pattern),
		goqu.I(tableTask+".description").ILike(pattern),
	))
}

// applySort implements the closed sort set and tie-break rules of spec.md
// §4.5: priority and title sorts tie-break by created_at desc; created_at
// sorts have no secondary key. Priority's "asc" convention means
// highest-first, matching the client UI convention spec.md §4.5 calls out.
func applySort(ds *goqu.SelectDataset, sort tasks.Sort) *goqu.SelectDataset {
	priorityRank := goqu.L("CASE " + tableTask + ".priority " +
		"WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END")

	switch sort.Field {
	case tasks.SortPriority:
		if sort.Order == tasks.OrderAsc {
			return ds.Order(priorityRank.Desc(), goqu.I(tableTask+".created_at").Desc())
		}
		return ds.Order(priorityRank.Asc(), goqu.I(tableTask+".created_at").Desc())
	case tasks.SortTitle:
		if sort.Order == tasks.OrderDesc {
			return ds.Order(goqu.I(tableTask+".title").Desc(), goqu.I(tableTask+".created_at").Desc())
		}
		return ds.Order(goqu.I(tableTask+".title").Asc(), goqu.I(tableTask+".created_at").Desc())
	default: // created_at
		if sort.Order == tasks.OrderAsc {
			return ds.Order(goqu.I(tableTask + ".created_at").Asc())
		}
		return ds.Order(goqu.I(tableTask + ".created_at").Desc())
	}
}

func (s *Store) Update(ctx context.Context, owner, id string, patch tasks.UpdatePatch) (*tasks.Task, error) {
	var result *tasks.Task
	err := s.withRetry(ctx, func(ctx context.Context, tx pgx.Tx) error {
		row, err := lockTaskForUpdate(ctx, tx, owner, id)
		if err != nil {
			return err
		}

		updates := goqu.Record{
			"updated_at": time.Now().UTC(),
			"version":    row.Version + 1,
		}
		if patch.Title != nil {
			updates["title"] = *patch.Title
		}
		if patch.Description != nil {
			updates["description"] = *patch.Description
		}
		if patch.Priority != nil {
			updates["priority"] = string(*patch.Priority)
		}

		updateQuery, args, err := dialect.Update(tableTask).Prepared(true).
			Set(updates).
			Where(goqu.C("id").Eq(id), goqu.C("owner_id").Eq(owner), goqu.C("version").Eq(row.Version)).
			ToSQL()
		if err != nil {
			return fmt.Errorf("build update task: %w", err)
		}
		tag, err := tx.Exec(ctx, updateQuery, args...)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.Internalf("task was modified concurrently, retry")
		}

		if patch.TagsSet {
			if err := bindTags(ctx, tx, owner, id, patch.Tags); err != nil {
				return err
			}
		}

		task, err := getTaskTx(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		result = task
		return nil
	})
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			return nil, tasks.ErrNotFound
		}
		return nil, mapError("update", err)
	}
	return result, nil
}

func (s *Store) ToggleCompleted(ctx context.Context, owner, id string) (*tasks.Task, error) {
	var result *tasks.Task
	err := s.withRetry(ctx, func(ctx context.Context, tx pgx.Tx) error {
		row, err := lockTaskForUpdate(ctx, tx, owner, id)
		if err != nil {
			return err
		}

		updateQuery, args, err := dialect.Update(tableTask).Prepared(true).
			Set(goqu.Record{
				"completed":  !row.Completed,
				"updated_at": time.Now().UTC(),
				"version":    row.Version + 1,
			}).
			Where(goqu.C("id").Eq(id), goqu.C("owner_id").Eq(owner), goqu.C("version").Eq(row.Version)).
			ToSQL()
		if err != nil {
			return fmt.Errorf("build toggle task: %w", err)
		}
		tag, err := tx.Exec(ctx, updateQuery, args...)
		if err != nil {
			return fmt.Errorf("toggle task: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.Internalf("task was modified concurrently, retry")
		}

		task, err := getTaskTx(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		result = task
		return nil
	})
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			return nil, tasks.ErrNotFound
		}
		return nil, mapError("toggle_completed", err)
	}
	return result, nil
}

func (s *Store) Delete(ctx context.Context, owner, id string) error {
	err := s.withRetry(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := lockTaskForUpdate(ctx, tx, owner, id); err != nil {
			return err
		}

		deleteTagsQuery, args, err := dialect.Delete(tableTaskTag).Prepared(true).
			Where(goqu.C("task_id").Eq(id)).
			ToSQL()
		if err != nil {
			return fmt.Errorf("build delete task tags: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteTagsQuery, args...); err != nil {
			return fmt.Errorf("delete task tags: %w", err)
		}

		deleteQuery, args, err := dialect.Delete(tableTask).Prepared(true).
			Where(goqu.C("id").Eq(id), goqu.C("owner_id").Eq(owner)).
			ToSQL()
		if err != nil {
			return fmt.Errorf("build delete task: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteQuery, args...); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return gcOrphanedTags(ctx, tx, owner)
	})
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			return tasks.ErrNotFound
		}
		return mapError("delete", err)
	}
	return nil
}
