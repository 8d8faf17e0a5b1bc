package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/kestrel-tools/todomcp/internal/apperr"
)

// normalizeNames is the Tag Subsystem's normalize() (spec.md §4.6): lowercase,
// trim, dedupe, and reject any element failing the tag constraint (single
// word, no internal whitespace). The Parameter Validator already does this
// on the way in; this is the repository's own belt-and-suspenders pass,
// since bind() is reachable only from here.
func normalizeNames(names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		trimmed := strings.ToLower(strings.TrimSpace(n))
		if trimmed == "" {
			continue
		}
		if strings.ContainsAny(trimmed, " \t\n\r\v\f") {
			return nil, apperr.Validationf("tags", "tag name %q must be a single word with no whitespace", trimmed)
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out, nil
}

// bindTags implements the Tag Subsystem's bind() (spec.md §4.6): ensure
// each name exists for owner (creating lazily), then replace the task's
// association set with exactly this set, all within tx.
func bindTags(ctx context.Context, tx pgx.Tx, owner, taskID string, names []string) error {
	normalized, err := normalizeNames(names)
	if err != nil {
		return err
	}

	tagIDs := make([]string, 0, len(normalized))
	for _, name := range normalized {
		id, err := ensureTag(ctx, tx, owner, name)
		if err != nil {
			return err
		}
		tagIDs = append(tagIDs, id)
	}

	deleteQuery, args, err := dialect.Delete(tableTaskTag).Prepared(true).
		Where(goqu.C("task_id").Eq(taskID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build clear task tags: %w", err)
	}
	if _, err := tx.Exec(ctx, deleteQuery, args...); err != nil {
		return fmt.Errorf("clear task tags: %w", err)
	}

	for _, tagID := range tagIDs {
		insertQuery, args, err := dialect.Insert(tableTaskTag).Prepared(true).Rows(
			goqu.Record{"task_id": taskID, "tag_id": tagID},
		).ToSQL()
		if err != nil {
			return fmt.Errorf("build bind tag: %w", err)
		}
		if _, err := tx.Exec(ctx, insertQuery, args...); err != nil {
			return fmt.Errorf("bind tag %q: %w", tagID, err)
		}
	}

	return gcOrphanedTags(ctx, tx, owner)
}

// gcOrphanedTags deletes an owner's tags that are no longer bound to any
// task. Garbage collection is permitted, not required, by the tag lifecycle
// (spec.md §4.6, §9), so this runs opportunistically inside the caller's
// transaction after every bind rather than on its own schedule; an error
// here fails the enclosing operation.
func gcOrphanedTags(ctx context.Context, tx pgx.Tx, owner string) error {
	query, args, err := dialect.Delete(tableTag).Prepared(true).
		Where(
			goqu.C("owner_id").Eq(owner),
			goqu.L(fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s WHERE %s.tag_id = %s.id)", tableTaskTag, tableTaskTag, tableTag)),
		).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build gc orphaned tags: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("gc orphaned tags: %w", err)
	}
	return nil
}

// ensureTag creates the (owner, name) tag row if absent and returns its id.
// Tag identity is (owner, name) per spec.md §4.6; concurrent creators race
// harmlessly via ON CONFLICT DO NOTHING followed by a re-select.
func ensureTag(ctx context.Context, tx pgx.Tx, owner, name string) (string, error) {
	id := generateTagID()
	insertQuery, args, err := dialect.Insert(tableTag).Prepared(true).Rows(
		goqu.Record{"id": id, "owner_id": owner, "name": name},
	).OnConflict(goqu.DoNothing()).ToSQL()
	if err != nil {
		return "", fmt.Errorf("build ensure tag: %w", err)
	}
	if _, err := tx.Exec(ctx, insertQuery, args...); err != nil {
		return "", fmt.Errorf("ensure tag %q: %w", name, err)
	}

	selectQuery, args, err := dialect.From(tableTag).Prepared(true).
		Select("id").
		Where(goqu.C("owner_id").Eq(owner), goqu.C("name").Eq(name)).
		ToSQL()
	if err != nil {
		return "", fmt.Errorf("build select tag: %w", err)
	}

	var tagID string
	if err := tx.QueryRow(ctx, selectQuery, args...).Scan(&tagID); err != nil {
		return "", fmt.Errorf("select tag %q: %w", name, err)
	}
	return tagID, nil
}

// tagsForTask returns the owner-scoped tag names currently bound to taskID,
// sorted for deterministic output.
func tagsForTask(ctx context.Context, tx pgx.Tx, taskID string) ([]string, error) {
	query, args, err := dialect.From(tableTag).Prepared(true).
		Select(goqu.I(tableTag+".name")).
		InnerJoin(goqu.T(tableTaskTag), goqu.On(goqu.I(tableTag+".id").Eq(goqu.I(tableTaskTag+".tag_id")))).
		Where(goqu.I(tableTaskTag+".task_id").Eq(taskID)).
		Order(goqu.I(tableTag + ".name").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build task tags query: %w", err)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query task tags: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan task tag: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
