// Package memtest provides an in-memory tasks.Repository for exercising
// handlers and guards without a database, mirroring the semantics the
// Postgres store implements (spec.md §4.5, §4.6).
package memtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kestrel-tools/todomcp/internal/apperr"
	"github.com/kestrel-tools/todomcp/internal/tasks"
)

// Store is a concurrency-safe, in-memory tasks.Repository.
type Store struct {
	mu    sync.Mutex
	tasks map[string]*tasks.Task // id -> task
	clock func() time.Time
}

var _ tasks.Repository = (*Store)(nil)

// New creates an empty store. Tests may call SetClock to make created_at/
// updated_at deterministic.
func New() *Store {
	return &Store{
		tasks: make(map[string]*tasks.Task),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, for deterministic ordering tests.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *Store) Create(_ context.Context, owner string, fields tasks.CreateFields) (*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	priority := fields.Priority
	if priority == "" {
		priority = tasks.PriorityNone
	}
	tags, err := normalize(fields.Tags)
	if err != nil {
		return nil, err
	}
	task := &tasks.Task{
		ID:          ulid.Make().String(),
		OwnerID:     owner,
		Title:       fields.Title,
		Description: fields.Description,
		Priority:    priority,
		Tags:        tags,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	s.tasks[task.ID] = task
	return cloneTask(task), nil
}

func (s *Store) Get(_ context.Context, owner, id string) (*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.OwnerID != owner {
		return nil, tasks.ErrNotFound
	}
	return cloneTask(task), nil
}

func (s *Store) List(_ context.Context, owner string, filter tasks.Filter, sortBy tasks.Sort) ([]*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*tasks.Task
	for _, task := range s.tasks {
		if task.OwnerID != owner {
			continue
		}
		if !matchesFilter(task, filter) {
			continue
		}
		matched = append(matched, cloneTask(task))
	}

	sortTasks(matched, sortBy)
	return matched, nil
}

func matchesFilter(task *tasks.Task, filter tasks.Filter) bool {
	switch filter.Status {
	case tasks.StatusPending:
		if task.Completed {
			return false
		}
	case tasks.StatusCompleted:
		if !task.Completed {
			return false
		}
	}

	if filter.Priority != "" && filter.Priority != "all" && string(task.Priority) != filter.Priority {
		return false
	}

	if filter.NoTags {
		if len(task.Tags) != 0 {
			return false
		}
	} else if len(filter.Tags) > 0 {
		if !hasAnyTag(task.Tags, filter.Tags) {
			return false
		}
	}

	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		haystack := strings.ToLower(task.Title + " " + task.Description)
		if !strings.Contains(haystack, needle) {
			return false
		}
	}

	return true
}

func hasAnyTag(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

func sortTasks(ts []*tasks.Task, s tasks.Sort) {
	less := func(i, j int) bool {
		a, b := ts[i], ts[j]
		switch s.Field {
		case tasks.SortPriority:
			if a.Priority.Rank() != b.Priority.Rank() {
				if s.Order == tasks.OrderAsc {
					return a.Priority.Rank() > b.Priority.Rank()
				}
				return a.Priority.Rank() < b.Priority.Rank()
			}
			return a.CreatedAt.After(b.CreatedAt)
		case tasks.SortTitle:
			if a.Title != b.Title {
				if s.Order == tasks.OrderDesc {
					return a.Title > b.Title
				}
				return a.Title < b.Title
			}
			return a.CreatedAt.After(b.CreatedAt)
		default: // created_at
			if s.Order == tasks.OrderAsc {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
	}
	sort.SliceStable(ts, less)
}

func (s *Store) Update(_ context.Context, owner, id string, patch tasks.UpdatePatch) (*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.OwnerID != owner {
		return nil, tasks.ErrNotFound
	}

	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.TagsSet {
		tags, err := normalize(patch.Tags)
		if err != nil {
			return nil, err
		}
		task.Tags = tags
	}
	task.UpdatedAt = s.clock()
	task.Version++

	return cloneTask(task), nil
}

func (s *Store) ToggleCompleted(_ context.Context, owner, id string) (*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.OwnerID != owner {
		return nil, tasks.ErrNotFound
	}

	task.Completed = !task.Completed
	task.UpdatedAt = s.clock()
	task.Version++

	return cloneTask(task), nil
}

func (s *Store) Delete(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.OwnerID != owner {
		return tasks.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func normalize(names []string) ([]string, error) {
	if names == nil {
		return []string{}, nil
	}
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
	sort.Strings(out)
	return out, nil
}

func cloneTask(t *tasks.Task) *tasks.Task {
	clone := *t
	clone.Tags = append([]string(nil), t.Tags...)
	return &clone
}
