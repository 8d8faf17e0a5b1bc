// Package tasks defines the Task aggregate, the Tag vocabulary, and the
// repository contract the Task Repository (spec.md §4.5) must satisfy.
// Implementations live in internal/store/postgres (production) and
// internal/store/memtest (tests).
package tasks

import (
	"context"
	"time"
)

// Priority is the closed enumeration of spec.md §3.
type Priority string

const (
	PriorityNone   Priority = "none"
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// rank orders priorities from lowest to highest for sorting purposes.
var rank = map[Priority]int{
	PriorityNone:   0,
	PriorityLow:    1,
	PriorityMedium: 2,
	PriorityHigh:   3,
}

// Rank returns the ordinal rank of p, highest = most urgent.
func (p Priority) Rank() int { return rank[p] }

// ValidPriority reports whether p is one of the closed enum values.
func ValidPriority(p string) bool {
	switch Priority(p) {
	case PriorityNone, PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is the core aggregate root of spec.md §3.
type Task struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Completed   bool
	Priority    Priority
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
}

// Status is the closed filter enumeration for list_tasks (spec.md §4.5).
type Status string

const (
	StatusAll       Status = "all"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// PriorityFilter is the closed priority filter enumeration for list_tasks.
type PriorityFilter string

const (
	PriorityFilterAll PriorityFilter = "all"
)

// SortField is the closed set of sortable fields (spec.md §4.5).
type SortField string

const (
	SortPriority  SortField = "priority"
	SortTitle     SortField = "title"
	SortCreatedAt SortField = "created_at"
)

// SortOrder is asc or desc.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// Filter narrows a list_tasks query (spec.md §4.5).
type Filter struct {
	Status   Status
	Priority string // "all" or a concrete Priority value
	Tags     []string
	NoTags   bool
	Search   string
}

// Sort orders a list_tasks query (spec.md §4.5).
type Sort struct {
	Field SortField
	Order SortOrder
}

// DefaultSort is applied when the caller doesn't specify one: newest first.
func DefaultSort() Sort {
	return Sort{Field: SortCreatedAt, Order: OrderDesc}
}

// CreateFields are the inputs to Repository.Create.
type CreateFields struct {
	Title       string
	Description string
	Priority    Priority
	Tags        []string
}

// UpdatePatch carries only the fields update_task actually supplied.
// A nil pointer/slice means "field absent — do not modify" (spec.md §4.6,
// §8 scenario S5); TagsSet distinguishes an absent tags key from an
// explicit empty list.
type UpdatePatch struct {
	Title       *string
	Description *string
	Priority    *Priority
	Tags        []string
	TagsSet     bool
}

// HasAnyField reports whether the patch touches at least one mutable field,
// the cross-field rule enforced by the Parameter Validator (spec.md §4.3).
func (p UpdatePatch) HasAnyField() bool {
	return p.Title != nil || p.Description != nil || p.Priority != nil || p.TagsSet
}

// ErrNotFound is returned by Repository methods when no row matches
// (owner, id) — callers translate this to apperr.NotFoundf.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "task not found" }

// Repository is the narrow interface of spec.md §4.5. Every method is
// scoped by owner and runs inside its own transaction with the
// concurrency semantics of spec.md §5.
type Repository interface {
	Create(ctx context.Context, owner string, fields CreateFields) (*Task, error)
	Get(ctx context.Context, owner, id string) (*Task, error)
	List(ctx context.Context, owner string, filter Filter, sort Sort) ([]*Task, error)
	Update(ctx context.Context, owner, id string, patch UpdatePatch) (*Task, error)
	ToggleCompleted(ctx context.Context, owner, id string) (*Task, error)
	Delete(ctx context.Context, owner, id string) error
}
