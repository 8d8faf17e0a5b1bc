// Package guards implements the Authorization Guard (spec.md §4.4): the
// single predicate applied before every state access. It keeps the
// composable Guard/Runner shape of the system this was adapted from, but
// narrowed to the closed error taxonomy of spec.md §7 — there is no
// soft-block/force override here, only "unauthorized" and "not_found".
package guards

import (
	"context"

	"github.com/kestrel-tools/todomcp/internal/apperr"
	"github.com/kestrel-tools/todomcp/internal/tasks"
)

// Context carries what a guard needs to decide whether a call may proceed.
type Context struct {
	// Subject is the verified identity from the Identity Gate.
	Subject string
	// ParamsUserID is the user_id argument the caller supplied.
	ParamsUserID string
	// Task is the target task, when the operation addresses one (nil for
	// add_task/list_tasks, which have no single target).
	Task *tasks.Task
}

// Guard is a single authorization check.
type Guard interface {
	Name() string
	Check(ctx context.Context, gctx *Context) *apperr.Error
}

// GuardFunc adapts a plain function to the Guard interface.
type GuardFunc struct {
	name  string
	check func(ctx context.Context, gctx *Context) *apperr.Error
}

// NewGuardFunc creates a guard from a function.
func NewGuardFunc(name string, fn func(ctx context.Context, gctx *Context) *apperr.Error) *GuardFunc {
	return &GuardFunc{name: name, check: fn}
}

func (g *GuardFunc) Name() string { return g.name }
func (g *GuardFunc) Check(ctx context.Context, gctx *Context) *apperr.Error {
	return g.check(ctx, gctx)
}

// Runner executes a set of guards in order and stops at the first failure.
type Runner struct{}

// NewRunner creates a guard runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run evaluates each guard in order, returning the first failure. A nil
// return means every guard passed and the call may proceed.
func (r *Runner) Run(ctx context.Context, gctx *Context, gs []Guard) *apperr.Error {
	for _, g := range gs {
		if err := g.Check(ctx, gctx); err != nil {
			return err
		}
	}
	return nil
}

// IdentityMatch is the first half of spec.md §4.4: the verified subject
// must equal the user_id argument the caller supplied.
var IdentityMatch = NewGuardFunc("identity_match", func(_ context.Context, gctx *Context) *apperr.Error {
	if gctx.Subject == "" || gctx.Subject != gctx.ParamsUserID {
		return apperr.Unauthorizedf("user_id does not match the authenticated caller")
	}
	return nil
})

// TaskOwnership is the second half of spec.md §4.4: a task-scoped call must
// be owned by the subject. Mismatches return not_found, never unauthorized,
// so a caller cannot distinguish "doesn't exist" from "exists but isn't
// mine" (spec.md §4.4 rationale, invariant 1 in spec.md §8).
var TaskOwnership = NewGuardFunc("task_ownership", func(_ context.Context, gctx *Context) *apperr.Error {
	if gctx.Task == nil || gctx.Task.OwnerID != gctx.Subject {
		return apperr.NotFoundf("task not found")
	}
	return nil
})

// ForUserScope is the guard set for add_task/list_tasks, which address no
// single task.
func ForUserScope() []Guard {
	return []Guard{IdentityMatch}
}

// ForTaskScope is the guard set for complete_task/update_task/delete_task.
func ForTaskScope() []Guard {
	return []Guard{IdentityMatch, TaskOwnership}
}
