// Package todo implements the five MCP tools of the to-do surface —
// add_task, list_tasks, complete_task, update_task, delete_task — wiring
// the Parameter Validator (C3), the Authorization Guard (C4), and the Task
// Repository (C5/C6) behind the mcp.Tool interface (C2).
package todo

import (
	"context"
	"encoding/json"

	"github.com/kestrel-tools/todomcp/internal/apperr"
	"github.com/kestrel-tools/todomcp/internal/guards"
	"github.com/kestrel-tools/todomcp/internal/identity"
	"github.com/kestrel-tools/todomcp/internal/tasks"
)

// decodeArgs unmarshals a tool's raw JSON arguments into a map, the shape
// every validation.ValidateXxx function expects.
func decodeArgs(raw json.RawMessage) (map[string]any, *apperr.Error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, apperr.Validationf("", "arguments must be a JSON object: %s", err.Error())
	}
	return args, nil
}

// checkUserScope runs the user-scope guard set for add_task/list_tasks,
// which address no single task.
func checkUserScope(ctx context.Context, userID string) *apperr.Error {
	gctx := &guards.Context{
		Subject:      identity.SubjectFrom(ctx),
		ParamsUserID: userID,
	}
	return guards.NewRunner().Run(ctx, gctx, guards.ForUserScope())
}

// resolveTaskScope runs the identity guard, fetches the target task scoped
// to the verified subject, and runs the ownership guard before returning
// it. A task owned by someone else is indistinguishable from a missing one
// (spec.md §4.4, §8 invariant 1): both paths return not_found here.
func resolveTaskScope(ctx context.Context, repo tasks.Repository, userID, taskID string) (*tasks.Task, *apperr.Error) {
	subject := identity.SubjectFrom(ctx)
	gctx := &guards.Context{Subject: subject, ParamsUserID: userID}

	if err := guards.NewRunner().Run(ctx, gctx, guards.ForUserScope()); err != nil {
		return nil, err
	}

	task, repoErr := repo.Get(ctx, subject, taskID)
	if repoErr != nil {
		if repoErr == tasks.ErrNotFound {
			return nil, apperr.NotFoundf("task not found")
		}
		return nil, apperr.Internalf("failed to look up task")
	}

	gctx.Task = task
	if err := guards.NewRunner().Run(ctx, gctx, []guards.Guard{guards.TaskOwnership}); err != nil {
		return nil, err
	}

	return task, nil
}

// taskItem is the shared wire shape of a task in tool responses (spec.md
// §4.7).
type taskItem struct {
	TaskID      string   `json:"task_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Completed   bool     `json:"completed"`
	Priority    string   `json:"priority"`
	Tags        []string `json:"tags"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

func toTaskItem(t *tasks.Task) taskItem {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return taskItem{
		TaskID:      t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Priority:    string(t.Priority),
		Tags:        tags,
		CreatedAt:   t.CreatedAt.Format(timeLayout),
		UpdatedAt:   t.UpdatedAt.Format(timeLayout),
	}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// apperrFrom classifies a repository error, preserving an already-typed
// *apperr.Error and masking anything else as a generic internal failure
// so no driver detail reaches the caller (spec.md §4.8).
func apperrFrom(err error) *apperr.Error {
	if err == tasks.ErrNotFound {
		return apperr.NotFoundf("task not found")
	}
	return apperr.As(err)
}
