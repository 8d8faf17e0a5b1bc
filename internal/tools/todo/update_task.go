package todo

import (
	"context"
	"encoding/json"

	"github.com/kestrel-tools/todomcp/internal/mcp"
	"github.com/kestrel-tools/todomcp/internal/tasks"
	"github.com/kestrel-tools/todomcp/internal/validation"
)

// UpdateTask applies a partial update to a task. Fields absent from the
// call's arguments are left untouched; tags is the one field where an
// explicit empty list and an absent key mean different things (spec.md
// §4.6, §8 scenario S5).
type UpdateTask struct {
	repo tasks.Repository
}

// NewUpdateTask creates the update_task tool.
func NewUpdateTask(repo tasks.Repository) *UpdateTask {
	return &UpdateTask{repo: repo}
}

func (t *UpdateTask) Name() string { return "update_task" }

func (t *UpdateTask) Description() string {
	return "Update one or more fields of an existing task. At least one of title, description, priority, or tags must be supplied."
}

func (t *UpdateTask) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"required": ["user_id", "task_id"],
		"properties": {
			"user_id": {"type": "string", "minLength": 1},
			"task_id": {"type": "string", "minLength": 1},
			"title": {"type": "string", "minLength": 1, "maxLength": 200},
			"description": {"type": "string", "maxLength": 2000},
			"priority": {"type": "string", "enum": ["none", "low", "medium", "high"]},
			"tags": {"type": "array", "items": {"type": "string"}}
		},
		"additionalProperties": false
	}`)
}

func (t *UpdateTask) OutputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id": {"type": "string"},
			"status": {"type": "string", "enum": ["updated"]},
			"title": {"type": "string"},
			"message": {"type": "string"}
		}
	}`)
}

type updateTaskResult struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (t *UpdateTask) Execute(ctx context.Context, raw json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, appErr := decodeArgs(raw)
	if appErr != nil {
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	userID, taskID, patch, appErr := validation.ValidateUpdateTask(args)
	if appErr != nil {
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	if _, appErr := resolveTaskScope(ctx, t.repo, userID, taskID); appErr != nil {
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	task, err := t.repo.Update(ctx, userID, taskID, patch)
	if err != nil {
		appErr := apperrFrom(err)
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	return mcp.JSONResult(updateTaskResult{
		TaskID:  task.ID,
		Status:  "updated",
		Title:   task.Title,
		Message: "task updated",
	})
}
