package todo

import (
	"context"
	"encoding/json"

	"github.com/kestrel-tools/todomcp/internal/mcp"
	"github.com/kestrel-tools/todomcp/internal/tasks"
	"github.com/kestrel-tools/todomcp/internal/validation"
)

// DeleteTask permanently removes a task.
type DeleteTask struct {
	repo tasks.Repository
}

// NewDeleteTask creates the delete_task tool.
func NewDeleteTask(repo tasks.Repository) *DeleteTask {
	return &DeleteTask{repo: repo}
}

func (t *DeleteTask) Name() string { return "delete_task" }

func (t *DeleteTask) Description() string {
	return "Permanently delete a task owned by the caller."
}

func (t *DeleteTask) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"required": ["user_id", "task_id"],
		"properties": {
			"user_id": {"type": "string", "minLength": 1},
			"task_id": {"type": "string", "minLength": 1}
		},
		"additionalProperties": false
	}`)
}

func (t *DeleteTask) OutputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id": {"type": "string"},
			"status": {"type": "string", "enum": ["deleted"]},
			"title": {"type": "string"},
			"message": {"type": "string"}
		}
	}`)
}

type deleteTaskResult struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (t *DeleteTask) Execute(ctx context.Context, raw json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, appErr := decodeArgs(raw)
	if appErr != nil {
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	params, appErr := validation.ValidateDeleteTask(args)
	if appErr != nil {
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	task, appErr := resolveTaskScope(ctx, t.repo, params.UserID, params.TaskID)
	if appErr != nil {
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}
	title := task.Title

	if err := t.repo.Delete(ctx, params.UserID, params.TaskID); err != nil {
		appErr := apperrFrom(err)
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	return mcp.JSONResult(deleteTaskResult{
		TaskID:  params.TaskID,
		Status:  "deleted",
		Title:   title,
		Message: "task deleted",
	})
}
