package todo

import (
	"context"
	"encoding/json"

	"github.com/kestrel-tools/todomcp/internal/mcp"
	"github.com/kestrel-tools/todomcp/internal/tasks"
	"github.com/kestrel-tools/todomcp/internal/validation"
)

// AddTask creates a task for the caller.
type AddTask struct {
	repo tasks.Repository
}

// NewAddTask creates the add_task tool.
func NewAddTask(repo tasks.Repository) *AddTask {
	return &AddTask{repo: repo}
}

func (t *AddTask) Name() string { return "add_task" }

func (t *AddTask) Description() string {
	return "Create a new to-do task owned by the caller."
}

func (t *AddTask) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"required": ["user_id", "title"],
		"properties": {
			"user_id": {"type": "string", "minLength": 1},
			"title": {"type": "string", "minLength": 1, "maxLength": 200},
			"description": {"type": "string", "maxLength": 2000},
			"priority": {"type": "string", "enum": ["none", "low", "medium", "high"]},
			"tags": {"type": "array", "items": {"type": "string"}}
		},
		"additionalProperties": false
	}`)
}

func (t *AddTask) OutputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id": {"type": "string"},
			"status": {"type": "string", "enum": ["created"]},
			"title": {"type": "string"},
			"message": {"type": "string"}
		}
	}`)
}

type addTaskResult struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (t *AddTask) Execute(ctx context.Context, raw json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, appErr := decodeArgs(raw)
	if appErr != nil {
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	params, appErr := validation.ValidateAddTask(args)
	if appErr != nil {
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	if appErr := checkUserScope(ctx, params.UserID); appErr != nil {
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	task, err := t.repo.Create(ctx, params.UserID, tasks.CreateFields{
		Title:       params.Title,
		Description: params.Description,
		Priority:    params.Priority,
		Tags:        params.Tags,
	})
	if err != nil {
		appErr := apperrFrom(err)
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	return mcp.JSONResult(addTaskResult{
		TaskID:  task.ID,
		Status:  "created",
		Title:   task.Title,
		Message: "task created",
	})
}
