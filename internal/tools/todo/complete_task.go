package todo

import (
	"context"
	"encoding/json"

	"github.com/kestrel-tools/todomcp/internal/mcp"
	"github.com/kestrel-tools/todomcp/internal/tasks"
	"github.com/kestrel-tools/todomcp/internal/validation"
)

// CompleteTask toggles a task's completed flag (spec.md §4.6: the name is
// a misnomer kept from the original tool surface — it toggles, it does
// not only mark complete).
type CompleteTask struct {
	repo tasks.Repository
}

// NewCompleteTask creates the complete_task tool.
func NewCompleteTask(repo tasks.Repository) *CompleteTask {
	return &CompleteTask{repo: repo}
}

func (t *CompleteTask) Name() string { return "complete_task" }

func (t *CompleteTask) Description() string {
	return "Toggle a task's completed status. Calling this twice on the same task restores its original state."
}

func (t *CompleteTask) InputSchema() json.RawMessage {
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

func (t *CompleteTask) OutputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id": {"type": "string"},
			"status": {"type": "string", "enum": ["completed", "uncompleted"]},
			"title": {"type": "string"},
			"message": {"type": "string"}
		}
	}`)
}

type completeTaskResult struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (t *CompleteTask) Execute(ctx context.Context, raw json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, appErr := decodeArgs(raw)
	if appErr != nil {
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	params, appErr := validation.ValidateCompleteTask(args)
	if appErr != nil {
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	if _, appErr := resolveTaskScope(ctx, t.repo, params.UserID, params.TaskID); appErr != nil {
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	task, err := t.repo.ToggleCompleted(ctx, params.UserID, params.TaskID)
	if err != nil {
		appErr := apperrFrom(err)
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	status := "uncompleted"
	message := "task marked incomplete"
	if task.Completed {
		status = "completed"
		message = "task marked complete"
	}

	return mcp.JSONResult(completeTaskResult{
		TaskID:  task.ID,
		Status:  status,
		Title:   task.Title,
		Message: message,
	})
}
