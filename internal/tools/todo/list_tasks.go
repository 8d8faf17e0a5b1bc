package todo

import (
	"context"
	"encoding/json"

	"github.com/kestrel-tools/todomcp/internal/mcp"
	"github.com/kestrel-tools/todomcp/internal/tasks"
	"github.com/kestrel-tools/todomcp/internal/validation"
)

// ListTasks lists the caller's tasks, filtered and sorted.
type ListTasks struct {
	repo tasks.Repository
}

// NewListTasks creates the list_tasks tool.
func NewListTasks(repo tasks.Repository) *ListTasks {
	return &ListTasks{repo: repo}
}

func (t *ListTasks) Name() string { return "list_tasks" }

func (t *ListTasks) Description() string {
	return "List the caller's tasks, optionally filtered by status, priority, tags, or a text search, and sorted."
}

func (t *ListTasks) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"required": ["user_id"],
		"properties": {
			"user_id": {"type": "string", "minLength": 1},
			"status": {"type": "string", "enum": ["all", "pending", "completed"]},
			"priority": {"type": "string", "enum": ["all", "none", "low", "medium", "high"]},
			"tags": {"type": "array", "items": {"type": "string"}},
			"no_tags": {"type": "boolean"},
			"search": {"type": "string", "maxLength": 2000},
			"sort": {"type": "string", "enum": ["priority", "title", "created_at"]},
			"order": {"type": "string", "enum": ["asc", "desc"]}
		},
		"additionalProperties": false
	}`)
}

func (t *ListTasks) OutputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"tasks": {"type": "array"},
			"count": {"type": "integer"},
			"status": {"type": "string", "enum": ["success"]}
		}
	}`)
}

type listTasksResult struct {
	Tasks  []taskItem `json:"tasks"`
	Count  int        `json:"count"`
	Status string     `json:"status"`
}

func (t *ListTasks) Execute(ctx context.Context, raw json.RawMessage) (*mcp.ToolsCallResult, error) {
	args, appErr := decodeArgs(raw)
	if appErr != nil {
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	params, appErr := validation.ValidateListTasks(args)
	if appErr != nil {
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	if appErr := checkUserScope(ctx, params.UserID); appErr != nil {
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	found, err := t.repo.List(ctx, params.UserID, params.Filter, params.Sort)
	if err != nil {
		appErr := apperrFrom(err)
		return mcp.ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	items := make([]taskItem, 0, len(found))
	for _, task := range found {
		items = append(items, toTaskItem(task))
	}

	return mcp.JSONResult(listTasksResult{
		Tasks:  items,
		Count:  len(items),
		Status: "success",
	})
}
