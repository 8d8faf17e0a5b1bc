package validation

import (
	"github.com/kestrel-tools/todomcp/internal/apperr"
	"github.com/kestrel-tools/todomcp/internal/tasks"
)

// ListTasksParams is the validated, typed form of list_tasks's arguments.
type ListTasksParams struct {
	UserID string
	Filter tasks.Filter
	Sort   tasks.Sort
}

var listTasksSchema = &compiledSchema{}

func listTasksSchemaDoc() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"user_id"},
		"properties": map[string]any{
			"user_id":  map[string]any{"type": "string", "minLength": 1},
			"status":   enumProp("string", "all", "pending", "completed"),
			"priority": enumProp("string", "all", "none", "low", "medium", "high"),
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"no_tags": map[string]any{"type": "boolean"},
			"search":  map[string]any{"type": "string", "maxLength": descriptionMax},
			"sort":    enumProp("string", "priority", "title", "created_at"),
			"order":   enumProp("string", "asc", "desc"),
		},
		"additionalProperties": false,
	}
}

// ValidateListTasks checks list_tasks's arguments (spec.md §4.3, §4.5).
func ValidateListTasks(args map[string]any) (*ListTasksParams, *apperr.Error) {
	if err := validateAgainstSchema(listTasksSchema, listTasksSchemaDoc(), args); err != nil {
		return nil, err
	}

	userID, _ := args["user_id"].(string)
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	status := tasks.StatusAll
	if v, ok := args["status"].(string); ok && v != "" {
		status = tasks.Status(v)
	}

	priorityFilter := "all"
	if v, ok := args["priority"].(string); ok && v != "" {
		priorityFilter = v
	}

	tagNames, err := extractTags(args)
	if err != nil {
		return nil, err
	}
	normalized, err := normalizeTags(tagNames)
	if err != nil {
		return nil, err
	}

	noTags := false
	if v, ok := args["no_tags"].(bool); ok {
		noTags = v
	}

	search := ""
	if v, ok := args["search"].(string); ok {
		search = v
	}

	sort := tasks.DefaultSort()
	if v, ok := args["sort"].(string); ok && v != "" {
		sort.Field = tasks.SortField(v)
	}
	if v, ok := args["order"].(string); ok && v != "" {
		sort.Order = tasks.SortOrder(v)
	}

	return &ListTasksParams{
		UserID: userID,
		Filter: tasks.Filter{
			Status:   status,
			Priority: priorityFilter,
			Tags:     normalized,
			NoTags:   noTags,
			Search:   search,
		},
		Sort: sort,
	}, nil
}
