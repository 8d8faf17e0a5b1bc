package validation

import (
	"github.com/kestrel-tools/todomcp/internal/apperr"
	"github.com/kestrel-tools/todomcp/internal/tasks"
)

// AddTaskParams is the validated, typed form of add_task's arguments.
type AddTaskParams struct {
	UserID      string
	Title       string
	Description string
	Priority    tasks.Priority
	Tags        []string
}

var addTaskSchema = &compiledSchema{}

func addTaskSchemaDoc() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"user_id", "title"},
		"properties": map[string]any{
			"user_id":     map[string]any{"type": "string", "minLength": 1},
			"title":       map[string]any{"type": "string", "minLength": 1, "maxLength": titleMax},
			"description": map[string]any{"type": "string", "maxLength": descriptionMax},
			"priority":    enumProp("string", "none", "low", "medium", "high"),
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"additionalProperties": false,
	}
}

// ValidateAddTask checks add_task's arguments (spec.md §4.3, §4.7).
func ValidateAddTask(args map[string]any) (*AddTaskParams, *apperr.Error) {
	if err := validateAgainstSchema(addTaskSchema, addTaskSchemaDoc(), args); err != nil {
		return nil, err
	}

	userID, _ := args["user_id"].(string)
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	rawTitle, _ := args["title"].(string)
	title, err := trimmedNonEmpty("title", rawTitle)
	if err != nil {
		return nil, err
	}
	if err := boundedLength("title", title, titleMin, titleMax); err != nil {
		return nil, err
	}

	description := ""
	if v, ok := args["description"].(string); ok {
		description = v
	}
	if err := boundedLength("description", description, 0, descriptionMax); err != nil {
		return nil, err
	}

	priority := tasks.PriorityNone
	if v, ok := args["priority"].(string); ok && v != "" {
		if err := validatePriority("priority", v); err != nil {
			return nil, err
		}
		priority = tasks.Priority(v)
	}

	tagNames, err := extractTags(args)
	if err != nil {
		return nil, err
	}
	normalized, err := normalizeTags(tagNames)
	if err != nil {
		return nil, err
	}

	return &AddTaskParams{
		UserID:      userID,
		Title:       title,
		Description: description,
		Priority:    priority,
		Tags:        normalized,
	}, nil
}

func extractTags(args map[string]any) ([]string, *apperr.Error) {
	raw, ok := args["tags"]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, apperr.Validationf("tags", "tags must be an array of strings")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, apperr.Validationf("tags", "tags must be an array of strings")
		}
		out = append(out, s)
	}
	return out, nil
}
