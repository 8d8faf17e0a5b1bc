package validation

import (
	"github.com/kestrel-tools/todomcp/internal/apperr"
	"github.com/kestrel-tools/todomcp/internal/tasks"
)

var updateTaskSchema = &compiledSchema{}

func updateTaskSchemaDoc() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"user_id", "task_id"},
		"properties": map[string]any{
			"user_id":     map[string]any{"type": "string", "minLength": 1},
			"task_id":     map[string]any{"type": "string", "minLength": 1},
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

// ValidateUpdateTask checks update_task's arguments, including the
// cross-field "at least one field" rule (spec.md §4.3). tags being absent
// from args vs. present as an empty list are distinguished here and
// threaded through to tasks.UpdatePatch.TagsSet (spec.md §4.6, §8 S5).
func ValidateUpdateTask(args map[string]any) (string, string, tasks.UpdatePatch, *apperr.Error) {
	if err := validateAgainstSchema(updateTaskSchema, updateTaskSchemaDoc(), args); err != nil {
		return "", "", tasks.UpdatePatch{}, err
	}

	userID, _ := args["user_id"].(string)
	taskID, _ := args["task_id"].(string)
	if err := validateUserID(userID); err != nil {
		return "", "", tasks.UpdatePatch{}, err
	}
	if err := validateTaskID(taskID); err != nil {
		return "", "", tasks.UpdatePatch{}, err
	}

	var patch tasks.UpdatePatch

	if raw, ok := args["title"].(string); ok {
		title, err := trimmedNonEmpty("title", raw)
		if err != nil {
			return "", "", tasks.UpdatePatch{}, err
		}
		if err := boundedLength("title", title, titleMin, titleMax); err != nil {
			return "", "", tasks.UpdatePatch{}, err
		}
		patch.Title = &title
	}

	if raw, ok := args["description"].(string); ok {
		if err := boundedLength("description", raw, 0, descriptionMax); err != nil {
			return "", "", tasks.UpdatePatch{}, err
		}
		patch.Description = &raw
	}

	if raw, ok := args["priority"].(string); ok {
		if err := validatePriority("priority", raw); err != nil {
			return "", "", tasks.UpdatePatch{}, err
		}
		priority := tasks.Priority(raw)
		patch.Priority = &priority
	}

	if _, present := args["tags"]; present {
		tagNames, err := extractTags(args)
		if err != nil {
			return "", "", tasks.UpdatePatch{}, err
		}
		normalized, err := normalizeTags(tagNames)
		if err != nil {
			return "", "", tasks.UpdatePatch{}, err
		}
		patch.Tags = normalized
		patch.TagsSet = true
	}

	if !patch.HasAnyField() {
		return "", "", tasks.UpdatePatch{}, apperr.Validationf(
			"fields", "at least one field required: title, description, priority, or tags")
	}

	return userID, taskID, patch, nil
}
