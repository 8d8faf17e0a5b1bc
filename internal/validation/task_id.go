package validation

import "github.com/kestrel-tools/todomcp/internal/apperr"

// CompleteTaskParams is the validated form of complete_task's arguments.
type CompleteTaskParams struct {
	UserID string
	TaskID string
}

// DeleteTaskParams is the validated form of delete_task's arguments.
type DeleteTaskParams struct {
	UserID string
	TaskID string
}

var completeTaskSchema = &compiledSchema{}
var deleteTaskSchema = &compiledSchema{}

func taskIDSchemaDoc() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"user_id", "task_id"},
		"properties": map[string]any{
			"user_id": map[string]any{"type": "string", "minLength": 1},
			"task_id": map[string]any{"type": "string", "minLength": 1},
		},
		"additionalProperties": false,
	}
}

// ValidateCompleteTask checks complete_task's arguments.
func ValidateCompleteTask(args map[string]any) (*CompleteTaskParams, *apperr.Error) {
	if err := validateAgainstSchema(completeTaskSchema, taskIDSchemaDoc(), args); err != nil {
		return nil, err
	}
	userID, _ := args["user_id"].(string)
	taskID, _ := args["task_id"].(string)
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := validateTaskID(taskID); err != nil {
		return nil, err
	}
	return &CompleteTaskParams{UserID: userID, TaskID: taskID}, nil
}

// ValidateDeleteTask checks delete_task's arguments.
func ValidateDeleteTask(args map[string]any) (*DeleteTaskParams, *apperr.Error) {
	if err := validateAgainstSchema(deleteTaskSchema, taskIDSchemaDoc(), args); err != nil {
		return nil, err
	}
	userID, _ := args["user_id"].(string)
	taskID, _ := args["task_id"].(string)
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := validateTaskID(taskID); err != nil {
		return nil, err
	}
	return &DeleteTaskParams{UserID: userID, TaskID: taskID}, nil
}
