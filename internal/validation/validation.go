// Package validation implements the Parameter Validator (spec.md §4.3):
// declarative structural checks per tool (types, bounds, enums) layered
// with the cross-field rules schema alone can't express.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/kestrel-tools/todomcp/internal/apperr"
	"github.com/kestrel-tools/todomcp/internal/tasks"
)

const (
	titleMin       = 1
	titleMax       = 200
	descriptionMax = 2000
	tagNameMin     = 1
	tagNameMax     = 50
	maxTagsPerTask = 20
)

// compiledSchema lazily compiles a tool's JSON schema exactly once.
type compiledSchema struct {
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

func (c *compiledSchema) get(doc map[string]any) (*jsonschema.Schema, error) {
	c.once.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("schema.json", doc); err != nil {
			c.err = fmt.Errorf("add schema resource: %w", err)
			return
		}
		c.schema, c.err = compiler.Compile("schema.json")
	})
	return c.schema, c.err
}

func enumProp(typ string, values ...string) map[string]any {
	anyValues := make([]any, len(values))
	for i, v := range values {
		anyValues[i] = v
	}
	return map[string]any{"type": typ, "enum": anyValues}
}

func validateAgainstSchema(cs *compiledSchema, doc map[string]any, args map[string]any) *apperr.Error {
	schema, err := cs.get(doc)
	if err != nil {
		return apperr.Internalf("schema compilation failed")
	}
	if err := schema.Validate(toAny(args)); err != nil {
		return schemaError(err)
	}
	return nil
}

// toAny round-trips through JSON so jsonschema sees plain map/slice/number
// values regardless of how the caller's arguments were originally decoded.
func toAny(args map[string]any) any {
	raw, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return args
	}
	return decoded
}

func schemaError(err error) *apperr.Error {
	field := ""
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		field = firstOffendingField(ve)
	}
	return apperr.Validationf(field, "argument validation failed: %s", err.Error())
}

// firstOffendingField walks a jsonschema validation error tree for the
// deepest instance location, used as the details.field hint.
func firstOffendingField(ve *jsonschema.ValidationError) string {
	cur := ve
	for len(cur.Causes) > 0 {
		cur = cur.Causes[0]
	}
	loc := strings.TrimPrefix(cur.InstanceLocation, "/")
	if loc == "" {
		return ""
	}
	return strings.Split(loc, "/")[0]
}

func trimmedNonEmpty(field, value string) (string, *apperr.Error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", apperr.Validationf(field, "%s must not be empty", field)
	}
	return trimmed, nil
}

func boundedLength(field, value string, min, max int) *apperr.Error {
	if n := utf8.RuneCountInString(value); n < min || n > max {
		return apperr.Validationf(field, "%s must be between %d and %d characters", field, min, max)
	}
	return nil
}

func normalizeTags(raw []string) ([]string, *apperr.Error) {
	if len(raw) > maxTagsPerTask {
		return nil, apperr.Validationf("tags", "a task may have at most %d tags", maxTagsPerTask)
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, name := range raw {
		trimmed := strings.ToLower(strings.TrimSpace(name))
		if trimmed == "" {
			return nil, apperr.Validationf("tags", "tag name must not be empty")
		}
		if strings.ContainsAny(trimmed, " \t\n\r\v\f") {
			return nil, apperr.Validationf("tags", "tag name %q must be a single word with no whitespace", trimmed)
		}
		if err := boundedLength("tags", trimmed, tagNameMin, tagNameMax); err != nil {
			return nil, err
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out, nil
}

func validateUserID(userID string) *apperr.Error {
	if strings.TrimSpace(userID) == "" {
		return apperr.Validationf("user_id", "user_id must not be empty")
	}
	return nil
}

func validateTaskID(taskID string) *apperr.Error {
	if strings.TrimSpace(taskID) == "" {
		return apperr.Validationf("task_id", "task_id must not be empty")
	}
	return nil
}

func validatePriority(field, value string) *apperr.Error {
	if !tasks.ValidPriority(value) {
		return apperr.Validationf(field, "unknown priority %q", value)
	}
	return nil
}
