package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Tool is the interface every tool (add_task, list_tasks, complete_task,
// update_task, delete_task) implements.
type Tool interface {
	// Name returns the tool name used in tools/call.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// InputSchema returns the JSON Schema for the tool's arguments.
	InputSchema() json.RawMessage

	// OutputSchema returns the JSON Schema for the tool's success response.
	OutputSchema() json.RawMessage

	// Execute runs the tool. The verified subject from the Identity Gate
	// (spec.md §4.1) is carried in ctx, attached by the transport (Server.Run
	// for stdio, HTTPServer for HTTP) before this is called. The tool itself
	// performs parameter validation (C3) and authorization (C4) before
	// touching any state.
	Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error)
}

// Registry holds the declared set of tools (spec.md §4.2).
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	toolOrder []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry. Panics if a tool with the same name
// is already registered — a startup-time programming error, not a runtime
// condition.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("tool %q already registered", name))
	}
	r.tools[name] = t
	r.toolOrder = append(r.toolOrder, name)
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns all registered tool definitions in registration order
// (tools/list, spec.md §4.2).
func (r *Registry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		t := r.tools[name]
		defs = append(defs, ToolDefinition{
			Name:         t.Name(),
			Description:  t.Description(),
			InputSchema:  t.InputSchema(),
			OutputSchema: t.OutputSchema(),
		})
	}
	return defs
}
