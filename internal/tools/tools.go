// Package tools defines the tool registry the worker model calls into.
// Tool implementations live next to the resources they use; this package
// holds the registry, the sandboxed file and Python tools, and the typed
// errors that the dispatch stage distinguishes.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	Parameters  map[string]any                                                 `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds available tools. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewEmptyRegistry creates a registry with no tools.
func NewEmptyRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the registry, replacing any tool with the
// same name.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all tools in OpenAI function format, sorted by name so
// the prompt is stable between turns.
func (r *Registry) List() []map[string]any {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]map[string]any, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			},
		})
	}
	return result
}

// Execute runs a tool by name with JSON-encoded arguments. An unknown
// tool yields *ErrToolUnavailable.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (string, error) {
	tool := r.Get(name)
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}

	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if args == nil {
			args = map[string]any{}
		}
	}

	return tool.Handler(ctx, args)
}

// StringArg returns args[key] as a string, or "" when absent or not a
// string.
func StringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// IntArg returns args[key] as an int. JSON numbers arrive as float64.
func IntArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

// BoolArg returns args[key] as a bool, defaulting to false.
func BoolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// Schema is shorthand for an object schema with the given properties
// and required keys.
func Schema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// Prop is shorthand for a typed, described schema property.
func Prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}
