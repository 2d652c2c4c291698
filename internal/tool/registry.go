package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// Registry is the lookup table from tool name to capability. It is the
// single chokepoint through which every agent side effect on the project
// flows: unknown names and schema-invalid arguments are rejected here,
// before any capability executes. A registry holds no run state beyond the
// capabilities it was constructed with; each run builds its own instance
// bound to its project root.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a capability. Registering a duplicate name fails.
func (r *Registry) Register(t Tool) error {
	name := t.Definition().Name
	if name == "" {
		return fmt.Errorf("tool name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Schemas returns the full set of capability descriptors, sorted by name,
// for advertisement to the agent.
func (r *Registry) Schemas() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]mcp.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Definition())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch validates arguments against the named tool's schema and forwards
// to its execution operation, returning the result verbatim. Unknown tools
// and invalid arguments are in-band result strings, not errors, so the
// agent can self-correct.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) string {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Sprintf("error: unknown tool %q", name)
	}

	if msg := validateArgs(t.Definition(), args); msg != "" {
		return fmt.Sprintf("error: invalid arguments for %q: %s", name, msg)
	}

	return t.Execute(ctx, args)
}

// validateArgs checks required fields and primitive types against the
// tool's input schema. Violations are rejected, never silently coerced.
func validateArgs(def mcp.Tool, args map[string]any) string {
	for _, req := range def.InputSchema.Required {
		if _, ok := args[req]; !ok {
			return fmt.Sprintf("missing required argument %q", req)
		}
	}

	for key, val := range args {
		prop, ok := def.InputSchema.Properties[key]
		if !ok {
			return fmt.Sprintf("unexpected argument %q", key)
		}
		spec, ok := prop.(map[string]any)
		if !ok {
			continue
		}
		typ, _ := spec["type"].(string)
		switch typ {
		case "string":
			if _, ok := val.(string); !ok {
				return fmt.Sprintf("argument %q must be a string", key)
			}
		case "number", "integer":
			switch val.(type) {
			case float64, int:
			default:
				return fmt.Sprintf("argument %q must be a number", key)
			}
		case "boolean":
			if _, ok := val.(bool); !ok {
				return fmt.Sprintf("argument %q must be a boolean", key)
			}
		}
	}
	return ""
}
