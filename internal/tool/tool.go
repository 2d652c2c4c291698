// Package tool implements the sandboxed capability boundary through which
// the agent acts on a project. Every capability is named, schema-described,
// and rooted at a fixed project directory it cannot escape. Capabilities
// never raise faults to the caller: every failure mode is rendered as a
// descriptive result string the agent can react to in-band.
package tool

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool is a single named capability the agent may invoke on the project.
type Tool interface {
	// Definition returns the capability descriptor advertised to the agent:
	// name, description, and the input schema accepted calls must satisfy.
	Definition() mcp.Tool

	// Execute runs the capability with schema-valid arguments. The result is
	// always a string; errors are in-band ("error: ..." results), never
	// returned as Go errors.
	Execute(ctx context.Context, args map[string]any) string
}

// resolve maps a caller-supplied path onto the sandbox root. Any path whose
// cleaned form leaves the root is rejected.
func resolve(root, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is required")
	}
	joined := p
	if !filepath.IsAbs(joined) {
		joined = filepath.Join(root, joined)
	}
	joined = filepath.Clean(joined)

	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes project root", p)
	}
	return joined, nil
}

// stringArg extracts a string argument, tolerating absent keys.
func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// intArg extracts a numeric argument. JSON numbers arrive as float64.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}
