package tool

import (
	"fmt"
	"path/filepath"
	"time"
)

// SandboxOptions configures the capability set bound to one project root.
type SandboxOptions struct {
	TestCommand    string
	CommandTimeout time.Duration
	TestTimeout    time.Duration
	SearchLimit    int
}

// NewSandboxRegistry builds the standard registry for a run: file read,
// file write, file search, shell exec and test runner, all rooted at the
// given project directory. The root is cleaned to an absolute path so
// relative sandbox roots cannot weaken escape checks.
func NewSandboxRegistry(root string, opts SandboxOptions) (*Registry, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("sandbox root: %w", err)
	}

	r := NewRegistry()
	caps := []Tool{
		&ReadFile{Root: abs},
		&WriteFile{Root: abs},
		&SearchFiles{Root: abs, MaxHits: opts.SearchLimit},
		&RunCommand{Root: abs, Timeout: opts.CommandTimeout},
		&RunTests{Root: abs, Command: opts.TestCommand, Timeout: opts.TestTimeout},
	}
	for _, t := range caps {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}
