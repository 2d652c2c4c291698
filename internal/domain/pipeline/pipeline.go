// Package pipeline defines the fixed step sequence a run executes and the
// gating/retry policy attached to each step. Definitions are loaded from
// YAML files or taken from the built-in preset.
package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrIDRequired      = errors.New("definition id is required")
	ErrNoSteps         = errors.New("definition must have at least one step")
	ErrStepMissingName = errors.New("step name is required")
	ErrDuplicateStep   = errors.New("step names must be unique")
	ErrUnknownStep     = errors.New("unknown step")
)

// Step defines one named phase of the pipeline. A gated step suspends the
// run into awaiting_checkpoint after producing its output.
type Step struct {
	Name        string `json:"name" yaml:"name"`
	Gated       bool   `json:"gated,omitempty" yaml:"gated,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
}

// Definition is an ordered step sequence a run walks front to back.
type Definition struct {
	ID    string `json:"id" yaml:"id"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// DefaultMaxAttempts is the retry budget used when a step does not set one.
const DefaultMaxAttempts = 3

// Validate checks the definition for structural correctness.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return ErrIDRequired
	}
	if len(d.Steps) == 0 {
		return ErrNoSteps
	}
	seen := make(map[string]bool, len(d.Steps))
	for i, s := range d.Steps {
		if s.Name == "" {
			return fmt.Errorf("step %d: %w", i, ErrStepMissingName)
		}
		if seen[s.Name] {
			return fmt.Errorf("step %d (%s): %w", i, s.Name, ErrDuplicateStep)
		}
		seen[s.Name] = true
		if s.MaxAttempts < 0 {
			return fmt.Errorf("step %d (%s): max_attempts must be non-negative", i, s.Name)
		}
	}
	return nil
}

// First returns the first step of the sequence.
func (d *Definition) First() Step {
	return d.Steps[0]
}

// Get returns the step with the given name.
func (d *Definition) Get(name string) (Step, error) {
	for _, s := range d.Steps {
		if s.Name == name {
			return s, nil
		}
	}
	return Step{}, fmt.Errorf("%q: %w", name, ErrUnknownStep)
}

// Next returns the step after the named one, or ok=false when the named
// step is the last in the sequence.
func (d *Definition) Next(name string) (next Step, ok bool, err error) {
	for i, s := range d.Steps {
		if s.Name == name {
			if i+1 < len(d.Steps) {
				return d.Steps[i+1], true, nil
			}
			return Step{}, false, nil
		}
	}
	return Step{}, false, fmt.Errorf("%q: %w", name, ErrUnknownStep)
}

// Attempts returns the step's retry budget, falling back to the default.
func (s Step) Attempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return DefaultMaxAttempts
}
