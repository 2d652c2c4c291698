// Package ticketsource defines the port for ticket-system adapters: they
// produce the TaskInput a run consumes and receive the outcome when the
// run terminates.
package ticketsource

import (
	"context"
	"fmt"
	"sync"

	"github.com/halverson/ticketpilot/internal/domain/task"
)

// Source is the port interface for a ticket-system adapter.
type Source interface {
	// Name returns the unique identifier for this source (e.g. "github", "linear").
	Name() string

	// UpdateStatus reports a run's terminal outcome back to the ticket system.
	UpdateStatus(ctx context.Context, outcome task.Outcome) error
}

// Factory is a constructor function that creates a new Source instance.
type Factory func(config map[string]string) (Source, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a ticket source factory available by name.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("ticketsource: duplicate registration for %q", name))
	}
	factories[name] = factory
}

// New creates a new Source by name using the registered factory.
func New(name string, config map[string]string) (Source, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("ticketsource: unknown source %q", name)
	}
	return factory(config)
}
