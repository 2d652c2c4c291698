// Package broadcast defines the port for pushing real-time run and
// checkpoint events to connected control-plane clients.
package broadcast

import "context"

// Broadcaster sends typed events to all connected clients. Implementations
// must not block the caller on slow clients; a suspended checkpoint or a
// disconnected GUI never stalls a run's progress.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Noop is a Broadcaster that discards all events. Used in tests and
// headless mode.
type Noop struct{}

func (Noop) BroadcastEvent(context.Context, string, any) {}

// Multi fans one event out to several broadcasters in order.
type Multi []Broadcaster

func (m Multi) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	for _, b := range m {
		b.BroadcastEvent(ctx, eventType, payload)
	}
}
