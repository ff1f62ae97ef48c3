package server

import (
	"context"
)

// Pinger is the interface implemented by any dependency that can report its
// own reachability. Each implementation must return nil when the dependency
// is healthy and a descriptive error otherwise.
// Implementations must be safe to call from multiple goroutines.
type Pinger interface {
	// Ping checks whether the dependency is reachable within the given context.
	// Returns nil on success, a descriptive error on failure.
	Ping(ctx context.Context) error

	// Name returns a short human-readable label used in readiness responses
	// (e.g. "qdrant", "redis").
	Name() string
}

// namedPinger adapts a plain ping function into a Pinger.
type namedPinger struct {
	name string
	ping func(ctx context.Context) error
}

// NamedPinger wraps a ping function with a dependency label. The queue, the
// vector store gateway, and the blob store all expose a bare Ping method;
// this adapter gives each a name for readiness responses.
func NamedPinger(name string, ping func(ctx context.Context) error) Pinger {
	return &namedPinger{name: name, ping: ping}
}

func (p *namedPinger) Ping(ctx context.Context) error { return p.ping(ctx) }
func (p *namedPinger) Name() string                   { return p.name }
