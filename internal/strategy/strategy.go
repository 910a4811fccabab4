// Package strategy defines the Strategy contract for signal generation and a
// Registry for managing named strategy implementations. Concrete signal math
// lives outside the engine core.
package strategy

import (
	"sort"

	"helios/internal/event"
)

// Strategy reacts to market events and publishes zero or more signal events
// through its Context.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// SetContext injects the per-run service handle used to publish signals
	// and read the current time.
	SetContext(ctx *event.Context)

	// OnUpdate is called for each market event.
	OnUpdate(ev event.Event)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile-time interface check.
var _ Strategy = (*Nop)(nil)

// Nop is a placeholder strategy that never signals. It keeps the engine
// runnable while real strategies are developed out of tree.
type Nop struct {
	name string
	ctx  *event.Context
}

// NewNop creates a no-op strategy with the given name.
func NewNop(name string) *Nop {
	return &Nop{name: name}
}

// Name returns the strategy name.
func (s *Nop) Name() string { return s.name }

// SetContext stores the run context.
func (s *Nop) SetContext(ctx *event.Context) { s.ctx = ctx }

// OnUpdate ignores the market event.
func (s *Nop) OnUpdate(event.Event) {}
