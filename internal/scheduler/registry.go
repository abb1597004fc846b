package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/reviewlog/internal/ir"
)

// Registry holds the named policies available to a Dispatcher.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]*IntervalLadder
}

// NewRegistry creates a registry holding DefaultPolicy plus the given
// policies. A policy named like an existing one replaces it.
func NewRegistry(policies ...*IntervalLadder) (*Registry, error) {
	r := &Registry{policies: make(map[string]*IntervalLadder)}
	r.policies[DefaultPolicyName] = DefaultPolicy()
	for _, p := range policies {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a policy.
func (r *Registry) Register(p *IntervalLadder) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[p.Name] = p
	return nil
}

// Lookup returns the named policy.
func (r *Registry) Lookup(name string) (*IntervalLadder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("unknown scheduling policy %q (known: %v)", name, r.namesLocked())
	}
	return p, nil
}

// Names returns the registered policy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatcher applies the policy recorded in a task's prior state, and the
// fallback policy to tasks without state or whose policy is unknown.
type Dispatcher struct {
	registry *Registry
	fallback *IntervalLadder
}

// NewDispatcher returns a dispatcher whose fallback is the named policy.
func NewDispatcher(r *Registry, fallback string) (*Dispatcher, error) {
	p, err := r.Lookup(fallback)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{registry: r, fallback: p}, nil
}

// Apply implements the scheduler contract for State.
func (d *Dispatcher) Apply(prior *State, log ir.ActionLog) State {
	p := d.fallback
	if prior != nil && prior.Policy != "" {
		if named, err := d.registry.Lookup(prior.Policy); err == nil {
			p = named
		}
	}
	return p.Apply(prior, log)
}
