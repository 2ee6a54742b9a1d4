package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"runnerd/internal/params"
	"runnerd/internal/payload"
)

// ErrMethodNotFound is returned when no method is registered under the
// requested name.
var ErrMethodNotFound = errors.New("server: method not found")

// Method executes one batched invocation: it receives the merged
// parameter container of all aggregated calls and returns one batched
// result payload. The actual model execution lives behind this interface.
type Method interface {
	Run(ctx context.Context, batched params.Params[*payload.Payload]) (*payload.Payload, error)
}

// MethodFunc adapts a function to the Method interface.
type MethodFunc func(ctx context.Context, batched params.Params[*payload.Payload]) (*payload.Payload, error)

// Run calls f
func (f MethodFunc) Run(ctx context.Context, batched params.Params[*payload.Payload]) (*payload.Payload, error) {
	return f(ctx, batched)
}

// Registry maps method names to their implementations.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]Method
}

// NewRegistry creates an empty method registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]Method)}
}

// Register adds a method under a name. Registering the same name twice
// replaces the previous method.
func (r *Registry) Register(name string, m Method) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[name] = m
}

// Get returns the method registered under name.
func (r *Registry) Get(name string) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[name]
	return m, ok
}

// Methods returns the registered method names.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	return names
}

// Invoke runs the named method on a batched parameter container.
func (r *Registry) Invoke(ctx context.Context, name string, batched params.Params[*payload.Payload]) (*payload.Payload, error) {
	m, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMethodNotFound, name)
	}
	return m.Run(ctx, batched)
}
