package actions

import (
	"context"
	"sort"
	"sync"

	"github.com/Zeeeepa/gobby/pkg/schema"
)

// Registry is the concrete thread-safe handler table. It satisfies the
// engine's ActionExecutor contract.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a Registry pre-populated with the builtin handlers.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, h := range builtinHandlers() {
		// Builtins carry unique names; registration cannot fail.
		_ = r.Register(h)
	}
	return r
}

// Register adds a handler to the table. Returns an error on a duplicate kind.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	kind := h.Name()
	if kind == "" {
		return schema.NewError(schema.ErrCodeValidation, "handler kind is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[kind]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "action %q already registered", kind)
	}
	r.handlers[kind] = h
	return nil
}

// Has checks whether an action kind is registered.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[kind]
	return ok
}

// List returns the registered action kinds, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Execute dispatches an action kind through the table.
func (r *Registry) Execute(ctx context.Context, action string, evalCtx map[string]any, params map[string]any) (map[string]any, error) {
	r.mu.RLock()
	h, ok := r.handlers[action]
	r.mu.RUnlock()

	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "action %q not registered", action)
	}
	return h.Execute(ctx, evalCtx, params)
}
