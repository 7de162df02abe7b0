// Package actions holds the action handler table. Action kinds are a
// closed set resolved through the table at initialization time, not via
// reflection, keeping dispatch statically checkable while leaving the
// authoring surface open for external registrations.
package actions

import "context"

// Handler executes one action kind. evalCtx is the evaluation context
// of the triggering event; params are the authored action parameters.
// Only the "inject_context" key of the returned map is interpreted by
// the engine; all other effects are opaque.
type Handler interface {
	Name() string
	Execute(ctx context.Context, evalCtx map[string]any, params map[string]any) (map[string]any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	Kind string
	Fn   func(ctx context.Context, evalCtx map[string]any, params map[string]any) (map[string]any, error)
}

// Name returns the action kind.
func (h HandlerFunc) Name() string { return h.Kind }

// Execute invokes the wrapped function.
func (h HandlerFunc) Execute(ctx context.Context, evalCtx map[string]any, params map[string]any) (map[string]any, error) {
	return h.Fn(ctx, evalCtx, params)
}
