package conditions

import "context"

// Engine evaluates guard expressions against an evaluation context.
// Three implementations: Expr (default, flattened variables),
// CEL (namespaced, "cel:" prefix), GoJQ ("jq:" prefix).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
