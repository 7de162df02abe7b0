package actions

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/Zeeeepa/gobby/pkg/schema"
)

// Builtin benign handlers. Side-effecting handlers (external tool
// calls, file writes, summaries) are registered by the hosting layer.
func builtinHandlers() []Handler {
	return []Handler{
		HandlerFunc{Kind: "inject_context", Fn: injectContext},
		HandlerFunc{Kind: "log", Fn: logMessage},
	}
}

var templateRef = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// interpolate replaces {{name}} references with values from the
// evaluation context. Unresolved references are left as-is.
func interpolate(text string, evalCtx map[string]any) string {
	return templateRef.ReplaceAllStringFunc(text, func(match string) string {
		ref := templateRef.FindStringSubmatch(match)[1]
		if v, ok := lookup(evalCtx, ref); ok {
			return fmt.Sprintf("%v", v)
		}
		return match
	})
}

// lookup resolves a dotted reference against nested maps.
func lookup(data map[string]any, ref string) (any, bool) {
	cur := any(data)
	start := 0
	for i := 0; i <= len(ref); i++ {
		if i < len(ref) && ref[i] != '.' {
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[ref[start:i]]
		if !ok {
			return nil, false
		}
		start = i + 1
	}
	return cur, true
}

// injectContext returns its templated text for accumulation into the
// decision's context parts.
func injectContext(ctx context.Context, evalCtx map[string]any, params map[string]any) (map[string]any, error) {
	text, _ := params["text"].(string)
	if text == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "inject_context requires a text parameter")
	}
	return map[string]any{"inject_context": interpolate(text, evalCtx)}, nil
}

// logMessage emits a templated message through slog. Pure observability.
func logMessage(ctx context.Context, evalCtx map[string]any, params map[string]any) (map[string]any, error) {
	message, _ := params["message"].(string)
	if message == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "log requires a message parameter")
	}
	level, _ := params["level"].(string)

	logger := slog.Default()
	switch level {
	case "debug":
		logger.DebugContext(ctx, interpolate(message, evalCtx))
	case "warn":
		logger.WarnContext(ctx, interpolate(message, evalCtx))
	case "error":
		logger.ErrorContext(ctx, interpolate(message, evalCtx))
	default:
		logger.InfoContext(ctx, interpolate(message, evalCtx))
	}
	return nil, nil
}
