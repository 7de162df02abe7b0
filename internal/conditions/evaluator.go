package conditions

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Zeeeepa/gobby/pkg/schema"
)

// Engine selection prefixes. Expressions without a prefix use the
// default Expr engine.
const (
	prefixCEL = "cel:"
	prefixJQ  = "jq:"
)

// ApprovalResult is the outcome of checking a step's approval gate.
type ApprovalResult struct {
	NeedsApproval  bool
	IsTimedOut     bool
	ConditionID    string
	Prompt         string
	TimeoutSeconds int
}

// Evaluator is the sandboxed condition evaluator. It is a security
// boundary: expressions run with no I/O, no environment access, and a
// fixed builtin allow-list. A malformed or failing expression evaluates
// to false and is logged; it never aborts the surrounding evaluation.
type Evaluator struct {
	expr   *ExprEngine
	cel    *CELEngine
	jq     *GoJQEngine
	logger *slog.Logger
}

// NewEvaluator creates an Evaluator with all three engines initialized.
func NewEvaluator(logger *slog.Logger) (*Evaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}

	return &Evaluator{
		expr:   NewExprEngine(),
		cel:    celEngine,
		jq:     NewGoJQEngine(),
		logger: logger,
	}, nil
}

// engineFor resolves the engine from the expression prefix and returns
// the expression with the prefix stripped.
func (ev *Evaluator) engineFor(expression string) (Engine, string) {
	switch {
	case strings.HasPrefix(expression, prefixCEL):
		return ev.cel, strings.TrimSpace(strings.TrimPrefix(expression, prefixCEL))
	case strings.HasPrefix(expression, prefixJQ):
		return ev.jq, strings.TrimSpace(strings.TrimPrefix(expression, prefixJQ))
	default:
		return ev.expr, expression
	}
}

// Evaluate runs an expression and returns its raw value.
func (ev *Evaluator) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	engine, expr := ev.engineFor(expression)
	return engine.Evaluate(ctx, expr, data)
}

// EvaluateBool evaluates an expression as a condition. An empty
// expression is true (a missing `when` guard defaults to firing).
// Evaluation errors degrade to false and are logged.
func (ev *Evaluator) EvaluateBool(ctx context.Context, expression string, data map[string]any) bool {
	if strings.TrimSpace(expression) == "" {
		return true
	}

	out, err := ev.Evaluate(ctx, expression, data)
	if err != nil {
		ev.logger.WarnContext(ctx, "condition evaluation failed, treating as false",
			slog.String("expression", expression),
			slog.String("error", err.Error()))
		return false
	}

	return Truthy(out)
}

// Truthy folds an expression result to a boolean: booleans as-is,
// numbers by non-zero, strings/slices/maps by non-emptiness, nil false.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	case uint64:
		return val != 0
	case float32:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// CheckExitConditions reports whether any of the expressions is true.
func (ev *Evaluator) CheckExitConditions(ctx context.Context, conds []schema.ExitCondition, data map[string]any) bool {
	for i := range conds {
		if ev.EvaluateBool(ctx, conds[i].When, data) {
			return true
		}
	}
	return false
}

// CheckPendingApproval inspects a step's exit conditions for an engaged
// approval gate. Timeout is detected lazily against the time the step
// was entered; there are no background timers.
func (ev *Evaluator) CheckPendingApproval(ctx context.Context, step *schema.Step, data map[string]any, pending bool, enteredAt, now time.Time) ApprovalResult {
	for i := range step.ExitConditions {
		cond := &step.ExitConditions[i]
		if !cond.RequiresApproval {
			continue
		}
		if !ev.EvaluateBool(ctx, cond.When, data) {
			continue
		}

		result := ApprovalResult{
			ConditionID:    cond.ID,
			Prompt:         cond.Prompt,
			TimeoutSeconds: cond.TimeoutSeconds,
		}
		if result.ConditionID == "" {
			result.ConditionID = step.Name
		}

		if pending && cond.TimeoutSeconds > 0 &&
			now.Sub(enteredAt) > time.Duration(cond.TimeoutSeconds)*time.Second {
			result.IsTimedOut = true
			return result
		}

		result.NeedsApproval = true
		return result
	}

	return ApprovalResult{}
}
