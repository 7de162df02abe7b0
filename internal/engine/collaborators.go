package engine

import (
	"context"
	"time"

	"github.com/Zeeeepa/gobby/pkg/schema"
)

// Loader resolves workflow definitions by name. A missing definition is
// reported via a NOT_FOUND error; the runtime treats any load failure as
// absence and fails open.
type Loader interface {
	LoadWorkflow(name string) (*schema.WorkflowDefinition, error)
	DiscoverLifecycleWorkflows() ([]*schema.WorkflowDefinition, error)
}

// ActionExecutor runs side-effecting actions behind a black-box
// contract. The engine interprets only the "inject_context" key of the
// returned map; all other effects are opaque.
type ActionExecutor interface {
	Execute(ctx context.Context, action string, evalCtx map[string]any, params map[string]any) (map[string]any, error)
}

// injectContextKey is the single result key the engine interprets.
const injectContextKey = "inject_context"

// AuditSink records tool-call decisions, rule evaluations, and
// transitions best-effort. Sink failures never influence a decision.
type AuditSink interface {
	RecordDecision(ctx context.Context, event *schema.HookEvent, instance *schema.WorkflowInstance, decision schema.Decision) error
	RecordRule(ctx context.Context, instance *schema.WorkflowInstance, rule string, fired bool) error
	RecordTransition(ctx context.Context, instance *schema.WorkflowInstance, from, to string) error
}

// Config carries the tunable evaluation parameters.
type Config struct {
	// StuckStepThreshold is the time-in-step after which the engine
	// forces a transition to RecoveryStep. Zero disables detection.
	StuckStepThreshold time.Duration

	// RecoveryStep is the step a stuck instance is forced into.
	RecoveryStep string

	// MaxTransitionChain bounds auto-chaining within one event so a
	// cyclic graph that slipped past the validator cannot spin forever.
	// Zero means one pass per declared step.
	MaxTransitionChain int
}

// chainLimit resolves the auto-chain bound for a definition.
func (c Config) chainLimit(def *schema.WorkflowDefinition) int {
	if c.MaxTransitionChain > 0 {
		return c.MaxTransitionChain
	}
	return len(def.Steps) + 1
}
