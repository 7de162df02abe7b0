package engine

import (
	"context"
	"log/slog"

	"github.com/Zeeeepa/gobby/internal/logging"
	"github.com/Zeeeepa/gobby/pkg/schema"
)

// UnifiedEvaluator merges several concurrently active workflow
// instances into one decision per event. Instances are processed
// strictly in the order given by the caller (priority-ascending), which
// fixes both blocking tie-breaks and context fragment ordering.
type UnifiedEvaluator struct {
	steps  *StepEngine
	logger *slog.Logger
}

// NewUnifiedEvaluator creates a UnifiedEvaluator on top of a StepEngine.
func NewUnifiedEvaluator(steps *StepEngine, logger *slog.Logger) *UnifiedEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &UnifiedEvaluator{steps: steps, logger: logger}
}

// EvaluateEvent evaluates one event against all instances of a session.
//
// Each step-typed instance runs the full single-workflow algorithm via
// StepEngine.HandleEvent, so stuck-step recovery, approval gates, and
// MCP outcome hooks all apply here too. Lifecycle triggers run for every
// definition type afterward.
//
// First-block-wins: when an instance blocks the event, later instances
// are not evaluated at all, not even for side effects. The returned
// error is non-nil only for propagated transition-action failures; the
// result accumulated so far accompanies it.
func (ue *UnifiedEvaluator) EvaluateEvent(ctx context.Context, event *schema.HookEvent, instances []*schema.WorkflowInstance, definitions map[string]*schema.WorkflowDefinition, sessionVars map[string]any) (*schema.EvaluationResult, error) {
	result := schema.NewEvaluationResult()

	for _, inst := range instances {
		if !inst.Enabled {
			continue
		}
		def, ok := definitions[inst.WorkflowName]
		if !ok || def == nil {
			// Fail open on a missing definition; the validator owns this.
			ue.logger.WarnContext(ctx, "definition missing for instance, skipping",
				slog.String("workflow", inst.WorkflowName),
				slog.String("session_id", inst.SessionID))
			continue
		}

		ictx := logging.WithIDs(ctx, event.SessionID, inst.WorkflowName, inst.CurrentStep)

		if def.EffectiveType() == schema.WorkflowTypeStep {
			before := inst.CurrentStep
			d, err := ue.steps.HandleEvent(ictx, event, inst, def, sessionVars)
			if d.Context != "" {
				result.ContextParts = append(result.ContextParts, d.Context)
			}
			if err != nil {
				return result, err
			}
			if d.Decision == schema.DecisionBlock {
				result.Decision = schema.DecisionBlock
				result.BlockedBy = inst.WorkflowName
				if d.Reason != "" {
					result.ContextParts = append(result.ContextParts, d.Reason)
				}
				return result, nil
			}
			// Modify is the engine's step-change verdict; entry-step late
			// binding alone comes back as a plain allow and is not recorded.
			if d.Decision == schema.DecisionModify && inst.CurrentStep != before {
				result.Transitions[inst.WorkflowName] = inst.CurrentStep
			}
			// The definition-level exit condition detaches the instance
			// mid-call; a detached instance gets no triggers either.
			if !inst.Enabled {
				continue
			}
		}

		// Lifecycle-style triggers declared by any definition type.
		data := BuildContext(event, inst, def, sessionVars)
		parts := ue.steps.EvaluateLifecycleTriggers(ictx, def, event, data)
		result.ContextParts = append(result.ContextParts, parts...)
	}

	return result, nil
}
