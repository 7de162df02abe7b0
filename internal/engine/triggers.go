package engine

import (
	"context"

	"github.com/Zeeeepa/gobby/pkg/schema"
)

// EvaluateLifecycleTriggers runs the definition's event-keyed trigger
// actions for the given event. The event type may satisfy several
// trigger keys; all matching keys are processed in alias order, each
// key's actions in declared order.
//
// Per-action failures are caught and logged: one broken lifecycle
// action must not suppress the others or crash the call. This isolation
// deliberately does not apply to on_enter/on_exit actions of an active
// transition, where failure propagates.
func (se *StepEngine) EvaluateLifecycleTriggers(ctx context.Context, def *schema.WorkflowDefinition, event *schema.HookEvent, data map[string]any) []string {
	if len(def.Triggers) == 0 {
		return nil
	}

	var parts []string
	for _, key := range schema.TriggerKeysFor(event.EventType) {
		specs, ok := def.Triggers[key]
		if !ok {
			continue
		}
		parts = append(parts, se.runIsolatedActions(ctx, specs, data, "trigger "+key)...)
	}
	return parts
}
