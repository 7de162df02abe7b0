package engine

import (
	"github.com/Zeeeepa/gobby/pkg/schema"
)

// BuiltinContextKeys are read-only values always present in the
// evaluation context. Template references to these names must never
// trigger undefined-variable findings in the dry-run validator.
var BuiltinContextKeys = []string{
	"session_id",
	"workflow_name",
	"current_step",
	"event_type",
	"source",
	"timestamp",
}

// BuildContext assembles the ephemeral evaluation context for one event
// against one instance. Two explicit passes with a documented precedence
// (instance variable > definition default > session variable > built-in)
// rather than ad hoc map merging:
//
// Pass 1 resolves the effective variable set by layering instance
// overrides on definition defaults. Pass 2 writes the flattened
// top-level view from least to most specific so later writes win, then
// attaches the namespaced views (session.*, variables.*, event.*,
// workflow.*) and finally merges event fields directly.
func BuildContext(event *schema.HookEvent, inst *schema.WorkflowInstance, def *schema.WorkflowDefinition, sessionVars map[string]any) map[string]any {
	// Pass 1: effective variables.
	vars := make(map[string]any, len(def.Variables)+len(inst.Variables))
	for k, v := range def.Variables {
		vars[k] = v
	}
	for k, v := range inst.Variables {
		vars[k] = v
	}

	// Pass 2: flattened view, least specific first.
	data := make(map[string]any, len(vars)+len(sessionVars)+len(event.Data)+10)

	data["session_id"] = event.SessionID
	data["workflow_name"] = inst.WorkflowName
	data["current_step"] = inst.CurrentStep
	data["event_type"] = event.EventType
	data["source"] = event.Source
	data["timestamp"] = event.Timestamp

	for k, v := range sessionVars {
		data[k] = v
	}
	for k, v := range vars {
		data[k] = v
	}

	// Namespaced views.
	session := make(map[string]any, len(sessionVars))
	for k, v := range sessionVars {
		session[k] = v
	}
	data["session"] = session
	data["variables"] = vars
	data["workflow"] = map[string]any{
		"name":              inst.WorkflowName,
		"current_step":      inst.CurrentStep,
		"step_action_count": inst.StepActionCount,
		"priority":          inst.Priority,
	}

	// Event fields merged in directly (tool_name, prompt, ...), plus the
	// namespaced view. Namespace keys are never overwritten.
	eventData := make(map[string]any, len(event.Data))
	for k, v := range event.Data {
		eventData[k] = v
		switch k {
		case "session", "variables", "workflow", "event":
		default:
			data[k] = v
		}
	}
	data["event"] = eventData

	return data
}
