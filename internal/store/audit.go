package store

import (
	"context"
	"encoding/json"

	"github.com/Zeeeepa/gobby/pkg/schema"
)

// AuditRecorder persists evaluation outcomes to the audit trail. It
// satisfies the engine's audit sink contract; callers treat failures as
// best-effort.
type AuditRecorder struct {
	store Store
}

// NewAuditRecorder wraps a Store as an audit sink.
func NewAuditRecorder(s Store) *AuditRecorder {
	return &AuditRecorder{store: s}
}

func (r *AuditRecorder) RecordDecision(ctx context.Context, event *schema.HookEvent, instance *schema.WorkflowInstance, decision schema.Decision) error {
	detail, _ := json.Marshal(map[string]any{
		"event_type": event.EventType,
		"tool_name":  event.ToolName(),
		"reason":     decision.Reason,
	})
	return r.store.AppendAudit(ctx, &AuditEntry{
		SessionID:  instance.SessionID,
		InstanceID: instance.ID,
		Workflow:   instance.WorkflowName,
		Step:       instance.CurrentStep,
		Kind:       AuditKindDecision,
		Decision:   string(decision.Decision),
		Detail:     detail,
	})
}

func (r *AuditRecorder) RecordRule(ctx context.Context, instance *schema.WorkflowInstance, rule string, fired bool) error {
	detail, _ := json.Marshal(map[string]any{
		"rule":  rule,
		"fired": fired,
	})
	return r.store.AppendAudit(ctx, &AuditEntry{
		SessionID:  instance.SessionID,
		InstanceID: instance.ID,
		Workflow:   instance.WorkflowName,
		Step:       instance.CurrentStep,
		Kind:       AuditKindRule,
		Detail:     detail,
	})
}

func (r *AuditRecorder) RecordTransition(ctx context.Context, instance *schema.WorkflowInstance, from, to string) error {
	detail, _ := json.Marshal(map[string]any{
		"from": from,
		"to":   to,
	})
	return r.store.AppendAudit(ctx, &AuditEntry{
		SessionID:  instance.SessionID,
		InstanceID: instance.ID,
		Workflow:   instance.WorkflowName,
		Step:       to,
		Kind:       AuditKindTransition,
		Detail:     detail,
	})
}
