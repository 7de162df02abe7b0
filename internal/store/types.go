package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Zeeeepa/gobby/pkg/schema"
)

// Session is the persisted record of an agent session observed through
// hook events.
type Session struct {
	ID          string         `json:"id"`
	Source      string         `json:"source,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	LastEventAt *time.Time     `json:"last_event_at,omitempty"`
	EndedAt     *time.Time     `json:"ended_at,omitempty"`
}

// Active reports whether the session has not ended yet.
func (s *Session) Active() bool { return s.EndedAt == nil }

// NewInstance creates a workflow instance record with a fresh identity,
// ready to be persisted. The current step stays empty until the first
// event binds the entry step.
func NewInstance(sessionID, workflowName string, priority int) *schema.WorkflowInstance {
	now := time.Now().UTC()
	return &schema.WorkflowInstance{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		WorkflowName: workflowName,
		Priority:     priority,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// EventRecord is an immutable entry in the per-session hook event log.
type EventRecord struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	EventType string          `json:"event_type"`
	Source    string          `json:"source,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// Audit entry kinds.
const (
	AuditKindDecision   = "decision"
	AuditKindRule       = "rule"
	AuditKindTransition = "transition"
)

// AuditEntry is an immutable record of an evaluation outcome.
type AuditEntry struct {
	ID         int64           `json:"id"`
	SessionID  string          `json:"session_id"`
	InstanceID string          `json:"instance_id,omitempty"`
	Workflow   string          `json:"workflow,omitempty"`
	Step       string          `json:"step,omitempty"`
	Kind       string          `json:"kind"`
	Decision   string          `json:"decision,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// InstanceFilter specifies criteria for listing workflow instances.
type InstanceFilter struct {
	SessionID string `json:"session_id,omitempty"`
	Workflow  string `json:"workflow,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// EventFilter specifies criteria for listing hook events.
type EventFilter struct {
	SessionID string     `json:"session_id,omitempty"`
	EventType string     `json:"event_type,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// AuditFilter specifies criteria for listing audit entries.
type AuditFilter struct {
	SessionID string `json:"session_id,omitempty"`
	Workflow  string `json:"workflow,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}
