package store

import (
	"context"
	"time"

	"github.com/Zeeeepa/gobby/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	UpdateSessionVariables(ctx context.Context, id string, vars map[string]any) error
	EndSession(ctx context.Context, id string, at time.Time) error
	ListActiveSessions(ctx context.Context) ([]*Session, error)

	// Workflow instances
	UpsertInstance(ctx context.Context, inst *schema.WorkflowInstance) error
	GetInstance(ctx context.Context, id string) (*schema.WorkflowInstance, error)
	ListInstances(ctx context.Context, filter InstanceFilter) ([]*schema.WorkflowInstance, error)
	DeleteInstance(ctx context.Context, id string) error

	// Hook event log (append-only)
	AppendEvent(ctx context.Context, record *EventRecord) error
	GetEvents(ctx context.Context, sessionID string, since int64) ([]*EventRecord, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)

	// Audit trail (append-only, best-effort)
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
	PruneAudit(ctx context.Context, before time.Time) (int64, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
