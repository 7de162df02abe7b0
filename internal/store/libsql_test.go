package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zeeeepa/gobby/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedSession(t *testing.T, s *LibSQLStore, id string) *Session {
	t.Helper()
	sess := &Session{ID: id, Source: "claude", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateSession(context.Background(), sess))
	return sess
}

// --- Sessions ---

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &Session{
		ID:        "sess-1",
		Source:    "claude",
		Variables: map[string]any{"region": "eu"},
	}
	require.NoError(t, s.CreateSession(ctx, sess))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.ID)
	assert.Equal(t, "claude", got.Source)
	assert.Equal(t, "eu", got.Variables["region"])
	assert.True(t, got.Active())
	assert.Nil(t, got.LastEventAt)
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestCreateSession_ReopenClearsEndedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "sess-1")

	require.NoError(t, s.EndSession(ctx, "sess-1", time.Now().UTC()))

	// Re-creating the same session ID reopens it.
	require.NoError(t, s.CreateSession(ctx, &Session{ID: "sess-1", Source: "cursor"}))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, got.Active())
	assert.Equal(t, "cursor", got.Source)
}

func TestTouchSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "sess-1")

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.TouchSession(ctx, "sess-1", at))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastEventAt)
	assert.WithinDuration(t, at, *got.LastEventAt, time.Second)

	err = s.TouchSession(ctx, "missing", at)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestUpdateSessionVariables(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "sess-1")

	require.NoError(t, s.UpdateSessionVariables(ctx, "sess-1", map[string]any{"task_claimed": true}))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, true, got.Variables["task_claimed"])
}

func TestEndSession_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "sess-1")

	at := time.Now().UTC()
	require.NoError(t, s.EndSession(ctx, "sess-1", at))
	require.NoError(t, s.EndSession(ctx, "sess-1", at), "ending twice is not an error")

	err := s.EndSession(ctx, "missing", at)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestListActiveSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "sess-1")
	seedSession(t, s, "sess-2")
	require.NoError(t, s.EndSession(ctx, "sess-1", time.Now().UTC()))

	active, err := s.ListActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "sess-2", active[0].ID)
}

// --- Workflow instances ---

func TestUpsertAndGetInstance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "sess-1")

	inst := NewInstance("sess-1", "task-loop", 2)
	inst.Variables = map[string]any{"max_files": 5}
	require.NoError(t, s.UpsertInstance(ctx, inst))

	got, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "task-loop", got.WorkflowName)
	assert.Equal(t, 2, got.Priority)
	assert.True(t, got.Enabled)
	assert.Empty(t, got.CurrentStep, "entry step binds on first event, not at attach")
	assert.True(t, got.StepEnteredAt.IsZero())
	assert.EqualValues(t, 5, got.Variables["max_files"])
}

func TestUpsertInstance_UpdatesState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "sess-1")

	inst := NewInstance("sess-1", "task-loop", 0)
	require.NoError(t, s.UpsertInstance(ctx, inst))

	now := time.Now().UTC().Truncate(time.Second)
	inst.EnterStep("implement", now)
	inst.StepActionCount = 3
	inst.ApprovalPending = true
	inst.ApprovalConditionID = "done-gate"
	inst.FilesModifiedThisTask = []string{"main.go"}
	require.NoError(t, s.UpsertInstance(ctx, inst))

	got, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "implement", got.CurrentStep)
	assert.WithinDuration(t, now, got.StepEnteredAt, time.Second)
	assert.Equal(t, 3, got.StepActionCount)
	assert.True(t, got.ApprovalPending)
	assert.Equal(t, "done-gate", got.ApprovalConditionID)
	assert.Equal(t, []string{"main.go"}, got.FilesModifiedThisTask)
}

func TestListInstances_FilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "sess-1")
	seedSession(t, s, "sess-2")

	low := NewInstance("sess-1", "guard", 10)
	high := NewInstance("sess-1", "task-loop", 1)
	other := NewInstance("sess-2", "guard", 0)
	disabled := NewInstance("sess-1", "paused", 5)
	disabled.Enabled = false
	disabled.DisabledReason = "operator request"
	for _, inst := range []*schema.WorkflowInstance{low, high, other, disabled} {
		require.NoError(t, s.UpsertInstance(ctx, inst))
	}

	all, err := s.ListInstances(ctx, InstanceFilter{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "task-loop", all[0].WorkflowName, "lower priority value lists first")
	assert.Equal(t, "guard", all[2].WorkflowName)

	enabled := true
	onlyEnabled, err := s.ListInstances(ctx, InstanceFilter{SessionID: "sess-1", Enabled: &enabled})
	require.NoError(t, err)
	assert.Len(t, onlyEnabled, 2)

	byName, err := s.ListInstances(ctx, InstanceFilter{Workflow: "guard"})
	require.NoError(t, err)
	assert.Len(t, byName, 2)
}

func TestDeleteInstance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "sess-1")

	inst := NewInstance("sess-1", "task-loop", 0)
	require.NoError(t, s.UpsertInstance(ctx, inst))
	require.NoError(t, s.DeleteInstance(ctx, inst.ID))

	_, err := s.GetInstance(ctx, inst.ID)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))

	err = s.DeleteInstance(ctx, inst.ID)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

// --- Audit trail ---

func TestAppendAndListAudit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "sess-1")

	entries := []*AuditEntry{
		{SessionID: "sess-1", Workflow: "guard", Kind: AuditKindDecision, Decision: "block"},
		{SessionID: "sess-1", Workflow: "guard", Kind: AuditKindTransition, Step: "done"},
		{SessionID: "sess-2", Workflow: "other", Kind: AuditKindDecision, Decision: "allow"},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendAudit(ctx, e))
	}

	got, err := s.ListAudit(ctx, AuditFilter{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, AuditKindTransition, got[0].Kind, "newest first")

	decisions, err := s.ListAudit(ctx, AuditFilter{Kind: AuditKindDecision})
	require.NoError(t, err)
	assert.Len(t, decisions, 2)

	limited, err := s.ListAudit(ctx, AuditFilter{SessionID: "sess-1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPruneAudit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := &AuditEntry{SessionID: "sess-1", Kind: AuditKindDecision,
		Timestamp: time.Now().UTC().Add(-48 * time.Hour)}
	fresh := &AuditEntry{SessionID: "sess-1", Kind: AuditKindDecision}
	require.NoError(t, s.AppendAudit(ctx, old))
	require.NoError(t, s.AppendAudit(ctx, fresh))

	n, err := s.PruneAudit(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	remaining, err := s.ListAudit(ctx, AuditFilter{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Vacuum(context.Background()))
}
