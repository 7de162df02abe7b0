package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/Zeeeepa/gobby/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Sessions ---

func (s *LibSQLStore) CreateSession(ctx context.Context, session *Session) error {
	vars, err := marshalMapOrDefault(session.Variables)
	if err != nil {
		return fmt.Errorf("marshal session variables: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, source, variables, created_at, last_event_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET source=excluded.source, ended_at=NULL`,
		session.ID, nullStr(session.Source), string(vars),
		timeOrNow(session.CreatedAt), nullTime(session.LastEventAt), nullTime(session.EndedAt),
	)
	return err
}

func (s *LibSQLStore) GetSession(ctx context.Context, id string) (*Session, error) {
	sess := &Session{}
	var source sql.NullString
	var varsJSON string
	var lastEvent, ended sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, variables, created_at, last_event_at, ended_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &source, &varsJSON, &sess.CreatedAt, &lastEvent, &ended)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("session", id)
	}
	if err != nil {
		return nil, err
	}
	sess.Source = source.String
	if varsJSON != "" {
		_ = json.Unmarshal([]byte(varsJSON), &sess.Variables)
	}
	if lastEvent.Valid {
		sess.LastEventAt = &lastEvent.Time
	}
	if ended.Valid {
		sess.EndedAt = &ended.Time
	}
	return sess, nil
}

func (s *LibSQLStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_event_at = ? WHERE id = ?`, timeOrNow(at), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "session", id)
}

func (s *LibSQLStore) UpdateSessionVariables(ctx context.Context, id string, vars map[string]any) error {
	varsJSON, err := marshalMapOrDefault(vars)
	if err != nil {
		return fmt.Errorf("marshal session variables: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET variables = ? WHERE id = ?`, string(varsJSON), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "session", id)
}

func (s *LibSQLStore) EndSession(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`, timeOrNow(at), id,
	)
	if err != nil {
		return err
	}
	// Ending an already-ended session is not an error.
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := s.GetSession(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

func (s *LibSQLStore) ListActiveSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, variables, created_at, last_event_at, ended_at
		 FROM sessions WHERE ended_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		var source sql.NullString
		var varsJSON string
		var lastEvent, ended sql.NullTime
		if err := rows.Scan(&sess.ID, &source, &varsJSON, &sess.CreatedAt, &lastEvent, &ended); err != nil {
			return nil, err
		}
		sess.Source = source.String
		if varsJSON != "" {
			_ = json.Unmarshal([]byte(varsJSON), &sess.Variables)
		}
		if lastEvent.Valid {
			sess.LastEventAt = &lastEvent.Time
		}
		if ended.Valid {
			sess.EndedAt = &ended.Time
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// --- Workflow instances ---

func (s *LibSQLStore) UpsertInstance(ctx context.Context, inst *schema.WorkflowInstance) error {
	vars, err := marshalMapOrDefault(inst.Variables)
	if err != nil {
		return fmt.Errorf("marshal instance variables: %w", err)
	}
	files, err := json.Marshal(filesOrEmpty(inst.FilesModifiedThisTask))
	if err != nil {
		return fmt.Errorf("marshal files_modified: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_instances
		 (id, session_id, workflow_name, priority, enabled, disabled_reason, current_step,
		  step_entered_at, step_action_count, files_modified, variables,
		  approval_pending, approval_condition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		  priority=excluded.priority, enabled=excluded.enabled, disabled_reason=excluded.disabled_reason,
		  current_step=excluded.current_step, step_entered_at=excluded.step_entered_at,
		  step_action_count=excluded.step_action_count, files_modified=excluded.files_modified,
		  variables=excluded.variables, approval_pending=excluded.approval_pending,
		  approval_condition=excluded.approval_condition, updated_at=CURRENT_TIMESTAMP`,
		inst.ID, inst.SessionID, inst.WorkflowName, inst.Priority,
		boolToInt(inst.Enabled), nullStr(inst.DisabledReason), nullStr(inst.CurrentStep),
		nullZeroTime(inst.StepEnteredAt), inst.StepActionCount, string(files), string(vars),
		boolToInt(inst.ApprovalPending), nullStr(inst.ApprovalConditionID),
		timeOrNow(inst.CreatedAt), timeOrNow(inst.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetInstance(ctx context.Context, id string) (*schema.WorkflowInstance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, workflow_name, priority, enabled, disabled_reason, current_step,
		        step_entered_at, step_action_count, files_modified, variables,
		        approval_pending, approval_condition, created_at, updated_at
		 FROM workflow_instances WHERE id = ?`, id)
	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow instance", id)
	}
	return inst, err
}

func (s *LibSQLStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]*schema.WorkflowInstance, error) {
	var where []string
	var args []any

	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Workflow != "" {
		where = append(where, "workflow_name = ?")
		args = append(args, filter.Workflow)
	}
	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolToInt(*filter.Enabled))
	}

	query := `SELECT id, session_id, workflow_name, priority, enabled, disabled_reason, current_step,
	                 step_entered_at, step_action_count, files_modified, variables,
	                 approval_pending, approval_condition, created_at, updated_at
	          FROM workflow_instances`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY priority ASC, created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*schema.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func (s *LibSQLStore) DeleteInstance(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflow_instances WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow instance", id)
}

// scannable covers both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanInstance(row scannable) (*schema.WorkflowInstance, error) {
	inst := &schema.WorkflowInstance{}
	var (
		disabledReason, currentStep, approvalCond sql.NullString
		stepEnteredAt                             sql.NullTime
		enabled, approvalPending                  int
		filesJSON, varsJSON                       string
	)
	err := row.Scan(&inst.ID, &inst.SessionID, &inst.WorkflowName, &inst.Priority,
		&enabled, &disabledReason, &currentStep,
		&stepEnteredAt, &inst.StepActionCount, &filesJSON, &varsJSON,
		&approvalPending, &approvalCond, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inst.Enabled = enabled != 0
	inst.DisabledReason = disabledReason.String
	inst.CurrentStep = currentStep.String
	if stepEnteredAt.Valid {
		inst.StepEnteredAt = stepEnteredAt.Time
	}
	if filesJSON != "" {
		_ = json.Unmarshal([]byte(filesJSON), &inst.FilesModifiedThisTask)
	}
	if varsJSON != "" {
		_ = json.Unmarshal([]byte(varsJSON), &inst.Variables)
	}
	inst.ApprovalPending = approvalPending != 0
	inst.ApprovalConditionID = approvalCond.String
	return inst, nil
}

// --- Audit trail ---

func (s *LibSQLStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (session_id, instance_id, workflow, step, kind, decision, detail, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID, nullStr(entry.InstanceID), nullStr(entry.Workflow), nullStr(entry.Step),
		entry.Kind, nullStr(entry.Decision), nullRaw(entry.Detail), entry.Timestamp,
	)
	return err
}

func (s *LibSQLStore) ListAudit(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	var where []string
	var args []any

	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Workflow != "" {
		where = append(where, "workflow = ?")
		args = append(args, filter.Workflow)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}

	query := `SELECT id, session_id, instance_id, workflow, step, kind, decision, detail, timestamp FROM audit_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		e := &AuditEntry{}
		var instanceID, workflow, step, decision, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &instanceID, &workflow, &step, &e.Kind, &decision, &detail, &e.Timestamp); err != nil {
			return nil, err
		}
		e.InstanceID = instanceID.String
		e.Workflow = workflow.String
		e.Step = step.String
		e.Decision = decision.String
		e.Detail = rawOrNil(detail)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *LibSQLStore) PruneAudit(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_entries WHERE timestamp < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.GobbyError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func marshalMapOrDefault(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}

func filesOrEmpty(files []string) []string {
	if files == nil {
		return []string{}
	}
	return files
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
