package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendEvent appends a hook event with a monotonically increasing
// per-session sequence. Uses an immediate write inside the transaction
// to ensure sequence correctness under concurrency.
func (s *LibSQLStore) AppendEvent(ctx context.Context, record *EventRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx may start a deferred transaction. Force write
	// lock acquisition with a write-intent statement so concurrent
	// appenders cannot interleave sequence reads and writes.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM hook_events WHERE session_id = ?`, record.SessionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	record.Sequence = seq

	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO hook_events (session_id, event_type, source, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.SessionID, record.EventType, nullStr(record.Source),
		nullRaw(record.Payload), record.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert hook event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit hook event: %w", err)
	}
	return nil
}

// GetEvents returns hook events for a session with sequence > since,
// ordered by sequence ASC.
func (s *LibSQLStore) GetEvents(ctx context.Context, sessionID string, since int64) ([]*EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, event_type, source, payload, timestamp, sequence
		 FROM hook_events WHERE session_id = ? AND sequence > ? ORDER BY sequence ASC`,
		sessionID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*EventRecord
	for rows.Next() {
		r := &EventRecord{}
		var source, payload sql.NullString
		if err := rows.Scan(&r.ID, &r.SessionID, &r.EventType, &source, &payload, &r.Timestamp, &r.Sequence); err != nil {
			return nil, err
		}
		r.Source = source.String
		r.Payload = rawOrNil(payload)
		records = append(records, r)
	}
	return records, rows.Err()
}

// PruneEvents deletes hook events older than the cutoff and reports the
// number removed.
func (s *LibSQLStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM hook_events WHERE timestamp < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
