package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/repsync/internal/model"
)

// Enqueue assigns id, timestamp and seq to op and persists it.
//
// The insert has committed by the time Enqueue returns; a process exit right
// after the call does not lose the operation. Any storage error is returned
// and the caller must treat the mutation as not preserved.
func (s *Store) Enqueue(ctx context.Context, op model.PendingOperation) (model.QueuedOperation, error) {
	if op.UserID == "" {
		return model.QueuedOperation{}, fmt.Errorf("enqueue: user id is required")
	}
	if !op.Table.Valid() {
		return model.QueuedOperation{}, fmt.Errorf("enqueue: unknown table %q", op.Table)
	}
	if !op.Action.Valid() {
		return model.QueuedOperation{}, fmt.Errorf("enqueue: unknown action %q", op.Action)
	}
	if _, err := model.PayloadID(op.Payload); err != nil {
		return model.QueuedOperation{}, fmt.Errorf("enqueue: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UnixMilli()
	if ts < s.lastTS {
		ts = s.lastTS
	}
	seq := s.lastSeq + 1

	queued := model.QueuedOperation{
		ID:        model.NewID(),
		UserID:    op.UserID,
		Table:     op.Table,
		Action:    op.Action,
		Payload:   op.Payload,
		Timestamp: ts,
		Seq:       seq,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queued_operations
		(id, user_id, table_name, action, payload, timestamp, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		queued.ID,
		queued.UserID,
		string(queued.Table),
		string(queued.Action),
		string(queued.Payload),
		queued.Timestamp,
		queued.Seq,
	)
	if err != nil {
		return model.QueuedOperation{}, fmt.Errorf("enqueue: %w", err)
	}

	s.lastTS = ts
	s.lastSeq = seq
	return queued, nil
}

// List returns queued operations in replay order. An empty userID lists
// every user's operations.
//
// List always reads from the database, never from a cache. Rows that fail
// validation are skipped and logged.
//
// Returns an empty slice (not nil) if nothing is queued.
func (s *Store) List(ctx context.Context, userID string) ([]model.QueuedOperation, error) {
	rows, err := s.scan(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}

	ops := make([]model.QueuedOperation, 0, len(rows))
	for _, row := range rows {
		if !row.Valid() {
			s.logger.Warn("skipping corrupt queued operation",
				"op_id", row.ID,
				"error", row.Err,
			)
			continue
		}
		ops = append(ops, row.Op)
	}
	return ops, nil
}

// Count returns len(List(userID)).
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	ops, err := s.List(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return len(ops), nil
}

// Remove deletes one queued operation. Removing an unknown id is not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queued_operations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove queued operation: %w", err)
	}
	return nil
}

// Compact collapses operations of one user that target the same record,
// keeping only the latest. Returns how many superseded operations were removed.
//
// Every queued effect fully determines the final state of its record (upsert
// of the whole row, or delete), so only the newest one per record matters.
// The newest entry is never touched, so nothing is lost if Compact is
// interrupted.
func (s *Store) Compact(ctx context.Context, userID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("compact queue: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	rows, err := scanRows(ctx, tx, s.validator, userID)
	if err != nil {
		return 0, fmt.Errorf("compact queue: %w", err)
	}

	type recordKey struct {
		table model.Table
		id    string
	}
	type entry struct {
		key recordKey
		id  string
	}
	latest := make(map[recordKey]string)
	var entries []entry
	for _, row := range rows {
		if !row.Valid() {
			continue
		}
		recordID, err := row.Op.RecordID()
		if err != nil {
			continue
		}
		key := recordKey{table: row.Op.Table, id: recordID}
		// rows arrive in replay order, so the last write wins
		latest[key] = row.Op.ID
		entries = append(entries, entry{key: key, id: row.Op.ID})
	}

	removed := 0
	for _, e := range entries {
		if latest[e.key] == e.id {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM queued_operations WHERE id = ?`, e.id); err != nil {
			return 0, fmt.Errorf("compact queue: delete %s: %w", e.id, err)
		}
		removed++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("compact queue: commit: %w", err)
	}

	if removed > 0 {
		s.logger.Debug("compacted queue",
			"user_id", userID,
			"removed", removed,
			"records", len(latest),
		)
	}
	return removed, nil
}

// PurgeCorrupt deletes every row that fails validation and returns the
// deleted ids.
func (s *Store) PurgeCorrupt(ctx context.Context) ([]string, error) {
	rows, err := s.scan(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("purge corrupt: %w", err)
	}

	purged := []string{}
	for _, row := range rows {
		if row.Valid() {
			continue
		}
		if err := s.Remove(ctx, row.ID); err != nil {
			return purged, fmt.Errorf("purge corrupt: %w", err)
		}
		s.logger.Warn("purged corrupt queued operation", "op_id", row.ID, "error", row.Err)
		purged = append(purged, row.ID)
	}
	return purged, nil
}

// scan reads every row for userID (all users if empty) as tagged results.
func (s *Store) scan(ctx context.Context, userID string) ([]Row, error) {
	return scanRows(ctx, s.db, s.validator, userID)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanRows(ctx context.Context, q querier, v *RowValidator, userID string) ([]Row, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if userID == "" {
		rows, err = q.QueryContext(ctx, `
			SELECT id, user_id, table_name, action, payload, timestamp, seq
			FROM queued_operations
			ORDER BY timestamp ASC, seq ASC, id COLLATE BINARY ASC
		`)
	} else {
		rows, err = q.QueryContext(ctx, `
			SELECT id, user_id, table_name, action, payload, timestamp, seq
			FROM queued_operations
			WHERE user_id = ?
			ORDER BY timestamp ASC, seq ASC, id COLLATE BINARY ASC
		`, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("query queued operations: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var (
			raw     storedRow
			payload string
		)
		if err := rows.Scan(&raw.ID, &raw.UserID, &raw.Table, &raw.Action, &payload, &raw.Timestamp, &raw.Seq); err != nil {
			return nil, fmt.Errorf("scan queued operation: %w", err)
		}
		raw.Payload = []byte(payload)
		result = append(result, v.CheckOperation(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queued operations: %w", err)
	}

	return result, nil
}
