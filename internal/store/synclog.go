package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TriggerKind says who started a sync run.
type TriggerKind string

const (
	TriggerManual    TriggerKind = "manual"
	TriggerAutomatic TriggerKind = "automatic"
)

// Outcome classifies a completed sync run.
type Outcome string

const (
	// OutcomeSuccess: every processed item either synced or was a normal skip.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial: the run completed but recorded per-item errors.
	OutcomePartial Outcome = "partial"
	// OutcomeError: the run itself failed outside the per-item loop.
	OutcomeError Outcome = "error"
)

// SyncLogEntry is one row of the append-only audit trail: exactly one per
// started sync run.
type SyncLogEntry struct {
	ID           string
	ConfigID     string
	Trigger      TriggerKind
	Outcome      Outcome
	ItemsSynced  int
	ErrorSummary string
	CreatedAt    time.Time
}

// InsertLogEntry appends one audit row. A missing ID is generated; a zero
// CreatedAt is stamped with the current time.
func (s *Store) InsertLogEntry(ctx context.Context, e *SyncLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO sync_log (id, config_id, trigger_kind, outcome, items_synced, error_summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		e.ID,
		e.ConfigID,
		string(e.Trigger),
		string(e.Outcome),
		e.ItemsSynced,
		e.ErrorSummary,
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return &Error{Op: "inserting sync log entry for config " + e.ConfigID, Err: err}
	}
	return nil
}

// ListLogEntries returns up to limit audit rows for a configuration, newest
// first.
func (s *Store) ListLogEntries(ctx context.Context, configID string, limit int) ([]*SyncLogEntry, error) {
	const q = `
		SELECT id, config_id, trigger_kind, outcome, items_synced, error_summary, created_at
		FROM sync_log WHERE config_id = ?
		ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, configID, limit)
	if err != nil {
		return nil, &Error{Op: "querying sync log for config " + configID, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var entries []*SyncLogEntry
	for rows.Next() {
		var e SyncLogEntry
		var trigger, outcome, createdAt string
		if err := rows.Scan(&e.ID, &e.ConfigID, &trigger, &outcome, &e.ItemsSynced, &e.ErrorSummary, &createdAt); err != nil {
			return nil, &Error{Op: "scanning sync log row", Err: err}
		}
		e.Trigger = TriggerKind(trigger)
		e.Outcome = Outcome(outcome)
		e.CreatedAt, _ = parseTime(createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
