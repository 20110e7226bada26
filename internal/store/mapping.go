package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ItemMapping pairs one external OpenHAB item with one internal sensor and
// carries the per-mapping sync bookkeeping. SensorID may be empty: an
// operator can map an item before assigning it to a sensor, and sync then
// updates the mapping state without writing readings.
type ItemMapping struct {
	ID               string
	ConfigID         string
	ExternalItemName string
	ExternalItemType string
	DisplayLabel     string
	SensorID         string
	SyncEnabled      bool
	LastRawValue     string
	LastSyncedAt     time.Time
}

// SaveMapping inserts or replaces a mapping, keyed on
// (config_id, external_item_name). A missing ID is generated.
func (s *Store) SaveMapping(ctx context.Context, m *ItemMapping) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO item_mappings
		    (id, config_id, external_item_name, external_item_type,
		     display_label, sensor_id, sync_enabled, last_raw_value, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(config_id, external_item_name) DO UPDATE SET
		    external_item_type = excluded.external_item_type,
		    display_label      = excluded.display_label,
		    sensor_id          = excluded.sensor_id,
		    sync_enabled       = excluded.sync_enabled,
		    last_raw_value     = excluded.last_raw_value,
		    last_synced_at     = excluded.last_synced_at`

	_, err := s.db.ExecContext(ctx, q,
		m.ID,
		m.ConfigID,
		m.ExternalItemName,
		m.ExternalItemType,
		m.DisplayLabel,
		m.SensorID,
		m.SyncEnabled,
		m.LastRawValue,
		formatTime(m.LastSyncedAt),
	)
	if err != nil {
		return &Error{Op: fmt.Sprintf("saving mapping for item %q", m.ExternalItemName), Err: err}
	}
	return nil
}

// ListMappings returns all mappings for the given configuration, in stable
// insertion order. With enabledOnly set, mappings with sync disabled are
// filtered out at the query level so the executor never even sees them.
func (s *Store) ListMappings(ctx context.Context, configID string, enabledOnly bool) ([]*ItemMapping, error) {
	q := `
		SELECT id, config_id, external_item_name, external_item_type,
		       display_label, sensor_id, sync_enabled, last_raw_value, last_synced_at
		FROM item_mappings WHERE config_id = ?`
	if enabledOnly {
		q += ` AND sync_enabled = 1`
	}
	q += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, q, configID)
	if err != nil {
		return nil, &Error{Op: "querying mappings for config " + configID, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var mappings []*ItemMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// SetMappingSyncState records the outcome of one successful per-item fetch:
// the unparsed state text and the sync timestamp.
func (s *Store) SetMappingSyncState(ctx context.Context, id, rawValue string, at time.Time) error {
	const q = `UPDATE item_mappings SET last_raw_value = ?, last_synced_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, rawValue, formatTime(at), id); err != nil {
		return &Error{Op: "updating sync state for mapping " + id, Err: err}
	}
	return nil
}

func scanMapping(row scanner) (*ItemMapping, error) {
	var m ItemMapping
	var syncedAt string

	err := row.Scan(
		&m.ID,
		&m.ConfigID,
		&m.ExternalItemName,
		&m.ExternalItemType,
		&m.DisplayLabel,
		&m.SensorID,
		&m.SyncEnabled,
		&m.LastRawValue,
		&syncedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, &Error{Op: "scanning mapping row", Err: err}
	}

	m.LastSyncedAt, _ = parseTime(syncedAt)
	return &m, nil
}
