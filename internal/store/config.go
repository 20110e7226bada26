package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// SyncConfig is one tenant's synchronization configuration: which OpenHAB
// endpoint to talk to, how, and whether sync may run at all.
type SyncConfig struct {
	ID               string
	EndpointURL      string
	AuthToken        string
	SyncIntervalSecs int
	Enabled          bool
	LastSyncedAt     time.Time
}

// SaveConfig inserts or replaces a configuration. A missing ID is generated.
func (s *Store) SaveConfig(ctx context.Context, cfg *SyncConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO sync_configs
		    (id, endpoint_url, auth_token, sync_interval_secs, enabled, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    endpoint_url       = excluded.endpoint_url,
		    auth_token         = excluded.auth_token,
		    sync_interval_secs = excluded.sync_interval_secs,
		    enabled            = excluded.enabled,
		    last_synced_at     = excluded.last_synced_at`

	_, err := s.db.ExecContext(ctx, q,
		cfg.ID,
		cfg.EndpointURL,
		cfg.AuthToken,
		cfg.SyncIntervalSecs,
		cfg.Enabled,
		formatTime(cfg.LastSyncedAt),
	)
	if err != nil {
		return &Error{Op: "saving sync config " + cfg.ID, Err: err}
	}
	return nil
}

// GetConfig returns the configuration with the given id, or (nil, nil) if no
// such configuration exists.
func (s *Store) GetConfig(ctx context.Context, id string) (*SyncConfig, error) {
	const q = `
		SELECT id, endpoint_url, auth_token, sync_interval_secs, enabled, last_synced_at
		FROM sync_configs WHERE id = ?`
	return scanConfig(s.db.QueryRowContext(ctx, q, id))
}

// TouchConfigLastSynced sets the configuration's last-synced timestamp. The
// executor calls this at the end of every run, success or partial failure.
func (s *Store) TouchConfigLastSynced(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE sync_configs SET last_synced_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, formatTime(at), id); err != nil {
		return &Error{Op: "updating last sync time for config " + id, Err: err}
	}
	return nil
}

func scanConfig(row scanner) (*SyncConfig, error) {
	var cfg SyncConfig
	var syncedAt string

	err := row.Scan(
		&cfg.ID,
		&cfg.EndpointURL,
		&cfg.AuthToken,
		&cfg.SyncIntervalSecs,
		&cfg.Enabled,
		&syncedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, &Error{Op: "scanning sync config row", Err: err}
	}

	cfg.LastSyncedAt, _ = parseTime(syncedAt)
	return &cfg, nil
}
