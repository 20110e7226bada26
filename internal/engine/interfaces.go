// Package engine implements the sensor synchronization core: the
// [Executor] runs one reconciliation pass over a configuration's enabled
// item mappings, tolerating per-item failure, and the [Discoverer] lists
// the middleware items an operator can still map.
//
// All persistent state lives behind the [Store] interface; the engine is
// stateless between runs apart from the per-config run locks.
package engine

import (
	"context"
	"time"

	"habsync/internal/openhab"
	"habsync/internal/store"
)

// ItemSource is the slice of the OpenHAB client the engine uses.
// Implemented by [openhab.Client].
type ItemSource interface {
	ListItems(ctx context.Context) ([]openhab.Item, error)
	GetItem(ctx context.Context, name string) (openhab.Item, error)
}

// ClientFactory builds an [ItemSource] for one configuration's endpoint.
// Injected so tests can substitute mocks per endpoint.
type ClientFactory func(endpointURL, token string) ItemSource

// Store is the persistence surface the engine needs.
// Implemented by [store.Store].
type Store interface {
	GetConfig(ctx context.Context, id string) (*store.SyncConfig, error)
	TouchConfigLastSynced(ctx context.Context, id string, at time.Time) error
	ListMappings(ctx context.Context, configID string, enabledOnly bool) ([]*store.ItemMapping, error)
	SetMappingSyncState(ctx context.Context, id, rawValue string, at time.Time) error
	InsertReading(ctx context.Context, r *store.SensorReading) error
	SetSensorLastReading(ctx context.Context, sensorID string, value float64, at time.Time) error
	InsertLogEntry(ctx context.Context, e *store.SyncLogEntry) error
}
