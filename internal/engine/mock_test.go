package engine

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"habsync/internal/openhab"
	"habsync/internal/store"
)

var testLogger = slog.Default()

// --- Mock item source --------------------------------------------------------

type mockSource struct {
	mu       sync.Mutex
	items    map[string]openhab.Item
	fetchErr map[string]error
	listErr  error
	fetched  []string
}

func newMockSource(items ...openhab.Item) *mockSource {
	m := &mockSource{
		items:    make(map[string]openhab.Item, len(items)),
		fetchErr: make(map[string]error),
	}
	for _, it := range items {
		m.items[it.Name] = it
	}
	return m
}

func (m *mockSource) ListItems(_ context.Context) ([]openhab.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]openhab.Item, 0, len(m.items))
	for _, it := range m.items {
		result = append(result, it)
	}
	return result, nil
}

func (m *mockSource) GetItem(_ context.Context, name string) (openhab.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = append(m.fetched, name)
	if err, ok := m.fetchErr[name]; ok {
		return openhab.Item{}, err
	}
	it, ok := m.items[name]
	if !ok {
		return openhab.Item{}, &openhab.RemoteError{StatusCode: http.StatusNotFound}
	}
	return it, nil
}

func (m *mockSource) fetchedNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetched...)
}

// factory returns a ClientFactory that always hands out this mock.
func (m *mockSource) factory() ClientFactory {
	return func(string, string) ItemSource { return m }
}

// --- Mock store --------------------------------------------------------------

type sensorState struct {
	value float64
	at    time.Time
}

type mockStore struct {
	mu       sync.Mutex
	configs  map[string]*store.SyncConfig
	mappings []*store.ItemMapping

	readings   []*store.SensorReading
	sensorLast map[string]sensorState
	rawByID    map[string]string
	lastSynced map[string]time.Time
	logEntries []*store.SyncLogEntry

	listMappingsErr  error
	insertReadingErr error
	sensorUpdateErr  error
	insertLogErr     error
}

func newMockStore(cfg *store.SyncConfig, mappings ...*store.ItemMapping) *mockStore {
	m := &mockStore{
		configs:    make(map[string]*store.SyncConfig),
		mappings:   mappings,
		sensorLast: make(map[string]sensorState),
		rawByID:    make(map[string]string),
		lastSynced: make(map[string]time.Time),
	}
	if cfg != nil {
		m.configs[cfg.ID] = cfg
	}
	return m
}

func (m *mockStore) GetConfig(_ context.Context, id string) (*store.SyncConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configs[id], nil
}

func (m *mockStore) TouchConfigLastSynced(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSynced[id] = at
	if cfg, ok := m.configs[id]; ok {
		cfg.LastSyncedAt = at
	}
	return nil
}

func (m *mockStore) ListMappings(_ context.Context, configID string, enabledOnly bool) ([]*store.ItemMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listMappingsErr != nil {
		return nil, m.listMappingsErr
	}
	var result []*store.ItemMapping
	for _, mp := range m.mappings {
		if mp.ConfigID != configID {
			continue
		}
		if enabledOnly && !mp.SyncEnabled {
			continue
		}
		result = append(result, mp)
	}
	return result, nil
}

func (m *mockStore) SetMappingSyncState(_ context.Context, id, rawValue string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawByID[id] = rawValue
	for _, mp := range m.mappings {
		if mp.ID == id {
			mp.LastRawValue = rawValue
			mp.LastSyncedAt = at
		}
	}
	return nil
}

func (m *mockStore) InsertReading(_ context.Context, r *store.SensorReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertReadingErr != nil {
		return m.insertReadingErr
	}
	cp := *r
	m.readings = append(m.readings, &cp)
	return nil
}

func (m *mockStore) SetSensorLastReading(_ context.Context, sensorID string, value float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sensorUpdateErr != nil {
		return m.sensorUpdateErr
	}
	m.sensorLast[sensorID] = sensorState{value: value, at: at}
	return nil
}

func (m *mockStore) InsertLogEntry(_ context.Context, e *store.SyncLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertLogErr != nil {
		return m.insertLogErr
	}
	cp := *e
	m.logEntries = append(m.logEntries, &cp)
	return nil
}

func (m *mockStore) readingsFor(sensorID string) []*store.SensorReading {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*store.SensorReading
	for _, r := range m.readings {
		if r.SensorID == sensorID {
			result = append(result, r)
		}
	}
	return result
}

func (m *mockStore) logCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logEntries)
}

func (m *mockStore) lastLog() *store.SyncLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.logEntries) == 0 {
		return nil
	}
	return m.logEntries[len(m.logEntries)-1]
}
