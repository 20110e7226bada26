package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "habsync-test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleConfig() *SyncConfig {
	return &SyncConfig{
		EndpointURL:      "http://openhab.local:8080",
		AuthToken:        "oh.token.abc",
		SyncIntervalSecs: 300,
		Enabled:          true,
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "habsync.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("s1.Close: %v", err)
	}

	// Re-opening the same file must not fail or wipe data.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if err := s2.Close(); err != nil {
		t.Fatalf("s2.Close: %v", err)
	}
}

func TestSaveAndGetConfig(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	cfg := sampleConfig()

	if err := s.SaveConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if cfg.ID == "" {
		t.Fatal("SaveConfig did not assign an ID")
	}

	got, err := s.GetConfig(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if got == nil {
		t.Fatal("GetConfig returned nil, want config")
	}
	if got.EndpointURL != cfg.EndpointURL || !got.Enabled {
		t.Errorf("got %+v, want endpoint %q enabled", got, cfg.EndpointURL)
	}
	if !got.LastSyncedAt.IsZero() {
		t.Errorf("LastSyncedAt = %v, want zero before first run", got.LastSyncedAt)
	}
}

func TestGetConfig_NotFoundIsNilNil(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetConfig(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestTouchConfigLastSynced(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	cfg := sampleConfig()
	if err := s.SaveConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.TouchConfigLastSynced(ctx, cfg.ID, now); err != nil {
		t.Fatalf("TouchConfigLastSynced: %v", err)
	}

	got, err := s.GetConfig(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if !got.LastSyncedAt.Equal(now) {
		t.Errorf("LastSyncedAt = %v, want %v", got.LastSyncedAt, now)
	}
}

func TestListMappings_FiltersAndOrders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	cfg := sampleConfig()
	if err := s.SaveConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	names := []string{"Temp_A", "Temp_B", "Temp_C"}
	for i, name := range names {
		m := &ItemMapping{
			ConfigID:         cfg.ID,
			ExternalItemName: name,
			ExternalItemType: "Number:Temperature",
			SyncEnabled:      i != 1, // Temp_B disabled
		}
		if err := s.SaveMapping(ctx, m); err != nil {
			t.Fatalf("SaveMapping(%s): %v", name, err)
		}
	}

	all, err := s.ListMappings(ctx, cfg.ID, false)
	if err != nil {
		t.Fatalf("ListMappings(all): %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all mappings = %d, want 3", len(all))
	}
	for i, m := range all {
		if m.ExternalItemName != names[i] {
			t.Errorf("mapping[%d] = %q, want %q (insertion order)", i, m.ExternalItemName, names[i])
		}
	}

	enabled, err := s.ListMappings(ctx, cfg.ID, true)
	if err != nil {
		t.Fatalf("ListMappings(enabled): %v", err)
	}
	if len(enabled) != 2 {
		t.Fatalf("enabled mappings = %d, want 2", len(enabled))
	}
	for _, m := range enabled {
		if m.ExternalItemName == "Temp_B" {
			t.Error("disabled mapping Temp_B returned from enabled-only query")
		}
	}
}

func TestSaveMapping_UpsertsOnItemName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := &ItemMapping{ConfigID: "cfg-1", ExternalItemName: "Temp_A", SyncEnabled: true}
	if err := s.SaveMapping(ctx, m); err != nil {
		t.Fatalf("first SaveMapping: %v", err)
	}

	m2 := &ItemMapping{ConfigID: "cfg-1", ExternalItemName: "Temp_A", SensorID: "sensor-9", SyncEnabled: true}
	if err := s.SaveMapping(ctx, m2); err != nil {
		t.Fatalf("second SaveMapping: %v", err)
	}

	got, err := s.ListMappings(ctx, "cfg-1", false)
	if err != nil {
		t.Fatalf("ListMappings: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("mappings = %d, want 1 (upsert)", len(got))
	}
	if got[0].SensorID != "sensor-9" {
		t.Errorf("SensorID = %q, want sensor-9", got[0].SensorID)
	}
}

func TestSetMappingSyncState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := &ItemMapping{ConfigID: "cfg-1", ExternalItemName: "Temp_A", SyncEnabled: true}
	if err := s.SaveMapping(ctx, m); err != nil {
		t.Fatalf("SaveMapping: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.SetMappingSyncState(ctx, m.ID, "23.5 °C", now); err != nil {
		t.Fatalf("SetMappingSyncState: %v", err)
	}

	got, err := s.ListMappings(ctx, "cfg-1", false)
	if err != nil {
		t.Fatalf("ListMappings: %v", err)
	}
	if got[0].LastRawValue != "23.5 °C" {
		t.Errorf("LastRawValue = %q, want the unparsed state text", got[0].LastRawValue)
	}
	if !got[0].LastSyncedAt.Equal(now) {
		t.Errorf("LastSyncedAt = %v, want %v", got[0].LastSyncedAt, now)
	}
}

func TestReadingsAreAppendOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveSensor(ctx, &Sensor{ID: "sensor-1", Name: "Living Room Temp"}); err != nil {
		t.Fatalf("SaveSensor: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := range 3 {
		r := &SensorReading{SensorID: "sensor-1", Value: 22.1, RecordedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.InsertReading(ctx, r); err != nil {
			t.Fatalf("InsertReading #%d: %v", i, err)
		}
	}

	// Same value, three independent rows: readings are not deduplicated.
	readings, err := s.ListReadings(ctx, "sensor-1", 10)
	if err != nil {
		t.Fatalf("ListReadings: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("readings = %d, want 3", len(readings))
	}
	if !readings[0].RecordedAt.After(readings[2].RecordedAt) {
		t.Error("readings not ordered newest first")
	}
}

func TestSetSensorLastReading(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveSensor(ctx, &Sensor{ID: "sensor-1", Name: "Humidity"}); err != nil {
		t.Fatalf("SaveSensor: %v", err)
	}

	got, err := s.GetSensor(ctx, "sensor-1")
	if err != nil {
		t.Fatalf("GetSensor: %v", err)
	}
	if got.HasReading {
		t.Error("HasReading = true before any reading")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.SetSensorLastReading(ctx, "sensor-1", 47.5, now); err != nil {
		t.Fatalf("SetSensorLastReading: %v", err)
	}

	got, err = s.GetSensor(ctx, "sensor-1")
	if err != nil {
		t.Fatalf("GetSensor: %v", err)
	}
	if !got.HasReading || got.LastReading != 47.5 {
		t.Errorf("LastReading = (%v, %v), want (47.5, true)", got.LastReading, got.HasReading)
	}
	if !got.LastReadingAt.Equal(now) {
		t.Errorf("LastReadingAt = %v, want %v", got.LastReadingAt, now)
	}
}

func TestSyncLogRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := &SyncLogEntry{
		ConfigID:     "cfg-1",
		Trigger:      TriggerManual,
		Outcome:      OutcomePartial,
		ItemsSynced:  4,
		ErrorSummary: "Temp_A: middleware unreachable: connection refused",
	}
	if err := s.InsertLogEntry(ctx, e); err != nil {
		t.Fatalf("InsertLogEntry: %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatal("InsertLogEntry did not stamp ID and CreatedAt")
	}

	entries, err := s.ListLogEntries(ctx, "cfg-1", 5)
	if err != nil {
		t.Fatalf("ListLogEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.Trigger != TriggerManual || got.Outcome != OutcomePartial || got.ItemsSynced != 4 {
		t.Errorf("unexpected entry: %+v", got)
	}
	if got.ErrorSummary == "" {
		t.Error("ErrorSummary lost in round trip")
	}
}

func TestInsertReading_UnknownSensorReturnsTypedError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InsertReading(ctx, &SensorReading{
		SensorID:   "no-such-sensor",
		Value:      1.0,
		RecordedAt: time.Now().UTC(),
	})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("expected *store.Error, got %T: %v", err, err)
	}
	if serr.Op == "" || serr.Err == nil {
		t.Fatalf("error not populated: %+v", serr)
	}
}
