package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Sensor is the slice of the asset subsystem's sensor entity this service
// touches: the denormalised "last reading" pair kept current by the sync
// executor. HasReading is false until the first reading lands.
type Sensor struct {
	ID            string
	Name          string
	LastReading   float64
	LastReadingAt time.Time
	HasReading    bool
}

// SensorReading is one row of the append-only readings fact table. Rows are
// never updated or deleted by this service.
type SensorReading struct {
	ID         string
	SensorID   string
	Value      float64
	RecordedAt time.Time
}

// SaveSensor inserts or replaces a sensor. A missing ID is generated.
// Sensors are normally created by the asset subsystem; this exists for that
// collaborator and for tests.
func (s *Store) SaveSensor(ctx context.Context, sensor *Sensor) error {
	if sensor.ID == "" {
		sensor.ID = uuid.NewString()
	}
	var last any
	if sensor.HasReading {
		last = sensor.LastReading
	}
	const q = `
		INSERT INTO sensors (id, name, last_reading, last_reading_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    name            = excluded.name,
		    last_reading    = excluded.last_reading,
		    last_reading_at = excluded.last_reading_at`
	_, err := s.db.ExecContext(ctx, q, sensor.ID, sensor.Name, last, formatTime(sensor.LastReadingAt))
	if err != nil {
		return &Error{Op: "saving sensor " + sensor.ID, Err: err}
	}
	return nil
}

// GetSensor returns the sensor with the given id, or (nil, nil) if no such
// sensor exists.
func (s *Store) GetSensor(ctx context.Context, id string) (*Sensor, error) {
	const q = `SELECT id, name, last_reading, last_reading_at FROM sensors WHERE id = ?`
	row := s.db.QueryRowContext(ctx, q, id)

	var sensor Sensor
	var last sql.NullFloat64
	var at string
	err := row.Scan(&sensor.ID, &sensor.Name, &last, &at)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, &Error{Op: "scanning sensor row", Err: err}
	}
	if last.Valid {
		sensor.LastReading = last.Float64
		sensor.HasReading = true
	}
	sensor.LastReadingAt, _ = parseTime(at)
	return &sensor, nil
}

// SetSensorLastReading updates the denormalised last-reading pair on a
// sensor. Last-write-wins: replaying the same value converges.
func (s *Store) SetSensorLastReading(ctx context.Context, sensorID string, value float64, at time.Time) error {
	const q = `UPDATE sensors SET last_reading = ?, last_reading_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, value, formatTime(at), sensorID); err != nil {
		return &Error{Op: "updating last reading for sensor " + sensorID, Err: err}
	}
	return nil
}

// InsertReading appends one reading row. A missing ID is generated.
func (s *Store) InsertReading(ctx context.Context, r *SensorReading) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	const q = `INSERT INTO sensor_readings (id, sensor_id, value, recorded_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, r.ID, r.SensorID, r.Value, formatTime(r.RecordedAt))
	if err != nil {
		return &Error{Op: "inserting reading for sensor " + r.SensorID, Err: err}
	}
	return nil
}

// ListReadings returns up to limit readings for a sensor, newest first.
// Read by the dashboard collaborators; the sync path only appends.
func (s *Store) ListReadings(ctx context.Context, sensorID string, limit int) ([]*SensorReading, error) {
	const q = `
		SELECT id, sensor_id, value, recorded_at
		FROM sensor_readings WHERE sensor_id = ?
		ORDER BY recorded_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, sensorID, limit)
	if err != nil {
		return nil, &Error{Op: "querying readings for sensor " + sensorID, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var readings []*SensorReading
	for rows.Next() {
		var r SensorReading
		var at string
		if err := rows.Scan(&r.ID, &r.SensorID, &r.Value, &at); err != nil {
			return nil, &Error{Op: "scanning reading row", Err: err}
		}
		r.RecordedAt, _ = parseTime(at)
		readings = append(readings, &r)
	}
	return readings, rows.Err()
}
