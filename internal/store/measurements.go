package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/stationgroups/internal/models"
)

// DayBounds returns the UTC day containing ref as [start, end).
func DayBounds(ref time.Time) (time.Time, time.Time) {
	u := ref.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// AppendMeasurement stores m under ownerID. The timestamp is stored at
// millisecond precision and the stored record is returned.
func (t *Tx) AppendMeasurement(ctx context.Context, kind models.OwnerKind, ownerID string, m models.Measurement) (models.Measurement, error) {
	m.Time = fromMillis(toMillis(m.Time))
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO measurements (owner_kind, owner_id, measured_at, temperature, humidity, air_pressure)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(kind), ownerID, toMillis(m.Time), m.Temperature, nullFloat(m.Humidity), m.AirPressure)
	if err != nil {
		return models.Measurement{}, fmt.Errorf("insert measurement: %w", err)
	}
	return m, nil
}

// DeleteMeasurementsForOwner removes the owner's whole history. Deleting for an
// owner without history returns 0.
func (t *Tx) DeleteMeasurementsForOwner(ctx context.Context, ownerID string) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM measurements WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete measurements: %w", err)
	}
	return result.RowsAffected()
}

func (q queries) FindMeasurementsByDay(ctx context.Context, ownerID string, ref time.Time) ([]models.Measurement, error) {
	start, end := DayBounds(ref)
	rows, err := q.db.QueryContext(ctx, `
		SELECT measured_at, temperature, humidity, air_pressure
		FROM measurements
		WHERE owner_id = ? AND measured_at >= ? AND measured_at < ?
		ORDER BY measured_at ASC, id ASC
	`, ownerID, toMillis(start), toMillis(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	measurements := make([]models.Measurement, 0)
	for rows.Next() {
		var (
			m          models.Measurement
			measuredAt int64
			humidity   sql.NullFloat64
		)
		if err := rows.Scan(&measuredAt, &m.Temperature, &humidity, &m.AirPressure); err != nil {
			return nil, err
		}
		m.Time = fromMillis(measuredAt)
		if humidity.Valid {
			h := humidity.Float64
			m.Humidity = &h
		}
		measurements = append(measurements, m)
	}
	return measurements, rows.Err()
}

func (q queries) CountMeasurements(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements WHERE owner_id = ?`, ownerID).Scan(&n)
	return n, err
}
