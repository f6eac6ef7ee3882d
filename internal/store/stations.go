package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lox/stationgroups/internal/models"
)

const stationColumns = `id, created_at, name, indoor, city, latitude, longitude, station_group_id,
	cur_time, cur_temperature, cur_humidity, cur_air_pressure`

func scanStation(row scanner) (*models.Station, error) {
	var (
		st        models.Station
		createdAt int64
		groupID   sql.NullString
		cur       snapshotColumns
	)
	err := row.Scan(&st.ID, &createdAt, &st.Location.Name, &st.Location.Indoor, &st.Location.City,
		&st.Location.Latitude, &st.Location.Longitude, &groupID,
		&cur.Time, &cur.Temperature, &cur.Humidity, &cur.AirPressure)
	if err != nil {
		return nil, err
	}
	st.CreatedAt = fromMillis(createdAt)
	if groupID.Valid && groupID.String != "" {
		g := groupID.String
		st.GroupID = &g
	}
	st.Current = cur.measurement()
	return &st, nil
}

// queryStation runs a single-row station query and maps sql.ErrNoRows to a nil station.
func (q queries) queryStation(ctx context.Context, query string, args ...any) (*models.Station, error) {
	st, err := scanStation(q.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (q queries) queryStations(ctx context.Context, query string, args ...any) ([]models.Station, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stations := make([]models.Station, 0)
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		stations = append(stations, *st)
	}
	return stations, rows.Err()
}

// GetStation returns nil when the station does not exist.
func (q queries) GetStation(ctx context.Context, id string) (*models.Station, error) {
	return q.queryStation(ctx, `SELECT `+stationColumns+` FROM stations WHERE id = ?`, id)
}

func (q queries) ListStationsByGroup(ctx context.Context, groupID string) ([]models.Station, error) {
	return q.queryStations(ctx, `SELECT `+stationColumns+` FROM stations WHERE station_group_id = ? ORDER BY created_at ASC, id ASC`, groupID)
}

func (q queries) ListUngroupedStations(ctx context.Context) ([]models.Station, error) {
	return q.queryStations(ctx, `SELECT `+stationColumns+` FROM stations
		WHERE station_group_id IS NULL OR station_group_id = ''
		ORDER BY created_at ASC, id ASC`)
}

func (t *Tx) InsertStation(ctx context.Context, st models.Station) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stations (id, created_at, name, indoor, city, latitude, longitude, station_group_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, st.ID, toMillis(st.CreatedAt), st.Location.Name, st.Location.Indoor, st.Location.City,
		st.Location.Latitude, st.Location.Longitude, nullString(st.GroupID))
	if err != nil {
		return fmt.Errorf("insert station: %w", err)
	}
	return nil
}

// UpdateStationSnapshot replaces the station's current measurement and returns
// the updated station, or nil if no station matched.
func (t *Tx) UpdateStationSnapshot(ctx context.Context, id string, m models.Measurement) (*models.Station, error) {
	return t.queryStation(ctx, `
		UPDATE stations SET
			cur_time = ?,
			cur_temperature = ?,
			cur_humidity = ?,
			cur_air_pressure = ?
		WHERE id = ?
		RETURNING `+stationColumns,
		toMillis(m.Time), m.Temperature, nullFloat(m.Humidity), m.AirPressure, id)
}

// SetStationGroup sets or clears (groupID == nil) the group pointer. Returns
// nil if no station matched.
func (t *Tx) SetStationGroup(ctx context.Context, id string, groupID *string) (*models.Station, error) {
	return t.queryStation(ctx, `
		UPDATE stations SET station_group_id = ?
		WHERE id = ?
		RETURNING `+stationColumns,
		nullString(groupID), id)
}

// ClearStationGroupIf clears the group pointer only while it still names
// groupID. Returns nil if the station is missing or points elsewhere.
func (t *Tx) ClearStationGroupIf(ctx context.Context, id, groupID string) (*models.Station, error) {
	return t.queryStation(ctx, `
		UPDATE stations SET station_group_id = NULL
		WHERE id = ? AND station_group_id = ?
		RETURNING `+stationColumns,
		id, groupID)
}

func (t *Tx) DeleteStation(ctx context.Context, id string) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM stations WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete station: %w", err)
	}
	return result.RowsAffected()
}
