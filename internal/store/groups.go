package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/stationgroups/internal/models"
)

const groupColumns = `id, created_at, name, indoor, city, latitude, longitude,
	cur_time, cur_temperature, cur_humidity, cur_air_pressure`

func scanGroup(row scanner) (*models.StationGroup, error) {
	var (
		g         models.StationGroup
		createdAt int64
		cur       snapshotColumns
	)
	err := row.Scan(&g.ID, &createdAt, &g.Location.Name, &g.Location.Indoor, &g.Location.City,
		&g.Location.Latitude, &g.Location.Longitude,
		&cur.Time, &cur.Temperature, &cur.Humidity, &cur.AirPressure)
	if err != nil {
		return nil, err
	}
	g.CreatedAt = fromMillis(createdAt)
	g.Current = cur.measurement()
	g.Stations = []string{}
	return &g, nil
}

func (q queries) queryGroup(ctx context.Context, query string, args ...any) (*models.StationGroup, error) {
	g, err := scanGroup(q.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	roster, err := q.GroupRoster(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	g.Stations = roster
	return g, nil
}

// GetGroup returns nil when the group does not exist.
func (q queries) GetGroup(ctx context.Context, id string) (*models.StationGroup, error) {
	return q.queryGroup(ctx, `SELECT `+groupColumns+` FROM station_groups WHERE id = ?`, id)
}

// GroupRoster returns member station ids in the order they were added.
func (q queries) GroupRoster(ctx context.Context, groupID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT station_id FROM group_members
		WHERE group_id = ?
		ORDER BY added_at ASC, station_id ASC
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roster := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		roster = append(roster, id)
	}
	return roster, rows.Err()
}

func (q queries) ListGroups(ctx context.Context) ([]models.StationGroup, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM station_groups ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}

	groups := make([]models.StationGroup, 0)
	index := make(map[string]int)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[g.ID] = len(groups)
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	members, err := q.db.QueryContext(ctx, `
		SELECT group_id, station_id FROM group_members
		ORDER BY added_at ASC, station_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load rosters: %w", err)
	}
	defer members.Close()

	for members.Next() {
		var groupID, stationID string
		if err := members.Scan(&groupID, &stationID); err != nil {
			return nil, err
		}
		if i, ok := index[groupID]; ok {
			groups[i].Stations = append(groups[i].Stations, stationID)
		}
	}
	return groups, members.Err()
}

func (t *Tx) InsertGroup(ctx context.Context, g models.StationGroup) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO station_groups (id, created_at, name, indoor, city, latitude, longitude)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, g.ID, toMillis(g.CreatedAt), g.Location.Name, g.Location.Indoor, g.Location.City,
		g.Location.Latitude, g.Location.Longitude)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// UpdateGroupSnapshot replaces the group's current measurement and returns the
// updated group, or nil if no group matched.
func (t *Tx) UpdateGroupSnapshot(ctx context.Context, id string, m models.Measurement) (*models.StationGroup, error) {
	return t.queryGroup(ctx, `
		UPDATE station_groups SET
			cur_time = ?,
			cur_temperature = ?,
			cur_humidity = ?,
			cur_air_pressure = ?
		WHERE id = ?
		RETURNING `+groupColumns,
		toMillis(m.Time), m.Temperature, nullFloat(m.Humidity), m.AirPressure, id)
}

// AddGroupMember adds stationID to the roster. Adding an existing member is a
// no-op and reports false.
func (t *Tx) AddGroupMember(ctx context.Context, groupID, stationID string, at time.Time) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO group_members (group_id, station_id, added_at)
		VALUES (?, ?, ?)
		ON CONFLICT(group_id, station_id) DO NOTHING
	`, groupID, stationID, toMillis(at))
	if err != nil {
		return false, fmt.Errorf("add group member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *Tx) RemoveGroupMember(ctx context.Context, groupID, stationID string) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ? AND station_id = ?`, groupID, stationID)
	if err != nil {
		return 0, fmt.Errorf("remove group member: %w", err)
	}
	return result.RowsAffected()
}

// RemoveStationFromRosters drops stationID from every roster it appears in.
func (t *Tx) RemoveStationFromRosters(ctx context.Context, stationID string) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM group_members WHERE station_id = ?`, stationID)
	if err != nil {
		return 0, fmt.Errorf("remove station from rosters: %w", err)
	}
	return result.RowsAffected()
}

// DeleteGroup removes the group and its roster. It returns the number of group
// rows deleted.
func (t *Tx) DeleteGroup(ctx context.Context, id string) (int64, error) {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, id); err != nil {
		return 0, fmt.Errorf("delete roster: %w", err)
	}
	result, err := t.tx.ExecContext(ctx, `DELETE FROM station_groups WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete group: %w", err)
	}
	return result.RowsAffected()
}
