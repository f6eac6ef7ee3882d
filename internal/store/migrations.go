package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS stations (
    id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    indoor BOOLEAN NOT NULL DEFAULT FALSE,
    city TEXT NOT NULL DEFAULT '',
    latitude REAL NOT NULL DEFAULT 0,
    longitude REAL NOT NULL DEFAULT 0,
    station_group_id TEXT,
    cur_time INTEGER,
    cur_temperature REAL,
    cur_humidity REAL,
    cur_air_pressure REAL
);

CREATE INDEX IF NOT EXISTS idx_stations_group ON stations(station_group_id);

CREATE TABLE IF NOT EXISTS station_groups (
    id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    indoor BOOLEAN NOT NULL DEFAULT FALSE,
    city TEXT NOT NULL DEFAULT '',
    latitude REAL NOT NULL DEFAULT 0,
    longitude REAL NOT NULL DEFAULT 0,
    cur_time INTEGER,
    cur_temperature REAL,
    cur_humidity REAL,
    cur_air_pressure REAL
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id TEXT NOT NULL,
    station_id TEXT NOT NULL,
    added_at INTEGER NOT NULL,
    PRIMARY KEY (group_id, station_id)
);

CREATE INDEX IF NOT EXISTS idx_group_members_station ON group_members(station_id);

CREATE TABLE IF NOT EXISTS measurements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_kind TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    measured_at INTEGER NOT NULL,
    temperature REAL NOT NULL,
    humidity REAL,
    air_pressure REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_measurements_owner_time ON measurements(owner_id, measured_at);
`,
	},
	{
		Version:     2,
		Description: "Add operation_runs journal",
		SQL: `
CREATE TABLE IF NOT EXISTS operation_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    operation TEXT NOT NULL,
    entity_id TEXT,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_operation_runs_started ON operation_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_operation_runs_operation ON operation_runs(operation, started_at);
`,
	},
	{
		Version:     3,
		Description: "Add telemetry_payloads archive",
		SQL: `
CREATE TABLE IF NOT EXISTS telemetry_payloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    received_at INTEGER NOT NULL,
    topic TEXT NOT NULL,
    station_id TEXT,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL UNIQUE
);

CREATE INDEX IF NOT EXISTS idx_telemetry_payloads_station ON telemetry_payloads(station_id, received_at);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		slog.Info("migrations: applying", "version", m.Version, "description", m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC().UnixMilli(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		slog.Info("migrations: completed", "version", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at INTEGER
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
