package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lox/stationgroups/internal/models"
)

const DefaultTxTimeout = 10 * time.Second

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Reader is the read side shared by *Store and *Tx.
type Reader interface {
	GetStation(ctx context.Context, id string) (*models.Station, error)
	ListStationsByGroup(ctx context.Context, groupID string) ([]models.Station, error)
	ListUngroupedStations(ctx context.Context) ([]models.Station, error)
	GetGroup(ctx context.Context, id string) (*models.StationGroup, error)
	ListGroups(ctx context.Context) ([]models.StationGroup, error)
	FindMeasurementsByDay(ctx context.Context, ownerID string, ref time.Time) ([]models.Measurement, error)
	CountMeasurements(ctx context.Context, ownerID string) (int64, error)
}

var (
	_ Reader = (*Store)(nil)
	_ Reader = (*Tx)(nil)
)

type queries struct {
	db dbtx
}

// Store only exposes reads directly. Every mutation of stations, groups and
// measurements goes through a *Tx obtained from WithTx.
type Store struct {
	queries
	db        *sql.DB
	txTimeout time.Duration
}

func New(db *sql.DB) *Store {
	return &Store{queries: queries{db: db}, db: db, txTimeout: DefaultTxTimeout}
}

// SetTxTimeout bounds how long a single WithTx call may run. Zero disables the bound.
func (s *Store) SetTxTimeout(d time.Duration) {
	s.txTimeout = d
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Open opens a SQLite database at path with the pragmas the store relies on.
// Write transactions take the lock at BEGIN so concurrent writers serialize.
// ":memory:" is limited to one connection so every caller sees the same database.
func Open(path string) (*sql.DB, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// each connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func buildDSN(path string) (string, error) {
	params := []string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
		"_txlock=immediate",
	}

	if path == ":memory:" {
		return "file::memory:?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate", nil
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

// Tx is one transaction. All steps of an orchestrated operation share a Tx.
type Tx struct {
	queries
	tx *sql.Tx
}

// WithTx runs fn inside a transaction. A non-nil error from fn rolls the
// transaction back and is returned unchanged. Failures of the transaction
// itself (begin, commit, deadline) are reported as models.ErrTransactionAborted.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", models.ErrTransactionAborted, err)
	}

	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tx{queries: queries{db: sqlTx}, tx: sqlTx}); err != nil {
		sqlTx.Rollback()
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, models.ErrTransactionAborted) {
			return fmt.Errorf("%w: %w", models.ErrTransactionAborted, ctxErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", models.ErrTransactionAborted, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// snapshotColumns holds the cur_* columns shared by stations and station_groups.
type snapshotColumns struct {
	Time        sql.NullInt64
	Temperature sql.NullFloat64
	Humidity    sql.NullFloat64
	AirPressure sql.NullFloat64
}

func (c snapshotColumns) measurement() *models.Measurement {
	if !c.Time.Valid {
		return nil
	}
	m := &models.Measurement{
		Time:        fromMillis(c.Time.Int64),
		Temperature: c.Temperature.Float64,
		AirPressure: c.AirPressure.Float64,
	}
	if c.Humidity.Valid {
		h := c.Humidity.Float64
		m.Humidity = &h
	}
	return m
}
