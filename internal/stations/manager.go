// Package stations owns a station's current measurement snapshot and its
// group pointer. Mutating methods take the caller's *store.Tx so that they
// compose into a single orchestrated transaction.
package stations

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/lox/stationgroups/internal/models"
	"github.com/lox/stationgroups/internal/store"
)

type Manager struct {
	now func() time.Time
}

// NewManager returns a Manager stamping measurements with now. A nil clock
// means time.Now.
func NewManager(now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{now: now}
}

func notFound(id string) error {
	return fmt.Errorf("station %s: %w", id, models.ErrNotFound)
}

// ValidateReading checks that r carries a positive, finite temperature.
func ValidateReading(r models.Reading) error {
	if r.Temperature == nil {
		return fmt.Errorf("%w: temperature is required", models.ErrInvalidMeasurement)
	}
	t := *r.Temperature
	if !(t > 0) || math.IsInf(t, 0) {
		return fmt.Errorf("%w: temperature must be positive, got %v", models.ErrInvalidMeasurement, t)
	}
	return nil
}

func (m *Manager) Create(ctx context.Context, tx *store.Tx, loc models.Location) (*models.Station, error) {
	st := models.Station{
		ID:        uuid.NewString(),
		CreatedAt: m.now().UTC().Truncate(time.Millisecond),
		Location:  loc,
	}
	if err := tx.InsertStation(ctx, st); err != nil {
		return nil, err
	}
	return &st, nil
}

// RecordMeasurement validates r, appends it to the station's history and
// replaces the station snapshot. An invalid reading fails before any write.
func (m *Manager) RecordMeasurement(ctx context.Context, tx *store.Tx, stationID string, r models.Reading) (*models.Station, error) {
	if err := ValidateReading(r); err != nil {
		return nil, err
	}

	measurement := models.Measurement{
		Time:        m.now().UTC(),
		Temperature: *r.Temperature,
		Humidity:    r.Humidity,
	}
	if r.AirPressure != nil {
		measurement.AirPressure = *r.AirPressure
	}

	stored, err := tx.AppendMeasurement(ctx, models.OwnerStation, stationID, measurement)
	if err != nil {
		return nil, err
	}

	st, err := tx.UpdateStationSnapshot(ctx, stationID, stored)
	if err != nil {
		return nil, fmt.Errorf("update station snapshot: %w", err)
	}
	if st == nil {
		return nil, notFound(stationID)
	}
	return st, nil
}

// SetGroupMembership points the station at groupID, or ungroups it when
// groupID is nil.
func (m *Manager) SetGroupMembership(ctx context.Context, tx *store.Tx, stationID string, groupID *string) (*models.Station, error) {
	st, err := tx.SetStationGroup(ctx, stationID, groupID)
	if err != nil {
		return nil, fmt.Errorf("set station group: %w", err)
	}
	if st == nil {
		return nil, notFound(stationID)
	}
	return st, nil
}

// ClearGroupMembership ungroups the station only if it currently belongs to
// groupID. A missing station and a station outside groupID both fail with
// models.ErrNotFound.
func (m *Manager) ClearGroupMembership(ctx context.Context, tx *store.Tx, stationID, groupID string) (*models.Station, error) {
	st, err := tx.ClearStationGroupIf(ctx, stationID, groupID)
	if err != nil {
		return nil, fmt.Errorf("clear station group: %w", err)
	}
	if st == nil {
		return nil, fmt.Errorf("station %s in group %s: %w", stationID, groupID, models.ErrNotFound)
	}
	return st, nil
}

func (m *Manager) FindSnapshot(ctx context.Context, r store.Reader, stationID string) (*models.Station, error) {
	st, err := r.GetStation(ctx, stationID)
	if err != nil {
		return nil, fmt.Errorf("get station: %w", err)
	}
	if st == nil {
		return nil, notFound(stationID)
	}
	return st, nil
}

// FindSnapshotsByGroup returns every station whose pointer names groupID.
func (m *Manager) FindSnapshotsByGroup(ctx context.Context, r store.Reader, groupID string) ([]models.Station, error) {
	members, err := r.ListStationsByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group stations: %w", err)
	}
	return members, nil
}

func (m *Manager) ListUngrouped(ctx context.Context, r store.Reader) ([]models.Station, error) {
	list, err := r.ListUngroupedStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ungrouped stations: %w", err)
	}
	return list, nil
}

// FindWithDay returns the station with the measurements recorded on day's UTC date.
func (m *Manager) FindWithDay(ctx context.Context, r store.Reader, stationID string, day time.Time) (*models.StationDay, error) {
	st, err := m.FindSnapshot(ctx, r, stationID)
	if err != nil {
		return nil, err
	}
	measurements, err := r.FindMeasurementsByDay(ctx, stationID, day)
	if err != nil {
		return nil, fmt.Errorf("find measurements: %w", err)
	}
	return &models.StationDay{Station: *st, Measurements: measurements}, nil
}

// Delete removes the station row. History cleanup is the caller's job.
func (m *Manager) Delete(ctx context.Context, tx *store.Tx, stationID string) error {
	n, err := tx.DeleteStation(ctx, stationID)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(stationID)
	}
	return nil
}
