// Package groups owns station group rosters and the group snapshot derived
// from member stations.
package groups

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lox/stationgroups/internal/calc"
	"github.com/lox/stationgroups/internal/models"
	"github.com/lox/stationgroups/internal/stations"
	"github.com/lox/stationgroups/internal/store"
)

type Manager struct {
	stations *stations.Manager
	now      func() time.Time
}

func NewManager(st *stations.Manager, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{stations: st, now: now}
}

func notFound(id string) error {
	return fmt.Errorf("station group %s: %w", id, models.ErrNotFound)
}

func (m *Manager) Create(ctx context.Context, tx *store.Tx, loc models.Location) (*models.StationGroup, error) {
	g := models.StationGroup{
		ID:        uuid.NewString(),
		CreatedAt: m.now().UTC().Truncate(time.Millisecond),
		Location:  loc,
		Stations:  []string{},
	}
	if err := tx.InsertGroup(ctx, g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (m *Manager) Find(ctx context.Context, r store.Reader, groupID string) (*models.StationGroup, error) {
	g, err := r.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if g == nil {
		return nil, notFound(groupID)
	}
	return g, nil
}

func (m *Manager) List(ctx context.Context, r store.Reader) ([]models.StationGroup, error) {
	list, err := r.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return list, nil
}

// Members returns the stations currently pointing at groupID.
func (m *Manager) Members(ctx context.Context, r store.Reader, groupID string) ([]models.Station, error) {
	if _, err := m.Find(ctx, r, groupID); err != nil {
		return nil, err
	}
	return m.stations.FindSnapshotsByGroup(ctx, r, groupID)
}

// RecomputeFromMembers rebuilds the group snapshot from the current snapshots
// of its member stations, stores it and appends it to the group's history.
// A non-positive temperature mean means no member has usable data; it fails
// with models.ErrInvalidMeasurement and nothing is written.
func (m *Manager) RecomputeFromMembers(ctx context.Context, tx *store.Tx, groupID string) (*models.StationGroup, error) {
	if _, err := m.Find(ctx, tx, groupID); err != nil {
		return nil, err
	}

	members, err := m.stations.FindSnapshotsByGroup(ctx, tx, groupID)
	if err != nil {
		return nil, err
	}

	snapshot := calc.GroupSnapshot(m.now().UTC(), members)
	if !(snapshot.Temperature > 0) {
		return nil, fmt.Errorf("%w: group %s has no positive member temperature", models.ErrInvalidMeasurement, groupID)
	}

	stored, err := tx.AppendMeasurement(ctx, models.OwnerGroup, groupID, snapshot)
	if err != nil {
		return nil, err
	}

	g, err := tx.UpdateGroupSnapshot(ctx, groupID, stored)
	if err != nil {
		return nil, fmt.Errorf("update group snapshot: %w", err)
	}
	if g == nil {
		return nil, notFound(groupID)
	}
	return g, nil
}

// AddMember adds stationID to the roster and recomputes. Adding a station
// that is already listed leaves the roster as it is.
func (m *Manager) AddMember(ctx context.Context, tx *store.Tx, groupID, stationID string) (*models.StationGroup, error) {
	if _, err := tx.AddGroupMember(ctx, groupID, stationID, m.now().UTC()); err != nil {
		return nil, err
	}
	return m.RecomputeFromMembers(ctx, tx, groupID)
}

// RemoveMember drops stationID from the roster and recomputes. The station's
// group pointer must already be cleared; a missing station or one still
// pointing at the group fails with models.ErrNotFound.
func (m *Manager) RemoveMember(ctx context.Context, tx *store.Tx, groupID, stationID string) (*models.StationGroup, error) {
	st, err := tx.GetStation(ctx, stationID)
	if err != nil {
		return nil, fmt.Errorf("get station: %w", err)
	}
	if st == nil || st.InGroup(groupID) {
		return nil, fmt.Errorf("station %s detached from group %s: %w", stationID, groupID, models.ErrNotFound)
	}

	if _, err := tx.RemoveGroupMember(ctx, groupID, stationID); err != nil {
		return nil, err
	}
	return m.RecomputeFromMembers(ctx, tx, groupID)
}

// Delete removes the group and its roster.
func (m *Manager) Delete(ctx context.Context, tx *store.Tx, groupID string) error {
	n, err := tx.DeleteGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(groupID)
	}
	return nil
}
