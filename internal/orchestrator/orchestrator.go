// Package orchestrator runs every multi-step mutation of stations and groups
// inside a single store transaction. A failing step rolls back the steps
// before it and its error is returned as is. Nothing is retried here.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lox/stationgroups/internal/groups"
	"github.com/lox/stationgroups/internal/metrics"
	"github.com/lox/stationgroups/internal/models"
	"github.com/lox/stationgroups/internal/stations"
	"github.com/lox/stationgroups/internal/store"
)

const (
	OpCreateStation          = "create_station"
	OpCreateGroup            = "create_group"
	OpRecordMeasurement      = "record_measurement"
	OpAddStationToGroup      = "add_station_to_group"
	OpRemoveStationFromGroup = "remove_station_from_group"
	OpDeleteStation          = "delete_station"
	OpDeleteGroup            = "delete_group"
)

type Orchestrator struct {
	store    *store.Store
	stations *stations.Manager
	groups   *groups.Manager
	now      func() time.Time
	log      *slog.Logger
}

type Option func(*Orchestrator)

// WithClock overrides the clock used for measurement timestamps and for
// "today" in reads.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

func New(s *store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store: s,
		now:   time.Now,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.stations = stations.NewManager(o.now)
	o.groups = groups.NewManager(o.stations, o.now)
	return o
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrInvalidMeasurement):
		return "invalid"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrTransactionAborted):
		return "aborted"
	default:
		return "error"
	}
}

// run executes fn in one transaction and journals the outcome outside it, so
// that aborted operations are still recorded.
func (o *Orchestrator) run(ctx context.Context, op, entityID string, fn func(tx *store.Tx) error) error {
	start := time.Now()

	// the journal outlives a cancelled request
	jctx := context.WithoutCancel(ctx)

	journal, err := o.store.StartOperationRun(jctx, op, entityID)
	if err != nil {
		o.log.Warn("operation journal start failed", "operation", op, "error", err)
	}

	err = o.store.WithTx(ctx, fn)

	if jerr := o.store.CompleteOperationRun(jctx, journal, err); jerr != nil {
		o.log.Warn("operation journal complete failed", "operation", op, "error", jerr)
	}

	metrics.OperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
	metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())

	switch resultLabel(err) {
	case "ok":
		o.log.Debug("operation committed", "operation", op, "id", entityID, "duration", time.Since(start))
	case "aborted", "error":
		o.log.Error("operation aborted", "operation", op, "id", entityID, "error", err)
	default:
		o.log.Info("operation rejected", "operation", op, "id", entityID, "error", err)
	}
	return err
}

func (o *Orchestrator) CreateStation(ctx context.Context, loc models.Location) (*models.Station, error) {
	var st *models.Station
	err := o.run(ctx, OpCreateStation, "", func(tx *store.Tx) error {
		var err error
		st, err = o.stations.Create(ctx, tx, loc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (o *Orchestrator) CreateGroup(ctx context.Context, loc models.Location) (*models.StationGroup, error) {
	var g *models.StationGroup
	err := o.run(ctx, OpCreateGroup, "", func(tx *store.Tx) error {
		var err error
		g, err = o.groups.Create(ctx, tx, loc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// RecordMeasurement stores a reading for the station and, when the station is
// grouped, recomputes the group snapshot in the same transaction. If the group
// recompute fails the station write is rolled back as well.
func (o *Orchestrator) RecordMeasurement(ctx context.Context, stationID string, r models.Reading) (*models.Station, error) {
	var (
		st      *models.Station
		grouped bool
	)
	err := o.run(ctx, OpRecordMeasurement, stationID, func(tx *store.Tx) error {
		var err error
		st, err = o.stations.RecordMeasurement(ctx, tx, stationID, r)
		if err != nil {
			return err
		}
		if st.GroupID == nil {
			return nil
		}
		grouped = true
		_, err = o.groups.RecomputeFromMembers(ctx, tx, *st.GroupID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.MeasurementsRecorded.WithLabelValues(string(models.OwnerStation)).Inc()
	if grouped {
		metrics.MeasurementsRecorded.WithLabelValues(string(models.OwnerGroup)).Inc()
	}
	return st, nil
}

// AddStationToGroup points the station at the group, adds it to the roster
// and recomputes the group snapshot. A station that already belongs to a
// different group fails with models.ErrConflict.
func (o *Orchestrator) AddStationToGroup(ctx context.Context, groupID, stationID string) (*models.StationGroup, error) {
	var g *models.StationGroup
	err := o.run(ctx, OpAddStationToGroup, groupID, func(tx *store.Tx) error {
		if _, err := o.groups.Find(ctx, tx, groupID); err != nil {
			return err
		}
		st, err := o.stations.FindSnapshot(ctx, tx, stationID)
		if err != nil {
			return err
		}
		if st.GroupID != nil && *st.GroupID != groupID {
			return &MembershipConflictError{StationID: stationID, GroupID: *st.GroupID}
		}

		if _, err := o.stations.SetGroupMembership(ctx, tx, stationID, &groupID); err != nil {
			return err
		}
		g, err = o.groups.AddMember(ctx, tx, groupID, stationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.MeasurementsRecorded.WithLabelValues(string(models.OwnerGroup)).Inc()
	return g, nil
}

// RemoveStationFromGroup clears the station's pointer, drops it from the
// roster and recomputes the group. When no remaining member has usable data
// the recompute fails with models.ErrInvalidMeasurement and the removal is
// rolled back.
func (o *Orchestrator) RemoveStationFromGroup(ctx context.Context, groupID, stationID string) (*models.StationGroup, error) {
	var g *models.StationGroup
	err := o.run(ctx, OpRemoveStationFromGroup, groupID, func(tx *store.Tx) error {
		if _, err := o.stations.ClearGroupMembership(ctx, tx, stationID, groupID); err != nil {
			return err
		}
		var err error
		g, err = o.groups.RemoveMember(ctx, tx, groupID, stationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.MeasurementsRecorded.WithLabelValues(string(models.OwnerGroup)).Inc()
	return g, nil
}

// DeleteStation removes the station's history, its roster entries and the
// station itself. The former group's snapshot is left as last computed.
func (o *Orchestrator) DeleteStation(ctx context.Context, stationID string) (models.DeletionResult, error) {
	var result models.DeletionResult
	err := o.run(ctx, OpDeleteStation, stationID, func(tx *store.Tx) error {
		n, err := tx.DeleteMeasurementsForOwner(ctx, stationID)
		if err != nil {
			return err
		}
		if _, err := tx.RemoveStationFromRosters(ctx, stationID); err != nil {
			return err
		}
		if err := o.stations.Delete(ctx, tx, stationID); err != nil {
			return err
		}
		result = models.DeletionResult{DeletedCount: 1, MeasurementsDeleted: n}
		return nil
	})
	if err != nil {
		return models.DeletionResult{}, err
	}
	return result, nil
}

// DeleteGroup detaches every member station, removes the group's history and
// deletes the group with its roster.
func (o *Orchestrator) DeleteGroup(ctx context.Context, groupID string) (models.DeletionResult, error) {
	var result models.DeletionResult
	err := o.run(ctx, OpDeleteGroup, groupID, func(tx *store.Tx) error {
		if _, err := o.groups.Find(ctx, tx, groupID); err != nil {
			return err
		}

		members, err := o.stations.FindSnapshotsByGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		for _, st := range members {
			if _, err := o.stations.ClearGroupMembership(ctx, tx, st.ID, groupID); err != nil {
				return err
			}
		}

		n, err := tx.DeleteMeasurementsForOwner(ctx, groupID)
		if err != nil {
			return err
		}
		if err := o.groups.Delete(ctx, tx, groupID); err != nil {
			return err
		}
		result = models.DeletionResult{DeletedCount: 1, MeasurementsDeleted: n, DetachedStations: len(members)}
		return nil
	})
	if err != nil {
		return models.DeletionResult{}, err
	}
	return result, nil
}

// MeasurementsForDay returns the owner's measurements on date's UTC day,
// oldest first. An unknown owner has no measurements.
func (o *Orchestrator) MeasurementsForDay(ctx context.Context, ownerID string, date time.Time) ([]models.Measurement, error) {
	return o.store.FindMeasurementsByDay(ctx, ownerID, date)
}

func (o *Orchestrator) FindStation(ctx context.Context, stationID string) (*models.Station, error) {
	return o.stations.FindSnapshot(ctx, o.store, stationID)
}

// Station returns the station together with today's measurements.
func (o *Orchestrator) Station(ctx context.Context, stationID string) (*models.StationDay, error) {
	return o.stations.FindWithDay(ctx, o.store, stationID, o.now())
}

func (o *Orchestrator) UngroupedStations(ctx context.Context) ([]models.Station, error) {
	return o.stations.ListUngrouped(ctx, o.store)
}

func (o *Orchestrator) Group(ctx context.Context, groupID string) (*models.StationGroup, error) {
	return o.groups.Find(ctx, o.store, groupID)
}

func (o *Orchestrator) Groups(ctx context.Context) ([]models.StationGroup, error) {
	return o.groups.List(ctx, o.store)
}

func (o *Orchestrator) GroupStations(ctx context.Context, groupID string) ([]models.Station, error) {
	return o.groups.Members(ctx, o.store, groupID)
}

// Today returns the current UTC time according to the orchestrator's clock.
func (o *Orchestrator) Today() time.Time {
	return o.now().UTC()
}
