package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/lox/stationgroups/internal/models"
	"github.com/lox/stationgroups/internal/store"
)

var fixedNow = time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Orchestrator, *store.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	require.NoError(t, s.Migrate())

	return New(s, WithClock(func() time.Time { return fixedNow })), s
}

// setupFile backs the orchestrator with a SQLite file and a full connection
// pool, so concurrent operations run on separate connections.
func setupFile(t *testing.T) (*Orchestrator, *store.Store) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "stationgroups.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	require.NoError(t, s.Migrate())

	return New(s, WithClock(func() time.Time { return fixedNow })), s
}

func ptr(f float64) *float64 { return &f }

func newStation(t *testing.T, o *Orchestrator, temp float64) *models.Station {
	t.Helper()
	ctx := context.Background()
	st, err := o.CreateStation(ctx, models.Location{Name: "station", City: "Myrtleford"})
	require.NoError(t, err)
	if temp != 0 {
		st, err = o.RecordMeasurement(ctx, st.ID, models.Reading{Temperature: ptr(temp)})
		require.NoError(t, err)
	}
	return st
}

func newGroup(t *testing.T, o *Orchestrator) *models.StationGroup {
	t.Helper()
	g, err := o.CreateGroup(context.Background(), models.Location{Name: "Ovens valley"})
	require.NoError(t, err)
	return g
}

func TestRecordMeasurement_UngroupedStation(t *testing.T) {
	ctx := context.Background()
	o, _ := setup(t)
	st := newStation(t, o, 0)

	reading := models.Reading{Temperature: ptr(21.5), Humidity: ptr(40), AirPressure: ptr(1012)}
	updated, err := o.RecordMeasurement(ctx, st.ID, reading)
	require.NoError(t, err)
	require.Equal(t, 21.5, updated.Current.Temperature)
	require.Equal(t, 40.0, *updated.Current.Humidity)
	require.Equal(t, 1012.0, updated.Current.AirPressure)
	require.Nil(t, updated.GroupID)

	history, err := o.MeasurementsForDay(ctx, st.ID, fixedNow)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestRecordMeasurement_PropagatesToGroup(t *testing.T) {
	ctx := context.Background()
	o, _ := setup(t)
	g := newGroup(t, o)
	s := newStation(t, o, 15)
	sibling := newStation(t, o, 18)

	_, err := o.AddStationToGroup(ctx, g.ID, s.ID)
	require.NoError(t, err)
	_, err = o.AddStationToGroup(ctx, g.ID, sibling.ID)
	require.NoError(t, err)

	_, err = o.RecordMeasurement(ctx, s.ID, models.Reading{Temperature: ptr(22)})
	require.NoError(t, err)

	group, err := o.Group(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, 20.0, group.Current.Temperature)
	require.ElementsMatch(t, []string{s.ID, sibling.ID}, group.Stations)

	// one history row per recompute: two adds and one reading
	history, err := o.MeasurementsForDay(ctx, g.ID, fixedNow)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, 20.0, history[2].Temperature)
}

func TestRecordMeasurement_InvalidReadingLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	o, s := setup(t)
	st := newStation(t, o, 17)

	for _, temp := range []*float64{ptr(0), ptr(-4), nil} {
		_, err := o.RecordMeasurement(ctx, st.ID, models.Reading{Temperature: temp})
		require.ErrorIs(t, err, models.ErrInvalidMeasurement)
	}

	after, err := s.GetStation(ctx, st.ID)
	require.NoError(t, err)
	require.Equal(t, st.Current, after.Current)

	n, err := s.CountMeasurements(ctx, st.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestDeleteGroup_DetachesMembers(t *testing.T) {
	ctx := context.Background()
	o, s := setup(t)
	g := newGroup(t, o)
	st := newStation(t, o, 19)

	_, err := o.AddStationToGroup(ctx, g.ID, st.ID)
	require.NoError(t, err)

	result, err := o.DeleteGroup(ctx, g.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, result.DeletedCount)
	require.EqualValues(t, 1, result.MeasurementsDeleted)
	require.Equal(t, 1, result.DetachedStations)

	detached, err := s.GetStation(ctx, st.ID)
	require.NoError(t, err)
	require.Nil(t, detached.GroupID)

	n, err := s.CountMeasurements(ctx, g.ID)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = o.Group(ctx, g.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = o.DeleteGroup(ctx, g.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestAddThenRemoveStation(t *testing.T) {
	ctx := context.Background()
	o, _ := setup(t)
	g := newGroup(t, o)
	stay := newStation(t, o, 18)
	st := newStation(t, o, 30)

	before, err := o.AddStationToGroup(ctx, g.ID, stay.ID)
	require.NoError(t, err)

	added, err := o.AddStationToGroup(ctx, g.ID, st.ID)
	require.NoError(t, err)
	require.Equal(t, 24.0, added.Current.Temperature)

	removed, err := o.RemoveStationFromGroup(ctx, g.ID, st.ID)
	require.NoError(t, err)
	require.Equal(t, before.Stations, removed.Stations)
	require.Equal(t, 18.0, removed.Current.Temperature)

	station, err := o.Station(ctx, st.ID)
	require.NoError(t, err)
	require.Nil(t, station.GroupID)
}

func TestRemoveStationFromGroup_LastMemberIsRejected(t *testing.T) {
	ctx := context.Background()
	o, s := setup(t)
	g := newGroup(t, o)
	st := newStation(t, o, 12)

	_, err := o.AddStationToGroup(ctx, g.ID, st.ID)
	require.NoError(t, err)

	_, err = o.RemoveStationFromGroup(ctx, g.ID, st.ID)
	require.ErrorIs(t, err, models.ErrInvalidMeasurement)

	// the whole removal rolled back
	group, err := o.Group(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, []string{st.ID}, group.Stations)

	after, err := s.GetStation(ctx, st.ID)
	require.NoError(t, err)
	require.True(t, after.InGroup(g.ID))
}

func TestRecordMeasurement_RollsBackWhenGroupRecomputeFails(t *testing.T) {
	ctx := context.Background()
	o, s := setup(t)
	st := newStation(t, o, 16)

	// point the station at a group that does not exist
	dangling := "gone"
	err := s.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.SetStationGroup(ctx, st.ID, &dangling)
		return err
	})
	require.NoError(t, err)

	_, err = o.RecordMeasurement(ctx, st.ID, models.Reading{Temperature: ptr(25)})
	require.ErrorIs(t, err, models.ErrNotFound)

	after, err := s.GetStation(ctx, st.ID)
	require.NoError(t, err)
	require.Equal(t, st.Current, after.Current)

	n, err := s.CountMeasurements(ctx, st.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestAddStationToGroup_Errors(t *testing.T) {
	ctx := context.Background()
	o, _ := setup(t)
	g1 := newGroup(t, o)
	g2 := newGroup(t, o)
	st := newStation(t, o, 20)

	_, err := o.AddStationToGroup(ctx, "missing", st.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = o.AddStationToGroup(ctx, g1.ID, "missing")
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = o.AddStationToGroup(ctx, g1.ID, st.ID)
	require.NoError(t, err)

	// re-adding to the same group is a no-op on the roster
	again, err := o.AddStationToGroup(ctx, g1.ID, st.ID)
	require.NoError(t, err)
	require.Equal(t, []string{st.ID}, again.Stations)

	_, err = o.AddStationToGroup(ctx, g2.ID, st.ID)
	require.ErrorIs(t, err, models.ErrConflict)
	var conflict *MembershipConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, g1.ID, conflict.GroupID)

	other, err := o.Group(ctx, g2.ID)
	require.NoError(t, err)
	require.Empty(t, other.Stations)
}

func TestAddStationToGroup_StationWithoutReadings(t *testing.T) {
	ctx := context.Background()
	o, s := setup(t)
	g := newGroup(t, o)
	st := newStation(t, o, 0)

	_, err := o.AddStationToGroup(ctx, g.ID, st.ID)
	require.ErrorIs(t, err, models.ErrInvalidMeasurement)

	after, err := s.GetStation(ctx, st.ID)
	require.NoError(t, err)
	require.Nil(t, after.GroupID)
}

func TestRemoveStationFromGroup_NotMember(t *testing.T) {
	ctx := context.Background()
	o, _ := setup(t)
	g := newGroup(t, o)
	st := newStation(t, o, 20)

	_, err := o.RemoveStationFromGroup(ctx, g.ID, st.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = o.RemoveStationFromGroup(ctx, g.ID, "missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteStation(t *testing.T) {
	ctx := context.Background()
	o, s := setup(t)
	g := newGroup(t, o)
	st := newStation(t, o, 20)
	other := newStation(t, o, 10)

	_, err := o.AddStationToGroup(ctx, g.ID, st.ID)
	require.NoError(t, err)
	_, err = o.AddStationToGroup(ctx, g.ID, other.ID)
	require.NoError(t, err)
	_, err = o.RecordMeasurement(ctx, st.ID, models.Reading{Temperature: ptr(21)})
	require.NoError(t, err)

	result, err := o.DeleteStation(ctx, st.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, result.DeletedCount)
	require.EqualValues(t, 2, result.MeasurementsDeleted)

	group, err := o.Group(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, []string{other.ID}, group.Stations)

	n, err := s.CountMeasurements(ctx, st.ID)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = o.DeleteStation(ctx, st.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteStation_UnknownLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	o, s := setup(t)

	// history without a station row; the failed delete must keep it
	err := s.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.AppendMeasurement(ctx, models.OwnerStation, "orphan", models.Measurement{Time: fixedNow, Temperature: 9})
		return err
	})
	require.NoError(t, err)

	_, err = o.DeleteStation(ctx, "orphan")
	require.ErrorIs(t, err, models.ErrNotFound)

	n, err := s.CountMeasurements(ctx, "orphan")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestGroupMeanProperty(t *testing.T) {
	ctx := context.Background()
	o, s := setup(t)
	g := newGroup(t, o)

	temps := []float64{4.5, 12, 19.5, 31}
	ids := make([]string, 0, len(temps))
	for _, temp := range temps {
		st := newStation(t, o, temp)
		_, err := o.AddStationToGroup(ctx, g.ID, st.ID)
		require.NoError(t, err)
		ids = append(ids, st.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.RecordMeasurement(ctx, id, models.Reading{Temperature: ptr(float64(10 * (i + 1)))})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	members, err := o.GroupStations(ctx, g.ID)
	require.NoError(t, err)
	var sum float64
	for _, m := range members {
		sum += m.Current.Temperature
	}

	group, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	require.InDelta(t, sum/float64(len(members)), group.Current.Temperature, 1e-9)
	require.Equal(t, 25.0, group.Current.Temperature)
}

func TestGroupMeanProperty_ConcurrentConnections(t *testing.T) {
	ctx := context.Background()
	o, s := setupFile(t)
	g := newGroup(t, o)

	ids := make([]string, 0, 20)
	for i := range 20 {
		st := newStation(t, o, float64(5+i))
		_, err := o.AddStationToGroup(ctx, g.ID, st.ID)
		require.NoError(t, err)
		ids = append(ids, st.ID)
	}

	for round := range 5 {
		var wg sync.WaitGroup
		errs := make(chan error, len(ids))
		for i, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				temp := float64(10 + i + round*3)
				_, err := o.RecordMeasurement(ctx, id, models.Reading{Temperature: ptr(temp), Humidity: ptr(50)})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		members, err := o.GroupStations(ctx, g.ID)
		require.NoError(t, err)
		require.Len(t, members, len(ids))
		var sum float64
		for _, m := range members {
			sum += m.Current.Temperature
		}

		group, err := s.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		require.InDelta(t, sum/float64(len(members)), group.Current.Temperature, 1e-9, "round %d", round)
		require.NotNil(t, group.Current.Humidity)
		require.InDelta(t, 50.0, *group.Current.Humidity, 1e-9)
	}
}

func TestJournalSurvivesCancelledContext(t *testing.T) {
	o, s := setup(t)
	st := newStation(t, o, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.RecordMeasurement(ctx, st.ID, models.Reading{Temperature: ptr(18)})
	require.ErrorIs(t, err, models.ErrTransactionAborted)

	errs, err := s.GetRecentOperationErrors(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	require.Equal(t, OpRecordMeasurement, errs[0].Operation)
	require.True(t, errs[0].FinishedAt.Valid)
	require.Contains(t, errs[0].ErrorMessage.String, context.Canceled.Error())
}

func TestOperationsAreJournaled(t *testing.T) {
	ctx := context.Background()
	o, s := setup(t)
	st := newStation(t, o, 0)

	_, err := o.RecordMeasurement(ctx, st.ID, models.Reading{Temperature: ptr(-1)})
	require.Error(t, err)

	errs, err := s.GetRecentOperationErrors(ctx, 5)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	require.Equal(t, OpRecordMeasurement, errs[0].Operation)
	require.Equal(t, st.ID, errs[0].EntityID.String)

	health, err := s.GetOperationHealth(ctx, time.Hour*24*365*10)
	require.NoError(t, err)
	require.Len(t, health, 2)
}

func TestUngroupedStations(t *testing.T) {
	ctx := context.Background()
	o, _ := setup(t)
	g := newGroup(t, o)
	grouped := newStation(t, o, 20)
	loose := newStation(t, o, 20)

	_, err := o.AddStationToGroup(ctx, g.ID, grouped.ID)
	require.NoError(t, err)

	list, err := o.UngroupedStations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, loose.ID, list[0].ID)

	groups, err := o.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, []string{grouped.ID}, groups[0].Stations)
}

func TestResultLabel(t *testing.T) {
	require.Equal(t, "ok", resultLabel(nil))
	require.Equal(t, "conflict", resultLabel(&MembershipConflictError{}))
	require.Equal(t, "aborted", resultLabel(models.ErrTransactionAborted))
	require.Equal(t, "error", resultLabel(errors.New("boom")))
}
