package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"visitor-parking-backend/internal/db"
	"visitor-parking-backend/internal/model"
	"visitor-parking-backend/internal/store"
)

func newTestReconciler(t *testing.T, slots ...string) (*Reconciler, store.Store) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := testDB.DB()
		sqlDB.Close()
	})
	require.NoError(t, db.Migrate(testDB))

	s := store.NewGormStore(testDB)
	require.NoError(t, s.SeedSlots(context.Background(), slots))
	return New(s), s
}

func assign(t *testing.T, s store.Store, slotID string, now time.Time) *model.Reservation {
	t.Helper()
	r := &model.Reservation{
		Department:      "1108",
		VisitorPlate:    "ABC123",
		VisitorDocument: "123456785",
		WindowStart:     now,
		WindowEnd:       now.Add(2 * time.Hour),
		State:           model.StatePending,
	}
	require.NoError(t, s.CreateReservation(context.Background(), r))
	got, err := s.AssignSlot(context.Background(), r.ID, slotID, now)
	require.NoError(t, err)
	return got
}

func TestSlotViews(t *testing.T) {
	rec, s := newTestReconciler(t, "A01", "A02", "A03", "A04")
	ctx := context.Background()
	now := time.Now().UTC()

	// A01 free and unheld, A02 held but empty, A03 occupied without a
	// reservation, A04 occupied by its expected visitor.
	held := assign(t, s, "A02", now)
	_, err := s.SetOccupancy(ctx, "A03", model.OccupancyOccupied)
	require.NoError(t, err)
	arrived := assign(t, s, "A04", now)
	_, err = s.SetOccupancy(ctx, "A04", model.OccupancyOccupied)
	require.NoError(t, err)

	views, err := rec.SlotViews(ctx, now)
	require.NoError(t, err)
	require.Len(t, views, 4)

	assert.Equal(t, StatusAvailable, views[0].Status)
	assert.Equal(t, 0, views[0].Estado)
	assert.Nil(t, views[0].ReservationID)

	assert.Equal(t, StatusReserved, views[1].Status)
	assert.Equal(t, 2, views[1].Estado)
	require.NotNil(t, views[1].ReservationID)
	assert.Equal(t, held.ID, *views[1].ReservationID)

	assert.Equal(t, StatusOccupied, views[2].Status)
	assert.Equal(t, 1, views[2].Estado)

	assert.Equal(t, StatusOccupiedReserved, views[3].Status)
	assert.Equal(t, 1, views[3].Estado)
	require.NotNil(t, views[3].ReservationID)
	assert.Equal(t, arrived.ID, *views[3].ReservationID)
}

func TestSlotViewsRawReservedState(t *testing.T) {
	rec, s := newTestReconciler(t, "A01")
	ctx := context.Background()
	now := time.Now().UTC()

	// The feed can report a slot reserved on its own, without any
	// reservation record on our side.
	_, err := s.SetOccupancy(ctx, "A01", model.OccupancyReserved)
	require.NoError(t, err)

	views, err := rec.SlotViews(ctx, now)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, StatusReserved, views[0].Status)
	assert.Nil(t, views[0].ReservationID)
}

func TestAvailabilityTotalsNoDoubleCount(t *testing.T) {
	rec, s := newTestReconciler(t, "A01", "A02", "A03", "A04")
	ctx := context.Background()
	now := time.Now().UTC()

	assign(t, s, "A02", now)
	_, err := s.SetOccupancy(ctx, "A03", model.OccupancyOccupied)
	require.NoError(t, err)
	assign(t, s, "A04", now)
	_, err = s.SetOccupancy(ctx, "A04", model.OccupancyOccupied)
	require.NoError(t, err)

	totals, err := rec.AvailabilityTotals(ctx, now)
	require.NoError(t, err)

	assert.EqualValues(t, 4, totals.Total)
	assert.EqualValues(t, 1, totals.Disponibles)
	assert.EqualValues(t, 1, totals.Reservados)
	// The occupied-with-reservation slot counts as occupied only.
	assert.EqualValues(t, 2, totals.Ocupados)
	assert.EqualValues(t, totals.Total, totals.Disponibles+totals.Reservados+totals.Ocupados)
}

func TestHoldReleasedAfterWindow(t *testing.T) {
	rec, s := newTestReconciler(t, "A01")
	start := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	ctx := context.Background()

	assign(t, s, "A01", start)

	// Inside the window the slot reads reserved.
	views, err := rec.SlotViews(ctx, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusReserved, views[0].Status)

	// One minute past the two hour window the hold lapses and the slot is
	// available again, even before any sweep runs.
	views, err = rec.SlotViews(ctx, start.Add(121*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, views[0].Status)
}

func TestSlotReleasedAfterUnassign(t *testing.T) {
	rec, s := newTestReconciler(t, "A01")
	ctx := context.Background()
	now := time.Now().UTC()

	r := assign(t, s, "A01", now)

	views, err := rec.SlotViews(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, StatusReserved, views[0].Status)

	// Unassigning drops the hold; the slot reads available again.
	_, err = s.UnassignSlot(ctx, r.ID, now)
	require.NoError(t, err)

	views, err = rec.SlotViews(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, views[0].Status)
	assert.Equal(t, 0, views[0].Estado)
	assert.Nil(t, views[0].ReservationID)
}

func TestEffectiveStates(t *testing.T) {
	rec, s := newTestReconciler(t, "A01")
	start := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	ctx := context.Background()

	assign(t, s, "A01", start)

	// An assigned reservation inside its window reads active.
	rs, err := rec.Assigned(ctx, start.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, model.StateActive, rs[0].State)

	rs, err = rec.ActiveForDepartment(ctx, "1108", start.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, model.StateActive, rs[0].State)

	// Past the window it disappears from every live view.
	rs, err = rec.Assigned(ctx, start.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rs)

	rs, err = rec.ActiveForDepartment(ctx, "1108", start.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestPendingQueueOrder(t *testing.T) {
	rec, s := newTestReconciler(t, "A01", "A02")
	ctx := context.Background()
	now := time.Now().UTC()

	for _, dept := range []string{"1108", "1109"} {
		r := &model.Reservation{
			Department:      dept,
			VisitorPlate:    "ABC123",
			VisitorDocument: "123456785",
			WindowStart:     now,
			WindowEnd:       now.Add(2 * time.Hour),
			State:           model.StatePending,
		}
		require.NoError(t, s.CreateReservation(ctx, r))
	}

	rs, err := rec.Pending(ctx, now)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, "1108", rs[0].Department)
	assert.Equal(t, "1109", rs[1].Department)
}
