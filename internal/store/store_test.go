package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"visitor-parking-backend/internal/apperr"
	"visitor-parking-backend/internal/db"
	"visitor-parking-backend/internal/model"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := testDB.DB()
		sqlDB.Close()
	})

	require.NoError(t, db.Migrate(testDB))
	return NewGormStore(testDB)
}

func seedSlots(t *testing.T, s Store, ids ...string) {
	t.Helper()
	require.NoError(t, s.SeedSlots(context.Background(), ids))
}

func pendingReservation(t *testing.T, s Store, dept string, now time.Time) *model.Reservation {
	t.Helper()
	r := &model.Reservation{
		Department:      dept,
		VisitorPlate:    "ABC123",
		VisitorDocument: "123456785",
		WindowStart:     now,
		WindowEnd:       now.Add(2 * time.Hour),
		State:           model.StatePending,
	}
	require.NoError(t, s.CreateReservation(context.Background(), r))
	return r
}

func TestSeedSlotsKeepsExistingOccupancy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedSlots(t, s, "A01", "A02")
	changed, err := s.SetOccupancy(ctx, "A01", model.OccupancyOccupied)
	require.NoError(t, err)
	assert.True(t, changed)

	// Re-seeding must not reset A01 back to free.
	seedSlots(t, s, "A01", "A02", "A03")

	slots, err := s.ListSlots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, model.OccupancyOccupied, slots[0].Occupancy)
	assert.Equal(t, model.OccupancyFree, slots[1].Occupancy)
}

func TestSetOccupancy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSlots(t, s, "A01")

	changed, err := s.SetOccupancy(ctx, "A01", model.OccupancyOccupied)
	require.NoError(t, err)
	assert.True(t, changed)

	// Re-applying the same state is a no-op.
	changed, err = s.SetOccupancy(ctx, "A01", model.OccupancyOccupied)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = s.SetOccupancy(ctx, "Z99", model.OccupancyFree)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAssignSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedSlots(t, s, "A01", "A02")

	r := pendingReservation(t, s, "1108", now)

	got, err := s.AssignSlot(ctx, r.ID, "A01", now)
	require.NoError(t, err)
	assert.Equal(t, model.StateAssigned, got.State)
	require.NotNil(t, got.AssignedSlotID)
	assert.Equal(t, "A01", *got.AssignedSlotID)
}

func TestAssignSlotConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedSlots(t, s, "A01")

	first := pendingReservation(t, s, "1108", now)
	second := pendingReservation(t, s, "1109", now)

	_, err := s.AssignSlot(ctx, first.ID, "A01", now)
	require.NoError(t, err)

	_, err = s.AssignSlot(ctx, second.ID, "A01", now)
	assert.ErrorIs(t, err, apperr.ErrSlotUnavailable)

	// The loser's reservation is untouched.
	got, err := s.GetReservation(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, got.State)
	assert.Nil(t, got.AssignedSlotID)
}

func TestAssignSlotRejectsOccupied(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedSlots(t, s, "A01")

	r := pendingReservation(t, s, "1108", now)

	_, err := s.SetOccupancy(ctx, "A01", model.OccupancyOccupied)
	require.NoError(t, err)

	_, err = s.AssignSlot(ctx, r.ID, "A01", now)
	assert.ErrorIs(t, err, apperr.ErrSlotUnavailable)
}

func TestAssignSlotRejectsNonPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedSlots(t, s, "A01", "A02")

	r := pendingReservation(t, s, "1108", now)
	_, err := s.AssignSlot(ctx, r.ID, "A01", now)
	require.NoError(t, err)

	// Already assigned; a second slot is not allowed.
	_, err = s.AssignSlot(ctx, r.ID, "A02", now)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = s.AssignSlot(ctx, 9999, "A02", now)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUnassignSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedSlots(t, s, "A01")

	r := pendingReservation(t, s, "1108", now)
	_, err := s.AssignSlot(ctx, r.ID, "A01", now)
	require.NoError(t, err)

	got, err := s.UnassignSlot(ctx, r.ID, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, got.State)
	assert.Nil(t, got.AssignedSlotID)

	// Back in the pending queue.
	pending, err := s.ListPending(ctx, now)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, r.ID, pending[0].ID)
	assert.Nil(t, pending[0].AssignedSlotID)

	// A pending reservation cannot be unassigned again.
	_, err = s.UnassignSlot(ctx, r.ID, now)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestCancelReservation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedSlots(t, s, "A01")

	r := pendingReservation(t, s, "1108", now)
	_, err := s.AssignSlot(ctx, r.ID, "A01", now)
	require.NoError(t, err)

	got, changed, err := s.CancelReservation(ctx, r.ID, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.StateCancelled, got.State)
	assert.Nil(t, got.AssignedSlotID)

	// Retrying the cancel succeeds without changing anything.
	got, changed, err = s.CancelReservation(ctx, r.ID, now)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, model.StateCancelled, got.State)

	_, _, err = s.CancelReservation(ctx, 9999, now)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCancelExpiredReservation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	r := pendingReservation(t, s, "1108", now.Add(-3*time.Hour))
	n, err := s.ExpireStale(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, _, err = s.CancelReservation(ctx, r.ID, now)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestCancelPastWindowBeforeSweep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// The window has closed but no sweep has stored the expiry yet. The
	// cancel must treat the reservation as expired, not flip it.
	r := pendingReservation(t, s, "1108", now.Add(-3*time.Hour))
	_, _, err := s.CancelReservation(ctx, r.ID, now)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	got, err := s.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, got.State)
}

func TestExpireStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedSlots(t, s, "A01")

	past := pendingReservation(t, s, "1108", now.Add(-3*time.Hour))
	_, err := s.AssignSlot(ctx, past.ID, "A01", now.Add(-3*time.Hour))
	require.NoError(t, err)
	live := pendingReservation(t, s, "1109", now)

	n, err := s.ExpireStale(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.GetReservation(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateExpired, got.State)
	assert.Nil(t, got.AssignedSlotID)

	got, err = s.GetReservation(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, got.State)

	// Nothing left to expire.
	n, err = s.ExpireStale(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListPendingOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := pendingReservation(t, s, "1108", now)
	second := pendingReservation(t, s, "1109", now)

	pending, err := s.ListPending(ctx, now)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
}

func TestListByDepartment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mine := pendingReservation(t, s, "1108", now)
	pendingReservation(t, s, "1109", now)
	expired := pendingReservation(t, s, "1108", now.Add(-3*time.Hour))

	rs, err := s.ListByDepartment(ctx, "1108", now)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, mine.ID, rs[0].ID)
	assert.NotEqual(t, expired.ID, rs[0].ID)
}

func TestGetDepartmentByLogin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDepartment(ctx, &model.Department{
		ID: "1108", Email: "d1108@example.com", PasswordHash: "x",
	}))

	byID, err := s.GetDepartmentByLogin(ctx, "1108")
	require.NoError(t, err)
	assert.Equal(t, "1108", byID.ID)

	byEmail, err := s.GetDepartmentByLogin(ctx, "d1108@example.com")
	require.NoError(t, err)
	assert.Equal(t, "1108", byEmail.ID)

	_, err = s.GetDepartmentByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpsertVisitorVehicle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertVisitorVehicle(ctx, &model.VisitorVehicle{
		Plate: "ABC123", Document: "123456785", Department: "1108",
	}))
	// Re-registering the plate moves it to the new department.
	require.NoError(t, s.UpsertVisitorVehicle(ctx, &model.VisitorVehicle{
		Plate: "ABC123", Document: "123456785", Department: "1109",
	}))

	var v model.VisitorVehicle
	require.NoError(t, s.DB().First(&v, "plate = ?", "ABC123").Error)
	assert.Equal(t, "1109", v.Department)
}

func TestListAccessEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, plate := range []string{"ABC123", "ABC123", "XYZ789"} {
		require.NoError(t, s.InsertAccessEvent(ctx, &model.AccessEvent{
			ID:         fmt.Sprintf("ev-%d", i),
			Kind:       model.EventReservationCreated,
			Plate:      plate,
			Department: "1108",
			RecordedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.ListAccessEvents(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "ev-2", all[0].ID)

	filtered, err := s.ListAccessEvents(ctx, "XYZ", 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "XYZ789", filtered[0].Plate)

	limited, err := s.ListAccessEvents(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSubscriptions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := &model.PushSubscription{
		Endpoint: "https://push.example.com/ep1", P256DH: "k", Auth: "a", Department: "1108",
	}
	require.NoError(t, s.UpsertSubscription(ctx, sub))

	// Replacing keys on the same endpoint updates in place.
	sub.Auth = "b"
	require.NoError(t, s.UpsertSubscription(ctx, sub))

	got, err := s.GetSubscription(ctx, sub.Endpoint)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Auth)

	subs, err := s.ListSubscriptionsByDepartment(ctx, "1108")
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	require.NoError(t, s.DeleteSubscription(ctx, sub.Endpoint))
	_, err = s.GetSubscription(ctx, sub.Endpoint)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
