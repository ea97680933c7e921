package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"visitor-parking-backend/internal/apperr"
	"visitor-parking-backend/internal/model"
)

// Store defines the interface for all database operations. Mutations on the
// reservation table go through here so the check-and-set semantics live in
// one place.
type Store interface {
	DB() *gorm.DB

	SeedSlots(ctx context.Context, ids []string) error
	ListSlots(ctx context.Context) ([]model.Slot, error)
	SetOccupancy(ctx context.Context, slotID string, state model.Occupancy) (bool, error)
	CountSlots(ctx context.Context) (int64, error)
	CountOccupiedSlots(ctx context.Context) (int64, error)

	CreateReservation(ctx context.Context, r *model.Reservation) error
	GetReservation(ctx context.Context, id int64) (*model.Reservation, error)
	AssignSlot(ctx context.Context, id int64, slotID string, now time.Time) (*model.Reservation, error)
	UnassignSlot(ctx context.Context, id int64, now time.Time) (*model.Reservation, error)
	CancelReservation(ctx context.Context, id int64, now time.Time) (*model.Reservation, bool, error)
	ListPending(ctx context.Context, now time.Time) ([]model.Reservation, error)
	ListAssigned(ctx context.Context, now time.Time) ([]model.Reservation, error)
	ListByDepartment(ctx context.Context, dept string, now time.Time) ([]model.Reservation, error)
	CountLiveReservations(ctx context.Context, now time.Time) (int64, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)

	GetDepartmentByLogin(ctx context.Context, idOrEmail string) (*model.Department, error)
	UpsertDepartment(ctx context.Context, d *model.Department) error

	UpsertVisitorVehicle(ctx context.Context, v *model.VisitorVehicle) error
	InsertAccessEvent(ctx context.Context, e *model.AccessEvent) error
	ListAccessEvents(ctx context.Context, q string, limit int) ([]model.AccessEvent, error)

	UpsertSubscription(ctx context.Context, s *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	ListSubscriptionsByDepartment(ctx context.Context, dept string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

// SeedSlots inserts any missing slots as free. Existing rows keep their
// occupancy; the sensor feed owns that field.
func (s *gormStore) SeedSlots(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	slots := make([]model.Slot, len(ids))
	for i, id := range ids {
		slots[i] = model.Slot{ID: id, Occupancy: model.OccupancyFree}
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&slots).Error
}

func (s *gormStore) ListSlots(ctx context.Context) ([]model.Slot, error) {
	var slots []model.Slot
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	return slots, nil
}

// SetOccupancy applies an externally observed occupancy state. Re-applying
// the current state is a no-op; the returned bool reports whether anything
// changed.
func (s *gormStore) SetOccupancy(ctx context.Context, slotID string, state model.Occupancy) (bool, error) {
	var slot model.Slot
	err := s.db.WithContext(ctx).First(&slot, "id = ?", slotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("slot %s: %w", slotID, apperr.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to load slot %s: %w", slotID, err)
	}
	if slot.Occupancy == state {
		return false, nil
	}
	if err := s.db.WithContext(ctx).Model(&slot).Update("occupancy", state).Error; err != nil {
		return false, fmt.Errorf("failed to update slot %s: %w", slotID, err)
	}
	return true, nil
}

func (s *gormStore) CountSlots(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Slot{}).Count(&n).Error
	return n, err
}

func (s *gormStore) CountOccupiedSlots(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Slot{}).
		Where("occupancy = ?", model.OccupancyOccupied).Count(&n).Error
	return n, err
}

func (s *gormStore) CreateReservation(ctx context.Context, r *model.Reservation) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

func (s *gormStore) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	var r model.Reservation
	err := s.db.WithContext(ctx).First(&r, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("reservation %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation %d: %w", id, err)
	}
	return &r, nil
}

// AssignSlot binds a pending reservation to a slot. The whole check-and-set
// runs in one transaction: reservation must be pending and inside its
// window, the slot must exist, be physically free and not held by any other
// live reservation. The losing side of a race gets ErrSlotUnavailable and
// its reservation is left untouched.
func (s *gormStore) AssignSlot(ctx context.Context, id int64, slotID string, now time.Time) (*model.Reservation, error) {
	var out model.Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r model.Reservation
		if err := tx.First(&r, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("reservation %d: %w", id, apperr.ErrNotFound)
			}
			return err
		}
		if r.State != model.StatePending || !now.Before(r.WindowEnd) {
			return fmt.Errorf("reservation %d is not pending: %w", id, apperr.ErrInvalidState)
		}

		var slot model.Slot
		if err := tx.First(&slot, "id = ?", slotID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("slot %s: %w", slotID, apperr.ErrNotFound)
			}
			return err
		}
		if slot.Occupancy != model.OccupancyFree {
			return fmt.Errorf("slot %s is not free: %w", slotID, apperr.ErrSlotUnavailable)
		}

		var holders int64
		if err := tx.Model(&model.Reservation{}).
			Where("assigned_slot_id = ? AND state = ? AND window_end > ?", slotID, model.StateAssigned, now).
			Count(&holders).Error; err != nil {
			return err
		}
		if holders > 0 {
			return fmt.Errorf("slot %s already held: %w", slotID, apperr.ErrSlotUnavailable)
		}

		r.AssignedSlotID = &slotID
		r.State = model.StateAssigned
		if err := tx.Save(&r).Error; err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UnassignSlot releases the slot and returns the reservation to pending, so
// it reappears in the pending queue.
func (s *gormStore) UnassignSlot(ctx context.Context, id int64, now time.Time) (*model.Reservation, error) {
	var out model.Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r model.Reservation
		if err := tx.First(&r, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("reservation %d: %w", id, apperr.ErrNotFound)
			}
			return err
		}
		if r.State != model.StateAssigned || !now.Before(r.WindowEnd) {
			return fmt.Errorf("reservation %d is not assigned: %w", id, apperr.ErrInvalidState)
		}
		if err := tx.Model(&r).Updates(map[string]any{
			"assigned_slot_id": nil,
			"state":            model.StatePending,
		}).Error; err != nil {
			return err
		}
		r.AssignedSlotID = nil
		r.State = model.StatePending
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelReservation moves a reservation to cancelled and drops its slot
// reference. Cancelling an already-cancelled reservation is a no-op
// success, so clients can retry the call blindly. A reservation whose
// window has closed counts as expired even before the sweep stores it.
func (s *gormStore) CancelReservation(ctx context.Context, id int64, now time.Time) (*model.Reservation, bool, error) {
	var out model.Reservation
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r model.Reservation
		if err := tx.First(&r, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("reservation %d: %w", id, apperr.ErrNotFound)
			}
			return err
		}
		if r.State == model.StateCancelled {
			out = r
			return nil
		}
		if r.State == model.StateExpired || !now.Before(r.WindowEnd) {
			return fmt.Errorf("reservation %d already expired: %w", id, apperr.ErrInvalidState)
		}
		if err := tx.Model(&r).Updates(map[string]any{
			"assigned_slot_id": nil,
			"state":            model.StateCancelled,
		}).Error; err != nil {
			return err
		}
		r.AssignedSlotID = nil
		r.State = model.StateCancelled
		out = r
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, changed, nil
}

// ListPending returns pending reservations inside their window, oldest
// first, so staff assign in first-come order.
func (s *gormStore) ListPending(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	var rs []model.Reservation
	err := s.db.WithContext(ctx).
		Where("state = ? AND window_end > ?", model.StatePending, now).
		Order("created_at ASC, id ASC").
		Find(&rs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reservations: %w", err)
	}
	return rs, nil
}

func (s *gormStore) ListAssigned(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	var rs []model.Reservation
	err := s.db.WithContext(ctx).
		Where("state = ? AND window_end > ?", model.StateAssigned, now).
		Order("window_start ASC, id ASC").
		Find(&rs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned reservations: %w", err)
	}
	return rs, nil
}

// ListByDepartment returns the caller's non-terminal reservations, the
// contents of the resident "my reservations" screen.
func (s *gormStore) ListByDepartment(ctx context.Context, dept string, now time.Time) ([]model.Reservation, error) {
	var rs []model.Reservation
	err := s.db.WithContext(ctx).
		Where("department = ? AND state IN ? AND window_end > ?",
			dept, []model.ReservationState{model.StatePending, model.StateAssigned}, now).
		Order("window_start DESC").
		Find(&rs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations for %s: %w", dept, err)
	}
	return rs, nil
}

// CountLiveReservations counts reservations still blocking capacity.
func (s *gormStore) CountLiveReservations(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("state IN ? AND window_end > ?",
			[]model.ReservationState{model.StatePending, model.StateAssigned}, now).
		Count(&n).Error
	return n, err
}

// ExpireStale marks reservations whose window has closed. Reads do not
// depend on it (expiry is also derived at read time); it keeps the stored
// history accurate.
func (s *gormStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("state IN ? AND window_end <= ?",
			[]model.ReservationState{model.StatePending, model.StateAssigned}, now).
		Updates(map[string]any{"state": model.StateExpired, "assigned_slot_id": nil})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire reservations: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// GetDepartmentByLogin resolves a login identifier that may be either the
// department id or its registered email.
func (s *gormStore) GetDepartmentByLogin(ctx context.Context, idOrEmail string) (*model.Department, error) {
	var d model.Department
	err := s.db.WithContext(ctx).
		Where("id = ? OR email = ?", idOrEmail, idOrEmail).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load department: %w", err)
	}
	return &d, nil
}

func (s *gormStore) UpsertDepartment(ctx context.Context, d *model.Department) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash"}),
	}).Create(d).Error
}

func (s *gormStore) UpsertVisitorVehicle(ctx context.Context, v *model.VisitorVehicle) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plate"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "department"}),
	}).Create(v).Error
}

func (s *gormStore) InsertAccessEvent(ctx context.Context, e *model.AccessEvent) error {
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *gormStore) ListAccessEvents(ctx context.Context, q string, limit int) ([]model.AccessEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	db := s.db.WithContext(ctx).Model(&model.AccessEvent{})
	if q != "" {
		pattern := "%" + q + "%"
		db = db.Where("plate LIKE ? OR department LIKE ?", pattern, pattern)
	}
	var events []model.AccessEvent
	if err := db.Order("recorded_at DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list access events: %w", err)
	}
	return events, nil
}

func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "department"}),
	}).Create(sub).Error
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *gormStore) ListSubscriptionsByDepartment(ctx context.Context, dept string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).Where("department = ?", dept).Find(&subs).Error
	return subs, err
}
