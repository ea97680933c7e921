// Package reconcile computes every display-ready view of slot and
// reservation state. Screens consume these views and never derive status
// themselves; the original clients each recomputed it with slightly
// different rules, which this package exists to end.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"visitor-parking-backend/internal/metrics"
	"visitor-parking-backend/internal/model"
	"visitor-parking-backend/internal/store"
)

// SlotStatus is the derived display status of a slot.
type SlotStatus string

const (
	// StatusAvailable: physically free, no live reservation holds it.
	StatusAvailable SlotStatus = "available"
	// StatusReserved: held by an assigned reservation, vehicle not present.
	StatusReserved SlotStatus = "reserved"
	// StatusOccupied: a vehicle is present with no matching reservation.
	StatusOccupied SlotStatus = "occupied"
	// StatusOccupiedReserved: the expected visitor arrived.
	StatusOccupiedReserved SlotStatus = "occupiedReserved"
)

// Code returns the numeric estado used on the wire: 0 free, 1 occupied,
// 2 reserved. Both occupied variants map to 1.
func (s SlotStatus) Code() int {
	switch s {
	case StatusOccupied, StatusOccupiedReserved:
		return 1
	case StatusReserved:
		return 2
	default:
		return 0
	}
}

// SlotView is the composed status of one slot.
type SlotView struct {
	ID            string     `json:"id"`
	Estado        int        `json:"estado"`
	Status        SlotStatus `json:"estado_label"`
	ReservationID *int64     `json:"id_reserva,omitempty"`
}

// Totals aggregates SlotViews for dashboard summaries. occupiedReserved is
// a subset of ocupados; the four columns never double count.
type Totals struct {
	Total       int64 `json:"total"`
	Disponibles int64 `json:"disponibles"`
	Reservados  int64 `json:"reservados"`
	Ocupados    int64 `json:"ocupados"`
}

// Reconciler derives read views by combining raw slot occupancy with live
// reservations at query time.
type Reconciler struct {
	store store.Store
}

// New creates a Reconciler over the given store.
func New(s store.Store) *Reconciler {
	return &Reconciler{store: s}
}

// holders maps slot id to the reservation currently holding it. At most one
// live reservation references a slot, so a plain map suffices.
func (r *Reconciler) holders(ctx context.Context, now time.Time) (map[string]model.Reservation, error) {
	assigned, err := r.store.ListAssigned(ctx, now)
	if err != nil {
		return nil, err
	}
	m := make(map[string]model.Reservation, len(assigned))
	for _, res := range assigned {
		if res.AssignedSlotID != nil {
			m[*res.AssignedSlotID] = res
		}
	}
	return m, nil
}

// SlotViews computes the display status of every slot.
func (r *Reconciler) SlotViews(ctx context.Context, now time.Time) ([]SlotView, error) {
	slots, err := r.store.ListSlots(ctx)
	if err != nil {
		return nil, err
	}
	held, err := r.holders(ctx, now)
	if err != nil {
		return nil, err
	}

	views := make([]SlotView, 0, len(slots))
	available := 0
	for _, slot := range slots {
		view := SlotView{ID: slot.ID}
		holder, isHeld := held[slot.ID]

		switch {
		case slot.Occupancy == model.OccupancyOccupied && isHeld:
			view.Status = StatusOccupiedReserved
		case slot.Occupancy == model.OccupancyOccupied:
			view.Status = StatusOccupied
		case isHeld || slot.Occupancy == model.OccupancyReserved:
			view.Status = StatusReserved
		default:
			view.Status = StatusAvailable
			available++
		}
		if isHeld {
			id := holder.ID
			view.ReservationID = &id
		}
		view.Estado = view.Status.Code()
		views = append(views, view)
	}

	metrics.SlotsAvailable.Set(float64(available))
	return views, nil
}

// AvailabilityTotals aggregates SlotViews into the dashboard counters.
func (r *Reconciler) AvailabilityTotals(ctx context.Context, now time.Time) (Totals, error) {
	views, err := r.SlotViews(ctx, now)
	if err != nil {
		return Totals{}, err
	}
	t := Totals{Total: int64(len(views))}
	for _, v := range views {
		switch v.Status {
		case StatusAvailable:
			t.Disponibles++
		case StatusReserved:
			t.Reservados++
		default:
			t.Ocupados++
		}
	}
	return t, nil
}

// Pending returns pending reservations oldest first.
func (r *Reconciler) Pending(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	rs, err := r.store.ListPending(ctx, now)
	if err != nil {
		return nil, err
	}
	return effective(rs, now), nil
}

// Assigned returns reservations currently holding slots.
func (r *Reconciler) Assigned(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	rs, err := r.store.ListAssigned(ctx, now)
	if err != nil {
		return nil, err
	}
	return effective(rs, now), nil
}

// ActiveForDepartment returns the caller's non-terminal reservations, the
// resident "my reservations" view (also what the cancel screen shows).
func (r *Reconciler) ActiveForDepartment(ctx context.Context, dept string, now time.Time) ([]model.Reservation, error) {
	rs, err := r.store.ListByDepartment(ctx, dept, now)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile reservations for %s: %w", dept, err)
	}
	return effective(rs, now), nil
}

// effective rewrites stored states as displayed lifecycle stages, so an
// in-window assigned reservation reads "active" on the wire.
func effective(rs []model.Reservation, now time.Time) []model.Reservation {
	out := make([]model.Reservation, len(rs))
	for i, r := range rs {
		r.State = r.EffectiveState(now)
		out[i] = r
	}
	return out
}
