// Package lifecycle enacts the reservation state machine: create, assign,
// unassign, cancel and the lazy expiry sweep.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"visitor-parking-backend/config"
	"visitor-parking-backend/internal/apperr"
	"visitor-parking-backend/internal/metrics"
	"visitor-parking-backend/internal/model"
	"visitor-parking-backend/internal/store"
	"visitor-parking-backend/internal/validate"
)

// Notifier dispatches an asynchronous push job for a reservation event. The
// controller never blocks on delivery.
type Notifier interface {
	Notify(reservationID int64, event string)
}

// Controller owns every mutation of the reservation table. Assign holds a
// single critical section so two callers racing for one slot serialize
// their check-and-set; the loser gets ErrSlotUnavailable.
type Controller struct {
	store    store.Store
	rules    validate.Rules
	duration time.Duration
	notifier Notifier

	// Now is the clock used for window computation; tests override it.
	Now func() time.Time

	mu sync.Mutex
}

// New creates a Controller. notifier may be nil.
func New(s store.Store, cfg config.ReservationConfig, notifier Notifier) *Controller {
	rules := validate.Rules{
		PlateMinLen:    cfg.PlateMinLen,
		PlateMaxLen:    cfg.PlateMaxLen,
		DocumentMinLen: cfg.DocumentMinLen,
		DocumentMaxLen: cfg.DocumentMaxLen,
	}
	duration := cfg.Duration
	if duration <= 0 {
		duration = 120 * time.Minute
	}
	return &Controller{
		store:    s,
		rules:    rules,
		duration: duration,
		notifier: notifier,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest is an unvalidated reservation-creation request. Any
// client-sent window times are ignored: the server computes the window.
type CreateRequest struct {
	Plate      string
	Document   string
	Department string
}

// Create validates the request, applies the capacity guard and inserts a
// pending reservation. A pending reservation does not touch any slot. The
// returned string is the id of the logged access event, empty if logging
// failed.
func (c *Controller) Create(ctx context.Context, req CreateRequest) (*model.Reservation, string, error) {
	in, err := c.rules.CreateRequest(req.Plate, req.Document, req.Department)
	if err != nil {
		return nil, "", err
	}

	now := c.Now()

	total, err := c.store.CountSlots(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to count slots: %w", err)
	}
	live, err := c.store.CountLiveReservations(ctx, now)
	if err != nil {
		return nil, "", fmt.Errorf("failed to count reservations: %w", err)
	}
	if live >= total {
		return nil, "", fmt.Errorf("all %d slots already have reservations: %w", total, apperr.ErrCapacity)
	}
	occupied, err := c.store.CountOccupiedSlots(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to count occupied slots: %w", err)
	}
	if occupied >= total {
		return nil, "", fmt.Errorf("all %d slots are occupied: %w", total, apperr.ErrCapacity)
	}

	r := &model.Reservation{
		Department:      in.Department,
		VisitorPlate:    in.Plate,
		VisitorDocument: in.Document,
		WindowStart:     now,
		WindowEnd:       now.Add(c.duration),
		State:           model.StatePending,
	}
	if err := c.store.CreateReservation(ctx, r); err != nil {
		return nil, "", err
	}

	metrics.ReservationTransitions.WithLabelValues(string(model.StatePending)).Inc()
	eventID := c.recordEvent(ctx, model.EventReservationCreated, r, now)
	return r, eventID, nil
}

// Assign binds a pending reservation to a physically free, unheld slot.
// This is the only path that binds a reservation to a slot.
func (c *Controller) Assign(ctx context.Context, reservationID int64, slotID string) (*model.Reservation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	r, err := c.store.AssignSlot(ctx, reservationID, slotID, now)
	if err != nil {
		if errors.Is(err, apperr.ErrSlotUnavailable) {
			metrics.AssignConflicts.Inc()
		}
		return nil, err
	}

	metrics.ReservationTransitions.WithLabelValues(string(model.StateAssigned)).Inc()
	c.recordEvent(ctx, model.EventReservationAssigned, r, now)
	if c.notifier != nil {
		c.notifier.Notify(r.ID, model.EventReservationAssigned)
	}
	return r, nil
}

// Unassign releases the slot and returns the reservation to pending, so it
// reappears in the pending queue.
func (c *Controller) Unassign(ctx context.Context, reservationID int64) (*model.Reservation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	r, err := c.store.UnassignSlot(ctx, reservationID, now)
	if err != nil {
		return nil, err
	}

	metrics.ReservationTransitions.WithLabelValues(string(model.StatePending)).Inc()
	c.recordEvent(ctx, model.EventReservationReleased, r, now)
	return r, nil
}

// Cancel moves a reservation to cancelled. Safe to retry: a second cancel
// is a no-op success and changes no other reservation.
func (c *Controller) Cancel(ctx context.Context, reservationID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	r, changed, err := c.store.CancelReservation(ctx, reservationID, now)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	metrics.ReservationTransitions.WithLabelValues(string(model.StateCancelled)).Inc()
	c.recordEvent(ctx, model.EventReservationCancelled, r, now)
	if c.notifier != nil {
		c.notifier.Notify(r.ID, model.EventReservationCancelled)
	}
	return nil
}

// RegisterVehicle validates and stores a visitor vehicle ahead of arrival.
// Re-registering a plate updates the stored document and department.
func (c *Controller) RegisterVehicle(ctx context.Context, plate, document, dept string) (*model.VisitorVehicle, error) {
	in, err := c.rules.CreateRequest(plate, document, dept)
	if err != nil {
		return nil, err
	}

	v := &model.VisitorVehicle{
		Plate:      in.Plate,
		Document:   in.Document,
		Department: in.Department,
	}
	if err := c.store.UpsertVisitorVehicle(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Sweep marks reservations whose window closed as expired. Reads derive
// expiry on their own; the sweep keeps stored history accurate.
func (c *Controller) Sweep(ctx context.Context) {
	n, err := c.store.ExpireStale(ctx, c.Now())
	if err != nil {
		log.Printf("expiry sweep failed: %v", err)
		return
	}
	if n > 0 {
		metrics.ReservationTransitions.WithLabelValues(string(model.StateExpired)).Add(float64(n))
		log.Printf("expired %d stale reservations", n)
	}
}

func (c *Controller) recordEvent(ctx context.Context, kind string, r *model.Reservation, now time.Time) string {
	slotID := ""
	if r.AssignedSlotID != nil {
		slotID = *r.AssignedSlotID
	}
	event := &model.AccessEvent{
		ID:            uuid.NewString(),
		Kind:          kind,
		ReservationID: &r.ID,
		Plate:         r.VisitorPlate,
		Department:    r.Department,
		SlotID:        slotID,
		RecordedAt:    now,
	}
	if err := c.store.InsertAccessEvent(ctx, event); err != nil {
		// History is best effort; the transition itself already committed.
		log.Printf("failed to record %s event for reservation %d: %v", kind, r.ID, err)
		return ""
	}
	return event.ID
}
