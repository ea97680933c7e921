package model

import "time"

// ReservationState is the stored lifecycle state of a reservation. "active"
// is never stored: an assigned or pending reservation whose window contains
// now is reported as active by EffectiveState.
type ReservationState string

const (
	StatePending   ReservationState = "pending"
	StateAssigned  ReservationState = "assigned"
	StateActive    ReservationState = "active"
	StateCancelled ReservationState = "cancelled"
	StateExpired   ReservationState = "expired"
)

// Terminal reports whether the state admits no further transitions.
func (s ReservationState) Terminal() bool {
	return s == StateCancelled || s == StateExpired
}

// Reservation is a time-boxed booking for a visitor vehicle. The JSON field
// names follow the wire contract consumed by the resident and concierge
// clients.
type Reservation struct {
	ID              int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Department      string           `gorm:"size:32;index;not null" json:"depto"`
	VisitorPlate    string           `gorm:"size:16;not null" json:"placa_patente_visitante"`
	VisitorDocument string           `gorm:"size:32;not null" json:"rut_visitante"`
	WindowStart     time.Time        `gorm:"not null" json:"hora_inicio"`
	WindowEnd       time.Time        `gorm:"not null;index" json:"hora_termino"`
	AssignedSlotID  *string          `gorm:"size:16;index" json:"est,omitempty"`
	State           ReservationState `gorm:"size:16;not null;index" json:"estado_reserva"`
	CreatedAt       time.Time        `json:"-"`
	UpdatedAt       time.Time        `json:"-"`
}

// EffectiveState derives the displayed lifecycle stage at the given instant.
// Expiry is evaluated lazily here so that reads never depend on a background
// sweep having run.
func (r *Reservation) EffectiveState(now time.Time) ReservationState {
	if r.State.Terminal() {
		return r.State
	}
	if !now.Before(r.WindowEnd) {
		return StateExpired
	}
	if r.State == StateAssigned && !now.Before(r.WindowStart) {
		return StateActive
	}
	return r.State
}

// HoldsSlot reports whether the reservation currently excludes other
// reservations from its assigned slot.
func (r *Reservation) HoldsSlot(now time.Time) bool {
	if r.AssignedSlotID == nil {
		return false
	}
	s := r.EffectiveState(now)
	return s == StateAssigned || s == StateActive
}
