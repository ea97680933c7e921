package model

import "time"

// Access event kinds recorded for the concierge history view.
const (
	EventReservationCreated   = "reservation_created"
	EventReservationAssigned  = "reservation_assigned"
	EventReservationReleased  = "reservation_released"
	EventReservationCancelled = "reservation_cancelled"
)

// AccessEvent is an audit row behind GET /historial. Cancelled and expired
// reservations persist, and so do their events.
type AccessEvent struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Kind          string    `gorm:"size:32;not null;index" json:"evento"`
	ReservationID *int64    `gorm:"index" json:"id_reserva,omitempty"`
	Plate         string    `gorm:"size:16" json:"patente"`
	Department    string    `gorm:"size:32" json:"depto"`
	SlotID        string    `gorm:"size:16" json:"est,omitempty"`
	RecordedAt    time.Time `gorm:"not null;index" json:"hora"`
}
