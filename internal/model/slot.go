package model

import "time"

// Occupancy is the raw physical state of a parking slot, as reported by the
// external sensor feed. Reservation bookkeeping never writes it.
type Occupancy int

const (
	OccupancyFree     Occupancy = 0
	OccupancyOccupied Occupancy = 1
	OccupancyReserved Occupancy = 2
)

// Slot represents a single visitor parking space.
type Slot struct {
	ID        string    `gorm:"primaryKey;size:16" json:"id"`
	Occupancy Occupancy `gorm:"not null" json:"estado"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
