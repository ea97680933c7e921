package model

import "time"

// VisitorVehicle is a pre-registered visitor plate. Registration is an
// optional pre-step to creating a reservation; re-registering an existing
// plate updates the document on file.
type VisitorVehicle struct {
	Plate      string    `gorm:"primaryKey;size:16" json:"placa_patente"`
	Document   string    `gorm:"size:32;not null" json:"rut"`
	Department string    `gorm:"size:32;index" json:"depto,omitempty"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}
