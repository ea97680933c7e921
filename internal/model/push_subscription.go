package model

import "time"

// PushSubscription holds a browser push subscription for a department. A
// department may hold several (one per device/browser).
type PushSubscription struct {
	Endpoint   string    `gorm:"primaryKey"`
	P256DH     string    `gorm:"column:p256dh;not null"`
	Auth       string    `gorm:"not null"`
	Department string    `gorm:"size:32;index;not null"`
	CreatedAt  time.Time `gorm:"not null"`
}
