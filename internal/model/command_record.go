package model

import "time"

// CommandRecord tracks one dispatched remote command. The visit number is
// the server-issued tracking identifier; it may be empty when the API
// accepted the command without returning one, in which case the state
// stays unknown until a caller checks it explicitly.
type CommandRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	VehicleID string `gorm:"index;size:64;not null"`
	Kind      string `gorm:"size:32;not null"`
	VisitNo   string `gorm:"index;size:64"`
	State     string `gorm:"size:16;not null"`
	IssuedAt  time.Time
	CheckedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
