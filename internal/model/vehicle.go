package model

import "time"

// Vehicle is the persisted registry entry for one car on the account.
type Vehicle struct {
	ID          string `gorm:"primaryKey;size:64"` // Upstream internal id
	VIN         string `gorm:"uniqueIndex;size:32;not null"`
	Nickname    string `gorm:"size:128"`
	ModelYear   string `gorm:"size:8"`
	CarlineName string `gorm:"size:128"`
	IsElectric  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
