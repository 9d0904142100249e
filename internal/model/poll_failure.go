package model

import "time"

// PollFailure is one failed poll attempt after retry exhaustion, kept for
// diagnosis. Successful polls are not recorded.
type PollFailure struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	VehicleID     string    `gorm:"index;size:64;not null"`
	EndpointClass string    `gorm:"size:16;not null"`
	Cause         string    `gorm:"size:1024;not null"`
	OccurredAt    time.Time `gorm:"index;not null"`
}
