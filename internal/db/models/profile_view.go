package models

import "time"

// ProfileView is an append-only log entry recording that someone viewed
// the account owner's profile. Views are timeline events, not state: they
// are never updated or deduplicated against prior views.
type ProfileView struct {
	ID               string `gorm:"primaryKey"` // UUID
	AccountID        string `gorm:"index;not null"`
	ViewerExternalID string
	ViewerName       string
	ViewedAt         time.Time `gorm:"index"`
	CreatedAt        time.Time
}
