package models

import "time"

// Account status values. An account is soft-deleted by moving to
// StatusDisconnected; rows are never hard-deleted so historical chats,
// messages and attachments stay addressable.
const (
	StatusPending      = "pending"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)

// Account is one connected external messaging identity per provider.
type Account struct {
	ID             string `gorm:"primaryKey"` // UUID
	ExternalID     string `gorm:"uniqueIndex:idx_account_provider;not null"`
	Provider       string `gorm:"uniqueIndex:idx_account_provider;not null"` // e.g., "linkedin", "whatsapp"
	Status         string `gorm:"default:pending"`
	LastActivityAt time.Time
	DisconnectedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
