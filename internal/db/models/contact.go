package models

import "time"

// Contact is a deduplicated person record scoped to one account,
// independent of any single chat. Unique per (account_id, external_id).
//
// Contacts are mutated additively: a later write only overwrites fields
// that carry new non-empty data, so a sparse payload never erases a
// richer previously-known value. The one exception is LastInteractionAt,
// which always advances to the latest observed timestamp.
type Contact struct {
	ID                string `gorm:"primaryKey"` // UUID
	AccountID         string `gorm:"uniqueIndex:idx_contact_account_external;index;not null"`
	ExternalID        string `gorm:"uniqueIndex:idx_contact_account_external;not null"`
	FullName          string
	FirstName         string
	LastName          string
	Headline          string
	ProfileImageURL   string
	ProviderURL       string
	IsConnection      bool
	NetworkDistance   string
	LastInteractionAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
