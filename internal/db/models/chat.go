package models

import "time"

// Chat types.
const (
	ChatTypeDirect = "direct"
	ChatTypeGroup  = "group"
)

// Chat is a conversation thread. The natural key is (account_id,
// external_id): a chat is never recreated, only upserted.
type Chat struct {
	ID            string `gorm:"primaryKey"` // UUID
	AccountID     string `gorm:"uniqueIndex:idx_chat_account_external;index;not null"`
	ExternalID    string `gorm:"uniqueIndex:idx_chat_account_external;not null"`
	Type          string `gorm:"default:direct"`
	Name          string
	LastMessageAt *time.Time
	UnreadCount   int
	Archived      bool
	ReadOnly      bool
	ContentType   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Attendee is a participant record scoped to one chat, unique per
// (chat_id, external_id). A self-attendee marks the account owner and is
// never materialized as a Contact.
type Attendee struct {
	ID         string `gorm:"primaryKey"` // UUID
	ChatID     string `gorm:"uniqueIndex:idx_attendee_chat_external;index;not null"`
	ExternalID string `gorm:"uniqueIndex:idx_attendee_chat_external;not null"`
	ContactID  *string
	IsSelf     bool
	Hidden     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
