package models

import "time"

// Message types. The type is inferred from the first attachment's media
// kind when the message carries no textual content.
const (
	MessageTypeText       = "text"
	MessageTypeImage      = "image"
	MessageTypeVideo      = "video"
	MessageTypeAudio      = "audio"
	MessageTypeAttachment = "attachment"
)

// Message is unique per (account_id, external_id). Once the platform
// reports it deleted it is tombstoned via IsDeleted and its content is
// frozen; rows are never physically removed.
type Message struct {
	ID          string `gorm:"primaryKey"` // UUID
	AccountID   string `gorm:"uniqueIndex:idx_message_account_external;index;not null"`
	ExternalID  string `gorm:"uniqueIndex:idx_message_account_external;not null"`
	ChatID      string `gorm:"index;not null"`
	SenderID    string // sender's external attendee id
	MessageType string `gorm:"default:text"`
	Content     string `gorm:"type:text"`
	IsRead      bool
	IsOutgoing  bool
	IsEdited    bool
	IsDeleted   bool
	SentAt      time.Time
	Metadata    string `gorm:"type:text"` // JSON blob for provider-specific extras
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Attachment is unique per (message_id, external_id).
//
// Freshness invariant: once CacheURL is set and Unavailable is false the
// durable cache copy is permanently valid and never re-checked. SourceURL
// is the provider-issued URL and must be treated as stale after
// SourceURLExpiresAt (or within a safety margin before it).
type Attachment struct {
	ID                 string `gorm:"primaryKey"` // UUID
	MessageID          string `gorm:"uniqueIndex:idx_attachment_message_external;index;not null"`
	ExternalID         string `gorm:"uniqueIndex:idx_attachment_message_external;not null"`
	Filename           string
	MimeType           string
	FileSize           int64
	CacheURL           string
	CacheKey           string
	CacheUploadedAt    *time.Time
	SourceURL          string
	SourceURLExpiresAt *time.Time
	Unavailable        bool
	InlineContent      string `gorm:"type:text"` // base64 fallback when cache upload failed
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
