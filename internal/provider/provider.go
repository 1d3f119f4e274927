// Package provider wraps the external messaging-platform API in a thin
// typed client. All calls are account-scoped reads, idempotent and
// retryable from the caller's perspective.
package provider

import (
	"context"
	"errors"

	"github.com/lumachat/chatvault/internal/db/models"
	"github.com/lumachat/chatvault/internal/normalize"
)

// ErrContentGone means the provider confirmed the content can no longer
// be fetched. It is recorded as state by callers, never retried.
var ErrContentGone = errors.New("attachment content permanently unavailable")

// ChatPage is one page of the provider's chat listing.
type ChatPage struct {
	Items      []normalize.RawChat `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// MessagePage is one page of a chat's message listing.
type MessagePage struct {
	Items      []normalize.RawMessage `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// AttendeePage is the (unpaginated) attendee listing of one chat.
type AttendeePage struct {
	Items []normalize.RawAttendee `json:"items"`
}

// AttachmentContent is the binary content of an attachment, fetched fresh
// from the provider.
type AttachmentContent struct {
	ContentBase64 string `json:"content"`
	MimeType      string `json:"mime_type"`
}

// Client is the provider contract the engine consumes.
type Client interface {
	ListChats(ctx context.Context, account *models.Account, cursor string, limit int) (ChatPage, error)
	ListMessages(ctx context.Context, account *models.Account, chatExternalID, cursor string, limit int) (MessagePage, error)
	ListAttendees(ctx context.Context, account *models.Account, chatExternalID string, limit int) ([]normalize.RawAttendee, error)
	GetAttachmentContent(ctx context.Context, account *models.Account, messageExternalID, attachmentExternalID string) (AttachmentContent, error)
	GetProfile(ctx context.Context, account *models.Account, identifier string) (normalize.RawAttendee, error)
}
