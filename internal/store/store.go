// Package store is the durable entity store behind the synchronization
// engine. All writes go through natural-key upserts so concurrent writers
// converge instead of conflicting.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/lumachat/chatvault/internal/db/models"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract the engine depends on. Upserts are
// keyed by each entity's natural key and are atomic: no observable
// intermediate duplicate row exists at any point.
type Store interface {
	// Accounts. Accounts are soft-deleted only (status transitions).
	CreateAccount(ctx context.Context, acc *models.Account) (*models.Account, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountByExternalID(ctx context.Context, provider, externalID string) (*models.Account, error)
	SetAccountStatus(ctx context.Context, id, status string) error
	TouchAccountActivity(ctx context.Context, id string, at time.Time) error
	ListAccounts(ctx context.Context) ([]models.Account, error)

	// Chats, keyed by (account_id, external_id).
	UpsertChat(ctx context.Context, chat *models.Chat) (*models.Chat, error)
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	GetChatByExternalID(ctx context.Context, accountID, externalID string) (*models.Chat, error)
	ListChats(ctx context.Context, accountID string, limit, offset int) ([]models.Chat, error)

	// Attendees, keyed by (chat_id, external_id).
	UpsertAttendee(ctx context.Context, att *models.Attendee) (*models.Attendee, error)
	ListAttendees(ctx context.Context, chatID string) ([]models.Attendee, error)

	// Contacts, keyed by (account_id, external_id), merged additively.
	UpsertContact(ctx context.Context, c *models.Contact) (*models.Contact, error)
	GetContactByExternalID(ctx context.Context, accountID, externalID string) (*models.Contact, error)

	// Messages, keyed by (account_id, external_id).
	UpsertMessage(ctx context.Context, m *models.Message) (*models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetMessageByExternalID(ctx context.Context, accountID, externalID string) (*models.Message, error)
	MarkMessageRead(ctx context.Context, accountID, externalID string) error
	EditMessage(ctx context.Context, accountID, externalID, content string) error
	TombstoneMessage(ctx context.Context, accountID, externalID string) error
	ListMessages(ctx context.Context, chatID string, limit, offset int) ([]models.Message, error)

	// Attachments, keyed by (message_id, external_id).
	UpsertAttachment(ctx context.Context, a *models.Attachment) (*models.Attachment, error)
	GetAttachment(ctx context.Context, id string) (*models.Attachment, error)
	SaveAttachment(ctx context.Context, a *models.Attachment) error
	ListAttachments(ctx context.Context, messageID string) ([]models.Attachment, error)

	// Profile views, append-only.
	AppendProfileView(ctx context.Context, v *models.ProfileView) error
	ListProfileViews(ctx context.Context, accountID string, limit int) ([]models.ProfileView, error)
}
