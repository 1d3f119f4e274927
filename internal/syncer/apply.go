package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lumachat/chatvault/internal/db/models"
	"github.com/lumachat/chatvault/internal/normalize"
	"github.com/lumachat/chatvault/internal/store"
)

// ApplyMessageEvent idempotently materializes the chat, its attendees and
// their contacts, the message, and any attachments — in that fixed order,
// so foreign-key references are always satisfiable even under
// first-ever-message races. Safe under at-least-once delivery:
// re-applying the same event only refreshes updated_at/read-state.
func (e *Engine) ApplyMessageEvent(ctx context.Context, ev *normalize.MessageEvent) (*models.Message, error) {
	if ev == nil {
		return nil, errors.New("nil message event")
	}
	account, err := e.resolveAccount(ctx, ev.Provider, ev.AccountExternalID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(e.chatKey(account.ID, ev.Chat.ExternalID))
	defer unlock()

	// 1. Chat, create-if-absent. A brand-new direct chat gets the
	// sender's display identity as a provisional name.
	chat, err := e.ensureChat(ctx, account, ev)
	if err != nil {
		return nil, fmt.Errorf("upsert chat %s: %w", ev.Chat.ExternalID, err)
	}

	// 2. Attendees and contacts, sender first. The account owner is
	// never materialized as a contact.
	interaction := ev.Message.SentAt
	if err := e.ensureAttendee(ctx, account, chat.ID, ev.Sender, &interaction); err != nil {
		return nil, fmt.Errorf("upsert sender %s: %w", ev.Sender.ExternalID, err)
	}
	for _, att := range ev.Attendees {
		if att.ExternalID == ev.Sender.ExternalID {
			continue
		}
		if err := e.ensureAttendee(ctx, account, chat.ID, att, nil); err != nil {
			return nil, fmt.Errorf("upsert attendee %s: %w", att.ExternalID, err)
		}
	}

	// 3+4. Message, then attachments.
	msg, err := e.applyChatMessage(ctx, account, chat, ev.Message, ev.Attachments)
	if err != nil {
		return nil, err
	}

	if err := e.store.TouchAccountActivity(ctx, account.ID, time.Now().UTC()); err != nil {
		log.Printf("touch account %s activity: %v", account.ID, err)
	}
	e.dispatchStored(ctx, msg)
	return msg, nil
}

// ensureChat upserts the event's chat, applying the provisional-name rule
// only when the chat does not exist yet.
func (e *Engine) ensureChat(ctx context.Context, account *models.Account, ev *normalize.MessageEvent) (*models.Chat, error) {
	chat := chatModel(account.ID, ev.Chat)
	if chat.LastMessageAt == nil && !ev.Message.SentAt.IsZero() {
		sentAt := ev.Message.SentAt
		chat.LastMessageAt = &sentAt
	}
	if chat.Name == "" && chat.Type == models.ChatTypeDirect && !ev.Sender.IsSelf {
		if _, err := e.store.GetChatByExternalID(ctx, account.ID, ev.Chat.ExternalID); errors.Is(err, store.ErrNotFound) {
			chat.Name = ev.Sender.DisplayName
		}
	}
	return e.store.UpsertChat(ctx, chat)
}

// ensureAttendee upserts one attendee and, unless it is the account
// owner, its contact record. interactionAt, when set, advances the
// contact's last interaction timestamp.
func (e *Engine) ensureAttendee(ctx context.Context, account *models.Account, chatID string, att normalize.Attendee, interactionAt *time.Time) error {
	if att.ExternalID == "" {
		return nil
	}

	var contactID *string
	if !att.IsSelf {
		contact := contactModel(account.ID, att)
		contact.LastInteractionAt = interactionAt
		saved, err := e.store.UpsertContact(ctx, contact)
		if err != nil {
			return err
		}
		contactID = &saved.ID
	}

	_, err := e.store.UpsertAttendee(ctx, &models.Attendee{
		ChatID:     chatID,
		ExternalID: att.ExternalID,
		ContactID:  contactID,
		IsSelf:     att.IsSelf,
		Hidden:     att.Hidden,
	})
	return err
}

// applyChatMessage upserts the message and then each attachment
// independently: one failing attachment is logged and skipped, never
// aborting its siblings or the message.
func (e *Engine) applyChatMessage(ctx context.Context, account *models.Account, chat *models.Chat, msg normalize.Message, attachments []normalize.Attachment) (*models.Message, error) {
	record, err := e.store.UpsertMessage(ctx, &models.Message{
		AccountID:   account.ID,
		ExternalID:  msg.ExternalID,
		ChatID:      chat.ID,
		SenderID:    msg.SenderExternalID,
		MessageType: msg.Type,
		Content:     msg.Content,
		IsRead:      msg.IsRead,
		IsOutgoing:  msg.IsOutgoing,
		SentAt:      msg.SentAt,
		Metadata:    msg.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert message %s: %w", msg.ExternalID, err)
	}

	for _, att := range attachments {
		_, err := e.store.UpsertAttachment(ctx, &models.Attachment{
			MessageID:          record.ID,
			ExternalID:         att.ExternalID,
			Filename:           att.Filename,
			MimeType:           att.MimeType,
			FileSize:           att.FileSize,
			SourceURL:          att.URL,
			SourceURLExpiresAt: att.URLExpiresAt,
		})
		if err != nil {
			log.Printf("upsert attachment %s of message %s: %v", att.ExternalID, record.ID, err)
		}
	}

	return record, nil
}

func chatModel(accountID string, chat normalize.Chat) *models.Chat {
	return &models.Chat{
		AccountID:     accountID,
		ExternalID:    chat.ExternalID,
		Type:          chat.Type,
		Name:          chat.Name,
		ContentType:   chat.ContentType,
		LastMessageAt: chat.LastMessageAt,
		UnreadCount:   chat.UnreadCount,
		Archived:      chat.Archived,
		ReadOnly:      chat.ReadOnly,
	}
}

func contactModel(accountID string, att normalize.Attendee) *models.Contact {
	return &models.Contact{
		AccountID:       accountID,
		ExternalID:      att.ExternalID,
		FullName:        att.DisplayName,
		FirstName:       att.FirstName,
		LastName:        att.LastName,
		Headline:        att.Headline,
		ProfileImageURL: att.ProfileImageURL,
		ProviderURL:     att.ProfileURL,
		IsConnection:    att.IsConnection,
		NetworkDistance: att.NetworkDistance,
	}
}
