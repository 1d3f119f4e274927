package syncer

import (
	"context"
	"fmt"
	"log"

	"github.com/lumachat/chatvault/internal/config"
	"github.com/lumachat/chatvault/internal/db/models"
	"github.com/lumachat/chatvault/internal/normalize"
	"golang.org/x/sync/errgroup"
)

// Backfill walks the provider's paginated chat listing and pulls each
// chat's attendees and message history into the store, bounded by the
// configured hard caps. Termination is guaranteed by the caps alone; no
// wall-clock timeout is needed.
//
// Backfill is best-effort recoverable: a failure inside one chat is
// logged and the walker proceeds to the next chat. Only a failure of the
// chat listing itself aborts the run.
func (e *Engine) Backfill(ctx context.Context, account *models.Account, limits config.BackfillLimits) error {
	log.Printf("backfill: account %s starting (max %d chats)", account.ID, limits.MaxChats)

	processed := 0
	cursor := ""
	for processed < limits.MaxChats {
		page, err := e.provider.ListChats(ctx, account, cursor, limits.PageSize)
		if err != nil {
			if statusErr := e.store.SetAccountStatus(ctx, account.ID, models.StatusError); statusErr != nil {
				log.Printf("backfill: set account %s status: %v", account.ID, statusErr)
			}
			return fmt.Errorf("list chats: %w", err)
		}
		// A zero-item page means no more data, not an error.
		if len(page.Items) == 0 {
			break
		}

		// Only the chats within budget from this page are processed;
		// the cap stops the walk even mid-page.
		items := page.Items
		if budget := limits.MaxChats - processed; len(items) > budget {
			items = items[:budget]
		}

		// Chats are independent: process them in parallel under the
		// concurrency limit. Per-chat ordering is preserved by the
		// keyed chat lock inside backfillChat.
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limits.ChatConcurrency)
		for _, rawChat := range items {
			g.Go(func() error {
				if err := e.backfillChat(gctx, account, rawChat, limits); err != nil {
					log.Printf("backfill: account %s chat failed: %v", account.ID, err)
				}
				return nil
			})
		}
		_ = g.Wait()
		processed += len(items)

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if err := e.store.SetAccountStatus(ctx, account.ID, models.StatusConnected); err != nil {
		return fmt.Errorf("mark account connected: %w", err)
	}
	log.Printf("backfill: account %s done, %d chats processed", account.ID, processed)
	return nil
}

// backfillChat pulls one chat: upsert the chat, fetch and upsert its
// attendees, then walk its message pages applying the same ordered upsert
// procedure as the real-time path.
func (e *Engine) backfillChat(ctx context.Context, account *models.Account, rawChat normalize.RawChat, limits config.BackfillLimits) error {
	chatRec := normalize.NormalizeChat(rawChat)
	if chatRec.ExternalID == "" {
		return fmt.Errorf("chat payload carries no id")
	}

	unlock := e.locks.Lock(e.chatKey(account.ID, chatRec.ExternalID))
	defer unlock()

	chat, err := e.store.UpsertChat(ctx, chatModel(account.ID, chatRec))
	if err != nil {
		return fmt.Errorf("upsert chat %s: %w", chatRec.ExternalID, err)
	}

	rawAttendees, err := e.provider.ListAttendees(ctx, account, chatRec.ExternalID, limits.MaxAttendeesPerChat)
	if err != nil {
		return fmt.Errorf("list attendees of %s: %w", chatRec.ExternalID, err)
	}
	if len(rawAttendees) > limits.MaxAttendeesPerChat {
		rawAttendees = rawAttendees[:limits.MaxAttendeesPerChat]
	}
	for _, rawAtt := range rawAttendees {
		if err := e.ensureAttendee(ctx, account, chat.ID, normalize.NormalizeAttendee(rawAtt), nil); err != nil {
			return fmt.Errorf("upsert attendee in %s: %w", chatRec.ExternalID, err)
		}
	}

	return e.backfillMessages(ctx, account, chat, chatRec.ExternalID, limits)
}

// backfillMessages walks one chat's message pages, stopping as soon as
// the per-chat message cap is reached or the provider reports no further
// cursor. Individual message failures are logged and skipped.
func (e *Engine) backfillMessages(ctx context.Context, account *models.Account, chat *models.Chat, chatExternalID string, limits config.BackfillLimits) error {
	fetched := 0
	cursor := ""
	for fetched < limits.MaxMessagesPerChat {
		batch := limits.MessageBatchSize
		if remaining := limits.MaxMessagesPerChat - fetched; remaining < batch {
			batch = remaining
		}

		page, err := e.provider.ListMessages(ctx, account, chatExternalID, cursor, batch)
		if err != nil {
			return fmt.Errorf("list messages of %s: %w", chatExternalID, err)
		}
		if len(page.Items) == 0 {
			break
		}
		items := page.Items
		if len(items) > batch {
			items = items[:batch]
		}

		for _, rawMsg := range items {
			msg, attachments := normalize.NormalizeMessage(rawMsg)
			if msg.ExternalID == "" {
				log.Printf("backfill: chat %s carried a message without id, skipped", chatExternalID)
				continue
			}
			if rawMsg.Sender != nil {
				sender := normalize.NormalizeAttendee(*rawMsg.Sender)
				sentAt := msg.SentAt
				if err := e.ensureAttendee(ctx, account, chat.ID, sender, &sentAt); err != nil {
					log.Printf("backfill: sender of message %s: %v", msg.ExternalID, err)
				}
			}
			if _, err := e.applyChatMessage(ctx, account, chat, msg, attachments); err != nil {
				log.Printf("backfill: message %s in chat %s: %v", msg.ExternalID, chatExternalID, err)
			}
		}
		fetched += len(items)

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return nil
}
