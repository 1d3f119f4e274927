package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lumachat/chatvault/internal/db/models"
	"gorm.io/gorm"
)

// Gorm is the gorm-backed Store implementation. Each upsert runs inside a
// transaction: lookup by natural key, then create or merge.
type Gorm struct {
	db *gorm.DB
}

// NewGorm wraps an initialized gorm handle.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ===== Accounts =====

func (s *Gorm) CreateAccount(ctx context.Context, acc *models.Account) (*models.Account, error) {
	if acc.ID == "" {
		acc.ID = uuid.New().String()
	}
	if acc.Status == "" {
		acc.Status = models.StatusPending
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Account
		err := tx.Where("provider = ? AND external_id = ?", acc.Provider, acc.ExternalID).First(&existing).Error
		if err == nil {
			*acc = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(acc).Error
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *Gorm) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var acc models.Account
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&acc).Error; err != nil {
		return nil, translate(err)
	}
	return &acc, nil
}

func (s *Gorm) GetAccountByExternalID(ctx context.Context, provider, externalID string) (*models.Account, error) {
	var acc models.Account
	err := s.db.WithContext(ctx).
		Where("provider = ? AND external_id = ?", provider, externalID).
		First(&acc).Error
	if err != nil {
		return nil, translate(err)
	}
	return &acc, nil
}

func (s *Gorm) SetAccountStatus(ctx context.Context, id, status string) error {
	updates := map[string]any{"status": status}
	if status == models.StatusDisconnected {
		now := time.Now().UTC()
		updates["disconnected_at"] = &now
	}
	res := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Gorm) TouchAccountActivity(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND last_activity_at < ?", id, at).
		Update("last_activity_at", at).Error
}

func (s *Gorm) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	if err := s.db.WithContext(ctx).Order("created_at").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// ===== Chats =====

func (s *Gorm) UpsertChat(ctx context.Context, chat *models.Chat) (*models.Chat, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Chat
		err := tx.Where("account_id = ? AND external_id = ?", chat.AccountID, chat.ExternalID).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if chat.ID == "" {
				chat.ID = uuid.New().String()
			}
			if chat.Type == "" {
				chat.Type = models.ChatTypeDirect
			}
			return tx.Create(chat).Error
		}
		if err != nil {
			return err
		}
		// Merge mutable fields. A blank incoming name never erases a
		// known one; last_message_at only advances.
		if chat.Name != "" {
			existing.Name = chat.Name
		}
		if chat.Type != "" {
			existing.Type = chat.Type
		}
		if chat.ContentType != "" {
			existing.ContentType = chat.ContentType
		}
		if chat.LastMessageAt != nil &&
			(existing.LastMessageAt == nil || chat.LastMessageAt.After(*existing.LastMessageAt)) {
			existing.LastMessageAt = chat.LastMessageAt
		}
		existing.UnreadCount = chat.UnreadCount
		existing.Archived = chat.Archived
		existing.ReadOnly = chat.ReadOnly
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		*chat = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *Gorm) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&chat).Error; err != nil {
		return nil, translate(err)
	}
	return &chat, nil
}

func (s *Gorm) GetChatByExternalID(ctx context.Context, accountID, externalID string) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND external_id = ?", accountID, externalID).
		First(&chat).Error
	if err != nil {
		return nil, translate(err)
	}
	return &chat, nil
}

func (s *Gorm) ListChats(ctx context.Context, accountID string, limit, offset int) ([]models.Chat, error) {
	var chats []models.Chat
	q := s.db.WithContext(ctx).Where("account_id = ?", accountID).
		Order("last_message_at DESC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&chats).Error; err != nil {
		return nil, err
	}
	return chats, nil
}

// ===== Attendees =====

func (s *Gorm) UpsertAttendee(ctx context.Context, att *models.Attendee) (*models.Attendee, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Attendee
		err := tx.Where("chat_id = ? AND external_id = ?", att.ChatID, att.ExternalID).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if att.ID == "" {
				att.ID = uuid.New().String()
			}
			return tx.Create(att).Error
		}
		if err != nil {
			return err
		}
		if att.ContactID != nil {
			existing.ContactID = att.ContactID
		}
		existing.IsSelf = att.IsSelf
		existing.Hidden = att.Hidden
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		*att = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return att, nil
}

func (s *Gorm) ListAttendees(ctx context.Context, chatID string) ([]models.Attendee, error) {
	var attendees []models.Attendee
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Find(&attendees).Error; err != nil {
		return nil, err
	}
	return attendees, nil
}

// ===== Contacts =====

func (s *Gorm) UpsertContact(ctx context.Context, c *models.Contact) (*models.Contact, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Contact
		err := tx.Where("account_id = ? AND external_id = ?", c.AccountID, c.ExternalID).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if c.ID == "" {
				c.ID = uuid.New().String()
			}
			return tx.Create(c).Error
		}
		if err != nil {
			return err
		}
		mergeContact(&existing, c)
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		*c = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// mergeContact applies the additive contact-merge policy: incoming fields
// overwrite only when they carry data, except last_interaction_at which
// always advances to the latest timestamp.
func mergeContact(existing, incoming *models.Contact) {
	if incoming.FullName != "" {
		existing.FullName = incoming.FullName
	}
	if incoming.FirstName != "" {
		existing.FirstName = incoming.FirstName
	}
	if incoming.LastName != "" {
		existing.LastName = incoming.LastName
	}
	if incoming.Headline != "" {
		existing.Headline = incoming.Headline
	}
	if incoming.ProfileImageURL != "" {
		existing.ProfileImageURL = incoming.ProfileImageURL
	}
	if incoming.ProviderURL != "" {
		existing.ProviderURL = incoming.ProviderURL
	}
	if incoming.NetworkDistance != "" {
		existing.NetworkDistance = incoming.NetworkDistance
	}
	if incoming.IsConnection {
		existing.IsConnection = true
	}
	if incoming.LastInteractionAt != nil &&
		(existing.LastInteractionAt == nil || incoming.LastInteractionAt.After(*existing.LastInteractionAt)) {
		existing.LastInteractionAt = incoming.LastInteractionAt
	}
}

func (s *Gorm) GetContactByExternalID(ctx context.Context, accountID, externalID string) (*models.Contact, error) {
	var c models.Contact
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND external_id = ?", accountID, externalID).
		First(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// ===== Messages =====

func (s *Gorm) UpsertMessage(ctx context.Context, m *models.Message) (*models.Message, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Message
		err := tx.Where("account_id = ? AND external_id = ?", m.AccountID, m.ExternalID).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if m.ID == "" {
				m.ID = uuid.New().String()
			}
			if m.MessageType == "" {
				m.MessageType = models.MessageTypeText
			}
			return tx.Create(m).Error
		}
		if err != nil {
			return err
		}
		// Tombstoned messages are frozen.
		if existing.IsDeleted {
			*m = existing
			return nil
		}
		// Re-delivery refreshes read state and bumps updated_at, nothing
		// else. A locally-read message never regresses to unread.
		existing.IsRead = existing.IsRead || m.IsRead
		if m.Content != "" && existing.Content == "" {
			existing.Content = m.Content
		}
		if m.Metadata != "" {
			existing.Metadata = m.Metadata
		}
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		*m = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Gorm) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *Gorm) GetMessageByExternalID(ctx context.Context, accountID, externalID string) (*models.Message, error) {
	var m models.Message
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND external_id = ?", accountID, externalID).
		First(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *Gorm) MarkMessageRead(ctx context.Context, accountID, externalID string) error {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("account_id = ? AND external_id = ?", accountID, externalID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Gorm) EditMessage(ctx context.Context, accountID, externalID, content string) error {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("account_id = ? AND external_id = ? AND is_deleted = ?", accountID, externalID, false).
		Updates(map[string]any{"content": content, "is_edited": true})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Gorm) TombstoneMessage(ctx context.Context, accountID, externalID string) error {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("account_id = ? AND external_id = ?", accountID, externalID).
		Update("is_deleted", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Gorm) ListMessages(ctx context.Context, chatID string, limit, offset int) ([]models.Message, error) {
	var messages []models.Message
	q := s.db.WithContext(ctx).Where("chat_id = ?", chatID).
		Order("sent_at DESC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// ===== Attachments =====

func (s *Gorm) UpsertAttachment(ctx context.Context, a *models.Attachment) (*models.Attachment, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Attachment
		err := tx.Where("message_id = ? AND external_id = ?", a.MessageID, a.ExternalID).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if a.ID == "" {
				a.ID = uuid.New().String()
			}
			return tx.Create(a).Error
		}
		if err != nil {
			return err
		}
		// A durable cache copy is terminal; re-delivery only refreshes
		// source metadata.
		if a.Filename != "" {
			existing.Filename = a.Filename
		}
		if a.MimeType != "" {
			existing.MimeType = a.MimeType
		}
		if a.FileSize > 0 {
			existing.FileSize = a.FileSize
		}
		if a.SourceURL != "" {
			existing.SourceURL = a.SourceURL
			existing.SourceURLExpiresAt = a.SourceURLExpiresAt
		}
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		*a = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Gorm) GetAttachment(ctx context.Context, id string) (*models.Attachment, error) {
	var a models.Attachment
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *Gorm) SaveAttachment(ctx context.Context, a *models.Attachment) error {
	return s.db.WithContext(ctx).Save(a).Error
}

func (s *Gorm) ListAttachments(ctx context.Context, messageID string) ([]models.Attachment, error) {
	var attachments []models.Attachment
	if err := s.db.WithContext(ctx).Where("message_id = ?", messageID).Find(&attachments).Error; err != nil {
		return nil, err
	}
	return attachments, nil
}

// ===== Profile views =====

func (s *Gorm) AppendProfileView(ctx context.Context, v *models.ProfileView) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(v).Error
}

func (s *Gorm) ListProfileViews(ctx context.Context, accountID string, limit int) ([]models.ProfileView, error) {
	var views []models.ProfileView
	q := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("viewed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&views).Error; err != nil {
		return nil, err
	}
	return views, nil
}
