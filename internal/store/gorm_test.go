package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lumachat/chatvault/internal/db/models"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Gorm {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Account{}, &models.Chat{}, &models.Attendee{}, &models.Contact{},
		&models.Message{}, &models.Attachment{}, &models.ProfileView{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewGorm(db)
}

func testAccount(t *testing.T, s *Gorm) *models.Account {
	t.Helper()
	acc, err := s.CreateAccount(context.Background(), &models.Account{
		Provider:   "linkedin",
		ExternalID: "acc-ext-1",
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return acc
}

func TestCreateAccountIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testAccount(t, s)
	second, err := s.CreateAccount(ctx, &models.Account{Provider: "linkedin", ExternalID: "acc-ext-1"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("duplicate account created: %s vs %s", first.ID, second.ID)
	}
}

func TestUpsertChatNeverDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acc := testAccount(t, s)

	a, err := s.UpsertChat(ctx, &models.Chat{AccountID: acc.ID, ExternalID: "c-1", Name: "Sam"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	b, err := s.UpsertChat(ctx, &models.Chat{AccountID: acc.ID, ExternalID: "c-1"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("chat recreated: %s vs %s", a.ID, b.ID)
	}
	// Blank incoming name must not erase the known one.
	if b.Name != "Sam" {
		t.Errorf("name erased by blank upsert: %q", b.Name)
	}

	chats, err := s.ListChats(ctx, acc.ID, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chats) != 1 {
		t.Errorf("want 1 chat row, got %d", len(chats))
	}
}

func TestUpsertChatLastMessageOnlyAdvances(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acc := testAccount(t, s)

	later := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	if _, err := s.UpsertChat(ctx, &models.Chat{AccountID: acc.ID, ExternalID: "c-1", LastMessageAt: &later}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.UpsertChat(ctx, &models.Chat{AccountID: acc.ID, ExternalID: "c-1", LastMessageAt: &earlier})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if got.LastMessageAt == nil || !got.LastMessageAt.Equal(later) {
		t.Errorf("last_message_at regressed: %v", got.LastMessageAt)
	}
}

func TestUpsertContactAdditiveMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acc := testAccount(t, s)

	t1 := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(48 * time.Hour)

	rich, err := s.UpsertContact(ctx, &models.Contact{
		AccountID:         acc.ID,
		ExternalID:        "p-1",
		FullName:          "Sam Doe",
		Headline:          "Engineer",
		LastInteractionAt: &t1,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// A sparser later payload must not blank known fields, but the
	// interaction timestamp still advances.
	merged, err := s.UpsertContact(ctx, &models.Contact{
		AccountID:         acc.ID,
		ExternalID:        "p-1",
		FirstName:         "Sam",
		LastInteractionAt: &t2,
	})
	if err != nil {
		t.Fatalf("merge upsert: %v", err)
	}
	if merged.ID != rich.ID {
		t.Errorf("contact duplicated: %s vs %s", merged.ID, rich.ID)
	}
	if merged.FullName != "Sam Doe" || merged.Headline != "Engineer" {
		t.Errorf("richer fields erased: %+v", merged)
	}
	if merged.FirstName != "Sam" {
		t.Errorf("new non-empty field not applied: %+v", merged)
	}
	if merged.LastInteractionAt == nil || !merged.LastInteractionAt.Equal(t2) {
		t.Errorf("last interaction did not advance: %v", merged.LastInteractionAt)
	}

	// An even older interaction never regresses the timestamp.
	older, err := s.UpsertContact(ctx, &models.Contact{
		AccountID:         acc.ID,
		ExternalID:        "p-1",
		LastInteractionAt: &t1,
	})
	if err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if !older.LastInteractionAt.Equal(t2) {
		t.Errorf("last interaction regressed to %v", older.LastInteractionAt)
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acc := testAccount(t, s)

	a, err := s.UpsertMessage(ctx, &models.Message{
		AccountID: acc.ID, ExternalID: "m-1", ChatID: "chat-row", Content: "hello",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	b, err := s.UpsertMessage(ctx, &models.Message{
		AccountID: acc.ID, ExternalID: "m-1", ChatID: "chat-row", Content: "hello",
	})
	if err != nil {
		t.Fatalf("redelivery upsert: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("message duplicated: %s vs %s", a.ID, b.ID)
	}
}

func TestMessageReadNeverRegresses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acc := testAccount(t, s)

	if _, err := s.UpsertMessage(ctx, &models.Message{
		AccountID: acc.ID, ExternalID: "m-1", ChatID: "c", IsRead: true,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.UpsertMessage(ctx, &models.Message{
		AccountID: acc.ID, ExternalID: "m-1", ChatID: "c", IsRead: false,
	})
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if !got.IsRead {
		t.Error("redelivery regressed is_read to false")
	}
}

func TestTombstonedMessageIsFrozen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acc := testAccount(t, s)

	if _, err := s.UpsertMessage(ctx, &models.Message{
		AccountID: acc.ID, ExternalID: "m-1", ChatID: "c", Content: "original",
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.TombstoneMessage(ctx, acc.ID, "m-1"); err != nil {
		t.Fatalf("tombstone: %v", err)
	}

	// Edits after deletion are rejected.
	if err := s.EditMessage(ctx, acc.ID, "m-1", "rewritten"); err == nil {
		t.Error("edit of tombstoned message succeeded")
	}

	got, err := s.GetMessageByExternalID(ctx, acc.ID, "m-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsDeleted || got.Content != "original" {
		t.Errorf("tombstoned message mutated: %+v", got)
	}
}

func TestUpsertAttachmentNoDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.UpsertAttachment(ctx, &models.Attachment{
		MessageID: "msg-row", ExternalID: "att-1", SourceURL: "https://cdn/x",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	b, err := s.UpsertAttachment(ctx, &models.Attachment{
		MessageID: "msg-row", ExternalID: "att-1", SourceURL: "https://cdn/y",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("attachment duplicated: %s vs %s", a.ID, b.ID)
	}
	if b.SourceURL != "https://cdn/y" {
		t.Errorf("source url not refreshed: %q", b.SourceURL)
	}

	rows, err := s.ListAttachments(ctx, "msg-row")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("want 1 attachment, got %d", len(rows))
	}
}

func TestSetAccountStatusDisconnectedStampsTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acc := testAccount(t, s)

	if err := s.SetAccountStatus(ctx, acc.ID, models.StatusDisconnected); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err := s.GetAccount(ctx, acc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusDisconnected || got.DisconnectedAt == nil {
		t.Errorf("soft delete not recorded: %+v", got)
	}
}

func TestProfileViewsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acc := testAccount(t, s)

	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		err := s.AppendProfileView(ctx, &models.ProfileView{
			AccountID:        acc.ID,
			ViewerExternalID: "p-1",
			ViewerName:       "Sam Doe",
			ViewedAt:         at,
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	views, err := s.ListProfileViews(ctx, acc.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// Identical views are distinct timeline events, never deduplicated.
	if len(views) != 2 {
		t.Errorf("want 2 view rows, got %d", len(views))
	}
}

func TestGetAccountNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetAccount(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}
