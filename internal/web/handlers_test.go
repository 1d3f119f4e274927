package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/lumachat/chatvault/internal/config"
	"github.com/lumachat/chatvault/internal/db/models"
	"github.com/lumachat/chatvault/internal/normalize"
	"github.com/lumachat/chatvault/internal/provider"
	"github.com/lumachat/chatvault/internal/store"
	"github.com/lumachat/chatvault/internal/syncer"
	"gorm.io/gorm"
)

// stubProvider satisfies provider.Client for handler tests; none of these
// tests reach the provider.
type stubProvider struct{}

func (stubProvider) ListChats(ctx context.Context, account *models.Account, cursor string, limit int) (provider.ChatPage, error) {
	return provider.ChatPage{}, nil
}

func (stubProvider) ListMessages(ctx context.Context, account *models.Account, chatExternalID, cursor string, limit int) (provider.MessagePage, error) {
	return provider.MessagePage{}, nil
}

func (stubProvider) ListAttendees(ctx context.Context, account *models.Account, chatExternalID string, limit int) ([]normalize.RawAttendee, error) {
	return nil, nil
}

func (stubProvider) GetAttachmentContent(ctx context.Context, account *models.Account, messageExternalID, attachmentExternalID string) (provider.AttachmentContent, error) {
	return provider.AttachmentContent{}, provider.ErrContentGone
}

func (stubProvider) GetProfile(ctx context.Context, account *models.Account, identifier string) (normalize.RawAttendee, error) {
	return normalize.RawAttendee{}, nil
}

type stubUploader struct{}

func (stubUploader) Upload(ctx context.Context, key string, data []byte, mimeType string) (string, error) {
	return "https://cache.example/" + key, nil
}

func newTestRouter(t *testing.T) (chi.Router, *store.Gorm, *syncer.Engine) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := gdb.AutoMigrate(
		&models.Account{}, &models.Chat{}, &models.Attendee{}, &models.Contact{},
		&models.Message{}, &models.Attachment{}, &models.ProfileView{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.NewGorm(gdb)
	engine := syncer.New(st, stubProvider{}, stubUploader{}, nil, config.BackfillLimits{
		MaxChats: 10, PageSize: 5, MaxMessagesPerChat: 20,
		MessageBatchSize: 10, MaxAttendeesPerChat: 10, ChatConcurrency: 1, SettleDelaySeconds: 1,
	})

	r := chi.NewRouter()
	r.Post("/webhooks/messaging", WebhookHandler(engine))
	r.Route("/api", func(api chi.Router) {
		api.Get("/accounts", AccountsHandler(st))
		api.Post("/accounts/{id}/backfill", TriggerBackfillHandler(engine, st))
		api.Get("/accounts/{id}/chats", ChatsHandler(st))
		api.Get("/accounts/{id}/profile-views", ProfileViewsHandler(st))
		api.Get("/chats/{id}/messages", MessagesHandler(st))
		api.Post("/attachments/{id}/refresh", RefreshAttachmentHandler(engine))
	})
	r.Get("/healthz", HealthzHandler())
	return r, st, engine
}

func seedAccount(t *testing.T, st *store.Gorm) *models.Account {
	t.Helper()
	acc, err := st.CreateAccount(context.Background(), &models.Account{
		Provider: "linkedin", ExternalID: "acc-1", Status: models.StatusConnected,
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return acc
}

func doRequest(t *testing.T, r chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestWebhookMessageReceived(t *testing.T) {
	r, st, _ := newTestRouter(t)
	acc := seedAccount(t, st)

	payload := `{
		"type": "message.received",
		"provider": "linkedin",
		"account_id": "acc-1",
		"chat": {"id": "C1", "type": "direct"},
		"sender": {"id": "S1", "name": "Sam Doe"},
		"message": {"id": "M1", "text": "hello there"}
	}`
	rec := doRequest(t, r, http.MethodPost, "/webhooks/messaging", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}

	msg, err := st.GetMessageByExternalID(context.Background(), acc.ID, "M1")
	if err != nil {
		t.Fatalf("message not persisted: %v", err)
	}
	if msg.Content != "hello there" || msg.MessageType != models.MessageTypeText {
		t.Errorf("persisted message: %+v", msg)
	}
}

func TestWebhookUnknownAccountRejected(t *testing.T) {
	r, _, _ := newTestRouter(t)

	payload := `{
		"type": "message.received",
		"provider": "linkedin",
		"account_id": "who-is-this",
		"chat": {"id": "C1"},
		"sender": {"id": "S1"},
		"message": {"id": "M1", "text": "hi"}
	}`
	rec := doRequest(t, r, http.MethodPost, "/webhooks/messaging", payload)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status %d, want 422", rec.Code)
	}
}

func TestWebhookBadPayloads(t *testing.T) {
	r, st, _ := newTestRouter(t)
	seedAccount(t, st)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"not json", "{nope", http.StatusBadRequest},
		{"unknown kind", `{"type":"message.exploded","account_id":"acc-1"}`, http.StatusBadRequest},
		{"missing chat id", `{"type":"message.received","account_id":"acc-1","message":{"id":"M1"}}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, r, http.MethodPost, "/webhooks/messaging", tc.body)
			if rec.Code != tc.want {
				t.Errorf("status %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestWebhookAccountConnectedCreatesAccount(t *testing.T) {
	r, st, _ := newTestRouter(t)

	payload := `{"type":"account.connected","provider":"linkedin","account_id":"brand-new"}`
	rec := doRequest(t, r, http.MethodPost, "/webhooks/messaging", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}

	acc, err := st.GetAccountByExternalID(context.Background(), "linkedin", "brand-new")
	if err != nil {
		t.Fatalf("account not created: %v", err)
	}
	if acc.Status != models.StatusConnected {
		t.Errorf("status: %q", acc.Status)
	}
}

func TestAccountsEndpoint(t *testing.T) {
	r, st, _ := newTestRouter(t)
	seedAccount(t, st)

	rec := doRequest(t, r, http.MethodGet, "/api/accounts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "acc-1") {
		t.Errorf("body: %s", rec.Body.String())
	}
}

func TestTriggerBackfillUnknownAccount(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := doRequest(t, r, http.MethodPost, "/api/accounts/nope/backfill", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", rec.Code)
	}
}

func TestRefreshUnknownAttachment(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := doRequest(t, r, http.MethodPost, "/api/attachments/nope/refresh", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := doRequest(t, r, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status %d", rec.Code)
	}
}
