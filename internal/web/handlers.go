// Package web carries the thin HTTP surface: the inbound webhook route
// and the admin API. All synchronization semantics live in the engine;
// handlers only decode, delegate and encode.
package web

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lumachat/chatvault/internal/logging"
	"github.com/lumachat/chatvault/internal/normalize"
	"github.com/lumachat/chatvault/internal/store"
	"github.com/lumachat/chatvault/internal/syncer"
	"github.com/lumachat/chatvault/internal/util"
	"github.com/lumachat/chatvault/internal/version"
)

// maxWebhookBody bounds inbound webhook payloads (1 MiB).
const maxWebhookBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

// WebhookHandler ingests one provider event per call. Redelivery is safe:
// the engine's upserts are idempotent.
func WebhookHandler(engine *syncer.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}

		var raw normalize.RawEvent
		if err := json.Unmarshal(body, &raw); err != nil {
			log.Printf("webhook[%s]: invalid JSON: %v, payload: %s",
				logging.RequestID(r.Context()), err, util.Snippet(body))
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}

		ev, err := normalize.NormalizeEvent(raw)
		if err != nil {
			log.Printf("webhook[%s]: %v, payload: %s",
				logging.RequestID(r.Context()), err, util.Snippet(body))
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := engine.ApplyEvent(r.Context(), ev); err != nil {
			if errors.Is(err, syncer.ErrAccountNotFound) || errors.Is(err, store.ErrNotFound) {
				// Addressing errors are permanent: reject so the
				// provider does not redeliver forever.
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			log.Printf("webhook[%s]: apply %s event: %v",
				logging.RequestID(r.Context()), ev.Kind, err)
			writeError(w, http.StatusInternalServerError, "event application failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// AccountsHandler lists all accounts.
func AccountsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := st.ListAccounts(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
	}
}

// TriggerBackfillHandler queues a backfill for one account.
func TriggerBackfillHandler(engine *syncer.Engine, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := st.GetAccount(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "account not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		engine.ScheduleBackfill(account)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "backfill scheduled"})
	}
}

// ChatsHandler pages through one account's chats.
func ChatsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chats, err := st.ListChats(r.Context(), chi.URLParam(r, "id"),
			queryInt(r, "limit", 50), queryInt(r, "offset", 0))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
	}
}

// MessagesHandler pages through one chat's messages.
func MessagesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messages, err := st.ListMessages(r.Context(), chi.URLParam(r, "id"),
			queryInt(r, "limit", 50), queryInt(r, "offset", 0))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
	}
}

// RefreshAttachmentHandler forces the freshness protocol for one
// attachment and returns its final record.
func RefreshAttachmentHandler(engine *syncer.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		att, err := engine.RefreshAttachment(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "attachment not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, att)
	}
}

// ProfileViewsHandler lists recent profile views for an account.
func ProfileViewsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := st.ListProfileViews(r.Context(), chi.URLParam(r, "id"),
			queryInt(r, "limit", 100))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"profile_views": views})
	}
}

// HealthzHandler reports liveness and build identity.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version.Version,
			"commit":  version.Commit,
		})
	}
}
