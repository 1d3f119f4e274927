// Package syncer is the synchronization engine: it reconciles real-time
// webhook events and historical backfill pulls into one consistent local
// copy, owning idempotency and per-chat ordering.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lumachat/chatvault/internal/blobcache"
	"github.com/lumachat/chatvault/internal/config"
	"github.com/lumachat/chatvault/internal/db/models"
	"github.com/lumachat/chatvault/internal/normalize"
	"github.com/lumachat/chatvault/internal/provider"
	"github.com/lumachat/chatvault/internal/store"
)

// ErrAccountNotFound means the event's target account could not be
// resolved. Resolution failures are almost always permanent addressing
// errors, so the event is rejected rather than retried blindly.
var ErrAccountNotFound = errors.New("account not found")

// EventSink receives synthesized events for downstream consumers.
// Delivery failure is reported as false and is never fatal here.
type EventSink interface {
	Dispatch(ctx context.Context, eventType string, data any) bool
}

// Engine orchestrates real-time event application, historical backfill,
// attachment freshness and profile-view capture.
type Engine struct {
	store    store.Store
	provider provider.Client
	cache    blobcache.Uploader
	sink     EventSink
	limits   config.BackfillLimits
	locks    *keyedMutex

	// sourceURLMargin is the safety window before a provider URL's
	// expiry within which it is already treated as stale.
	sourceURLMargin time.Duration

	// scheduleBackfill is invoked on the first successful connected
	// transition of an account. Swapped out in tests.
	scheduleBackfill func(acc *models.Account)
}

// New wires an engine. sink may be nil (no downstream delivery).
func New(st store.Store, pc provider.Client, cache blobcache.Uploader, sink EventSink, limits config.BackfillLimits) *Engine {
	e := &Engine{
		store:           st,
		provider:        pc,
		cache:           cache,
		sink:            sink,
		limits:          limits,
		locks:           newKeyedMutex(),
		sourceURLMargin: 5 * time.Minute,
	}
	e.scheduleBackfill = e.backfillAfterSettle
	return e
}

// ScheduleBackfill queues a backfill for the account after the settle
// delay.
func (e *Engine) ScheduleBackfill(acc *models.Account) {
	e.scheduleBackfill(acc)
}

// backfillAfterSettle starts a backfill once the upstream account
// activation has had time to settle.
func (e *Engine) backfillAfterSettle(acc *models.Account) {
	delay := time.Duration(e.limits.SettleDelaySeconds) * time.Second
	go func() {
		time.Sleep(delay)
		if err := e.Backfill(context.Background(), acc, e.limits); err != nil {
			log.Printf("backfill for account %s failed: %v", acc.ID, err)
		}
	}()
}

// ApplyEvent routes one normalized event to its handler. Bulk-sync
// batches are applied best-effort: item failures are logged, not
// propagated, so one bad item never aborts its siblings.
func (e *Engine) ApplyEvent(ctx context.Context, ev *normalize.Event) error {
	switch ev.Kind {
	case normalize.EventMessageReceived:
		_, err := e.ApplyMessageEvent(ctx, ev.Message)
		return err

	case normalize.EventMessageRead:
		account, err := e.resolveAccount(ctx, ev.Provider, ev.AccountExternalID)
		if err != nil {
			return err
		}
		return e.store.MarkMessageRead(ctx, account.ID, ev.MessageExternalID)

	case normalize.EventMessageEdited:
		account, err := e.resolveAccount(ctx, ev.Provider, ev.AccountExternalID)
		if err != nil {
			return err
		}
		return e.store.EditMessage(ctx, account.ID, ev.MessageExternalID, ev.Content)

	case normalize.EventMessageDeleted:
		account, err := e.resolveAccount(ctx, ev.Provider, ev.AccountExternalID)
		if err != nil {
			return err
		}
		return e.store.TombstoneMessage(ctx, account.ID, ev.MessageExternalID)

	case normalize.EventAccountConnected:
		return e.applyAccountConnected(ctx, ev)

	case normalize.EventAccountDisconnected:
		account, err := e.resolveAccount(ctx, ev.Provider, ev.AccountExternalID)
		if err != nil {
			return err
		}
		return e.store.SetAccountStatus(ctx, account.ID, models.StatusDisconnected)

	case normalize.EventAccountError:
		account, err := e.resolveAccount(ctx, ev.Provider, ev.AccountExternalID)
		if err != nil {
			return err
		}
		return e.store.SetAccountStatus(ctx, account.ID, models.StatusError)

	case normalize.EventProfileView:
		return e.RecordProfileView(ctx, ev)

	case normalize.EventSyncBatch:
		for i := range ev.Batch {
			if err := e.ApplyEvent(ctx, &ev.Batch[i]); err != nil {
				log.Printf("sync batch: item %d (%s) failed: %v", i, ev.Batch[i].Kind, err)
			}
		}
		return nil

	default:
		return fmt.Errorf("unhandled event kind %q", ev.Kind)
	}
}

// applyAccountConnected creates the account on its first connection event
// and schedules a historical backfill on the first successful transition
// into connected.
func (e *Engine) applyAccountConnected(ctx context.Context, ev *normalize.Event) error {
	account, err := e.store.GetAccountByExternalID(ctx, ev.Provider, ev.AccountExternalID)
	if errors.Is(err, store.ErrNotFound) {
		account, err = e.store.CreateAccount(ctx, &models.Account{
			Provider:   ev.Provider,
			ExternalID: ev.AccountExternalID,
			Status:     models.StatusPending,
		})
	}
	if err != nil {
		return err
	}

	wasConnected := account.Status == models.StatusConnected
	if err := e.store.SetAccountStatus(ctx, account.ID, models.StatusConnected); err != nil {
		return err
	}
	if !wasConnected {
		log.Printf("account %s connected, scheduling backfill", account.ID)
		e.scheduleBackfill(account)
	}
	return nil
}

func (e *Engine) resolveAccount(ctx context.Context, providerName, externalID string) (*models.Account, error) {
	account, err := e.store.GetAccountByExternalID(ctx, providerName, externalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrAccountNotFound, providerName, externalID)
	}
	return account, nil
}

func (e *Engine) chatKey(accountID, chatExternalID string) string {
	return accountID + "/" + chatExternalID
}

// dispatchStored notifies the downstream sink about a persisted message.
// Fire-and-forget: a failed dispatch never rolls back the message.
func (e *Engine) dispatchStored(ctx context.Context, msg *models.Message) {
	if e.sink == nil {
		return
	}
	if ok := e.sink.Dispatch(ctx, "message.stored", msg); !ok {
		log.Printf("dispatch of message %s exhausted retries", msg.ID)
	}
}
