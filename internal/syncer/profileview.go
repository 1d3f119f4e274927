package syncer

import (
	"context"
	"errors"
	"log"

	"github.com/lumachat/chatvault/internal/db/models"
	"github.com/lumachat/chatvault/internal/normalize"
)

// RecordProfileView appends one profile-view row. Views are timeline
// events: they are never deduplicated against prior views. When the
// viewer's name is missing but an external id is known, the engine
// best-effort enriches the row (and the contact book) from the provider's
// profile endpoint; enrichment failure never drops the view.
func (e *Engine) RecordProfileView(ctx context.Context, ev *normalize.Event) error {
	if ev.ProfileView == nil {
		return errors.New("event carries no profile view")
	}
	account, err := e.resolveAccount(ctx, ev.Provider, ev.AccountExternalID)
	if err != nil {
		return err
	}

	view := *ev.ProfileView
	if view.ViewerName == "" && view.ViewerExternalID != "" {
		raw, err := e.provider.GetProfile(ctx, account, view.ViewerExternalID)
		if err != nil {
			log.Printf("profile view: enrich viewer %s: %v", view.ViewerExternalID, err)
		} else {
			viewer := normalize.NormalizeAttendee(raw)
			view.ViewerName = viewer.DisplayName
			if !viewer.IsSelf && viewer.ExternalID != "" {
				if _, err := e.store.UpsertContact(ctx, contactModel(account.ID, viewer)); err != nil {
					log.Printf("profile view: upsert contact %s: %v", viewer.ExternalID, err)
				}
			}
		}
	}

	return e.store.AppendProfileView(ctx, &models.ProfileView{
		AccountID:        account.ID,
		ViewerExternalID: view.ViewerExternalID,
		ViewerName:       view.ViewerName,
		ViewedAt:         view.ViewedAt,
	})
}
