package syncer

import (
	"context"
	"encoding/base64"
	"log"
	"time"

	"github.com/lumachat/chatvault/internal/blobcache"
	"github.com/lumachat/chatvault/internal/db/models"
)

// freshnessState classifies an attachment for the refresh protocol.
type freshnessState int

const (
	// stateCached: durable cache URL present and not unavailable.
	// Terminal — cached copies never expire and are never re-checked.
	stateCached freshnessState = iota
	// stateLive: no durable cache, but the provider URL is present and
	// not expired or near expiry. Used as-is without refresh.
	stateLive
	// stateStaleOrMissing: marked unavailable, no URL at all, or the
	// provider URL expired or is within the safety margin of expiring.
	stateStaleOrMissing
)

// freshness evaluates an attachment at the given instant. A provider URL
// without a recorded expiry is acceptable long-term state and counts as
// live.
func freshness(att *models.Attachment, now time.Time, margin time.Duration) freshnessState {
	if att.CacheURL != "" && !att.Unavailable {
		return stateCached
	}
	if att.Unavailable || att.SourceURL == "" {
		return stateStaleOrMissing
	}
	if att.SourceURLExpiresAt != nil && !now.Add(margin).Before(*att.SourceURLExpiresAt) {
		return stateStaleOrMissing
	}
	return stateLive
}

// RefreshAttachment runs the freshness protocol for one attachment and
// returns its final record. Refresh degrades, it never fails outward:
// the only error case is the attachment record itself being absent.
func (e *Engine) RefreshAttachment(ctx context.Context, attachmentID string) (*models.Attachment, error) {
	att, err := e.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return nil, err
	}
	return e.refreshAttachment(ctx, att), nil
}

// refreshAttachment fetches fresh content for a stale-or-missing
// attachment and tries to park it in the durable cache.
//
//   - fetch fails: mark unavailable, everything else untouched; if even
//     persisting the flag fails, return the record as it was.
//   - fetch succeeds, upload fails: keep the decoded content inline,
//     keep the generated cache key for a future retry, clear unavailable.
//   - fetch and upload succeed: store cache URL/key/timestamp, clear
//     unavailable, drop any inline content.
func (e *Engine) refreshAttachment(ctx context.Context, att *models.Attachment) *models.Attachment {
	if freshness(att, time.Now().UTC(), e.sourceURLMargin) != stateStaleOrMissing {
		return att
	}
	original := *att

	msg, err := e.store.GetMessage(ctx, att.MessageID)
	if err != nil {
		log.Printf("refresh attachment %s: owning message %s: %v", att.ID, att.MessageID, err)
		return &original
	}
	account, err := e.store.GetAccount(ctx, msg.AccountID)
	if err != nil {
		log.Printf("refresh attachment %s: account %s: %v", att.ID, msg.AccountID, err)
		return &original
	}

	content, err := e.provider.GetAttachmentContent(ctx, account, msg.ExternalID, att.ExternalID)
	var data []byte
	if err == nil {
		data, err = base64.StdEncoding.DecodeString(content.ContentBase64)
	}
	if err != nil {
		log.Printf("refresh attachment %s: fetch failed: %v", att.ID, err)
		att.Unavailable = true
		if saveErr := e.store.SaveAttachment(ctx, att); saveErr != nil {
			log.Printf("refresh attachment %s: persist failure flag: %v", att.ID, saveErr)
			return &original
		}
		return att
	}

	if content.MimeType != "" {
		att.MimeType = content.MimeType
	}
	if att.CacheKey == "" {
		att.CacheKey = blobcache.DeriveKey(msg.ID, att.Filename, att.MimeType)
	}

	cacheURL, err := e.cache.Upload(ctx, att.CacheKey, data, att.MimeType)
	if err != nil {
		// Content was obtained even if not cached: keep it inline and
		// retry the upload with the same key next time.
		log.Printf("refresh attachment %s: cache upload failed: %v", att.ID, err)
		att.InlineContent = content.ContentBase64
		att.Unavailable = false
		if saveErr := e.store.SaveAttachment(ctx, att); saveErr != nil {
			log.Printf("refresh attachment %s: persist inline fallback: %v", att.ID, saveErr)
			return &original
		}
		return att
	}

	now := time.Now().UTC()
	att.CacheURL = cacheURL
	att.CacheUploadedAt = &now
	att.Unavailable = false
	att.InlineContent = ""
	att.FileSize = int64(len(data))
	if saveErr := e.store.SaveAttachment(ctx, att); saveErr != nil {
		log.Printf("refresh attachment %s: persist cached state: %v", att.ID, saveErr)
		return &original
	}
	return att
}
