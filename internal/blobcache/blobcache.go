// Package blobcache stores attachment bytes in a durable, non-expiring
// cache. A cached URL is preferred over the provider's time-limited one
// and is never re-checked once written.
package blobcache

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Uploader writes attachment bytes under a key and returns the durable
// URL serving them.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, mimeType string) (string, error)
}

// DeriveKey builds a cache key from the owning message id, filename and
// MIME type. The prefix is deterministic for the triple; a random suffix
// disambiguates repeated uploads of renamed or re-fetched content.
func DeriveKey(messageID, filename, mimeType string) string {
	h := sha256.Sum256([]byte(messageID + "\x00" + filename + "\x00" + mimeType))
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return hex.EncodeToString(h[:8]) + "-" + hex.EncodeToString(suffix) + extensionFor(filename, mimeType)
}

// KeyPrefix returns the deterministic part of a derived key, used to
// recognize keys generated for the same attachment triple.
func KeyPrefix(messageID, filename, mimeType string) string {
	h := sha256.Sum256([]byte(messageID + "\x00" + filename + "\x00" + mimeType))
	return hex.EncodeToString(h[:8])
}

func extensionFor(filename, mimeType string) string {
	if ext := filepath.Ext(filename); ext != "" {
		return strings.ToLower(ext)
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// Dir is a filesystem-backed Uploader serving files under a base URL.
type Dir struct {
	root    string
	baseURL string
}

// NewDir creates the cache directory if needed.
func NewDir(root, baseURL string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Dir{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (d *Dir) Upload(ctx context.Context, key string, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(d.root, filepath.Clean("/"+key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return d.baseURL + "/" + key, nil
}
