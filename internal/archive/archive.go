// Package archive keeps raw copies of fetched pages for audit and offline
// re-parsing. Archiving is best effort: failures are logged and swallowed.
package archive

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

const (
	contentType  = "text/html; charset=utf-8"
	hashNameSize = 16
)

// Archiver implements catalog.Archiver on top of any catalog.BlobStore.
type Archiver struct {
	store  catalog.BlobStore
	hasher catalog.Hasher
	logger *zap.Logger
}

// New builds an Archiver. hasher names pages fetched without an explicit name.
func New(store catalog.BlobStore, hasher catalog.Hasher, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{store: store, hasher: hasher, logger: logger}
}

// ObjectName picks the archive path: "<name>.html" when a name is given,
// otherwise "page_<first 16 hex digits of sha256>.html".
func (a *Archiver) ObjectName(name string, payload []byte) (string, error) {
	if name != "" {
		return catalog.SafeFilename(name) + ".html", nil
	}
	if a.hasher == nil {
		return "", fmt.Errorf("no name and no hasher configured")
	}
	sum, err := a.hasher.Hash(payload)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	if len(sum) > hashNameSize {
		sum = sum[:hashNameSize]
	}
	return "page_" + sum + ".html", nil
}

// Archive writes payload. It never returns an error.
func (a *Archiver) Archive(ctx context.Context, name string, payload []byte) {
	if a == nil || a.store == nil {
		return
	}
	objectName, err := a.ObjectName(name, payload)
	if err != nil {
		a.logger.Warn("archive name failed", zap.String("name", name), zap.Error(err))
		return
	}
	uri, err := a.store.PutObject(ctx, objectName, contentType, bytes.NewReader(payload))
	if err != nil {
		a.logger.Warn("archive write failed", zap.String("object", objectName), zap.Error(err))
		return
	}
	a.logger.Debug("archived page", zap.String("uri", uri), zap.Int("bytes", len(payload)))
}
