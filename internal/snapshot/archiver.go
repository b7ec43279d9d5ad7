// Package snapshot archives the HTML of pages whose extraction failed so the
// selectors can be fixed against the markup that broke them.
package snapshot

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

// ContentType is stored alongside every snapshot.
const ContentType = "text/html; charset=utf-8"

// Archiver writes page HTML to a blob store under a content-addressed path.
type Archiver struct {
	blobs  tracker.BlobStore
	hasher tracker.Hasher
	prefix string
	logger *zap.Logger
}

// New constructs an Archiver. A nil blob store yields nil, which disables archiving.
func New(blobs tracker.BlobStore, hasher tracker.Hasher, prefix string, logger *zap.Logger) *Archiver {
	if blobs == nil || hasher == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		blobs:  blobs,
		hasher: hasher,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Archive stores the page HTML and returns the blob URI.
func (a *Archiver) Archive(ctx context.Context, username string, page tracker.Page) (string, error) {
	if a == nil {
		return "", nil
	}
	if page == nil {
		return "", fmt.Errorf("archive %s: no page", username)
	}
	body, err := page.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	hash, err := a.hasher.Hash([]byte(body))
	if err != nil {
		return "", fmt.Errorf("hash page html: %w", err)
	}
	uri, err := a.blobs.PutObject(ctx, a.blobPath(username, hash), ContentType, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("put snapshot: %w", err)
	}
	a.logger.Info("page snapshot archived",
		zap.String("username", username),
		zap.String("uri", uri),
		zap.Int("bytes", len(body)),
	)
	return uri, nil
}

func (a *Archiver) blobPath(username, hash string) string {
	name := username
	if name == "" {
		name = "unknown"
	}
	if a.prefix == "" {
		return path.Join(name, hash+".html")
	}
	return path.Join(a.prefix, name, hash+".html")
}
