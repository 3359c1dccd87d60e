// Package archive stores HTML snapshots of bookmarked pages.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"
)

// BlobStore persists opaque objects and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, data io.Reader) (string, error)
}

// Hasher derives the object key from a page URL.
type Hasher interface {
	Hash(data []byte) string
}

// Archiver writes snapshots to {prefix}/{user}/{hash(url)}.html.
type Archiver struct {
	blobs  BlobStore
	hasher Hasher
	prefix string
	logger *zap.Logger
}

// New constructs an Archiver.
func New(blobs BlobStore, hasher Hasher, prefix string, logger *zap.Logger) (*Archiver, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		blobs:  blobs,
		hasher: hasher,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}, nil
}

// Key returns the object path a snapshot of pageURL for userID is stored at.
func (a *Archiver) Key(userID, pageURL string) string {
	name := a.hasher.Hash([]byte(pageURL)) + ".html"
	return path.Join(a.prefix, sanitizeSegment(userID), name)
}

// Save stores body and returns the snapshot URI. Empty bodies are skipped and
// yield an empty URI.
func (a *Archiver) Save(ctx context.Context, userID, pageURL string, body []byte) (string, error) {
	if len(body) == 0 {
		return "", nil
	}
	key := a.Key(userID, pageURL)
	uri, err := a.blobs.PutObject(ctx, key, "text/html; charset=utf-8", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("store snapshot: %w", err)
	}
	a.logger.Debug("snapshot stored", zap.String("url", pageURL), zap.String("uri", uri), zap.Int("bytes", len(body)))
	return uri, nil
}

// sanitizeSegment keeps a user id from escaping its directory.
func sanitizeSegment(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "_"
	}
	return s
}
