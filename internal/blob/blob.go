// Package blob stores raw uploaded file bytes, keyed per document. Two
// backends exist: a local directory for single-node deployments and an
// S3-compatible object store for everything else.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned when an object key does not exist.
var ErrNotFound = errors.New("blob not found")

// Store persists and retrieves raw document bytes by key.
type Store interface {
	// Put writes the object, replacing any existing content at the key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get opens the object for reading. The caller must close it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backend is reachable and writable.
	Ping(ctx context.Context) error
}

// ObjectKey derives the storage key for a document upload. The document id
// prefix keeps keys unique across re-uploads of the same filename; the
// sanitized filename keeps objects recognizable in the store.
func ObjectKey(documentID, filename string) string {
	return documentID + "_" + sanitizeFilename(filename)
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "upload"
	}
	return b.String()
}

func wrapOp(op, key string, err error) error {
	return fmt.Errorf("blob: %s %s: %w", op, key, err)
}
