// Package blob abstracts the object storage backend that holds uploaded
// audio. Keys are opaque to callers; the URL returned by Put embeds the key
// so the storage layer can recover it later for deletes and presigning.
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

// DefaultPresignTTL is the lifetime of presigned read URLs when the caller
// does not specify one.
const DefaultPresignTTL = time.Hour

// ErrNotFound is returned when a key has no object behind it.
var ErrNotFound = errors.New("blob not found")

// Store is the object storage backend.
type Store interface {
	// Put writes the object and returns its canonical URL.
	Put(ctx context.Context, key string, body io.Reader, contentType string, size int64) (string, error)

	// Get returns a reader over the object. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting an absent key is not an error;
	// blob stores are the compensation target and compensations may run
	// twice.
	Delete(ctx context.Context, key string) error

	// Presign returns a time-limited read URL for the object.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)

	// KeyFromURL recovers the storage key from a URL previously returned by
	// Put.
	KeyFromURL(url string) (string, error)
}
