// Package blob stores receipt files by slash-separated key, either on the
// local filesystem or in an S3-compatible bucket.
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotExist is returned when no object is stored under a key.
var ErrNotExist = errors.New("blob: object does not exist")

// ErrInvalidKey is returned for keys that are empty, absolute or escape the
// storage root.
var ErrInvalidKey = errors.New("blob: invalid key")

// Entry describes a stored object.
type Entry struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Object is an opened stored file.
type Object struct {
	io.ReadSeekCloser
	Entry
	ContentType string
}

// Store is implemented by DiskStore and MinioStore.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	Open(ctx context.Context, key string) (*Object, error)
	Walk(ctx context.Context, fn func(Entry) error) error
	Ping(ctx context.Context) error
	// Location describes where objects live, for health output.
	Location() string
}

// CleanKey validates a key and returns its canonical form.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") || strings.Contains(key, "\x00") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
