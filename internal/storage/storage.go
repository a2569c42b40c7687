// Package storage keeps mission proof videos in object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Bucket is the bucket (or local directory) holding mission videos
const Bucket = "mission-videos"

// ErrInvalidKey is returned for keys that are empty or escape the bucket
var ErrInvalidKey = errors.New("invalid storage key")

// Storage stores objects and hands out time-limited download URLs
type Storage interface {
	Put(ctx context.Context, key string, body io.ReadSeeker, contentType string) error
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// VideoKey builds the object key for a video of contentType uploaded by userID at now.
// The extension comes from the detected type, never from the client's file name.
func VideoKey(userID int64, contentType string, now time.Time) string {
	return fmt.Sprintf("%d/%d%s", userID, now.UnixMilli(), videoExtensions[contentType])
}

// IsDirectURL reports whether a stored reference is already a URL rather than a key
func IsDirectURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// ResolveURL returns ref unchanged when it is a URL, otherwise a signed URL for the key
func ResolveURL(ctx context.Context, s Storage, ref string, ttl time.Duration) (string, error) {
	if ref == "" {
		return "", ErrInvalidKey
	}
	if IsDirectURL(ref) {
		return ref, nil
	}
	return s.SignedURL(ctx, ref, ttl)
}

// cleanKey rejects keys that are absolute or contain parent references
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
