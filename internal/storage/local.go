package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ecoquest/internal/retry"
	"ecoquest/internal/security"
)

// LocalStorage keeps objects on disk and signs download links for the /media route
type LocalStorage struct {
	root    string
	baseURL string
	signer  *security.MediaSigner
}

// NewLocalStorage stores objects under dir/mission-videos; links point at baseURL/media
func NewLocalStorage(dir, baseURL string, signer *security.MediaSigner) (*LocalStorage, error) {
	root := filepath.Join(dir, Bucket)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &LocalStorage{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
	}, nil
}

func (s *LocalStorage) path(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// Put writes body to key, replacing any existing object atomically
func (s *LocalStorage) Put(ctx context.Context, key string, body io.ReadSeeker, contentType string) error {
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	return retry.Do(ctx, "local put "+key, retry.Default(), func(ctx context.Context) error {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return retry.Permanent(fmt.Errorf("failed to rewind upload: %w", err))
		}
		tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		defer os.Remove(tmp.Name())

		if _, err := io.Copy(tmp, body); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write object: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("failed to close object: %w", err)
		}
		if err := os.Rename(tmp.Name(), target); err != nil {
			return fmt.Errorf("failed to store object: %w", err)
		}
		return nil
	})
}

// Delete removes key; a missing object is not an error
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// SignedURL returns a /media link carrying a token valid for ttl
func (s *LocalStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := cleanKey(key); err != nil {
		return "", err
	}
	token, err := s.signer.Sign(key, ttl)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/media/%s?token=%s", s.baseURL, key, url.QueryEscape(token)), nil
}

// Open verifies token for key and opens the object for reading
func (s *LocalStorage) Open(key, token string) (*os.File, error) {
	target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := s.signer.Verify(token, key); err != nil {
		return nil, err
	}
	return os.Open(target)
}
