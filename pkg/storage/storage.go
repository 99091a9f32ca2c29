// Package storage persists meter audit photos. Readings are accepted without
// a photo only when auditing is disabled, so the store sits on the hot path
// of every capture.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store writes an audit photo under key and returns a path or URL the API can
// hand back to clients.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// LocalStore writes photos under a base directory served as /uploads.
type LocalStore struct {
	Base string
}

func NewLocalStore(base string) (*LocalStore, error) {
	if base == "" {
		base = "uploads"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{Base: base}, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key = strings.TrimLeft(filepath.Clean(key), "/.")
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	dst := filepath.Join(s.Base, key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return "/uploads/" + filepath.ToSlash(key), nil
}

// PutBytes is a convenience wrapper for in-memory payloads.
func PutBytes(ctx context.Context, s Store, key string, data []byte, contentType string) (string, error) {
	return s.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}
