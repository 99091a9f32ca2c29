package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorePut(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	url, err := PutBytes(context.Background(), s, "2024-12/W-017.png", []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "/uploads/2024-12/W-017.png" {
		t.Fatalf("unexpected url %s", url)
	}
	data, err := os.ReadFile(filepath.Join(dir, "2024-12", "W-017.png"))
	if err != nil || string(data) != "png-bytes" {
		t.Fatalf("stored content mismatch: %q err=%v", data, err)
	}
}

func TestLocalStoreRejectsEmptyKey(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := PutBytes(context.Background(), s, "", []byte("x"), "image/png"); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestS3StoreNotConfigured(t *testing.T) {
	if _, err := NewS3Store(S3Config{}); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured got %v", err)
	}
}
