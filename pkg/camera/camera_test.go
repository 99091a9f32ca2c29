package camera

import (
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func snapshotHandler(w, h int) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "image/png")
		_ = png.Encode(rw, image.NewNRGBA(image.Rect(0, 0, w, h)))
	}
}

func TestGrabPrimary(t *testing.T) {
	srv := httptest.NewServer(snapshotHandler(640, 480))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "", zerolog.Nop())
	img, err := src.Grab(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Bounds().Dx() != 640 || img.Bounds().Dy() != 480 {
		t.Fatalf("unexpected frame size %v", img.Bounds())
	}
}

func TestGrabFallsBack(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()
	good := httptest.NewServer(snapshotHandler(320, 240))
	defer good.Close()

	src := NewHTTPSource(bad.URL, good.URL, zerolog.Nop())
	img, err := src.Grab(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Bounds().Dx() != 320 {
		t.Fatalf("expected fallback frame, got %v", img.Bounds())
	}
}

func TestGrabNoCamera(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	src := NewHTTPSource(bad.URL, "", zerolog.Nop())
	if _, err := src.Grab(context.Background()); !errors.Is(err, ErrNoCamera) {
		t.Fatalf("expected ErrNoCamera got %v", err)
	}
}

func TestStaticSource(t *testing.T) {
	src := &StaticSource{}
	if _, err := src.Grab(context.Background()); !errors.Is(err, ErrNoCamera) {
		t.Fatalf("expected ErrNoCamera got %v", err)
	}
	src.Frame = image.NewNRGBA(image.Rect(0, 0, 10, 10))
	if _, err := src.Grab(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
