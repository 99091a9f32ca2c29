package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/panudet-24mb/market-management/pkg/recognize"
)

func TestParseName(t *testing.T) {
	cases := []struct {
		in    string
		tag   string
		month string
		ok    bool
	}{
		{"W-017_2024-12.png", "W-017", "2024-12", true},
		{"zone_a_m3_2025-01.jpg", "zone_a_m3", "2025-01", true},
		{"W-017.png", "", "", false},
		{"W-017_2024-13.png", "", "", false},
		{"_2024-12.png", "", "", false},
	}
	for _, c := range cases {
		tag, month, err := ParseName(c.in)
		if c.ok && (err != nil || tag != c.tag || month != c.month) {
			t.Fatalf("ParseName(%q) = %q %q %v", c.in, tag, month, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("ParseName(%q) expected error", c.in)
		}
	}
}

func TestScanImportsAndMovesPhotos(t *testing.T) {
	dir := t.TempDir()
	frame := image.NewNRGBA(image.Rect(0, 0, 60, 20))
	if err := imaging.Save(frame, filepath.Join(dir, "W-017_2024-12.png")); err != nil {
		t.Fatalf("save fixture: %v", err)
	}
	// unparseable files stay put
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	eng := recognize.EngineFunc(func(ctx context.Context, img image.Image, report func(int)) (string, error) {
		return "4217", nil
	})
	pipe := recognize.NewPipeline(eng, 6, zerolog.Nop())

	var mu sync.Mutex
	var got []Record
	sink := SinkFunc(func(ctx context.Context, rec Record) error {
		mu.Lock()
		got = append(got, rec)
		mu.Unlock()
		return nil
	})

	im := New(dir, pipe, sink, 2, zerolog.Nop())
	im.Scan(context.Background())

	if len(got) != 1 {
		t.Fatalf("expected 1 record got %d", len(got))
	}
	rec := got[0]
	if rec.AssetTag != "W-017" || rec.Month != "2024-12" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Reading.String() != "004217" {
		t.Fatalf("expected 004217 got %s", rec.Reading.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "processed", "W-017_2024-12.png")); err != nil {
		t.Fatalf("photo not moved to processed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "W-017_2024-12.png")); !os.IsNotExist(err) {
		t.Fatal("original photo still present")
	}
}

func TestScanLeavesPhotoOnSinkError(t *testing.T) {
	dir := t.TempDir()
	frame := image.NewNRGBA(image.Rect(0, 0, 60, 20))
	if err := imaging.Save(frame, filepath.Join(dir, "W-017_2024-12.png")); err != nil {
		t.Fatalf("save fixture: %v", err)
	}

	eng := recognize.EngineFunc(func(ctx context.Context, img image.Image, report func(int)) (string, error) {
		return "4217", nil
	})
	pipe := recognize.NewPipeline(eng, 6, zerolog.Nop())
	sink := SinkFunc(func(ctx context.Context, rec Record) error {
		return os.ErrPermission
	})

	im := New(dir, pipe, sink, 1, zerolog.Nop())
	im.Scan(context.Background())

	if _, err := os.Stat(filepath.Join(dir, "W-017_2024-12.png")); err != nil {
		t.Fatalf("photo should stay in place on sink error: %v", err)
	}
}

func TestWatchShutsDownWithFullQueue(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 60, 20))); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	eng := recognize.EngineFunc(func(ctx context.Context, img image.Image, report func(int)) (string, error) {
		return "4217", nil
	})
	pipe := recognize.NewPipeline(eng, 6, zerolog.Nop())
	// the single worker stalls on its first record so the queue backs up
	sink := SinkFunc(func(ctx context.Context, rec Record) error {
		<-ctx.Done()
		return ctx.Err()
	})

	im := New(dir, pipe, sink, 1, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- im.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond) // watcher registration
	for i := 0; i < 300; i++ {
		name := fmt.Sprintf("W-%03d_2024-12.png", i)
		if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	// long enough for the debounce to flush more names than the queue holds
	time.Sleep(1200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("watch returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not shut down after cancel")
	}
}
