package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/panudet-24mb/market-management/pkg/camera"
	"github.com/panudet-24mb/market-management/pkg/recognize"
	"github.com/panudet-24mb/market-management/pkg/roi"
)

type fakeStore struct {
	keys   []string
	bodies [][]byte
	fail   bool
}

func (f *fakeStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if f.fail {
		return "", errors.New("bucket down")
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.keys = append(f.keys, key)
	f.bodies = append(f.bodies, b)
	return "/uploads/" + key, nil
}

func digitEngine(out string) recognize.EngineFunc {
	return func(ctx context.Context, img image.Image, report func(int)) (string, error) {
		return out, nil
	}
}

func newTestSession(t *testing.T, eng recognize.Engine, store *fakeStore, auditRequired bool) *Session {
	t.Helper()
	cam := &camera.StaticSource{Frame: image.NewNRGBA(image.Rect(0, 0, 640, 480))}
	pipe := recognize.NewPipeline(eng, 6, zerolog.Nop())
	s, err := NewSession(cam, pipe, store, Config{
		Region:        roi.Default,
		Width:         6,
		AuditRequired: auditRequired,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestTakeRecognizesAndStoresAudit(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(t, digitEngine("004217"), store, true)
	defer s.Close()

	snap, err := s.Take(context.Background(), "2024-12/W-017.png")
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if snap.Reading.String() != "004217" {
		t.Fatalf("expected 004217 got %s", snap.Reading.String())
	}
	if snap.ImgPath != "/uploads/2024-12/W-017.png" {
		t.Fatalf("unexpected img path %s", snap.ImgPath)
	}
	if !strings.HasPrefix(snap.Preview, "data:image/png;base64,") {
		t.Fatalf("preview is not a png data uri: %.40s", snap.Preview)
	}
	if len(store.keys) != 1 {
		t.Fatalf("expected one stored photo got %d", len(store.keys))
	}
}

func TestAuditPhotoIsFullFrame(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(t, digitEngine("004217"), store, true)
	defer s.Close()

	if _, err := s.Take(context.Background(), "2024-12/W-017.png"); err != nil {
		t.Fatalf("take: %v", err)
	}
	if len(store.bodies) != 1 {
		t.Fatalf("expected one stored photo got %d", len(store.bodies))
	}
	img, err := png.Decode(bytes.NewReader(store.bodies[0]))
	if err != nil {
		t.Fatalf("decode audit photo: %v", err)
	}
	// The audit photo is the whole frame, not the register crop.
	if got := img.Bounds(); got.Dx() != 640 || got.Dy() != 480 {
		t.Fatalf("audit photo is %dx%d, want 640x480", got.Dx(), got.Dy())
	}
}

func TestTakeAbortsWhenAuditRequiredAndStoreFails(t *testing.T) {
	store := &fakeStore{fail: true}
	s := newTestSession(t, digitEngine("004217"), store, true)
	defer s.Close()

	if _, err := s.Take(context.Background(), "2024-12/W-017.png"); !errors.Is(err, ErrAuditUpload) {
		t.Fatalf("expected ErrAuditUpload got %v", err)
	}
}

func TestTakeContinuesWhenAuditOptional(t *testing.T) {
	store := &fakeStore{fail: true}
	s := newTestSession(t, digitEngine("004217"), store, false)
	defer s.Close()

	snap, err := s.Take(context.Background(), "2024-12/W-017.png")
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if snap.ImgPath != "" {
		t.Fatalf("expected empty img path got %s", snap.ImgPath)
	}
	if snap.Reading.String() != "004217" {
		t.Fatalf("expected reading despite upload failure, got %s", snap.Reading.String())
	}
}

func TestSetDigitCorrection(t *testing.T) {
	s := newTestSession(t, digitEngine("004217"), &fakeStore{}, false)
	defer s.Close()

	snap, err := s.Take(context.Background(), "k.png")
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	r, err := s.SetDigit(snap.Token, 2, "9")
	if err != nil {
		t.Fatalf("set digit: %v", err)
	}
	if r.String() != "009217" {
		t.Fatalf("expected 009217 got %s", r.String())
	}
	// invalid input leaves the register untouched
	r, err = s.SetDigit(snap.Token, 2, "x")
	if err != nil || r.String() != "009217" {
		t.Fatalf("expected 009217 got %s err=%v", r.String(), err)
	}
}

func TestStaleTokenRejected(t *testing.T) {
	s := newTestSession(t, digitEngine("004217"), &fakeStore{}, false)
	defer s.Close()

	first, err := s.Take(context.Background(), "a.png")
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if _, err := s.Take(context.Background(), "b.png"); err != nil {
		t.Fatalf("second take: %v", err)
	}
	if _, err := s.SetDigit(first.Token, 0, "1"); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale got %v", err)
	}
	if _, err := s.Reading(first.Token); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale got %v", err)
	}
}

func TestFailedSnapClearsPreviousReading(t *testing.T) {
	calls := 0
	eng := recognize.EngineFunc(func(ctx context.Context, img image.Image, report func(int)) (string, error) {
		calls++
		if calls > 1 {
			return "---", nil
		}
		return "004217", nil
	})
	s := newTestSession(t, eng, &fakeStore{}, false)
	defer s.Close()

	first, err := s.Take(context.Background(), "a.png")
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if _, err := s.Take(context.Background(), "b.png"); !errors.Is(err, recognize.ErrNoDigits) {
		t.Fatalf("expected ErrNoDigits got %v", err)
	}
	// the old reading must not survive the failed snap
	if _, err := s.Reading(first.Token); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale got %v", err)
	}
}

func TestClose(t *testing.T) {
	s := newTestSession(t, digitEngine("004217"), &fakeStore{}, false)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Take(context.Background(), "a.png"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
