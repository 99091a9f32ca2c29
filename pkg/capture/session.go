// Package capture drives one kiosk reading session: grab a frame, store the
// audit photo, run recognition, and let the operator correct digits before
// the value is submitted.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/panudet-24mb/market-management/pkg/camera"
	"github.com/panudet-24mb/market-management/pkg/recognize"
	"github.com/panudet-24mb/market-management/pkg/roi"
	"github.com/panudet-24mb/market-management/pkg/storage"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("capture session closed")
	// ErrAuditUpload signals the audit photo could not be stored while audits
	// are mandatory; the snap is aborted so no reading exists without proof.
	ErrAuditUpload = errors.New("audit photo upload failed")
	// ErrStale is returned when a result arrives for a superseded snap.
	ErrStale = errors.New("stale capture result")
)

// Config controls one session.
type Config struct {
	Region roi.Rect
	// Width is the register width readings are normalized to.
	Width int
	// AuditRequired aborts the snap when the audit photo cannot be stored.
	// When false the failure is logged and recognition proceeds.
	AuditRequired bool
}

// Session serializes snaps for a single kiosk. A new snap invalidates the
// previous one: its token changes, so late recognition results are dropped
// instead of overwriting a newer reading.
type Session struct {
	cam   camera.Source
	pipe  *recognize.Pipeline
	store storage.Store
	cfg   Config
	log   zerolog.Logger

	mu      sync.Mutex
	token   string
	reading recognize.Reading
	hasRead bool
	imgPath string
	closed  bool
}

// Snap is the outcome of one capture attempt.
type Snap struct {
	Token string
	// Preview is the cropped register as a PNG data URI for the operator.
	Preview string
	// Reading is the normalized recognized register.
	Reading recognize.Reading
	// Raw is the unmodified recognizer output.
	Raw string
	// ImgPath is where the audit photo landed, empty when storage failed in
	// optional mode.
	ImgPath string
}

func NewSession(cam camera.Source, pipe *recognize.Pipeline, store storage.Store, cfg Config, log zerolog.Logger) (*Session, error) {
	if err := cfg.Region.Validate(); err != nil {
		return nil, err
	}
	if cfg.Width <= 0 {
		cfg.Width = recognize.DefaultWidth
	}
	return &Session{cam: cam, pipe: pipe, store: store, cfg: cfg, log: log}, nil
}

// Take grabs a frame, stores the audit photo, and runs recognition. key names
// the stored photo, normally "<month>/<asset_tag>.png". Any previous reading
// is discarded up front so a failed snap never leaves stale digits behind.
func (s *Session) Take(ctx context.Context, key string) (*Snap, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	token := uuid.NewString()
	s.token = token
	s.hasRead = false
	s.imgPath = ""
	s.mu.Unlock()

	frame, err := s.cam.Grab(ctx)
	if err != nil {
		return nil, err
	}
	crop, err := s.cfg.Region.Extract(frame)
	if err != nil {
		return nil, err
	}
	preview, err := roi.DataURI(crop)
	if err != nil {
		return nil, err
	}

	// The audit photo is the uncropped frame so the meter can be verified in
	// context later. It is stored before recognition so a crash mid-pipeline
	// still leaves evidence behind.
	imgPath, err := s.storeAudit(ctx, key, frame)
	if err != nil {
		return nil, err
	}

	job := s.pipe.Recognize(ctx, crop)
	res, err := job.Wait(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != token || s.closed {
		return nil, ErrStale
	}
	s.reading = res.Reading
	s.hasRead = true
	s.imgPath = imgPath
	return &Snap{
		Token:   token,
		Preview: preview,
		Reading: res.Reading,
		Raw:     res.Raw,
		ImgPath: imgPath,
	}, nil
}

func (s *Session) storeAudit(ctx context.Context, key string, frame image.Image) (string, error) {
	if s.store == nil || key == "" {
		if s.cfg.AuditRequired {
			return "", fmt.Errorf("%w: no store configured", ErrAuditUpload)
		}
		return "", nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return "", fmt.Errorf("encode audit photo: %w", err)
	}
	path, err := storage.PutBytes(ctx, s.store, key, buf.Bytes(), "image/png")
	if err != nil {
		if s.cfg.AuditRequired {
			return "", fmt.Errorf("%w: %v", ErrAuditUpload, err)
		}
		s.log.Warn().Err(err).Str("key", key).Msg("audit photo upload failed, continuing without")
		return "", nil
	}
	return path, nil
}

// SetDigit applies an operator correction to the current reading. Non-digit
// input is ignored; a superseded token fails with ErrStale.
func (s *Session) SetDigit(token string, index int, ch string) (recognize.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return recognize.Reading{}, ErrClosed
	}
	if token != s.token || !s.hasRead {
		return recognize.Reading{}, ErrStale
	}
	s.reading.SetDigit(index, ch)
	return s.reading, nil
}

// Reading returns the current corrected register.
func (s *Session) Reading(token string) (recognize.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return recognize.Reading{}, ErrClosed
	}
	if token != s.token || !s.hasRead {
		return recognize.Reading{}, ErrStale
	}
	return s.reading, nil
}

// ImgPath returns where the current snap's audit photo was stored.
func (s *Session) ImgPath(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.token {
		return "", ErrStale
	}
	return s.imgPath, nil
}

// Close releases the camera. Further calls fail with ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.cam.Close()
}
