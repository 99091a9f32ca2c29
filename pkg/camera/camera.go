// Package camera grabs frames from IP camera snapshot endpoints. Field kiosks
// carry a rear (environment facing) camera pointed at the meter plus an
// optional front camera used when the rig is mounted backwards.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

// ErrNoCamera is returned when no configured snapshot endpoint produced a
// decodable frame.
var ErrNoCamera = errors.New("no camera available")

// IdealWidth and IdealHeight are the frame size requested from the cameras.
// Sources may deliver other sizes; region extraction works in fractions so
// the actual size does not matter downstream.
const (
	IdealWidth  = 1280
	IdealHeight = 720
)

// Source produces frames. Close releases the underlying stream.
type Source interface {
	Grab(ctx context.Context) (image.Image, error)
	Close() error
}

// HTTPSource grabs JPEG/PNG snapshots over HTTP. It tries the primary URL
// first and falls back to the secondary one, matching the rear-then-front
// camera preference of the kiosks.
type HTTPSource struct {
	primary  string
	fallback string
	client   *http.Client
	log      zerolog.Logger
}

func NewHTTPSource(primary, fallback string, log zerolog.Logger) *HTTPSource {
	return &HTTPSource{
		primary:  primary,
		fallback: fallback,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// Grab fetches one frame. Both endpoints failing yields ErrNoCamera with the
// last transport error attached.
func (s *HTTPSource) Grab(ctx context.Context) (image.Image, error) {
	var lastErr error
	for _, url := range []string{s.primary, s.fallback} {
		if url == "" {
			continue
		}
		img, err := s.snapshot(ctx, url)
		if err == nil {
			return img, nil
		}
		s.log.Warn().Err(err).Str("url", url).Msg("snapshot failed")
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCamera, lastErr)
	}
	return nil, ErrNoCamera
}

func (s *HTTPSource) snapshot(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot status %d", resp.StatusCode)
	}
	img, err := imaging.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return img, nil
}

func (s *HTTPSource) Close() error { return nil }

// StaticSource always returns the same frame. Used by tests and by the
// importer when re-running recognition over archived photos.
type StaticSource struct {
	Frame image.Image
}

func (s *StaticSource) Grab(ctx context.Context) (image.Image, error) {
	if s.Frame == nil {
		return nil, ErrNoCamera
	}
	return s.Frame, nil
}

func (s *StaticSource) Close() error { return nil }
