// Package importer ingests meter photos dropped by field collectors. Files
// are named "<asset_tag>_<YYYY-MM>.<ext>"; each one is recognized and handed
// to a sink that records the pending reading, then moved to processed/ so a
// photo is ingested only once.
package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/panudet-24mb/market-management/models"
	"github.com/panudet-24mb/market-management/pkg/recognize"
)

// Record is one recognized field photo.
type Record struct {
	AssetTag string
	Month    string
	Path     string
	Reading  recognize.Reading
	Raw      string
}

// Sink receives recognized photos. Implementations must be safe for
// concurrent use; the importer runs a worker pool.
type Sink interface {
	Apply(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Apply(ctx context.Context, rec Record) error { return f(ctx, rec) }

type Importer struct {
	dir     string
	pipe    *recognize.Pipeline
	sink    Sink
	workers int
	log     zerolog.Logger
}

func New(dir string, pipe *recognize.Pipeline, sink Sink, workers int, log zerolog.Logger) *Importer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Importer{dir: dir, pipe: pipe, sink: sink, workers: workers, log: log}
}

// ParseName splits "<asset_tag>_<YYYY-MM>.<ext>" into its parts. The asset
// tag may itself contain underscores; the month is always the last segment.
func ParseName(name string) (assetTag, month string, err error) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	i := strings.LastIndex(base, "_")
	if i <= 0 {
		return "", "", fmt.Errorf("bad photo name %q", name)
	}
	assetTag, month = base[:i], base[i+1:]
	if !models.ValidMonth(month) {
		return "", "", fmt.Errorf("bad month in photo name %q", name)
	}
	return assetTag, month, nil
}

func isSupportedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

func (im *Importer) listPhotos() []string {
	entries, err := os.ReadDir(im.dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

// Scan processes the photos already in the drop directory.
func (im *Importer) Scan(ctx context.Context) {
	files := im.listPhotos()
	im.log.Info().Int("files", len(files)).Int("workers", im.workers).Str("dir", im.dir).Msg("scanning drop directory")
	fileCh := make(chan string, len(files)+1)
	for _, f := range files {
		fileCh <- f
	}
	close(fileCh)
	im.runWorkers(ctx, fileCh)
}

// Watch scans once, then follows the directory for new photos until ctx is
// cancelled. Create events are debounced so half-written files are not read.
func (im *Importer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(im.dir); err != nil {
		return err
	}

	im.Scan(ctx)
	im.log.Info().Str("dir", im.dir).Msg("watching drop directory")

	fileCh := make(chan string, 256)
	go func() {
		defer close(fileCh)
		pending := map[string]time.Time{}
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&fsnotify.Create == fsnotify.Create {
					name := filepath.Base(ev.Name)
					if isSupportedExt(name) {
						pending[name] = time.Now()
					}
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > 300*time.Millisecond { // stable
						// never block on a full queue, shutdown must stay
						// responsive; a skipped file stays pending for the
						// next tick
						select {
						case fileCh <- name:
							delete(pending, name)
						default:
						}
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				im.log.Warn().Err(err).Msg("watch error")
			}
		}
	}()

	im.runWorkers(ctx, fileCh)
	return ctx.Err()
}

func (im *Importer) runWorkers(ctx context.Context, fileCh <-chan string) {
	var wg sync.WaitGroup
	for i := 0; i < im.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				if ctx.Err() != nil {
					return
				}
				im.process(ctx, name)
			}
		}()
	}
	wg.Wait()
}

func (im *Importer) process(ctx context.Context, name string) {
	assetTag, month, err := ParseName(name)
	if err != nil {
		im.log.Warn().Err(err).Str("file", name).Msg("skipping photo")
		return
	}
	path := filepath.Join(im.dir, name)
	img, err := imaging.Open(path)
	if err != nil {
		im.log.Warn().Err(err).Str("file", name).Msg("cannot decode photo")
		return
	}

	job := im.pipe.Recognize(ctx, img)
	res, err := job.Wait(ctx)
	if err != nil {
		im.log.Warn().Err(err).Str("file", name).Msg("recognition failed, photo left in place")
		return
	}

	rec := Record{
		AssetTag: assetTag,
		Month:    month,
		Path:     path,
		Reading:  res.Reading,
		Raw:      res.Raw,
	}
	if err := im.sink.Apply(ctx, rec); err != nil {
		im.log.Error().Err(err).Str("file", name).Msg("sink rejected photo")
		return
	}
	if err := im.moveProcessed(name); err != nil {
		im.log.Warn().Err(err).Str("file", name).Msg("failed to move processed photo")
	}
	im.log.Info().Str("asset_tag", assetTag).Str("month", month).Str("reading", res.Reading.String()).Msg("photo imported")
}

func (im *Importer) moveProcessed(name string) error {
	processedDir := filepath.Join(im.dir, "processed")
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return err
	}
	return os.Rename(filepath.Join(im.dir, name), filepath.Join(processedDir, name))
}
