package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/panudet-24mb/market-management/pkg/camera"
	"github.com/panudet-24mb/market-management/pkg/capture"
	"github.com/panudet-24mb/market-management/pkg/importer"
	"github.com/panudet-24mb/market-management/pkg/recognize"
	"github.com/panudet-24mb/market-management/pkg/storage"
)

func newLogger(environment string) zerolog.Logger {
	if environment == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func main() {
	var err error
	cfg, err = loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger = newLogger(cfg.Environment)
	jwtSecret = []byte(cfg.Auth.JWTSecret)

	if err := initDB(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}

	// Support a lightweight migrate command: `./meterd migrate` runs
	// AutoMigrate and seeding then exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		logger.Info().Msg("migration and seeding completed")
		return
	}

	store = buildStore()
	pipe = recognize.NewPipeline(buildEngine(), cfg.Recognize.Width, logger)
	session = buildSession()
	if session != nil {
		defer session.Close()
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Import.Dir != "" {
		sink := importer.SinkFunc(func(ctx context.Context, rec importer.Record) error {
			value, err := rec.Reading.Value()
			if err != nil {
				return err
			}
			_, err = submitByAssetTag(rec.AssetTag, rec.Month, value, rec.Path)
			return err
		})
		im := importer.New(cfg.Import.Dir, pipe, sink, cfg.Import.Workers, logger)
		go func() {
			if err := im.Watch(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("photo importer stopped")
			}
		}()
	}

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	setupRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	logger.Info().Str("addr", addr).Msg("starting meter service")

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("failed to start server")
			os.Exit(1)
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("server exited")
}

func buildStore() storage.Store {
	s3, err := storage.NewS3Store(storage.S3Config{
		Endpoint:      cfg.Storage.S3Endpoint,
		AccessKey:     cfg.Storage.S3AccessKey,
		SecretKey:     cfg.Storage.S3SecretKey,
		Bucket:        cfg.Storage.S3Bucket,
		Region:        cfg.Storage.S3Region,
		PublicBaseURL: cfg.Storage.S3PublicBase,
	})
	if err == nil {
		logger.Info().Str("bucket", cfg.Storage.S3Bucket).Msg("audit photos go to object storage")
		return s3
	}
	if !errors.Is(err, storage.ErrNotConfigured) {
		logger.Fatal().Err(err).Msg("failed to initialize object storage")
	}
	local, err := storage.NewLocalStore(cfg.Storage.UploadBase)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize upload directory")
	}
	logger.Info().Str("dir", cfg.Storage.UploadBase).Msg("audit photos go to local uploads")
	return local
}

func buildEngine() recognize.Engine {
	if cfg.Recognize.RemoteURL != "" {
		logger.Info().Str("url", cfg.Recognize.RemoteURL).Msg("using remote recognizer")
		return recognize.NewRemoteEngine(cfg.Recognize.RemoteURL)
	}
	return recognize.NewTesseractEngine()
}

func buildSession() *capture.Session {
	if cfg.Camera.SnapshotURL == "" {
		logger.Warn().Msg("no camera configured, capture endpoints disabled")
		return nil
	}
	cam := camera.NewHTTPSource(cfg.Camera.SnapshotURL, cfg.Camera.FallbackURL, logger)
	s, err := capture.NewSession(cam, pipe, store, capture.Config{
		Region:        cfg.Capture.Region,
		Width:         cfg.Recognize.Width,
		AuditRequired: cfg.Capture.AuditRequired,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start capture session")
	}
	return s
}
