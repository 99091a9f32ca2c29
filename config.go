package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/panudet-24mb/market-management/pkg/roi"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN         string
	AutoMigrate bool
}

type AuthConfig struct {
	JWTSecret string
}

type CameraConfig struct {
	SnapshotURL string
	FallbackURL string
}

type RecognizeConfig struct {
	// Width is the meter register width in digits.
	Width int
	// RemoteURL switches recognition to an external service when set.
	RemoteURL string
}

type CaptureConfig struct {
	Region roi.Rect
	// AuditRequired aborts a snap when the audit photo cannot be stored.
	AuditRequired bool
}

type ImportConfig struct {
	// Dir is the drop directory for field photos; empty disables the importer.
	Dir     string
	Workers int
}

type StorageConfig struct {
	UploadBase   string
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3Bucket     string
	S3Region     string
	S3PublicBase string
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Camera      CameraConfig
	Recognize   RecognizeConfig
	Capture     CaptureConfig
	Import      ImportConfig
	Storage     StorageConfig
}

func loadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:         v.GetString("DB_DSN"),
			AutoMigrate: true,
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
		},
		Camera: CameraConfig{
			SnapshotURL: v.GetString("CAMERA_SNAPSHOT_URL"),
			FallbackURL: v.GetString("CAMERA_FALLBACK_URL"),
		},
		Recognize: RecognizeConfig{
			Width:     v.GetInt("REGISTER_WIDTH"),
			RemoteURL: v.GetString("RECOGNIZER_URL"),
		},
		Capture: CaptureConfig{
			Region:        roi.Default,
			AuditRequired: true,
		},
		Import: ImportConfig{
			Dir:     v.GetString("IMPORT_DIR"),
			Workers: v.GetInt("IMPORT_WORKERS"),
		},
		Storage: StorageConfig{
			UploadBase:   v.GetString("UPLOAD_BASE"),
			S3Endpoint:   v.GetString("S3_ENDPOINT"),
			S3AccessKey:  v.GetString("S3_ACCESS_KEY_ID"),
			S3SecretKey:  v.GetString("S3_SECRET_ACCESS_KEY"),
			S3Bucket:     v.GetString("S3_BUCKET"),
			S3Region:     v.GetString("S3_REGION"),
			S3PublicBase: v.GetString("S3_PUBLIC_BASE_URL"),
		},
	}

	if v.IsSet("DB_AUTO_MIGRATE") {
		cfg.DB.AutoMigrate = v.GetBool("DB_AUTO_MIGRATE")
	}
	if v.IsSet("AUDIT_REQUIRED") {
		cfg.Capture.AuditRequired = v.GetBool("AUDIT_REQUIRED")
	}
	if v.IsSet("ROI_TOP") || v.IsSet("ROI_LEFT") || v.IsSet("ROI_WIDTH") || v.IsSet("ROI_HEIGHT") {
		cfg.Capture.Region = roi.Rect{
			Top:    v.GetFloat64("ROI_TOP"),
			Left:   v.GetFloat64("ROI_LEFT"),
			Width:  v.GetFloat64("ROI_WIDTH"),
			Height: v.GetFloat64("ROI_HEIGHT"),
		}
	}

	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8081
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Recognize.Width == 0 {
		cfg.Recognize.Width = 6
	}
	if cfg.Storage.UploadBase == "" {
		cfg.Storage.UploadBase = "uploads"
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if err := cfg.Capture.Region.Validate(); err != nil {
		return err
	}
	return nil
}
