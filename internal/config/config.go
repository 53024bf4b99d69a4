package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server" envPrefix:"FG_SERVER_"`
	Database     DatabaseConfig     `yaml:"database" envPrefix:"FG_DB_"`
	NATS         NATSConfig         `yaml:"nats" envPrefix:"FG_NATS_"`
	MinIO        MinIOConfig        `yaml:"minio" envPrefix:"FG_MINIO_"`
	Vision       VisionConfig       `yaml:"vision" envPrefix:"FG_VISION_"`
	Camera       CameraConfig       `yaml:"camera" envPrefix:"FG_CAMERA_"`
	Verification VerificationConfig `yaml:"verification" envPrefix:"FG_VERIFY_"`
	Scan         ScanConfig         `yaml:"scan" envPrefix:"FG_SCAN_"`
	Export       ExportConfig       `yaml:"export" envPrefix:"FG_EXPORT_"`
	Token        TokenConfig        `yaml:"token" envPrefix:"FG_TOKEN_"`
	Logging      LoggingConfig      `yaml:"logging" envPrefix:"FG_LOG_"`
}

type ServerConfig struct {
	Port   int    `yaml:"port" env:"PORT"`
	APIKey string `yaml:"api_key" env:"API_KEY"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Name     string `yaml:"name" env:"NAME"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	MaxConns int    `yaml:"max_conns" env:"MAX_CONNS"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url" env:"URL"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"BUCKET"`
	UseSSL    bool   `yaml:"use_ssl" env:"USE_SSL"`
	// PublicURL is the externally reachable base for objects, e.g.
	// https://cdn.example.com. Defaults to the endpoint.
	PublicURL string `yaml:"public_url" env:"PUBLIC_URL"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir" env:"MODELS_DIR"`
	DetectionThreshold float64 `yaml:"detection_threshold" env:"DETECTION_THRESHOLD"`
}

type CameraConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path" env:"FFMPEG_PATH"`
	FrontDevice string `yaml:"front_device" env:"FRONT_DEVICE"`
	BackDevice  string `yaml:"back_device" env:"BACK_DEVICE"`
	InputFormat string `yaml:"input_format" env:"INPUT_FORMAT"`
	Width       int    `yaml:"width" env:"WIDTH"`
	FPS         int    `yaml:"fps" env:"FPS"`
}

type VerificationConfig struct {
	FallbackDelay     time.Duration `yaml:"fallback_delay" env:"FALLBACK_DELAY"`
	ReadyTimeout      time.Duration `yaml:"ready_timeout" env:"READY_TIMEOUT"`
	ReferenceAttempts int           `yaml:"reference_attempts" env:"REFERENCE_ATTEMPTS"`
	ReferenceTimeout  time.Duration `yaml:"reference_timeout" env:"REFERENCE_TIMEOUT"`
}

type ScanConfig struct {
	Duration time.Duration `yaml:"duration" env:"DURATION"`
}

type ExportConfig struct {
	OwnerPassword     string        `yaml:"owner_password" env:"OWNER_PASSWORD"`
	UserPassword      string        `yaml:"user_password" env:"USER_PASSWORD"`
	LogoPath          string        `yaml:"logo_path" env:"LOGO_PATH"`
	Title             string        `yaml:"title" env:"TITLE"`
	ThumbnailAttempts int           `yaml:"thumbnail_attempts" env:"THUMBNAIL_ATTEMPTS"`
	ThumbnailTimeout  time.Duration `yaml:"thumbnail_timeout" env:"THUMBNAIL_TIMEOUT"`
	Workers           int           `yaml:"workers" env:"WORKERS"`
}

type TokenConfig struct {
	Secret string        `yaml:"secret" env:"SECRET"`
	TTL    time.Duration `yaml:"ttl" env:"TTL"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "facegate"
	}
	if cfg.MinIO.PublicURL == "" {
		scheme := "http"
		if cfg.MinIO.UseSSL {
			scheme = "https"
		}
		cfg.MinIO.PublicURL = scheme + "://" + cfg.MinIO.Endpoint
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Camera.FFmpegPath == "" {
		cfg.Camera.FFmpegPath = "ffmpeg"
	}
	if cfg.Camera.FrontDevice == "" {
		cfg.Camera.FrontDevice = "/dev/video0"
	}
	if cfg.Camera.BackDevice == "" {
		cfg.Camera.BackDevice = "/dev/video2"
	}
	if cfg.Camera.InputFormat == "" {
		cfg.Camera.InputFormat = "v4l2"
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 10
	}
	if cfg.Verification.FallbackDelay == 0 {
		cfg.Verification.FallbackDelay = 2 * time.Second
	}
	if cfg.Verification.ReadyTimeout == 0 {
		cfg.Verification.ReadyTimeout = 10 * time.Second
	}
	if cfg.Verification.ReferenceAttempts == 0 {
		cfg.Verification.ReferenceAttempts = 3
	}
	if cfg.Verification.ReferenceTimeout == 0 {
		cfg.Verification.ReferenceTimeout = 10 * time.Second
	}
	if cfg.Scan.Duration == 0 {
		cfg.Scan.Duration = 2 * time.Second
	}
	if cfg.Export.Title == "" {
		cfg.Export.Title = "Admin Login Audit Report"
	}
	if cfg.Export.ThumbnailAttempts == 0 {
		cfg.Export.ThumbnailAttempts = 3
	}
	if cfg.Export.ThumbnailTimeout == 0 {
		cfg.Export.ThumbnailTimeout = 8 * time.Second
	}
	if cfg.Export.Workers == 0 {
		cfg.Export.Workers = 2
	}
	if cfg.Token.TTL == 0 {
		cfg.Token.TTL = 8 * time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate rejects configurations that would run with missing secrets.
func (c *Config) Validate() error {
	var errs []error
	if c.Token.Secret == "" {
		errs = append(errs, errors.New("token.secret is required"))
	}
	if c.Export.OwnerPassword == "" {
		errs = append(errs, errors.New("export.owner_password is required"))
	}
	if c.Export.UserPassword == "" {
		errs = append(errs, errors.New("export.user_password is required"))
	}
	if c.MinIO.Endpoint == "" {
		errs = append(errs, errors.New("minio.endpoint is required"))
	}
	if c.Export.ThumbnailAttempts < 1 {
		errs = append(errs, fmt.Errorf("export.thumbnail_attempts must be positive, got %d", c.Export.ThumbnailAttempts))
	}
	return errors.Join(errs...)
}
