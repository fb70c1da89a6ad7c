package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Detector DetectorConfig `yaml:"detector"`
	Encoder  EncoderConfig  `yaml:"encoder"`
	Matcher  MatcherConfig  `yaml:"matcher"`
	Access   AccessConfig   `yaml:"access"`
	Camera   CameraConfig   `yaml:"camera"`
	Registry RegistryConfig `yaml:"registry"`
	Database DatabaseConfig `yaml:"database"`
	MariaDB  MariaDBConfig  `yaml:"mariadb"`
	Web      WebConfig      `yaml:"web"`
	Log      LogConfig      `yaml:"log"`
}

type DetectorConfig struct {
	CascadePath  string  `yaml:"cascade_path"` // OpenCV Haar cascade XML
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinFaceSize  int     `yaml:"min_face_size"`
	MaxFaceSize  int     `yaml:"max_face_size"` // 0 = unbounded
}

type EncoderConfig struct {
	Width         int    `yaml:"width"`
	Height        int    `yaml:"height"`
	Interpolation string `yaml:"interpolation"` // bilinear, bicubic or nearest
}

type MatcherConfig struct {
	Tolerance          float64 `yaml:"tolerance"`        // enrollment-side checks
	StreamTolerance    float64 `yaml:"stream_tolerance"` // live access loop
	Strategy           string  `yaml:"strategy"`         // nearest or first
	Index              string  `yaml:"index"`            // linear or hnsw
	HNSWCandidates     int     `yaml:"hnsw_candidates"`
	SnapshotTTLSeconds int     `yaml:"snapshot_ttl_seconds"`
}

// SnapshotTTL returns how long a matching snapshot may be reused.
func (c MatcherConfig) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSeconds) * time.Second
}

type AccessConfig struct {
	TickIntervalMs     int     `yaml:"tick_interval_ms"`
	CooldownSeconds    float64 `yaml:"cooldown_seconds"`
	IdleSeconds        float64 `yaml:"idle_seconds"`
	DebitAmount        float64 `yaml:"debit_amount"`
	InsufficientPolicy string  `yaml:"insufficient_policy"` // deny or debit
	PreviewQuality     int     `yaml:"preview_quality"`
}

// TickInterval returns the frame period.
func (c AccessConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// Cooldown returns the minimum time between two debits.
func (c AccessConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds * float64(time.Second))
}

// Idle returns how long without faces before the waiting message returns.
func (c AccessConfig) Idle() time.Duration {
	return time.Duration(c.IdleSeconds * float64(time.Second))
}

type CameraConfig struct {
	Driver        string `yaml:"driver"` // opencv, v4l2 or still
	Index         int    `yaml:"index"`
	Device        string `yaml:"device"`
	Width         int    `yaml:"width"`
	Height        int    `yaml:"height"`
	FallbackImage string `yaml:"fallback_image"`
	WarmupMs      int    `yaml:"warmup_ms"`
}

// Warmup returns the delay before a one-shot capture reads its frame.
func (c CameraConfig) Warmup() time.Duration {
	return time.Duration(c.WarmupMs) * time.Millisecond
}

type RegistryConfig struct {
	Backend   string `yaml:"backend"` // json, postgres or mariadb
	Path      string `yaml:"path"`
	ImagesDir string `yaml:"images_dir"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`            // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections
}

type MariaDBConfig struct {
	DSN string `yaml:"dsn"` // e.g. cantine:cantine@tcp(mariadb:3306)/cantine
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // localhost is always allowed
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name to a slog.Level.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a non-negative float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envString returns the environment variable or the default when unset.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Defaults returns the embedded default configuration.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load builds the configuration from the embedded defaults, an optional YAML
// file named by CANTINE_CONFIG, and environment variables, in that order.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CANTINE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Detector.CascadePath = envString("CASCADE_PATH", c.Detector.CascadePath)
	c.Detector.ScaleFactor = envFloat("SCALE_FACTOR", c.Detector.ScaleFactor)
	c.Detector.MinNeighbors = envInt("MIN_NEIGHBORS", c.Detector.MinNeighbors)
	c.Detector.MinFaceSize = envInt("MIN_FACE_SIZE", c.Detector.MinFaceSize)
	c.Detector.MaxFaceSize = envInt("MAX_FACE_SIZE", c.Detector.MaxFaceSize)

	c.Encoder.Width = envInt("ENCODING_WIDTH", c.Encoder.Width)
	c.Encoder.Height = envInt("ENCODING_HEIGHT", c.Encoder.Height)
	c.Encoder.Interpolation = envString("ENCODING_INTERPOLATION", c.Encoder.Interpolation)

	c.Matcher.Tolerance = envFloat("MATCH_TOLERANCE", c.Matcher.Tolerance)
	c.Matcher.StreamTolerance = envFloat("STREAM_TOLERANCE", c.Matcher.StreamTolerance)
	c.Matcher.Strategy = envString("MATCH_STRATEGY", c.Matcher.Strategy)
	c.Matcher.Index = envString("MATCH_INDEX", c.Matcher.Index)
	c.Matcher.HNSWCandidates = envInt("MATCH_HNSW_CANDIDATES", c.Matcher.HNSWCandidates)
	c.Matcher.SnapshotTTLSeconds = envInt("MATCH_SNAPSHOT_TTL_SECONDS", c.Matcher.SnapshotTTLSeconds)

	c.Access.TickIntervalMs = envInt("TICK_INTERVAL_MS", c.Access.TickIntervalMs)
	c.Access.CooldownSeconds = envFloat("COOLDOWN_SECONDS", c.Access.CooldownSeconds)
	c.Access.IdleSeconds = envFloat("IDLE_SECONDS", c.Access.IdleSeconds)
	c.Access.DebitAmount = envFloat("DEBIT_AMOUNT", c.Access.DebitAmount)
	c.Access.InsufficientPolicy = envString("INSUFFICIENT_POLICY", c.Access.InsufficientPolicy)
	c.Access.PreviewQuality = envInt("PREVIEW_QUALITY", c.Access.PreviewQuality)

	c.Camera.Driver = envString("CAMERA_DRIVER", c.Camera.Driver)
	c.Camera.Index = envInt("CAMERA_INDEX", c.Camera.Index)
	c.Camera.Device = envString("CAMERA_DEVICE", c.Camera.Device)
	c.Camera.Width = envInt("CAMERA_WIDTH", c.Camera.Width)
	c.Camera.Height = envInt("CAMERA_HEIGHT", c.Camera.Height)
	c.Camera.FallbackImage = envString("CAMERA_FALLBACK_IMAGE", c.Camera.FallbackImage)
	c.Camera.WarmupMs = envInt("CAMERA_WARMUP_MS", c.Camera.WarmupMs)

	c.Registry.Backend = envString("REGISTRY_BACKEND", c.Registry.Backend)
	c.Registry.Path = envString("REGISTRY_PATH", c.Registry.Path)
	c.Registry.ImagesDir = envString("IMAGES_DIR", c.Registry.ImagesDir)

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.MariaDB.DSN = envString("MARIADB_DSN", c.MariaDB.DSN)

	c.Web.Host = envString("WEB_HOST", c.Web.Host)
	c.Web.Port = envInt("WEB_PORT", c.Web.Port)
	if env := os.Getenv("WEB_ALLOWED_ORIGINS"); env != "" {
		c.Web.AllowedOrigins = nil
		for o := range strings.SplitSeq(env, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Web.AllowedOrigins = append(c.Web.AllowedOrigins, o)
			}
		}
	}

	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
}

// Validate rejects settings that would make matching or the access loop meaningless.
func (c *Config) Validate() error {
	switch {
	case c.Detector.ScaleFactor <= 1:
		return fmt.Errorf("scale factor must be greater than 1, got %v", c.Detector.ScaleFactor)
	case c.Encoder.Width <= 0 || c.Encoder.Height <= 0:
		return fmt.Errorf("encoding size must be positive, got %dx%d", c.Encoder.Width, c.Encoder.Height)
	case c.Matcher.Tolerance <= 0 || c.Matcher.StreamTolerance <= 0:
		return fmt.Errorf("tolerances must be positive")
	case c.Access.TickIntervalMs <= 0:
		return fmt.Errorf("tick interval must be positive, got %d", c.Access.TickIntervalMs)
	}

	switch c.Matcher.Strategy {
	case "nearest", "first":
	default:
		return fmt.Errorf("unknown match strategy %q", c.Matcher.Strategy)
	}
	switch c.Matcher.Index {
	case "linear", "hnsw":
	default:
		return fmt.Errorf("unknown match index %q", c.Matcher.Index)
	}
	switch c.Access.InsufficientPolicy {
	case "deny", "debit":
	default:
		return fmt.Errorf("unknown insufficient balance policy %q", c.Access.InsufficientPolicy)
	}
	switch c.Camera.Driver {
	case "opencv", "v4l2", "still":
	default:
		return fmt.Errorf("unknown camera driver %q", c.Camera.Driver)
	}
	switch c.Registry.Backend {
	case "json":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres registry")
		}
	case "mariadb":
		if c.MariaDB.DSN == "" {
			return fmt.Errorf("MARIADB_DSN is required for the mariadb registry")
		}
	default:
		return fmt.Errorf("unknown registry backend %q", c.Registry.Backend)
	}
	return nil
}

// NewLogger builds the process logger from the log settings.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.Log.SlogLevel()}))
}
