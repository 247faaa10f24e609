package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc/codes"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/label-checker/constants"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Limits  LimitsConfig  `yaml:"limits"`
	Workers WorkersConfig `yaml:"workers"`
	Timers  TimersConfig  `yaml:"timers"`
	Vision  VisionConfig  `yaml:"vision"`
	Archive ArchiveConfig `yaml:"archive"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds transport listeners
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCHealthAddr  string        `yaml:"grpc_health_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LimitsConfig bounds what a single job may submit
type LimitsConfig struct {
	MaxItemsPerJob      int      `yaml:"max_items_per_job"`
	MaxItemBytes        int64    `yaml:"max_item_bytes"`
	MaxJobBytes         int64    `yaml:"max_job_bytes"`
	MaxActiveJobs       int      `yaml:"max_active_jobs"`
	AllowedContentTypes []string `yaml:"allowed_content_types"`
}

// WorkersConfig sizes the shared work queue and pool
type WorkersConfig struct {
	PoolSize              int `yaml:"pool_size"`
	QueueSize             int `yaml:"queue_size"`
	ExtractionConcurrency int `yaml:"extraction_concurrency"`
}

// TimersConfig holds the periodic sweeps and stream heartbeat
type TimersConfig struct {
	Heartbeat        time.Duration `yaml:"heartbeat"`
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`
	WatchdogTimeout  time.Duration `yaml:"watchdog_timeout"`
	ReaperInterval   time.Duration `yaml:"reaper_interval"`
	JobTTL           time.Duration `yaml:"job_ttl"`
}

// VisionConfig holds extraction service configuration
type VisionConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// ArchiveConfig configures the optional result archive. Empty Driver disables it.
type ArchiveConfig struct {
	Driver      string        `yaml:"driver"`
	DSN         string        `yaml:"dsn"`
	MaxConns    int32         `yaml:"max_conns"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// StorageConfig holds scratch storage for uploaded items
type StorageConfig struct {
	ScratchDir string `yaml:"scratch_dir"`
}

// LogConfig selects the log handler
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8000",
			GRPCHealthAddr:  ":9090",
			ShutdownTimeout: 15 * time.Second,
		},
		Limits: LimitsConfig{
			MaxItemsPerJob:      300,
			MaxItemBytes:        10 << 20,
			MaxJobBytes:         500 << 20,
			MaxActiveJobs:       3,
			AllowedContentTypes: append([]string(nil), constants.AllowedContentTypes...),
		},
		Workers: WorkersConfig{
			PoolSize:              12,
			QueueSize:             512,
			ExtractionConcurrency: 10,
		},
		Timers: TimersConfig{
			Heartbeat:        15 * time.Second,
			WatchdogInterval: 30 * time.Second,
			WatchdogTimeout:  120 * time.Second,
			ReaperInterval:   60 * time.Second,
			JobTTL:           30 * time.Minute,
		},
		Vision: VisionConfig{
			BaseURL:     "https://api.anthropic.com",
			Model:       "claude-haiku-4-5",
			MaxTokens:   600,
			Timeout:     60 * time.Second,
			MaxAttempts: 3,
		},
		Archive: ArchiveConfig{
			MaxConns:    5,
			DialTimeout: 3 * time.Second,
		},
		Storage: StorageConfig{
			ScratchDir: os.TempDir(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from defaults, an optional YAML file named by
// LABELCHECK_CONFIG, and environment variables, in that order of precedence
// (environment wins). A .env file in the working directory is loaded first.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path := os.Getenv("LABELCHECK_CONFIG"); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return NewAppError(codes.InvalidArgument, ReasonConfig, "read config file", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return NewAppError(codes.InvalidArgument, ReasonConfig, fmt.Sprintf("parse config file %s", path), err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCHealthAddr = getEnv("GRPC_HEALTH_ADDR", c.Server.GRPCHealthAddr)
	c.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Limits.MaxItemsPerJob = getEnvAsInt("MAX_FILES_PER_JOB", c.Limits.MaxItemsPerJob)
	c.Limits.MaxItemBytes = getEnvAsInt64("MAX_FILE_SIZE", c.Limits.MaxItemBytes)
	c.Limits.MaxJobBytes = getEnvAsInt64("MAX_JOB_BYTES", c.Limits.MaxJobBytes)
	c.Limits.MaxActiveJobs = getEnvAsInt("MAX_CONCURRENT_JOBS", c.Limits.MaxActiveJobs)
	c.Limits.AllowedContentTypes = getEnvAsList("ALLOWED_TYPES", c.Limits.AllowedContentTypes)

	c.Workers.PoolSize = getEnvAsInt("N_WORKERS", c.Workers.PoolSize)
	c.Workers.QueueSize = getEnvAsInt("QUEUE_SIZE", c.Workers.QueueSize)
	c.Workers.ExtractionConcurrency = getEnvAsInt("EXTRACTION_CONCURRENCY", c.Workers.ExtractionConcurrency)

	c.Timers.Heartbeat = getEnvAsDuration("HEARTBEAT_INTERVAL", c.Timers.Heartbeat)
	c.Timers.WatchdogInterval = getEnvAsDuration("WATCHDOG_INTERVAL", c.Timers.WatchdogInterval)
	c.Timers.WatchdogTimeout = getEnvAsDuration("WATCHDOG_TIMEOUT", c.Timers.WatchdogTimeout)
	c.Timers.ReaperInterval = getEnvAsDuration("REAPER_INTERVAL", c.Timers.ReaperInterval)
	c.Timers.JobTTL = getEnvAsDuration("JOB_TTL", c.Timers.JobTTL)

	c.Vision.APIKey = getEnv("ANTHROPIC_API_KEY", c.Vision.APIKey)
	c.Vision.BaseURL = getEnv("ANTHROPIC_BASE_URL", c.Vision.BaseURL)
	c.Vision.Model = getEnv("MODEL_FAST_OVERRIDE", c.Vision.Model)
	c.Vision.MaxTokens = getEnvAsInt("VISION_MAX_TOKENS", c.Vision.MaxTokens)
	c.Vision.Timeout = getEnvAsDuration("VISION_TIMEOUT", c.Vision.Timeout)
	c.Vision.MaxAttempts = getEnvAsInt("VISION_MAX_ATTEMPTS", c.Vision.MaxAttempts)

	c.Archive.Driver = getEnv("ARCHIVE_DRIVER", c.Archive.Driver)
	c.Archive.DSN = getEnv("ARCHIVE_DSN", c.Archive.DSN)
	c.Archive.MaxConns = getEnvAsInt32("ARCHIVE_MAX_CONNS", c.Archive.MaxConns)
	c.Archive.DialTimeout = getEnvAsDuration("ARCHIVE_DIAL_TIMEOUT", c.Archive.DialTimeout)

	c.Storage.ScratchDir = getEnv("SCRATCH_DIR", c.Storage.ScratchDir)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Validate validates the loaded configuration. The vision API key is checked
// by callers that actually talk to the service.
func (c *Config) Validate() error {
	v := NewValidator().
		Field("server.http_addr", c.Server.HTTPAddr, Required).
		Field("limits.max_items_per_job", c.Limits.MaxItemsPerJob, Positive).
		Field("limits.max_item_bytes", c.Limits.MaxItemBytes, Positive).
		Field("limits.max_job_bytes", c.Limits.MaxJobBytes, Positive).
		Field("limits.max_active_jobs", c.Limits.MaxActiveJobs, Positive).
		Field("limits.allowed_content_types", c.Limits.AllowedContentTypes, NotEmpty).
		Field("workers.pool_size", c.Workers.PoolSize, Positive).
		Field("workers.queue_size", c.Workers.QueueSize, Positive).
		Field("workers.extraction_concurrency", c.Workers.ExtractionConcurrency, Positive).
		Field("timers.heartbeat", c.Timers.Heartbeat, Positive).
		Field("timers.watchdog_interval", c.Timers.WatchdogInterval, Positive).
		Field("timers.watchdog_timeout", c.Timers.WatchdogTimeout, Positive).
		Field("timers.reaper_interval", c.Timers.ReaperInterval, Positive).
		Field("timers.job_ttl", c.Timers.JobTTL, Positive).
		Field("vision.max_attempts", c.Vision.MaxAttempts, Positive).
		Field("storage.scratch_dir", c.Storage.ScratchDir, Required).
		Field("archive.driver", c.Archive.Driver, OneOf("", "sqlite", "postgres"))
	if c.Limits.MaxItemBytes > c.Limits.MaxJobBytes {
		v.Add("limits.max_item_bytes", c.Limits.MaxItemBytes, "must not exceed limits.max_job_bytes")
	}
	if c.Archive.Driver != "" {
		v.Field("archive.dsn", c.Archive.DSN, Required)
	}
	if v.HasErrors() {
		return NewAppError(codes.InvalidArgument, ReasonConfig, v.ErrorMessage(), ErrInvalidArgument)
	}
	return nil
}
