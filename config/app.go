package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	appOnce   sync.Once
	appConfig *AppConfig
	appErr    error
)

// AppConfig holds the non-credential settings of the server and the worker.
// Values come from defaults, then the optional YAML file named by
// APP_CONFIG_FILE, then environment variables.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Session  SessionConfig  `yaml:"session"`
	Upload   UploadConfig   `yaml:"upload"`
	Logging  LoggingConfig  `yaml:"logging"`
	Storage  StorageConfig  `yaml:"storage"`
	Queue    QueueConfig    `yaml:"queue"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Mode            string        `yaml:"mode"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type PipelineConfig struct {
	Concurrency         int    `yaml:"concurrency"`
	TempDir             string `yaml:"tempDir"`
	UploadBeforeAnalyze bool   `yaml:"uploadBeforeAnalyze"`
	ImageMaxTokens      int    `yaml:"imageMaxTokens"`
	ImageMaxDimension   int    `yaml:"imageMaxDimension"`
	DefaultMinTokens    int    `yaml:"defaultMinTokens"`
	DefaultMaxTokens    int    `yaml:"defaultMaxTokens"`
	Encoding            string `yaml:"encoding"`
}

type SessionConfig struct {
	Backend string        `yaml:"backend"` // memory | redis
	TTL     time.Duration `yaml:"ttl"`
	MaxRuns int           `yaml:"maxRuns"` // 0 = unlimited
	// SweepInterval is how often expired sessions are dropped from the
	// memory backend.
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

type UploadConfig struct {
	MaxFileSize  int64    `yaml:"maxFileSize"`
	MaxFiles     int      `yaml:"maxFiles"`
	AllowedTypes []string `yaml:"allowedTypes"`
}

type LoggingConfig struct {
	Level    string   `yaml:"level"`
	Encoding string   `yaml:"encoding"`
	Outputs  []string `yaml:"outputs"`
}

type StorageConfig struct {
	Backend   string        `yaml:"backend"` // s3 | minio | none
	Retention time.Duration `yaml:"retention"`
}

type QueueConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	CleanupSchedule string        `yaml:"cleanupSchedule"`
	ResultTTL       time.Duration `yaml:"resultTTL"`
	ProcessTimeout  time.Duration `yaml:"processTimeout"`
}

// DefaultAppConfig returns the built-in defaults.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:            ":8080",
			Mode:            "release",
			AllowedOrigins:  []string{"http://localhost:3000"},
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Pipeline: PipelineConfig{
			Concurrency:       5,
			TempDir:           os.TempDir(),
			ImageMaxTokens:    1000,
			ImageMaxDimension: 2048,
			DefaultMinTokens:  3000,
			DefaultMaxTokens:  3000,
			Encoding:          "cl100k_base",
		},
		Session: SessionConfig{
			Backend:       "memory",
			TTL:           24 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Upload: UploadConfig{
			MaxFileSize:  50 << 20,
			MaxFiles:     20,
			AllowedTypes: []string{".png", ".jpg", ".jpeg", ".pdf", ".pptx", ".docx", ".mp3", ".wav"},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
			Outputs:  []string{"stdout", "logs/documento.log"},
		},
		Storage: StorageConfig{
			Backend:   "none",
			Retention: 7 * 24 * time.Hour,
		},
		Queue: QueueConfig{
			Concurrency:     10,
			CleanupSchedule: "@every 1h",
			ResultTTL:       24 * time.Hour,
			ProcessTimeout:  30 * time.Minute,
		},
	}
}

// LoadAppConfig builds an AppConfig from defaults, the YAML file at path (skipped
// when path is empty) and the environment.
func LoadAppConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyEnv() {
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Server.Mode = getEnv("GIN_MODE", c.Server.Mode)
	c.Server.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", c.Server.AllowedOrigins)
	c.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Pipeline.Concurrency = getEnvInt("PIPELINE_CONCURRENCY", c.Pipeline.Concurrency)
	c.Pipeline.TempDir = getEnv("PIPELINE_TEMP_DIR", c.Pipeline.TempDir)
	c.Pipeline.UploadBeforeAnalyze = getEnvBool("PIPELINE_UPLOAD_BEFORE_ANALYZE", c.Pipeline.UploadBeforeAnalyze)
	c.Pipeline.ImageMaxTokens = getEnvInt("PIPELINE_IMAGE_MAX_TOKENS", c.Pipeline.ImageMaxTokens)
	c.Pipeline.ImageMaxDimension = getEnvInt("PIPELINE_IMAGE_MAX_DIMENSION", c.Pipeline.ImageMaxDimension)
	c.Pipeline.DefaultMinTokens = getEnvInt("PIPELINE_MIN_TOKENS", c.Pipeline.DefaultMinTokens)
	c.Pipeline.DefaultMaxTokens = getEnvInt("PIPELINE_MAX_TOKENS", c.Pipeline.DefaultMaxTokens)
	c.Pipeline.Encoding = getEnv("PIPELINE_TOKEN_ENCODING", c.Pipeline.Encoding)

	c.Session.Backend = getEnv("SESSION_BACKEND", c.Session.Backend)
	c.Session.TTL = getEnvDuration("SESSION_TTL", c.Session.TTL)
	c.Session.MaxRuns = getEnvInt("SESSION_MAX_RUNS", c.Session.MaxRuns)
	c.Session.SweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", c.Session.SweepInterval)

	c.Upload.MaxFileSize = getEnvInt64("UPLOAD_MAX_FILE_SIZE", c.Upload.MaxFileSize)
	c.Upload.MaxFiles = getEnvInt("UPLOAD_MAX_FILES", c.Upload.MaxFiles)
	c.Upload.AllowedTypes = getEnvList("UPLOAD_ALLOWED_TYPES", c.Upload.AllowedTypes)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Encoding = getEnv("LOG_ENCODING", c.Logging.Encoding)
	c.Logging.Outputs = getEnvList("LOG_OUTPUTS", c.Logging.Outputs)

	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Retention = getEnvDuration("STORAGE_RETENTION", c.Storage.Retention)

	c.Queue.Concurrency = getEnvInt("QUEUE_CONCURRENCY", c.Queue.Concurrency)
	c.Queue.CleanupSchedule = getEnv("QUEUE_CLEANUP_SCHEDULE", c.Queue.CleanupSchedule)
	c.Queue.ResultTTL = getEnvDuration("QUEUE_RESULT_TTL", c.Queue.ResultTTL)
	c.Queue.ProcessTimeout = getEnvDuration("QUEUE_PROCESS_TIMEOUT", c.Queue.ProcessTimeout)
}

// Validate rejects settings the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline concurrency must be at least 1, got %d", c.Pipeline.Concurrency)
	}
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	switch c.Storage.Backend {
	case "s3", "minio", "none":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("upload max file size must be positive")
	}
	return nil
}

// GetAppConfig loads the application config once per process.
func GetAppConfig() (*AppConfig, error) {
	appOnce.Do(func() {
		loadEnv()
		appConfig, appErr = LoadAppConfig(getEnv("APP_CONFIG_FILE", ""))
	})
	return appConfig, appErr
}
