package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Progress  ProgressConfig  `toml:"progress"`
	Retention RetentionConfig `toml:"retention"`
	WebSocket WebSocketConfig `toml:"websocket"`
	Logging   LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=1,lte=65535"`
	Host string `toml:"host"`
}

// StorageConfig selects the durable job store. Type is "badger" or "redis".
type StorageConfig struct {
	Type    string        `toml:"type" validate:"oneof=badger redis"`
	Badger  BadgerConfig  `toml:"badger"`
	Redis   RedisConfig   `toml:"redis"`
	Retry   RetryConfig   `toml:"retry"`
	Breaker BreakerConfig `toml:"breaker"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type RedisConfig struct {
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db" validate:"gte=0"`
	KeyPrefix string `toml:"key_prefix"`
}

// RetryConfig controls store write retries. Durations are strings, e.g. "100ms".
type RetryConfig struct {
	MaxAttempts    int    `toml:"max_attempts" validate:"gte=1,lte=20"`
	InitialBackoff string `toml:"initial_backoff"`
	MaxBackoff     string `toml:"max_backoff"`
}

type BreakerConfig struct {
	MaxFailures uint32 `toml:"max_failures" validate:"gte=1"`
	OpenTimeout string `toml:"open_timeout"` // How long the breaker stays open before probing
}

// ProgressConfig tunes aggregation. Weights are percentages and must sum to 100.
type ProgressConfig struct {
	PersistInterval   string  `toml:"persist_interval"` // Minimum interval between non-terminal writes per job
	ObserverBuffer    int     `toml:"observer_buffer" validate:"gte=1,lte=4096"`
	TransferWeight    float64 `toml:"transfer_weight" validate:"gte=0,lte=100"`
	EncodingWeight    float64 `toml:"encoding_weight" validate:"gte=0,lte=100"`
	CloudUploadWeight float64 `toml:"cloud_upload_weight" validate:"gte=0,lte=100"`
}

type RetentionConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule format with seconds
	MaxAge   string `toml:"max_age"`  // Terminal records older than this are purged
}

// WebSocketConfig contains configuration for progress streaming
type WebSocketConfig struct {
	WriteTimeout string `toml:"write_timeout"`
	PingInterval string `toml:"ping_interval"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data",
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "streamtrack",
			},
			Retry: RetryConfig{
				MaxAttempts:    3,
				InitialBackoff: "50ms",
				MaxBackoff:     "1s",
			},
			Breaker: BreakerConfig{
				MaxFailures: 5,
				OpenTimeout: "10s",
			},
		},
		Progress: ProgressConfig{
			PersistInterval:   "1s", // At most one non-terminal write per job per second
			ObserverBuffer:    16,
			TransferWeight:    10,
			EncodingWeight:    70,
			CloudUploadWeight: 20,
		},
		Retention: RetentionConfig{
			Enabled:  true,
			Schedule: "0 0 * * * *", // Hourly
			MaxAge:   "168h",        // 7 days
		},
		WebSocket: WebSocketConfig{
			WriteTimeout: "10s",
			PingInterval: "30s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies STREAMTRACK_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if port := os.Getenv("STREAMTRACK_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("STREAMTRACK_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if storageType := os.Getenv("STREAMTRACK_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = strings.ToLower(storageType)
	}
	if path := os.Getenv("STREAMTRACK_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if addr := os.Getenv("STREAMTRACK_REDIS_ADDR"); addr != "" {
		config.Storage.Redis.Addr = addr
	}
	if password := os.Getenv("STREAMTRACK_REDIS_PASSWORD"); password != "" {
		config.Storage.Redis.Password = password
	}

	if interval := os.Getenv("STREAMTRACK_PERSIST_INTERVAL"); interval != "" {
		config.Progress.PersistInterval = interval
	}

	if level := os.Getenv("STREAMTRACK_LOG_LEVEL"); level != "" {
		config.Logging.Level = strings.ToLower(level)
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct constraints, duration strings, phase weights and the retention schedule
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"storage.retry.initial_backoff": c.Storage.Retry.InitialBackoff,
		"storage.retry.max_backoff":     c.Storage.Retry.MaxBackoff,
		"storage.breaker.open_timeout":  c.Storage.Breaker.OpenTimeout,
		"progress.persist_interval":     c.Progress.PersistInterval,
		"retention.max_age":             c.Retention.MaxAge,
		"websocket.write_timeout":       c.WebSocket.WriteTimeout,
		"websocket.ping_interval":       c.WebSocket.PingInterval,
	}
	for field, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", field, err)
		}
	}

	sum := c.Progress.TransferWeight + c.Progress.EncodingWeight + c.Progress.CloudUploadWeight
	if sum < 99.999 || sum > 100.001 {
		return fmt.Errorf("invalid configuration: progress weights must sum to 100, got %.2f", sum)
	}

	if c.Retention.Enabled {
		if err := ValidateSchedule(c.Retention.Schedule); err != nil {
			return fmt.Errorf("invalid configuration: retention.schedule: %w", err)
		}
	}

	return nil
}

// ValidateSchedule validates a six-field cron expression (seconds first)
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// Duration parses a configured duration, returning fallback when empty or malformed
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
