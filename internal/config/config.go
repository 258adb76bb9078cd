// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
// Values are resolved in order: defaults, YAML config file, environment
// variables. Environment variables always win so deployments can override
// a shared config file.
type Config struct {
	DataDir   string          `yaml:"data_dir"`  // Base directory for databases and staging (always absolute)
	HTTPPort  int             `yaml:"http_port"` // REST API + dashboard port
	UDPPort   int             `yaml:"udp_port"`  // High-volume msgpack span ingestion
	LogLevel  string          `yaml:"log_level"`
	DevMode   bool            `yaml:"dev_mode"`
	Collector CollectorConfig `yaml:"collector"`
	Backup    BackupConfig    `yaml:"backup"`
}

// CollectorConfig holds span pipeline tuning knobs.
type CollectorConfig struct {
	BatchSize      int           `yaml:"batch_size"`      // Spans per database write
	BatchTimeout   time.Duration `yaml:"batch_timeout"`   // Max wait before flushing a partial batch
	BufferSize     int           `yaml:"buffer_size"`     // Channel capacity for incoming spans
	DisablePricing bool          `yaml:"disable_pricing"` // Skip cost calculation for LLM spans
	PricingFile    string        `yaml:"pricing_file"`    // Optional YAML with per-model pricing overrides
}

// BackupConfig holds S3-compatible backup settings.
// Backups are disabled unless a bucket is configured.
type BackupConfig struct {
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"` // Custom endpoint for R2/MinIO; empty = AWS
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	KeepLast        int    `yaml:"keep_last"` // Remote backups retained by prune
}

// Enabled reports whether cloud backups are configured.
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads configuration from an optional YAML file and environment variables.
// An empty path skips the file and uses env vars only. A .env file is loaded
// first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

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

	// Always resolve the data directory to an absolute path and make sure
	// it exists before anything opens a database in it.
	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg.DataDir = absDataDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	dataDir := "data"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".agenttrace")
	}

	return &Config{
		DataDir:  dataDir,
		HTTPPort: 8080,
		UDPPort:  4318,
		LogLevel: "info",
		Collector: CollectorConfig{
			BatchSize:    100,
			BatchTimeout: time.Second,
			BufferSize:   10000,
		},
		Backup: BackupConfig{
			Region:   "auto",
			KeepLast: 24,
		},
	}
}

// applyEnv overrides config values from AGENTTRACE_* environment variables.
func (c *Config) applyEnv() {
	c.DataDir = getEnv("AGENTTRACE_DATA_DIR", c.DataDir)
	c.HTTPPort = getEnvAsInt("AGENTTRACE_HTTP_PORT", c.HTTPPort)
	c.UDPPort = getEnvAsInt("AGENTTRACE_UDP_PORT", c.UDPPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DevMode = getEnvAsBool("DEV_MODE", c.DevMode)

	c.Collector.BatchSize = getEnvAsInt("AGENTTRACE_BATCH_SIZE", c.Collector.BatchSize)
	c.Collector.BufferSize = getEnvAsInt("AGENTTRACE_BUFFER_SIZE", c.Collector.BufferSize)
	c.Collector.PricingFile = getEnv("AGENTTRACE_PRICING_FILE", c.Collector.PricingFile)
	if v := os.Getenv("AGENTTRACE_BATCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Collector.BatchTimeout = d
		}
	}

	c.Backup.Bucket = getEnv("AGENTTRACE_BACKUP_BUCKET", c.Backup.Bucket)
	c.Backup.Endpoint = getEnv("AGENTTRACE_BACKUP_ENDPOINT", c.Backup.Endpoint)
	c.Backup.Region = getEnv("AGENTTRACE_BACKUP_REGION", c.Backup.Region)
	c.Backup.AccessKeyID = getEnv("AGENTTRACE_BACKUP_ACCESS_KEY_ID", c.Backup.AccessKeyID)
	c.Backup.SecretAccessKey = getEnv("AGENTTRACE_BACKUP_SECRET_ACCESS_KEY", c.Backup.SecretAccessKey)
}

// Validate checks if required configuration is present and consistent.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.UDPPort <= 0 || c.UDPPort > 65535 {
		return fmt.Errorf("invalid UDP port: %d", c.UDPPort)
	}
	if c.Collector.BatchSize <= 0 {
		return fmt.Errorf("collector batch size must be positive, got %d", c.Collector.BatchSize)
	}
	if c.Collector.BufferSize < c.Collector.BatchSize {
		return fmt.Errorf("collector buffer size (%d) must be at least the batch size (%d)",
			c.Collector.BufferSize, c.Collector.BatchSize)
	}
	if c.Backup.Enabled() && c.Backup.AccessKeyID == "" {
		return fmt.Errorf("backup bucket configured but access key missing")
	}
	return nil
}

// Helper functions
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
