package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Storage backends
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendS3     = "s3"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global  GlobalConfig  `yaml:"global"`
	Cache   CacheConfig   `yaml:"cache"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// CacheConfig represents caching layer settings
type CacheConfig struct {
	FailOnMiss bool                  `yaml:"fail_on_miss"`
	MaxEntries int                   `yaml:"max_entries"`
	TTL        time.Duration         `yaml:"ttl"`
	Persistent PersistentCacheConfig `yaml:"persistent"`
}

// PersistentCacheConfig represents persistent cache settings
type PersistentCacheConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Directory   string `yaml:"directory"`
	Compression bool   `yaml:"compression"`
	MaxSize     string `yaml:"max_size"`
}

// StorageConfig selects and configures the backing file system
type StorageConfig struct {
	Backend string              `yaml:"backend"`
	Memory  MemoryStorageConfig `yaml:"memory"`
	Local   LocalStorageConfig  `yaml:"local"`
	S3      S3StorageConfig     `yaml:"s3"`
}

// MemoryStorageConfig seeds the in-memory backend. Keys ending in "/" create empty
// directories.
type MemoryStorageConfig struct {
	Name  string            `yaml:"name"`
	Files map[string]string `yaml:"files"`
}

// LocalStorageConfig represents local disk settings
type LocalStorageConfig struct {
	Root string `yaml:"root"`
}

// S3StorageConfig represents S3 settings
type S3StorageConfig struct {
	Bucket          string        `yaml:"bucket"`
	Prefix          string        `yaml:"prefix"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	ForcePathStyle  bool          `yaml:"force_path_style"`
	MaxRetries      int           `yaml:"max_retries"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ReadConcurrency int           `yaml:"read_concurrency"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Path      string `yaml:"path"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFormat:   "text",
			MetricsPort: 9090,
		},
		Cache: CacheConfig{
			FailOnMiss: false,
			MaxEntries: 100000,
			TTL:        0,
			Persistent: PersistentCacheConfig{
				Enabled:     false,
				Directory:   "/var/cache/cachingfs",
				Compression: true,
				MaxSize:     "1GB",
			},
		},
		Storage: StorageConfig{
			Backend: BackendLocal,
			Memory: MemoryStorageConfig{
				Name: "memory",
			},
			Local: LocalStorageConfig{
				Root: ".",
			},
			S3: S3StorageConfig{
				Region:          "us-east-1",
				MaxRetries:      3,
				RequestTimeout:  30 * time.Second,
				ReadConcurrency: 8,
			},
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "cachingfs",
			Path:      "/metrics",
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv("CACHINGFS_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = strings.ToUpper(val)
	}
	if val := os.Getenv("CACHINGFS_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = strings.ToLower(val)
	}
	if val := os.Getenv("CACHINGFS_METRICS_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid CACHINGFS_METRICS_PORT: %w", err)
		}
		c.Global.MetricsPort = port
	}

	// Cache settings
	if val := os.Getenv("CACHINGFS_FAIL_ON_MISS"); val != "" {
		c.Cache.FailOnMiss = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("CACHINGFS_CACHE_MAX_ENTRIES"); val != "" {
		entries, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid CACHINGFS_CACHE_MAX_ENTRIES: %w", err)
		}
		c.Cache.MaxEntries = entries
	}
	if val := os.Getenv("CACHINGFS_CACHE_TTL"); val != "" {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid CACHINGFS_CACHE_TTL: %w", err)
		}
		c.Cache.TTL = duration
	}
	if val := os.Getenv("CACHINGFS_CACHE_DIR"); val != "" {
		c.Cache.Persistent.Enabled = true
		c.Cache.Persistent.Directory = val
	}

	// Storage settings
	if val := os.Getenv("CACHINGFS_BACKEND"); val != "" {
		c.Storage.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("CACHINGFS_LOCAL_ROOT"); val != "" {
		c.Storage.Local.Root = val
	}
	if val := os.Getenv("CACHINGFS_S3_BUCKET"); val != "" {
		c.Storage.S3.Bucket = val
	}
	if val := os.Getenv("CACHINGFS_S3_PREFIX"); val != "" {
		c.Storage.S3.Prefix = val
	}
	if val := os.Getenv("CACHINGFS_S3_REGION"); val != "" {
		c.Storage.S3.Region = val
	}
	if val := os.Getenv("CACHINGFS_S3_ENDPOINT"); val != "" {
		c.Storage.S3.Endpoint = val
	}
	if val := os.Getenv("CACHINGFS_S3_FORCE_PATH_STYLE"); val != "" {
		c.Storage.S3.ForcePathStyle = strings.ToLower(val) == "true"
	}

	// Metrics
	if val := os.Getenv("CACHINGFS_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if !slices.Contains(validLogLevels, c.Global.LogLevel) {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Global.LogFormat != "text" && c.Global.LogFormat != "json" {
		return fmt.Errorf("invalid log_format: %s (must be text or json)", c.Global.LogFormat)
	}

	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("max_entries cannot be negative")
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache ttl cannot be negative")
	}

	if c.Cache.Persistent.Enabled {
		if c.Cache.Persistent.Directory == "" {
			return fmt.Errorf("persistent cache directory is required when enabled")
		}
		if _, err := ParseSize(c.Cache.Persistent.MaxSize); err != nil {
			return fmt.Errorf("invalid persistent max_size: %w", err)
		}
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Storage.Local.Root == "" {
			return fmt.Errorf("local root is required for the local backend")
		}
	case BackendS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required for the s3 backend")
		}
		if c.Storage.S3.MaxRetries < 0 {
			return fmt.Errorf("s3 max_retries cannot be negative")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be one of: %s, %s, %s)",
			c.Storage.Backend, BackendMemory, BackendLocal, BackendS3)
	}

	if c.Metrics.Enabled {
		if c.Global.MetricsPort <= 0 || c.Global.MetricsPort > 65535 {
			return fmt.Errorf("metrics_port must be between 1 and 65535")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics path must start with /")
		}
	}

	return nil
}

// ParseSize parses sizes such as "512MB" or "10GB". An empty string means unbounded.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, nil
	}

	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		factor int64
	}{
		{"TB", 1 << 40},
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if strings.HasSuffix(s, unit.suffix) {
			multiplier = unit.factor
			s = strings.TrimSuffix(s, unit.suffix)
			break
		}
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("size cannot be negative: %d", n)
	}
	return n * multiplier, nil
}
