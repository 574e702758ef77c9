package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	TestDebugLevel = "DEBUG"
	TestBucket     = "docs-bucket"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Global.LogLevel != "INFO" {
		t.Errorf("Expected LogLevel to be INFO, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.LogFormat != "text" {
		t.Errorf("Expected LogFormat to be text, got %s", cfg.Global.LogFormat)
	}

	if cfg.Cache.FailOnMiss {
		t.Error("Expected FailOnMiss to be disabled by default")
	}
	if cfg.Cache.MaxEntries != 100000 {
		t.Errorf("Expected MaxEntries to be 100000, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.Persistent.Enabled {
		t.Error("Expected persistent cache to be disabled by default")
	}

	if cfg.Storage.Backend != BackendLocal {
		t.Errorf("Expected Backend to be local, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.S3.MaxRetries != 3 {
		t.Errorf("Expected S3 MaxRetries to be 3, got %d", cfg.Storage.S3.MaxRetries)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default configuration to be valid, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  func() *Configuration
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: func() *Configuration {
				return NewDefault()
			},
			wantErr: false,
		},
		{
			name: "invalid log level",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Global.LogLevel = "INVALID"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid log_level",
		},
		{
			name: "invalid log format",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Global.LogFormat = "xml"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid log_format",
		},
		{
			name: "negative max entries",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Cache.MaxEntries = -1
				return cfg
			},
			wantErr: true,
			errMsg:  "max_entries cannot be negative",
		},
		{
			name: "persistent cache without directory",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Cache.Persistent.Enabled = true
				cfg.Cache.Persistent.Directory = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "persistent cache directory is required",
		},
		{
			name: "persistent cache with bad size",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Cache.Persistent.Enabled = true
				cfg.Cache.Persistent.MaxSize = "lots"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid persistent max_size",
		},
		{
			name: "unknown backend",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Storage.Backend = "ftp"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid storage backend",
		},
		{
			name: "s3 without bucket",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Storage.Backend = BackendS3
				return cfg
			},
			wantErr: true,
			errMsg:  "s3 bucket is required",
		},
		{
			name: "s3 with bucket",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Storage.Backend = BackendS3
				cfg.Storage.S3.Bucket = TestBucket
				return cfg
			},
			wantErr: false,
		},
		{
			name: "memory backend",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Storage.Backend = BackendMemory
				return cfg
			},
			wantErr: false,
		},
		{
			name: "metrics with bad path",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Metrics.Enabled = true
				cfg.Metrics.Path = "metrics"
				return cfg
			},
			wantErr: true,
			errMsg:  "metrics path must start with /",
		},
		{
			name: "metrics with bad port",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Metrics.Enabled = true
				cfg.Global.MetricsPort = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "metrics_port must be between",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config()
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
global:
  log_level: DEBUG
  log_format: json

cache:
  fail_on_miss: true
  ttl: 10m
  persistent:
    enabled: true
    directory: /tmp/cachingfs

storage:
  backend: s3
  s3:
    bucket: docs-bucket
    prefix: site/
    force_path_style: true
`

	err := os.WriteFile(configFile, []byte(configContent), 0600)
	if err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg := NewDefault()
	err = cfg.LoadFromFile(configFile)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Global.LogLevel != TestDebugLevel {
		t.Errorf("Expected LogLevel to be DEBUG, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.LogFormat != "json" {
		t.Errorf("Expected LogFormat to be json, got %s", cfg.Global.LogFormat)
	}
	if !cfg.Cache.FailOnMiss {
		t.Error("Expected FailOnMiss to be true")
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("Expected Cache TTL to be 10 minutes, got %v", cfg.Cache.TTL)
	}
	if !cfg.Cache.Persistent.Enabled || cfg.Cache.Persistent.Directory != "/tmp/cachingfs" {
		t.Errorf("Unexpected persistent cache config: %+v", cfg.Cache.Persistent)
	}
	// Unset keys keep their defaults.
	if !cfg.Cache.Persistent.Compression {
		t.Error("Expected Compression to keep its default")
	}
	if cfg.Storage.Backend != BackendS3 {
		t.Errorf("Expected Backend to be s3, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.S3.Bucket != TestBucket || cfg.Storage.S3.Prefix != "site/" {
		t.Errorf("Unexpected s3 config: %+v", cfg.Storage.S3)
	}
	if !cfg.Storage.S3.ForcePathStyle {
		t.Error("Expected ForcePathStyle to be true")
	}
	if cfg.Storage.S3.Region != "us-east-1" {
		t.Errorf("Expected Region to keep its default, got %s", cfg.Storage.S3.Region)
	}
}

func TestLoadFromFileNonExistent(t *testing.T) {
	cfg := NewDefault()
	err := cfg.LoadFromFile("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error when loading non-existent config file")
	}
}

func TestLoadFromFileInvalidYAML(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("global: [unclosed"), 0600); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg := NewDefault()
	err := cfg.LoadFromFile(configFile)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("Expected parse error, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	testEnvVars := map[string]string{
		"CACHINGFS_LOG_LEVEL":           "error",
		"CACHINGFS_LOG_FORMAT":          "JSON",
		"CACHINGFS_METRICS_PORT":        "9191",
		"CACHINGFS_FAIL_ON_MISS":        "true",
		"CACHINGFS_CACHE_MAX_ENTRIES":   "500",
		"CACHINGFS_CACHE_TTL":           "10m",
		"CACHINGFS_CACHE_DIR":           "/tmp/cache",
		"CACHINGFS_BACKEND":             "S3",
		"CACHINGFS_S3_BUCKET":           TestBucket,
		"CACHINGFS_S3_ENDPOINT":         "http://localhost:9000",
		"CACHINGFS_S3_FORCE_PATH_STYLE": "true",
		"CACHINGFS_METRICS_ENABLED":     "true",
	}

	for key, value := range testEnvVars {
		t.Setenv(key, value)
	}

	cfg := NewDefault()
	err := cfg.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Global.LogLevel != "ERROR" {
		t.Errorf("Expected LogLevel to be ERROR, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.LogFormat != "json" {
		t.Errorf("Expected LogFormat to be json, got %s", cfg.Global.LogFormat)
	}
	if cfg.Global.MetricsPort != 9191 {
		t.Errorf("Expected MetricsPort to be 9191, got %d", cfg.Global.MetricsPort)
	}
	if !cfg.Cache.FailOnMiss {
		t.Error("Expected FailOnMiss to be true")
	}
	if cfg.Cache.MaxEntries != 500 {
		t.Errorf("Expected MaxEntries to be 500, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("Expected Cache TTL to be 10 minutes, got %v", cfg.Cache.TTL)
	}
	if !cfg.Cache.Persistent.Enabled || cfg.Cache.Persistent.Directory != "/tmp/cache" {
		t.Errorf("Expected persistent cache in /tmp/cache, got %+v", cfg.Cache.Persistent)
	}
	if cfg.Storage.Backend != BackendS3 {
		t.Errorf("Expected Backend to be s3, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.S3.Bucket != TestBucket {
		t.Errorf("Expected Bucket to be %s, got %s", TestBucket, cfg.Storage.S3.Bucket)
	}
	if cfg.Storage.S3.Endpoint != "http://localhost:9000" || !cfg.Storage.S3.ForcePathStyle {
		t.Errorf("Unexpected s3 endpoint config: %+v", cfg.Storage.S3)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Expected metrics to be enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected env configuration to be valid, got %v", err)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"CACHINGFS_METRICS_PORT", "http"},
		{"CACHINGFS_CACHE_MAX_ENTRIES", "many"},
		{"CACHINGFS_CACHE_TTL", "forever"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg := NewDefault()
			err := cfg.LoadFromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("LoadFromEnv() error = %v, want error naming %s", err, tt.key)
			}
		})
	}
}

func TestSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "saved_config.yaml")

	cfg := NewDefault()
	cfg.Global.LogLevel = TestDebugLevel
	cfg.Storage.Backend = BackendS3
	cfg.Storage.S3.Bucket = TestBucket

	err := cfg.SaveToFile(configFile)
	if err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	newCfg := NewDefault()
	err = newCfg.LoadFromFile(configFile)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	if newCfg.Global.LogLevel != TestDebugLevel {
		t.Errorf("Expected LogLevel to be DEBUG, got %s", newCfg.Global.LogLevel)
	}
	if newCfg.Storage.S3.Bucket != TestBucket {
		t.Errorf("Expected Bucket to be %s, got %s", TestBucket, newCfg.Storage.S3.Bucket)
	}
	if newCfg.Storage.S3.RequestTimeout != 30*time.Second {
		t.Errorf("Expected RequestTimeout to survive the round trip, got %v", newCfg.Storage.S3.RequestTimeout)
	}
}

func TestSaveToFileCreateDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := NewDefault()
	err := cfg.SaveToFile(configFile)
	if err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"512", 512, false},
		{"1KB", 1024, false},
		{"10mb", 10 << 20, false},
		{"2GB", 2 << 30, false},
		{"1 TB", 1 << 40, false},
		{"lots", 0, true},
		{"-1GB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
