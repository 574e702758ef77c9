package s3

import (
	"time"
)

// Config represents S3 backend configuration
type Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`

	// Prefix roots the file system at a key prefix within the bucket
	Prefix string `yaml:"prefix"`

	// Performance settings
	MaxRetries      int           `yaml:"max_retries"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ReadConcurrency int           `yaml:"read_concurrency"`
	ListPageSize    int32         `yaml:"list_page_size"`

	// Advanced settings
	UseAccelerate bool `yaml:"use_accelerate"`
	UseDualStack  bool `yaml:"use_dual_stack"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Region:          "us-east-1",
		MaxRetries:      3,
		RequestTimeout:  30 * time.Second,
		ReadConcurrency: 8,
		ListPageSize:    1000,
	}
}

func (c *Config) withDefaults() *Config {
	d := NewDefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.MaxRetries <= 0 {
		out.MaxRetries = d.MaxRetries
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = d.RequestTimeout
	}
	if out.ReadConcurrency <= 0 {
		out.ReadConcurrency = d.ReadConcurrency
	}
	if out.ListPageSize <= 0 {
		out.ListPageSize = d.ListPageSize
	}
	return &out
}
