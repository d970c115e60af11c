package fetcher

import (
	"fmt"
	"time"

	"pagefeed/pkg/config"
)

// Config holds the configuration for the HTTP fetch layer.
//
// Security settings:
//   - DenyPrivateIPs: Prevents SSRF attacks by blocking private and reserved addresses
//   - MaxBodySize: Prevents memory exhaustion from oversized responses
//   - MaxRedirects: Bounds the manually walked redirect chain
//   - ConnectTimeout / Timeout: Every request carries both
//
// Cache settings:
//   - CacheDir: Directory of the disk cache (empty disables caching)
//   - CacheTTL: Freshness window of cache entries
type Config struct {
	// ConnectTimeout bounds TCP connect plus TLS handshake.
	// Default: 10s
	ConnectTimeout time.Duration

	// Timeout is the total budget of one request, redirects included.
	// Default: 30s
	Timeout time.Duration

	// MaxBodySize is the maximum HTTP response body size in bytes.
	// This is enforced during response reading, not based on Content-Length header.
	// Default: 8388608 (8MB)
	MaxBodySize int64

	// MaxRedirects is the maximum number of redirect hops to follow.
	// Default: 5
	MaxRedirects int

	// DenyPrivateIPs controls whether private/reserved targets are rejected.
	// Should always be true in production.
	// Default: true
	DenyPrivateIPs bool

	// UserAgent is sent with every request.
	UserAgent string

	// CacheDir is the disk cache directory. Empty disables the cache.
	CacheDir string

	// CacheTTL is how long a cache entry is served without revalidation.
	// Default: 10m
	CacheTTL time.Duration

	// BatchConcurrency bounds GetMany parallelism.
	// Default: 3
	BatchConcurrency int
}

// DefaultConfig returns the default configuration for the fetch layer.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   10 * time.Second,
		Timeout:          30 * time.Second,
		MaxBodySize:      8 * 1024 * 1024, // 8MB
		MaxRedirects:     5,
		DenyPrivateIPs:   true,
		UserAgent:        "PageFeedBot/1.0 (+https://pagefeed.example/bot)",
		CacheTTL:         10 * time.Minute,
		BatchConcurrency: 3,
	}
}

// Validate checks if the configuration values are valid and safe.
//
// Validation rules:
//   - ConnectTimeout, Timeout: > 0, ConnectTimeout <= Timeout
//   - MaxBodySize: 1KB-100MB
//   - MaxRedirects: 0-10
//   - BatchConcurrency: 1-16
//   - CacheTTL: >= 0
func (c *Config) Validate() error {
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive, got %v", c.ConnectTimeout)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}

	if c.ConnectTimeout > c.Timeout {
		return fmt.Errorf("connect timeout %v exceeds total timeout %v", c.ConnectTimeout, c.Timeout)
	}

	minBodySize := int64(1024)              // 1KB
	maxBodySize := int64(100 * 1024 * 1024) // 100MB
	if c.MaxBodySize < minBodySize || c.MaxBodySize > maxBodySize {
		return fmt.Errorf("max body size must be between %d and %d bytes, got %d", minBodySize, maxBodySize, c.MaxBodySize)
	}

	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("max redirects must be between 0 and 10, got %d", c.MaxRedirects)
	}

	if c.BatchConcurrency < 1 || c.BatchConcurrency > 16 {
		return fmt.Errorf("batch concurrency must be between 1 and 16, got %d", c.BatchConcurrency)
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl must not be negative, got %v", c.CacheTTL)
	}

	return nil
}

// LoadConfigFromEnv loads configuration from environment variables.
// If a variable is not set or invalid, the default value is used.
// After loading, the configuration is validated.
//
// Environment variables:
//   - FETCH_CONNECT_TIMEOUT: duration (default: 10s)
//   - FETCH_TIMEOUT: duration (default: 30s)
//   - FETCH_MAX_BODY_SIZE: bytes (default: 8388608)
//   - FETCH_MAX_REDIRECTS: integer (default: 5)
//   - FETCH_DENY_PRIVATE_IPS: bool (default: true)
//   - FETCH_USER_AGENT: string
//   - FETCH_CACHE_DIR: directory (default: disabled)
//   - FETCH_CACHE_TTL: duration (default: 10m)
//   - FETCH_BATCH_CONCURRENCY: integer (default: 3)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.ConnectTimeout = config.GetEnvDuration("FETCH_CONNECT_TIMEOUT", cfg.ConnectTimeout)
	cfg.Timeout = config.GetEnvDuration("FETCH_TIMEOUT", cfg.Timeout)
	cfg.MaxBodySize = int64(config.GetEnvInt("FETCH_MAX_BODY_SIZE", int(cfg.MaxBodySize)))
	cfg.MaxRedirects = config.GetEnvInt("FETCH_MAX_REDIRECTS", cfg.MaxRedirects)
	cfg.DenyPrivateIPs = config.GetEnvBool("FETCH_DENY_PRIVATE_IPS", cfg.DenyPrivateIPs)
	cfg.UserAgent = config.GetEnvString("FETCH_USER_AGENT", cfg.UserAgent)
	cfg.CacheDir = config.GetEnvString("FETCH_CACHE_DIR", cfg.CacheDir)
	cfg.CacheTTL = config.GetEnvDuration("FETCH_CACHE_TTL", cfg.CacheTTL)
	cfg.BatchConcurrency = config.GetEnvInt("FETCH_BATCH_CONCURRENCY", cfg.BatchConcurrency)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
