package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv applies environment variable overrides read by cleanenv from the
// env tags on ServerConfig. Unset variables keep the current value.
//
// The storage backend can also be chosen with a single STORAGE_URL:
//
//	memory://                  in-memory storage
//	file:///path/to/data       filesystem storage
//	s3://bucket                S3 storage (credentials from AWS_* variables)
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}
		var storage struct {
			URL string `env:"STORAGE_URL"`
		}
		if err := cleanenv.ReadEnv(&storage); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}
		if storage.URL != "" {
			return applyStorageURL(storage.URL, c)
		}
		return nil
	}
}

// applyStorageURL sets the storage backend from a URL
func applyStorageURL(raw string, c *ServerConfig) error {
	switch {
	case raw == "memory" || raw == "memory://":
		c.StorageType = "memory"
	case strings.HasPrefix(raw, "file://"):
		path := strings.TrimPrefix(raw, "file://")
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		c.StorageType = "fs"
		c.FSBaseDir = path
	case strings.HasPrefix(raw, "s3://"):
		bucket, _, _ := strings.Cut(strings.TrimPrefix(raw, "s3://"), "?")
		if bucket == "" {
			return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
		}
		c.StorageType = "s3"
		c.S3Bucket = bucket
	default:
		return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", raw)
	}
	return nil
}

// Usage returns the environment variable help text
func Usage() (string, error) {
	var cfg ServerConfig
	return cleanenv.GetDescription(&cfg, nil)
}
