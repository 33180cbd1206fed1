package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the generation ledger database
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithMemoryStorage selects the in-memory object store
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageType = "memory"
		return nil
	}
}

// WithFilesystemStorage selects filesystem storage with HMAC signed read URLs
func WithFilesystemStorage(baseDir, baseURL, secretKey string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		if secretKey == "" {
			return fmt.Errorf("filesystem storage requires a signing secret")
		}
		c.StorageType = "fs"
		c.FSBaseDir = baseDir
		if baseURL != "" {
			c.FSBaseURL = baseURL
		}
		c.SigningSecret = secretKey
		return nil
	}
}

// WithS3Storage selects S3 storage
func WithS3Storage(bucket, region string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		c.StorageType = "s3"
		c.S3Bucket = bucket
		if region != "" {
			c.S3Region = region
		}
		return nil
	}
}

// WithS3Endpoint points S3 storage at an S3-compatible service such as MinIO
func WithS3Endpoint(endpoint string, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		c.S3Endpoint = endpoint
		c.S3UsePathStyle = usePathStyle
		return nil
	}
}

// WithJWTIdentity verifies bearer credentials as HS256 JWTs
func WithJWTIdentity(secret, requiredScope string) Option {
	return func(c *ServerConfig) error {
		if secret == "" {
			return fmt.Errorf("jwt secret cannot be empty")
		}
		c.IdentityType = "jwt"
		c.JWTSecret = secret
		c.RequiredScope = requiredScope
		return nil
	}
}

// WithRemoteIdentity verifies bearer credentials against an HTTP endpoint
func WithRemoteIdentity(url string, ratePerSecond float64, burst int) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("identity URL cannot be empty")
		}
		if ratePerSecond <= 0 || burst <= 0 {
			return fmt.Errorf("identity rate limit must be positive")
		}
		c.IdentityType = "remote"
		c.IdentityURL = url
		c.IdentityRateLimit = ratePerSecond
		c.IdentityBurst = burst
		return nil
	}
}

// WithCredentialCache sets credential cache lifetime and capacity
func WithCredentialCache(ttl time.Duration, size int) Option {
	return func(c *ServerConfig) error {
		if ttl <= 0 {
			return fmt.Errorf("credential cache TTL must be positive")
		}
		c.CredentialCacheTTL = ttl
		if size > 0 {
			c.CredentialCacheSize = size
		}
		return nil
	}
}

// WithFFmpeg sets the ffmpeg binary path
func WithFFmpeg(path string) Option {
	return func(c *ServerConfig) error {
		if path == "" {
			return fmt.Errorf("ffmpeg path cannot be empty")
		}
		c.FFmpegPath = path
		return nil
	}
}

// WithPrefixCap bounds how much of a video the partial download strategy fetches
func WithPrefixCap(bytes int64) Option {
	return func(c *ServerConfig) error {
		if bytes <= 0 {
			return fmt.Errorf("prefix cap must be positive")
		}
		c.PrefixCapBytes = bytes
		return nil
	}
}

// WithPlaceholderURL sets the still returned when generation fails
func WithPlaceholderURL(url string) Option {
	return func(c *ServerConfig) error {
		c.PlaceholderURL = url
		return nil
	}
}

// WithTranscoder enables the managed transcoding fallback
func WithTranscoder(url string, pollInterval, pollTimeout time.Duration) Option {
	return func(c *ServerConfig) error {
		c.TranscoderURL = url
		if pollInterval > 0 {
			c.TranscoderPollInterval = pollInterval
		}
		if pollTimeout > 0 {
			c.TranscoderPollTimeout = pollTimeout
		}
		return nil
	}
}

// WithBatchParallelism bounds concurrent generations in one folder batch
func WithBatchParallelism(n int) Option {
	return func(c *ServerConfig) error {
		if n <= 0 {
			return fmt.Errorf("batch parallelism must be positive")
		}
		c.BatchParallelism = n
		return nil
	}
}
