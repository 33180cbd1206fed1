package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail/api"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail/ffmpeg"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail/identity"
	ledgermemory "github.com/tendant/simple-thumbnail/pkg/thumbnail/ledger/memory"
	ledgerpg "github.com/tendant/simple-thumbnail/pkg/thumbnail/ledger/postgres"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail/metrics"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail/presigned"
	fsstorage "github.com/tendant/simple-thumbnail/pkg/thumbnail/storage/fs"
	memorystorage "github.com/tendant/simple-thumbnail/pkg/thumbnail/storage/memory"
	s3storage "github.com/tendant/simple-thumbnail/pkg/thumbnail/storage/s3"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail/transcoder"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Host:        "0.0.0.0",
		Port:        "8080",
		Environment: "development",

		StorageType: "memory",
		FSBaseDir:   "./data/storage",
		FSBaseURL:   "http://localhost:8080",
		S3Region:    "us-east-1",

		DatabaseType: "memory",
		DBSchema:     "",

		IdentityType:        "jwt",
		RequiredScope:       "",
		IdentityRateLimit:   identity.DefaultRemoteRate,
		IdentityBurst:       identity.DefaultRemoteRate,
		CredentialCacheTTL:  thumbnail.DefaultCredentialTTL,
		CredentialCacheSize: thumbnail.DefaultCredentialSize,

		FFmpegPath:      ffmpeg.DefaultBinary,
		FrameOffset:     thumbnail.DefaultFrameOffset,
		FrameWidth:      thumbnail.DefaultFrameWidth,
		StreamTimeout:   thumbnail.DefaultStreamTimeout,
		PrefixCapBytes:  thumbnail.DefaultPrefixCap,
		SourceURLTTL:    thumbnail.DefaultSourceURLTTL,
		ThumbnailURLTTL: thumbnail.DefaultThumbnailURLTTL,
		PlaceholderURL:  thumbnail.DefaultPlaceholderURL,

		TranscoderPollInterval: 2 * time.Second,
		TranscoderPollTimeout:  time.Minute,

		BatchParallelism: thumbnail.DefaultBatchParallelism,
		MetricsNamespace: metrics.DefaultNamespace,
	}
}

// ServerConfig represents server configuration for the thumbnail service.
// Fields carry env tags read by WithEnv.
type ServerConfig struct {
	Host        string `env:"HOST" env-description:"Listen host"`
	Port        string `env:"PORT" env-description:"Listen port"`
	Environment string `env:"ENVIRONMENT" env-description:"development, production, testing"`

	// Storage configuration
	StorageType       string `env:"STORAGE_TYPE" env-description:"memory, fs or s3"`
	FSBaseDir         string `env:"FS_BASE_DIR"`
	FSBaseURL         string `env:"FS_BASE_URL" env-description:"Public base URL that serves /files for the fs backend"`
	SigningSecret     string `env:"SIGNING_SECRET" env-description:"HMAC secret for fs read URLs"`
	S3Bucket          string `env:"S3_BUCKET"`
	S3Region          string `env:"AWS_REGION"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3UsePathStyle    bool   `env:"S3_USE_PATH_STYLE"`
	S3EnableSSE       bool   `env:"S3_ENABLE_SSE"`
	S3SSEAlgorithm    string `env:"S3_SSE_ALGORITHM"`
	S3SSEKMSKeyID     string `env:"S3_SSE_KMS_KEY_ID"`

	// Generation ledger
	DatabaseType string `env:"DATABASE_TYPE" env-description:"memory or postgres"`
	DatabaseURL  string `env:"DATABASE_URL"`
	DBSchema     string `env:"DB_SCHEMA"`

	// Identity
	IdentityType        string        `env:"IDENTITY_TYPE" env-description:"jwt or remote"`
	JWTSecret           string        `env:"JWT_SECRET"`
	RequiredScope       string        `env:"REQUIRED_SCOPE"`
	IdentityURL         string        `env:"IDENTITY_URL"`
	IdentityRateLimit   float64       `env:"IDENTITY_RATE_LIMIT"`
	IdentityBurst       int           `env:"IDENTITY_BURST"`
	CredentialCacheTTL  time.Duration `env:"CREDENTIAL_CACHE_TTL"`
	CredentialCacheSize int           `env:"CREDENTIAL_CACHE_SIZE"`

	// Extraction
	FFmpegPath      string        `env:"FFMPEG_PATH"`
	FrameOffset     time.Duration `env:"FRAME_OFFSET"`
	FrameWidth      int           `env:"FRAME_WIDTH"`
	StreamTimeout   time.Duration `env:"STREAM_TIMEOUT"`
	PrefixCapBytes  int64         `env:"PREFIX_CAP_BYTES"`
	TempDir         string        `env:"THUMBNAIL_TEMP_DIR"`
	SourceURLTTL    time.Duration `env:"SOURCE_URL_TTL"`
	ThumbnailURLTTL time.Duration `env:"THUMBNAIL_URL_TTL"`
	PlaceholderURL  string        `env:"PLACEHOLDER_URL"`

	// Managed transcoding fallback, disabled when TranscoderURL is empty
	TranscoderURL          string        `env:"TRANSCODER_URL"`
	TranscoderPollInterval time.Duration `env:"TRANSCODER_POLL_INTERVAL"`
	TranscoderPollTimeout  time.Duration `env:"TRANSCODER_POLL_TIMEOUT"`

	BatchParallelism int    `env:"BATCH_PARALLELISM"`
	MetricsNamespace string `env:"METRICS_NAMESPACE"`
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.StorageType {
	case "memory":
	case "fs":
		if c.FSBaseDir == "" {
			return errors.New("fs_base_dir is required for fs storage")
		}
		if c.SigningSecret == "" {
			return errors.New("signing_secret is required for fs storage")
		}
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("s3_bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("storage_type must be 'memory', 'fs' or 's3', got: %s", c.StorageType)
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.IdentityType {
	case "jwt":
		if c.JWTSecret == "" {
			return errors.New("jwt_secret is required for jwt identity")
		}
	case "remote":
		if c.IdentityURL == "" {
			return errors.New("identity_url is required for remote identity")
		}
	default:
		return fmt.Errorf("identity_type must be 'jwt' or 'remote', got: %s", c.IdentityType)
	}

	if c.CredentialCacheTTL <= 0 {
		return errors.New("credential_cache_ttl must be positive")
	}
	if c.BatchParallelism <= 0 {
		return errors.New("batch_parallelism must be positive")
	}
	if c.PrefixCapBytes <= 0 {
		return errors.New("prefix_cap_bytes must be positive")
	}
	return nil
}

// Runtime is the wired service graph built from a ServerConfig
type Runtime struct {
	Service     *thumbnail.Service
	Credentials *thumbnail.CredentialCache
	Metrics     *metrics.Recorder
	Store       thumbnail.ObjectStore

	// FileServer serves signed fs read URLs; nil for other backends
	FileServer http.Handler

	// Placeholder serves the generic still at PlaceholderPath when the
	// placeholder URL is server-relative; nil when it points elsewhere
	PlaceholderPath string
	Placeholder     http.Handler

	closers []func()
}

// Close releases pooled resources
func (r *Runtime) Close() {
	for _, fn := range r.closers {
		fn()
	}
}

// BuildService creates the thumbnail service and its collaborators from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context) (*Runtime, error) {
	rt := &Runtime{}
	logger := slog.Default().With("component", "thumbnail")

	recorder, err := metrics.New(c.MetricsNamespace, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build metrics: %w", err)
	}
	rt.Metrics = recorder

	store, fileServer, err := c.buildStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.StorageType, err)
	}
	rt.Store = store
	rt.FileServer = fileServer
	if p := placeholderPath(c.PlaceholderURL); p != "" {
		rt.PlaceholderPath = p
		rt.Placeholder = api.PlaceholderHandler()
	}

	ledger, closeLedger, err := c.buildLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger: %w", err)
	}
	if closeLedger != nil {
		rt.closers = append(rt.closers, closeLedger)
	}

	provider, err := c.buildIdentityProvider()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build identity provider: %w", err)
	}
	rt.Credentials = thumbnail.NewCredentialCache(provider, c.CredentialCacheTTL, c.CredentialCacheSize,
		thumbnail.WithCredentialMetrics(recorder),
		thumbnail.WithCredentialLogger(logger),
	)

	orchestrator := thumbnail.NewOrchestrator(store, c.buildStrategies(store, logger),
		thumbnail.WithPlaceholderURL(c.PlaceholderURL),
		thumbnail.WithThumbnailURLTTL(c.ThumbnailURLTTL),
		thumbnail.WithLedger(ledger),
		thumbnail.WithOrchestratorMetrics(recorder),
		thumbnail.WithOrchestratorLogger(logger),
	)

	svc, err := thumbnail.New(
		thumbnail.WithObjectStore(store),
		thumbnail.WithOrchestrator(orchestrator),
		thumbnail.WithServiceLedger(ledger),
		thumbnail.WithURLTTL(c.ThumbnailURLTTL),
		thumbnail.WithBatchParallelism(c.BatchParallelism),
		thumbnail.WithMetrics(recorder),
		thumbnail.WithLogger(logger),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc
	return rt, nil
}

// buildStrategies returns the strategy chain in order: streaming,
// partial download, managed fallback.
func (c *ServerConfig) buildStrategies(store thumbnail.ObjectStore, logger *slog.Logger) []thumbnail.Strategy {
	extractor := ffmpeg.New(ffmpeg.WithBinary(c.FFmpegPath), ffmpeg.WithLogger(logger))

	streaming := thumbnail.NewStreamingStrategy(store, extractor)
	streaming.Frame.Offset = c.FrameOffset
	streaming.Frame.Width = c.FrameWidth
	streaming.Frame.Timeout = c.StreamTimeout
	streaming.URLTTL = c.SourceURLTTL

	partial := thumbnail.NewPartialDownloadStrategy(store, extractor)
	partial.Frame.Offset = c.FrameOffset
	partial.Frame.Width = c.FrameWidth
	partial.URLTTL = c.SourceURLTTL
	partial.PrefixCap = c.PrefixCapBytes
	partial.TempDir = c.TempDir

	var tc thumbnail.Transcoder
	if c.TranscoderURL != "" {
		tc = transcoder.New(c.TranscoderURL)
	}
	managed := thumbnail.NewManagedFallbackStrategy(c.PlaceholderURL, tc, store)
	managed.URLTTL = c.ThumbnailURLTTL
	managed.PollInterval = c.TranscoderPollInterval
	managed.PollTimeout = c.TranscoderPollTimeout
	managed.Logger = logger

	return []thumbnail.Strategy{streaming, partial, managed}
}

// placeholderPath returns the route for a server-relative placeholder URL
func placeholderPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return ""
	}
	return u.Path
}

// buildStore creates an ObjectStore based on the configuration
func (c *ServerConfig) buildStore(ctx context.Context) (thumbnail.ObjectStore, http.Handler, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(""), nil, nil

	case "fs":
		signer := presigned.New(presigned.WithSecretKey(c.SigningSecret))
		backend, err := fsstorage.New(fsstorage.Config{
			BaseDir: c.FSBaseDir,
			BaseURL: c.FSBaseURL,
		}, signer)
		if err != nil {
			return nil, nil, err
		}
		return backend, presigned.ServeHandler(signer, backend), nil

	case "s3":
		backend, err := s3storage.New(ctx, s3storage.Config{
			Region:          c.S3Region,
			Bucket:          c.S3Bucket,
			AccessKeyID:     c.S3AccessKeyID,
			SecretAccessKey: c.S3SecretAccessKey,
			Endpoint:        c.S3Endpoint,
			UsePathStyle:    c.S3UsePathStyle,
			EnableSSE:       c.S3EnableSSE,
			SSEAlgorithm:    c.S3SSEAlgorithm,
			SSEKMSKeyID:     c.S3SSEKMSKeyID,
		})
		if err != nil {
			return nil, nil, err
		}
		return backend, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

// buildLedger creates a Ledger based on the configuration
func (c *ServerConfig) buildLedger(ctx context.Context) (thumbnail.Ledger, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return ledgermemory.New(), nil, nil
	case "postgres":
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
			return err
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		ledger := ledgerpg.NewWithPool(pool)
		if err := ledger.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return ledger, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildIdentityProvider creates the IdentityProvider behind the credential cache
func (c *ServerConfig) buildIdentityProvider() (thumbnail.IdentityProvider, error) {
	switch c.IdentityType {
	case "jwt":
		var opts []identity.JWTOption
		if c.RequiredScope != "" {
			opts = append(opts, identity.WithRequiredScope(c.RequiredScope))
		}
		return identity.NewJWTProvider(c.JWTSecret, opts...)
	case "remote":
		return identity.NewRemoteProvider(c.IdentityURL,
			identity.WithRateLimit(c.IdentityRateLimit, c.IdentityBurst),
		)
	default:
		return nil, fmt.Errorf("unsupported identity type: %s", c.IdentityType)
	}
}
