package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchParallelism bounds concurrent per-video work in a folder batch.
const DefaultBatchParallelism = 4

// Service resolves thumbnails for single videos and whole folders. Stored
// thumbnails are served directly; missing ones go through the Orchestrator.
type Service struct {
	store            ObjectStore
	orchestrator     *Orchestrator
	ledger           Ledger
	urlTTL           time.Duration
	batchParallelism int
	metrics          MetricsRecorder
	logger           *slog.Logger
}

// Option represents a functional option for configuring the service
type Option func(*Service)

// WithObjectStore sets the object store
func WithObjectStore(store ObjectStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithOrchestrator sets the generation orchestrator
func WithOrchestrator(o *Orchestrator) Option {
	return func(s *Service) {
		s.orchestrator = o
	}
}

// WithServiceLedger exposes generation history through the service
func WithServiceLedger(ledger Ledger) Option {
	return func(s *Service) {
		s.ledger = ledger
	}
}

// WithURLTTL sets the lifetime of signed URLs for stored thumbnails
func WithURLTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.urlTTL = ttl
		}
	}
}

// WithBatchParallelism bounds concurrent work inside a folder batch
func WithBatchParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchParallelism = n
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (*Service, error) {
	s := &Service{
		urlTTL:           DefaultThumbnailURLTTL,
		batchParallelism: DefaultBatchParallelism,
		metrics:          NoopMetrics{},
		logger:           slog.Default(),
	}
	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if s.orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if s.ledger == nil {
		s.ledger = NoopLedger{}
	}
	return s, nil
}

// Thumbnail returns a usable thumbnail reference for one video key. Only
// ErrInvalidKey, ErrNotFound and storage lookup failures are returned;
// generation problems resolve to the placeholder.
func (s *Service) Thumbnail(ctx context.Context, videoKey string) (*Result, error) {
	if !IsVideoKey(videoKey) {
		return nil, fmt.Errorf("%w: %q is not under %s/", ErrInvalidKey, videoKey, VideosRoot)
	}
	videoKey = path.Clean(videoKey)
	thumbKey := ResolveThumbnailKey(videoKey)

	exists, err := s.store.Exists(ctx, thumbKey)
	if err != nil {
		// a failed lookup is not fatal, generation overwrites the same key
		s.logger.Warn("thumbnail existence check failed", "thumbnail_key", thumbKey, "error", err)
	}
	if exists {
		url, err := s.store.SignedReadURL(ctx, thumbKey, s.urlTTL)
		if err == nil {
			s.metrics.ThumbnailServed("existing")
			return &Result{URL: url, Strategy: StrategyExisting, Cached: true}, nil
		}
		s.logger.Warn("failed to sign existing thumbnail", "thumbnail_key", thumbKey, "error", err)
	}

	info, err := s.store.HeadObject(ctx, videoKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("video %s: %w", videoKey, ErrNotFound)
		}
		return nil, &StorageError{Key: videoKey, Op: "head", Err: err}
	}

	result := s.orchestrator.Generate(ctx, VideoObjectRef{
		Key:          videoKey,
		SizeBytes:    info.Size,
		LastModified: info.LastModified,
	})
	return &result, nil
}

// FolderThumbnails resolves thumbnails for every key in one folder. Keys
// that no longer exist are left out of the result; Cached is true only when
// every returned thumbnail was already stored. Result keys are cleaned.
func (s *Service) FolderThumbnails(ctx context.Context, folderPath string, videoKeys []string) (*FolderResult, error) {
	folder := path.Clean(folderPath)
	keys := make([]string, 0, len(videoKeys))
	seen := make(map[string]bool, len(videoKeys))
	for _, key := range videoKeys {
		key = path.Clean(key)
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
		if !InFolder(key, folder) {
			return nil, fmt.Errorf("%w: %q is not in folder %q", ErrInvalidKey, key, folder)
		}
		if !IsVideoKey(key) {
			return nil, fmt.Errorf("%w: %q is not under %s/", ErrInvalidKey, key, VideosRoot)
		}
	}

	var (
		mu     sync.Mutex
		urls   = make(map[string]string, len(keys))
		cached = true
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchParallelism)
	for _, key := range keys {
		g.Go(func() error {
			result, err := s.Thumbnail(gctx, key)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					s.logger.Info("skipping missing video in folder batch", "folder", folder, "video_key", key)
					return nil
				}
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			urls[key] = result.URL
			cached = cached && result.Cached
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &FolderResult{FolderPath: folder, URLs: urls, Cached: cached}, nil
}

// Generations returns the most recent generation records for a video key.
func (s *Service) Generations(ctx context.Context, videoKey string, limit int) ([]*Generation, error) {
	if !IsVideoKey(videoKey) {
		return nil, fmt.Errorf("%w: %q is not under %s/", ErrInvalidKey, videoKey, VideosRoot)
	}
	return s.ledger.ListByVideo(ctx, path.Clean(videoKey), limit)
}
