package thumbclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// FolderLister is the file-management collaborator that knows which videos
// a folder holds
type FolderLister interface {
	ListVideos(ctx context.Context, folder string) ([]string, error)
}

// StaticLister serves fixed folder listings
type StaticLister map[string][]string

func (l StaticLister) ListVideos(ctx context.Context, folder string) ([]string, error) {
	return l[folder], nil
}

// NewAPIFetcher lists folder through lister and requests its thumbnails in
// one batch
func NewAPIFetcher(client *Client, lister FolderLister) FetchFunc {
	return func(ctx context.Context, folder string) (map[string]string, error) {
		keys, err := lister.ListVideos(ctx, folder)
		if err != nil {
			return nil, fmt.Errorf("list folder: %w", err)
		}
		if len(keys) == 0 {
			return map[string]string{}, nil
		}
		resp, err := client.FolderThumbnails(ctx, folder, keys)
		if err != nil {
			return nil, err
		}
		return resp.ThumbnailURLs, nil
	}
}

// LoadResult is the outcome for one key of LoadAll
type LoadResult struct {
	Key  string
	Data []byte
	Err  error
}

// Loader resolves and downloads thumbnails: cached batch URL first,
// single-key generation as fallback, every download through the queue and
// the retrier.
type Loader struct {
	cache   *Cache
	queue   *Queue
	retrier *Retrier
	client  *Client
	logger  *slog.Logger
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithLoaderLogger sets the loader logger
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader composes the client components. client may be nil, which
// disables the single-key fallback.
func NewLoader(cache *Cache, queue *Queue, retrier *Retrier, client *Client, opts ...LoaderOption) *Loader {
	l := &Loader{
		cache:   cache,
		queue:   queue,
		retrier: retrier,
		client:  client,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the thumbnail bytes for videoKey. A key that exhausted its
// retry budget fails with ErrTerminallyFailed so callers can show a static icon.
func (l *Loader) Load(ctx context.Context, videoKey string) ([]byte, error) {
	return Do(ctx, l.queue, func(ctx context.Context) ([]byte, error) {
		return l.load(ctx, videoKey)
	})
}

func (l *Loader) load(ctx context.Context, videoKey string) ([]byte, error) {
	url, err := l.resolve(ctx, videoKey)
	if err != nil {
		return nil, err
	}

	data, err := l.retrier.LoadWithRetry(ctx, url, videoKey)
	if errors.Is(err, ErrUnauthorized) {
		// the signed URL most likely expired; refresh the folder once
		l.logger.Info("thumbnail url rejected, refreshing folder", "video_key", videoKey)
		if err := l.cache.Invalidate(ctx, FolderOf(videoKey)); err != nil {
			l.logger.Warn("failed to invalidate folder", "video_key", videoKey, "error", err)
		}
		url, err = l.resolve(ctx, videoKey)
		if err != nil {
			return nil, err
		}
		data, err = l.retrier.LoadWithRetry(ctx, url, videoKey)
	}
	return data, err
}

func (l *Loader) resolve(ctx context.Context, videoKey string) (string, error) {
	url, err := l.cache.Lookup(ctx, videoKey)
	if err == nil {
		return url, nil
	}
	if ctx.Err() != nil || errors.Is(err, ErrUnauthorized) || l.client == nil {
		return "", err
	}

	l.logger.Info("batch lookup missed, requesting single thumbnail", "video_key", videoKey, "error", err)
	resp, err := l.client.Thumbnail(ctx, videoKey)
	if err != nil {
		return "", err
	}
	return resp.ThumbnailURL, nil
}

// LoadAll loads every key. Concurrency is bounded by the queue; results
// keep the order of keys.
func (l *Loader) LoadAll(ctx context.Context, keys []string) []LoadResult {
	results := make([]LoadResult, len(keys))
	var g errgroup.Group
	for i, key := range keys {
		g.Go(func() error {
			data, err := l.Load(ctx, key)
			results[i] = LoadResult{Key: key, Data: data, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
