package thumbclient

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCacheTTL is how long a fetched folder batch is trusted. It stays
	// below the server's signed URL lifetime.
	DefaultCacheTTL = 50 * time.Minute

	// DefaultSafetyBuffer is subtracted from the expiry so a URL is never
	// handed out moments before it stops working.
	DefaultSafetyBuffer = 5 * time.Minute

	// DefaultFetchTimeout bounds one shared batch fetch
	DefaultFetchTimeout = 2 * time.Minute
)

// FetchFunc returns the thumbnail URLs for every known video in folder
type FetchFunc func(ctx context.Context, folder string) (map[string]string, error)

// folderEntry is immutable once installed; refreshes replace it wholesale
type folderEntry struct {
	folderPath string
	urls       map[string]string
	expiresAt  time.Time
}

// Cache is the per-folder thumbnail URL cache. One entry covers a whole
// folder; concurrent loads of the same folder share one fetch.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*folderEntry

	group        singleflight.Group
	fetch        FetchFunc
	store        FolderStore
	ttl          time.Duration
	safetyBuffer time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithFolderStore persists folder entries
func WithFolderStore(store FolderStore) CacheOption {
	return func(c *Cache) {
		if store != nil {
			c.store = store
		}
	}
}

// WithCacheTTL sets the entry lifetime and safety buffer
func WithCacheTTL(ttl, safetyBuffer time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
		if safetyBuffer >= 0 {
			c.safetyBuffer = safetyBuffer
		}
	}
}

// WithFetchTimeout bounds one shared batch fetch
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithCacheClock injects the time source
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCacheLogger sets the cache logger
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache creates a cache that loads folders with fetch
func NewCache(fetch FetchFunc, opts ...CacheOption) *Cache {
	c := &Cache{
		entries:      make(map[string]*folderEntry),
		fetch:        fetch,
		store:        NewMemoryStore(),
		ttl:          DefaultCacheTTL,
		safetyBuffer: DefaultSafetyBuffer,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FolderOf returns the folder that owns videoKey
func FolderOf(videoKey string) string {
	return path.Dir(path.Clean(videoKey))
}

func (c *Cache) isLive(expiresAt time.Time) bool {
	return c.now().Before(expiresAt.Add(-c.safetyBuffer))
}

// Get returns the cached URL for videoKey. It reads memory and the local
// store only and never reaches the network.
func (c *Cache) Get(ctx context.Context, videoKey string) (string, bool) {
	entry := c.liveEntry(ctx, FolderOf(videoKey))
	if entry == nil {
		return "", false
	}
	url, ok := entry.urls[path.Clean(videoKey)]
	return url, ok
}

// Loaded reports whether folder has a live entry
func (c *Cache) Loaded(ctx context.Context, folder string) bool {
	return c.liveEntry(ctx, path.Clean(folder)) != nil
}

func (c *Cache) liveEntry(ctx context.Context, folder string) *folderEntry {
	c.mu.RLock()
	entry := c.entries[folder]
	c.mu.RUnlock()

	if entry != nil {
		if c.isLive(entry.expiresAt) {
			return entry
		}
		c.mu.Lock()
		if c.entries[folder] == entry {
			delete(c.entries, folder)
		}
		c.mu.Unlock()
	}

	rec, err := c.store.Load(ctx, folder)
	if err != nil {
		c.logger.Warn("failed to read persisted folder", "folder", folder, "error", err)
		return nil
	}
	if rec == nil {
		return nil
	}
	if !c.isLive(rec.ExpiresAt) {
		if err := c.store.Delete(ctx, folder); err != nil {
			c.logger.Warn("failed to prune expired folder", "folder", folder, "error", err)
		}
		return nil
	}

	entry = &folderEntry{folderPath: folder, urls: rec.ThumbnailURLs, expiresAt: rec.ExpiresAt}
	c.mu.Lock()
	// a concurrent fetch may have installed a newer entry
	if current := c.entries[folder]; current == nil || current.expiresAt.Before(entry.expiresAt) {
		c.entries[folder] = entry
	} else {
		entry = current
	}
	c.mu.Unlock()
	return entry
}

// EnsureLoaded makes sure folder has a live entry. Concurrent callers for
// the same folder share a single fetch. The shared fetch is detached from
// any one caller's context; each caller stops waiting when its own ctx ends.
func (c *Cache) EnsureLoaded(ctx context.Context, folder string) error {
	folder = path.Clean(folder)
	if c.liveEntry(ctx, folder) != nil {
		return nil
	}

	ch := c.group.DoChan(folder, func() (interface{}, error) {
		// a flight that finished just before this one started already did the work
		if c.liveEntry(ctx, folder) != nil {
			return nil, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return nil, c.refresh(fetchCtx, folder)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (c *Cache) refresh(ctx context.Context, folder string) error {
	start := c.now()
	urls, err := c.fetch(ctx, folder)
	if err != nil {
		return fmt.Errorf("fetch folder %s: %w", folder, err)
	}
	if urls == nil {
		urls = map[string]string{}
	}

	entry := &folderEntry{
		folderPath: folder,
		urls:       copyURLs(urls),
		expiresAt:  start.Add(c.ttl),
	}
	c.mu.Lock()
	c.entries[folder] = entry
	c.mu.Unlock()

	err = c.store.Save(ctx, &FolderRecord{
		Version:       RecordVersion,
		FolderPath:    folder,
		ThumbnailURLs: entry.urls,
		ExpiresAt:     entry.expiresAt,
	})
	if err != nil {
		c.logger.Warn("failed to persist folder", "folder", folder, "error", err)
	}

	c.logger.Debug("folder thumbnails loaded", "folder", folder, "count", len(urls))
	return nil
}

// Lookup returns the cached URL, loading the folder batch on a miss. A key
// still missing after the load yields ErrNotFound.
func (c *Cache) Lookup(ctx context.Context, videoKey string) (string, error) {
	if url, ok := c.Get(ctx, videoKey); ok {
		return url, nil
	}
	if err := c.EnsureLoaded(ctx, FolderOf(videoKey)); err != nil {
		return "", err
	}
	if url, ok := c.Get(ctx, videoKey); ok {
		return url, nil
	}
	return "", fmt.Errorf("%s: %w", videoKey, ErrNotFound)
}

// Invalidate drops folder from memory and the persistent store
func (c *Cache) Invalidate(ctx context.Context, folder string) error {
	folder = path.Clean(folder)
	c.mu.Lock()
	delete(c.entries, folder)
	c.mu.Unlock()
	return c.store.Delete(ctx, folder)
}

// Clear drops every folder
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*folderEntry)
	c.mu.Unlock()
	return c.store.Clear(ctx)
}
