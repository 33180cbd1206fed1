package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

type object struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// Backend is an in-memory implementation of thumbnail.ObjectStore
type Backend struct {
	mu        sync.RWMutex
	objects   map[string]object
	urlPrefix string
	now       func() time.Time
}

// New creates a new in-memory object store. Signed URLs are built from
// urlPrefix ("memory://" when empty) and are not fetchable.
func New(urlPrefix string) *Backend {
	if urlPrefix == "" {
		urlPrefix = "memory://"
	}
	return &Backend{
		objects:   make(map[string]object),
		urlPrefix: urlPrefix,
		now:       time.Now,
	}
}

// Exists reports whether key is stored
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.objects[key]
	return ok, nil
}

// HeadObject returns metadata for key
func (b *Backend) HeadObject(ctx context.Context, key string) (*thumbnail.ObjectInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key]
	if !ok {
		return nil, thumbnail.ErrNotFound
	}
	return &thumbnail.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		LastModified: obj.lastModified,
	}, nil
}

// SignedReadURL returns a pseudo URL carrying the expiry
func (b *Backend) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ok, _ := b.Exists(ctx, key); !ok {
		return "", thumbnail.ErrNotFound
	}
	expires := b.now().Add(ttl).Unix()
	return fmt.Sprintf("%s%s?expires=%d", b.urlPrefix, key, expires), nil
}

// PutObject stores the content of reader under key
func (b *Backend) PutObject(ctx context.Context, key string, reader io.Reader, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = object{data: data, contentType: contentType, lastModified: b.now().UTC()}
	return nil
}

// Get returns a copy of the stored bytes
func (b *Backend) Get(key string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}
