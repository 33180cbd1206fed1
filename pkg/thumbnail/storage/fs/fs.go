package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail/presigned"
)

// Backend is a filesystem implementation of thumbnail.ObjectStore. Signed
// read URLs point at a presigned.ServeHandler mounted under BaseURL.
type Backend struct {
	baseDir string
	baseURL string
	signer  *presigned.Signer
}

// Config options for the filesystem backend
type Config struct {
	BaseDir   string // Base directory for storing files
	BaseURL   string // Public URL of the server, e.g. http://localhost:8080
	SecretKey string // HMAC key for signed read URLs
}

// New creates a new filesystem storage backend
func New(config Config, signer *presigned.Signer) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if signer == nil {
		signer = presigned.New(presigned.WithSecretKey(config.SecretKey))
	}
	if !signer.IsEnabled() {
		return nil, errors.New("secret key is required for signed URLs")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir: config.BaseDir,
		baseURL: config.BaseURL,
		signer:  signer,
	}, nil
}

// Signer returns the signer used for read URLs
func (b *Backend) Signer() *presigned.Signer {
	return b.signer
}

func (b *Backend) pathOf(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash("/" + key))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("%w: empty key", thumbnail.ErrInvalidKey)
	}
	return filepath.Join(b.baseDir, strings.TrimPrefix(clean, string(filepath.Separator))), nil
}

// Exists reports whether a regular file is stored at key
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	p, err := b.pathOf(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// HeadObject retrieves metadata for an object in the filesystem
func (b *Backend) HeadObject(ctx context.Context, key string) (*thumbnail.ObjectInfo, error) {
	p, err := b.pathOf(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return nil, thumbnail.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	return &thumbnail.ObjectInfo{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

// SignedReadURL returns an HMAC signed URL served by presigned.ServeHandler
func (b *Backend) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return b.signer.SignURL(b.baseURL, key, ttl)
}

// PutObject writes reader to key. The file is written to a temporary name
// and renamed so readers never observe a partial thumbnail.
func (b *Backend) PutObject(ctx context.Context, key string, reader io.Reader, contentType string) error {
	p, err := b.pathOf(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Open opens key for serving; it implements presigned.Opener
func (b *Backend) Open(ctx context.Context, key string) (io.ReadSeekCloser, time.Time, error) {
	p, err := b.pathOf(key)
	if err != nil {
		return nil, time.Time{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, time.Time{}, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, time.Time{}, err
	}
	if info.IsDir() {
		f.Close()
		return nil, time.Time{}, os.ErrNotExist
	}
	return f, info.ModTime(), nil
}
