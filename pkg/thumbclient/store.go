package thumbclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RecordVersion is the schema version of persisted folder records
const RecordVersion = 1

// FolderRecord is the persisted form of one folder's thumbnail batch
type FolderRecord struct {
	Version       int               `json:"version"`
	FolderPath    string            `json:"folderPath"`
	ThumbnailURLs map[string]string `json:"thumbnailUrls"`
	ExpiresAt     time.Time         `json:"expiresAt"`
}

func (r *FolderRecord) valid(folder string) bool {
	return r != nil &&
		r.Version == RecordVersion &&
		r.FolderPath == folder &&
		r.ThumbnailURLs != nil &&
		!r.ExpiresAt.IsZero()
}

// FolderStore persists one record per folder. Load returns nil, nil when no
// usable record exists; malformed records are pruned rather than returned.
type FolderStore interface {
	Load(ctx context.Context, folder string) (*FolderRecord, error)
	Save(ctx context.Context, record *FolderRecord) error
	Delete(ctx context.Context, folder string) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps folder records for the lifetime of the process
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]FolderRecord
}

// NewMemoryStore creates an empty in-memory folder store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]FolderRecord)}
}

func (s *MemoryStore) Load(ctx context.Context, folder string) (*FolderRecord, error) {
	s.mu.RLock()
	rec, ok := s.records[folder]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !rec.valid(folder) {
		return nil, s.Delete(ctx, folder)
	}
	rec.ThumbnailURLs = copyURLs(rec.ThumbnailURLs)
	return &rec, nil
}

func (s *MemoryStore) Save(ctx context.Context, record *FolderRecord) error {
	rec := *record
	rec.ThumbnailURLs = copyURLs(record.ThumbnailURLs)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.FolderPath] = rec
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, folder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, folder)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]FolderRecord)
	return nil
}

// FileStore keeps one JSON file per folder under a directory. Writes go
// through a temp file and rename so a record is never half written.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

const recordExt = ".json"

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("folder store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// pathFor hashes the folder path so any folder name maps to a safe file name
func (s *FileStore) pathFor(folder string) string {
	sum := sha256.Sum256([]byte(folder))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+recordExt)
}

func (s *FileStore) Load(ctx context.Context, folder string) (*FolderRecord, error) {
	data, err := os.ReadFile(s.pathFor(folder))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read folder record: %w", err)
	}

	var rec FolderRecord
	if err := json.Unmarshal(data, &rec); err != nil || !rec.valid(folder) {
		return nil, s.Delete(ctx, folder)
	}
	return &rec, nil
}

func (s *FileStore) Save(ctx context.Context, record *FolderRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal folder record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".folder-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, s.pathFor(record.FolderPath)); err != nil {
		os.Remove(tmpPath) // Best effort cleanup
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, folder string) error {
	err := os.Remove(s.pathFor(folder))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete folder record: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list folder records: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("clear folder records: %w", err)
		}
	}
	return nil
}

func copyURLs(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
