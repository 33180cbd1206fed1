package thumbnail_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

// countingStrategy records how often it ran and returns a fixed result
type countingStrategy struct {
	name    string
	calls   atomic.Int32
	outcome *thumbnail.Outcome
	err     error
}

func (s *countingStrategy) Name() string { return s.name }

func (s *countingStrategy) Attempt(ctx context.Context, a thumbnail.Attempt) (*thumbnail.Outcome, error) {
	s.calls.Add(1)
	return s.outcome, s.err
}

func succeeding(name string, frame string) *countingStrategy {
	return &countingStrategy{name: name, outcome: &thumbnail.Outcome{Frame: []byte(frame)}}
}

func failing(name string) *countingStrategy {
	return &countingStrategy{name: name, err: errors.New(name + " cannot decode")}
}

// recordingMetrics keeps every event
type recordingMetrics struct {
	mu       sync.Mutex
	attempts []string
	served   []string
	lookups  []string
}

func (m *recordingMetrics) StrategyAttempt(strategy, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, strategy+":"+outcome)
}

func (m *recordingMetrics) ThumbnailServed(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.served = append(m.served, source)
}

func (m *recordingMetrics) CredentialLookup(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups = append(m.lookups, result)
}

// brokenStore fails writes and signing but delegates lookups
type brokenStore struct {
	thumbnail.ObjectStore
}

func (brokenStore) PutObject(ctx context.Context, key string, r io.Reader, contentType string) error {
	return errors.New("disk full")
}

// urlStore signs every key as a fixed URL
type urlStore struct {
	url string
}

func (s urlStore) Exists(ctx context.Context, key string) (bool, error) { return false, nil }

func (s urlStore) HeadObject(ctx context.Context, key string) (*thumbnail.ObjectInfo, error) {
	return nil, thumbnail.ErrNotFound
}

func (s urlStore) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return s.url, nil
}

func (s urlStore) PutObject(ctx context.Context, key string, r io.Reader, contentType string) error {
	return nil
}
