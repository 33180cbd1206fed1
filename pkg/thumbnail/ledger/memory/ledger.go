package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

// Ledger implements thumbnail.Ledger using in-memory storage
type Ledger struct {
	mu      sync.RWMutex
	byVideo map[string][]*thumbnail.Generation
}

// New creates a new in-memory ledger
func New() *Ledger {
	return &Ledger{
		byVideo: make(map[string][]*thumbnail.Generation),
	}
}

func (l *Ledger) Record(ctx context.Context, generation *thumbnail.Generation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Create a copy to avoid external modifications
	g := *generation
	l.byVideo[g.VideoKey] = append(l.byVideo[g.VideoKey], &g)
	return nil
}

// ListByVideo returns the newest records first. A non-positive limit returns all.
func (l *Ledger) ListByVideo(ctx context.Context, videoKey string, limit int) ([]*thumbnail.Generation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records := l.byVideo[videoKey]
	out := make([]*thumbnail.Generation, 0, len(records))
	for _, g := range records {
		cp := *g
		out = append(out, &cp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GeneratedAt.After(out[j].GeneratedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
