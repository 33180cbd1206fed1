package thumbnail_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail/storage/memory"
)

// scriptedTranscoder reports the given states in order, repeating the last
type scriptedTranscoder struct {
	submitErr error
	states    []thumbnail.JobStatus
	polls     atomic.Int32
}

func (s *scriptedTranscoder) Submit(ctx context.Context, video thumbnail.VideoObjectRef) (thumbnail.JobHandle, error) {
	if s.submitErr != nil {
		return thumbnail.JobHandle{}, s.submitErr
	}
	return thumbnail.JobHandle{ID: "job-1"}, nil
}

func (s *scriptedTranscoder) Status(ctx context.Context, job thumbnail.JobHandle) (thumbnail.JobStatus, error) {
	n := int(s.polls.Add(1)) - 1
	if n >= len(s.states) {
		n = len(s.states) - 1
	}
	return s.states[n], nil
}

func managedWith(store thumbnail.ObjectStore, tr thumbnail.Transcoder) *thumbnail.ManagedFallbackStrategy {
	s := thumbnail.NewManagedFallbackStrategy("/static/ph.jpg", tr, store)
	s.PollInterval = time.Millisecond
	s.PollTimeout = 200 * time.Millisecond
	return s
}

var managedAttempt = thumbnail.Attempt{
	Video:     thumbnail.VideoObjectRef{Key: "videos/a.mkv"},
	Thumbnail: thumbnail.ThumbnailObjectRef{Key: "thumbnails/a.jpg"},
}

func TestManaged_NoTranscoderIsPlaceholder(t *testing.T) {
	s := thumbnail.NewManagedFallbackStrategy("", nil, nil)
	outcome, err := s.Attempt(context.Background(), managedAttempt)
	require.NoError(t, err)
	assert.Equal(t, &thumbnail.Outcome{URL: thumbnail.DefaultPlaceholderURL, Placeholder: true}, outcome)
}

func TestManaged_PollsUntilSucceeded(t *testing.T) {
	store := memory.New("https://cdn.test/")
	require.NoError(t, store.PutObject(context.Background(), "thumbnails/a.jpg", strings.NewReader("jpeg"), "image/jpeg"))
	tr := &scriptedTranscoder{states: []thumbnail.JobStatus{
		{State: thumbnail.JobStatePending},
		{State: thumbnail.JobStateRunning},
		{State: thumbnail.JobStateSucceeded},
	}}

	outcome, err := managedWith(store, tr).Attempt(context.Background(), managedAttempt)
	require.NoError(t, err)
	assert.False(t, outcome.Placeholder)
	assert.True(t, strings.HasPrefix(outcome.URL, "https://cdn.test/thumbnails/a.jpg?expires="))
	assert.Equal(t, int32(3), tr.polls.Load())
}

func TestManaged_FailuresResolveToPlaceholder(t *testing.T) {
	store := memory.New("")
	tests := []struct {
		name string
		tr   *scriptedTranscoder
	}{
		{"submit fails", &scriptedTranscoder{submitErr: errors.New("quota exceeded")}},
		{"job fails", &scriptedTranscoder{states: []thumbnail.JobStatus{{State: thumbnail.JobStateFailed, Err: "bad input"}}}},
		{"job never finishes", &scriptedTranscoder{states: []thumbnail.JobStatus{{State: thumbnail.JobStateRunning}}}},
		{"output missing", &scriptedTranscoder{states: []thumbnail.JobStatus{{State: thumbnail.JobStateSucceeded, OutputKey: "thumbnails/missing.jpg"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := managedWith(store, tt.tr).Attempt(context.Background(), managedAttempt)
			require.NoError(t, err)
			assert.Equal(t, &thumbnail.Outcome{URL: "/static/ph.jpg", Placeholder: true}, outcome)
		})
	}
}
