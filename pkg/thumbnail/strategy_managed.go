package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultPlaceholderURL is the generic still returned when nothing better exists.
const DefaultPlaceholderURL = "/static/video-placeholder.jpg"

// ManagedFallbackStrategy always resolves to some thumbnail reference. With
// no Transcoder configured it returns the generic placeholder right away.
// With a Transcoder it submits a job and polls until the output is ready,
// falling back to the placeholder on any failure or timeout.
type ManagedFallbackStrategy struct {
	PlaceholderURL string
	Transcoder     Transcoder
	Store          ObjectStore
	URLTTL         time.Duration
	PollInterval   time.Duration
	PollTimeout    time.Duration
	Logger         *slog.Logger
}

// NewManagedFallbackStrategy creates the fallback strategy. transcoder may be nil.
func NewManagedFallbackStrategy(placeholderURL string, transcoder Transcoder, store ObjectStore) *ManagedFallbackStrategy {
	if placeholderURL == "" {
		placeholderURL = DefaultPlaceholderURL
	}
	return &ManagedFallbackStrategy{
		PlaceholderURL: placeholderURL,
		Transcoder:     transcoder,
		Store:          store,
		URLTTL:         time.Hour,
		PollInterval:   2 * time.Second,
		PollTimeout:    2 * time.Minute,
	}
}

func (s *ManagedFallbackStrategy) Name() string { return StrategyManagedFallback }

func (s *ManagedFallbackStrategy) Attempt(ctx context.Context, attempt Attempt) (*Outcome, error) {
	if s.Transcoder == nil || s.Store == nil {
		return s.placeholder(), nil
	}

	url, err := s.transcode(ctx, attempt)
	if err != nil {
		s.logger().Warn("managed transcoding failed, using placeholder",
			"video_key", attempt.Video.Key, "error", err)
		return s.placeholder(), nil
	}
	return &Outcome{URL: url}, nil
}

func (s *ManagedFallbackStrategy) transcode(ctx context.Context, attempt Attempt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.PollTimeout)
	defer cancel()

	job, err := s.Transcoder.Submit(ctx, attempt.Video)
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}

	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		status, err := s.Transcoder.Status(ctx, job)
		if err != nil {
			return "", fmt.Errorf("poll job %s: %w", job.ID, err)
		}
		switch status.State {
		case JobStateSucceeded:
			key := status.OutputKey
			if key == "" {
				key = attempt.Thumbnail.Key
			}
			return s.Store.SignedReadURL(ctx, key, s.URLTTL)
		case JobStateFailed:
			return "", fmt.Errorf("job %s failed: %s", job.ID, status.Err)
		}

		select {
		case <-ctx.Done():
			return "", errors.Join(fmt.Errorf("job %s not ready", job.ID), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *ManagedFallbackStrategy) placeholder() *Outcome {
	url := s.PlaceholderURL
	if url == "" {
		url = DefaultPlaceholderURL
	}
	return &Outcome{URL: url, Placeholder: true}
}

func (s *ManagedFallbackStrategy) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
