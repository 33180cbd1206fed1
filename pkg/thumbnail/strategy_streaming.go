package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	StrategyStreaming       = "streaming"
	StrategyPartialDownload = "partial_download"
	StrategyManagedFallback = "managed_fallback"
	StrategyPlaceholder     = "placeholder"
	StrategyExisting        = "existing"
)

// Defaults shared by the extraction strategies
const (
	DefaultFrameOffset   = 3 * time.Second
	DefaultFrameWidth    = 320
	DefaultSourceURLTTL  = 15 * time.Minute
	DefaultStreamTimeout = 30 * time.Second
)

// StreamingStrategy extracts a frame directly from a signed read URL. The
// extractor is expected to seek with range requests; nothing is written
// locally.
type StreamingStrategy struct {
	Store     ObjectStore
	Extractor FrameExtractor
	Frame     ExtractOptions
	URLTTL    time.Duration
}

// NewStreamingStrategy creates a streaming strategy with default offset,
// width, URL lifetime and timeout.
func NewStreamingStrategy(store ObjectStore, extractor FrameExtractor) *StreamingStrategy {
	return &StreamingStrategy{
		Store:     store,
		Extractor: extractor,
		Frame: ExtractOptions{
			Offset:  DefaultFrameOffset,
			Width:   DefaultFrameWidth,
			Timeout: DefaultStreamTimeout,
		},
		URLTTL: DefaultSourceURLTTL,
	}
}

func (s *StreamingStrategy) Name() string { return StrategyStreaming }

func (s *StreamingStrategy) Attempt(ctx context.Context, attempt Attempt) (*Outcome, error) {
	if s.Store == nil || s.Extractor == nil {
		return nil, errors.New("streaming strategy is not configured")
	}

	sourceURL, err := s.Store.SignedReadURL(ctx, attempt.Video.Key, s.URLTTL)
	if err != nil {
		return nil, fmt.Errorf("sign source url: %w", err)
	}

	frame, err := s.Extractor.ExtractFrame(ctx, sourceURL, s.Frame)
	if err != nil {
		return nil, &ExtractionError{Strategy: StrategyStreaming, Err: err}
	}
	if len(frame) == 0 {
		return nil, &ExtractionError{Strategy: StrategyStreaming, Err: errors.New("empty frame")}
	}

	return &Outcome{Frame: frame, ContentType: ThumbnailContentType}, nil
}
