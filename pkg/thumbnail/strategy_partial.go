package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// DefaultPrefixCap bounds how much of a video the partial download strategy fetches.
const DefaultPrefixCap int64 = 100 << 20

// PartialDownloadStrategy downloads a bounded prefix of the video into a
// temporary file and extracts the frame from the local copy. The temporary
// file is removed on every exit path.
type PartialDownloadStrategy struct {
	Store      ObjectStore
	Extractor  FrameExtractor
	HTTPClient *http.Client
	Frame      ExtractOptions
	URLTTL     time.Duration
	PrefixCap  int64
	TempDir    string // empty means os.TempDir()
}

// NewPartialDownloadStrategy creates a partial download strategy with the default prefix cap.
func NewPartialDownloadStrategy(store ObjectStore, extractor FrameExtractor) *PartialDownloadStrategy {
	return &PartialDownloadStrategy{
		Store:      store,
		Extractor:  extractor,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
		Frame: ExtractOptions{
			Offset: DefaultFrameOffset,
			Width:  DefaultFrameWidth,
		},
		URLTTL:    DefaultSourceURLTTL,
		PrefixCap: DefaultPrefixCap,
	}
}

func (s *PartialDownloadStrategy) Name() string { return StrategyPartialDownload }

// PrefixLength returns min(size, cap). A non-positive cap disables the bound.
func PrefixLength(size, prefixCap int64) int64 {
	if prefixCap > 0 && size > prefixCap {
		return prefixCap
	}
	return size
}

func (s *PartialDownloadStrategy) Attempt(ctx context.Context, attempt Attempt) (*Outcome, error) {
	if s.Store == nil || s.Extractor == nil {
		return nil, errors.New("partial download strategy is not configured")
	}

	prefix := PrefixLength(attempt.Video.SizeBytes, s.PrefixCap)
	if prefix <= 0 {
		return nil, &ExtractionError{Strategy: StrategyPartialDownload, Err: errors.New("source object is empty")}
	}

	sourceURL, err := s.Store.SignedReadURL(ctx, attempt.Video.Key, s.URLTTL)
	if err != nil {
		return nil, fmt.Errorf("sign source url: %w", err)
	}

	tmp, err := os.CreateTemp(s.TempDir, "thumbnail-src-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	written, err := s.downloadPrefix(ctx, sourceURL, prefix, tmp)
	if err != nil {
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	frame, err := s.Extractor.ExtractFrame(ctx, tmp.Name(), s.Frame)
	if err != nil {
		return nil, &ExtractionError{
			Strategy: StrategyPartialDownload,
			Err:      fmt.Errorf("no usable frame in %d byte prefix: %w", written, err),
		}
	}
	if len(frame) == 0 {
		return nil, &ExtractionError{Strategy: StrategyPartialDownload, Err: errors.New("empty frame")}
	}

	return &Outcome{Frame: frame, ContentType: ThumbnailContentType}, nil
}

// downloadPrefix copies at most prefix bytes of sourceURL into dst. The copy
// is bounded even if the server ignores the Range header.
func (s *PartialDownloadStrategy) downloadPrefix(ctx context.Context, sourceURL string, prefix int64, dst io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build range request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", prefix-1))

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch source prefix: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("fetch source prefix: unexpected status %d", resp.StatusCode)
	}

	written, err := io.CopyN(dst, resp.Body, prefix)
	if err != nil && !errors.Is(err, io.EOF) {
		return written, fmt.Errorf("copy source prefix: %w", err)
	}
	if written == 0 {
		return 0, errors.New("source prefix is empty")
	}
	return written, nil
}
