package thumbnail_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

type extractorFunc func(ctx context.Context, input string, opts thumbnail.ExtractOptions) ([]byte, error)

func (f extractorFunc) ExtractFrame(ctx context.Context, input string, opts thumbnail.ExtractOptions) ([]byte, error) {
	return f(ctx, input, opts)
}

// rangeServer serves content honouring Range headers
func rangeServer(t *testing.T, content []byte) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "video.mp4", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// endlessServer ignores Range and streams until the client hangs up
func endlessServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunk := make([]byte, 32<<10)
		for {
			if _, err := w.Write(chunk); err != nil {
				return
			}
			if r.Context().Err() != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files must be removed")
}

func newPartial(t *testing.T, url string, extractor thumbnail.FrameExtractor, prefixCap int64) (*thumbnail.PartialDownloadStrategy, string) {
	s := thumbnail.NewPartialDownloadStrategy(urlStore{url: url}, extractor)
	s.PrefixCap = prefixCap
	s.TempDir = t.TempDir()
	return s, s.TempDir
}

func TestPartialDownload_ExtractsFromBoundedPrefix(t *testing.T) {
	content := bytes.Repeat([]byte("v"), 5000)
	srv := rangeServer(t, content)

	var gotSize int64
	var gotRange string
	extractor := extractorFunc(func(ctx context.Context, input string, opts thumbnail.ExtractOptions) ([]byte, error) {
		info, err := os.Stat(input)
		require.NoError(t, err)
		gotSize = info.Size()
		assert.Equal(t, thumbnail.DefaultFrameOffset, opts.Offset)
		return []byte("jpeg"), nil
	})
	s, dir := newPartial(t, srv.URL, extractor, 1000)
	s.HTTPClient = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotRange = r.Header.Get("Range")
		return http.DefaultTransport.RoundTrip(r)
	})}

	outcome, err := s.Attempt(context.Background(), thumbnail.Attempt{
		Video: thumbnail.VideoObjectRef{Key: "videos/a.mp4", SizeBytes: int64(len(content))},
	})

	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(outcome.Frame))
	assert.Equal(t, "bytes=0-999", gotRange)
	assert.Equal(t, int64(1000), gotSize)
	assertEmptyDir(t, dir)
}

func TestPartialDownload_SmallVideoIsFetchedWhole(t *testing.T) {
	content := []byte("tiny video")
	srv := rangeServer(t, content)

	var gotSize int64
	s, _ := newPartial(t, srv.URL, extractorFunc(func(ctx context.Context, input string, opts thumbnail.ExtractOptions) ([]byte, error) {
		info, err := os.Stat(input)
		require.NoError(t, err)
		gotSize = info.Size()
		return []byte("jpeg"), nil
	}), 1000)

	_, err := s.Attempt(context.Background(), thumbnail.Attempt{
		Video: thumbnail.VideoObjectRef{Key: "videos/a.mp4", SizeBytes: int64(len(content))},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), gotSize)
}

// A 3 GB upload in a codec the extractor cannot read: the download stays
// within the cap even when the server ignores Range, the attempt fails and
// nothing is left on disk.
func TestPartialDownload_LargeIncompatibleVideo(t *testing.T) {
	srv := endlessServer(t)
	const prefixCap = 1 << 20

	var gotSize int64
	s, dir := newPartial(t, srv.URL, extractorFunc(func(ctx context.Context, input string, opts thumbnail.ExtractOptions) ([]byte, error) {
		info, err := os.Stat(input)
		require.NoError(t, err)
		gotSize = info.Size()
		return nil, errors.New("unsupported codec")
	}), prefixCap)

	_, err := s.Attempt(context.Background(), thumbnail.Attempt{
		Video: thumbnail.VideoObjectRef{Key: "videos/huge.mkv", SizeBytes: 3 << 30},
	})

	require.Error(t, err)
	var extractionErr *thumbnail.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, thumbnail.StrategyPartialDownload, extractionErr.Strategy)
	assert.Equal(t, int64(prefixCap), gotSize)
	assertEmptyDir(t, dir)
}

func TestPartialDownload_TempFileRemovedOnPanic(t *testing.T) {
	srv := rangeServer(t, []byte("video"))
	s, dir := newPartial(t, srv.URL, extractorFunc(func(ctx context.Context, input string, opts thumbnail.ExtractOptions) ([]byte, error) {
		panic("decoder crashed")
	}), 1000)

	assert.Panics(t, func() {
		_, _ = s.Attempt(context.Background(), thumbnail.Attempt{
			Video: thumbnail.VideoObjectRef{Key: "videos/a.mp4", SizeBytes: 5},
		})
	})
	assertEmptyDir(t, dir)
}

func TestPartialDownload_FailedDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusForbidden)
	}))
	defer srv.Close()

	called := false
	s, dir := newPartial(t, srv.URL, extractorFunc(func(ctx context.Context, input string, opts thumbnail.ExtractOptions) ([]byte, error) {
		called = true
		return nil, nil
	}), 1000)

	_, err := s.Attempt(context.Background(), thumbnail.Attempt{
		Video: thumbnail.VideoObjectRef{Key: "videos/a.mp4", SizeBytes: 5},
	})
	assert.ErrorContains(t, err, "unexpected status 403")
	assert.False(t, called)
	assertEmptyDir(t, dir)
}

func TestPartialDownload_EmptyObject(t *testing.T) {
	s, _ := newPartial(t, "http://unused", extractorFunc(nil), 1000)
	_, err := s.Attempt(context.Background(), thumbnail.Attempt{Video: thumbnail.VideoObjectRef{Key: "videos/a.mp4"}})
	assert.ErrorContains(t, err, "empty")
}

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
