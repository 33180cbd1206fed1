package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

func TestArgs(t *testing.T) {
	got := Args("https://bucket.example/videos/a.mp4?sig=1", thumbnail.ExtractOptions{
		Offset: 3 * time.Second,
		Width:  320,
	})
	want := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-ss", "3.000",
		"-i", "https://bucket.example/videos/a.mp4?sig=1",
		"-frames:v", "1",
		"-vf", "scale=320:-2",
		"-f", "image2", "-c:v", "mjpeg", "pipe:1",
	}
	assert.Equal(t, want, got)
}

func TestArgs_NoOffsetNoWidth(t *testing.T) {
	got := Args("/tmp/in.mp4", thumbnail.ExtractOptions{})
	assert.NotContains(t, got, "-ss")
	assert.NotContains(t, got, "-vf")
	assert.Equal(t, "pipe:1", got[len(got)-1])
}

// writeScript installs a fake ffmpeg so tests never need the real binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestExtractFrame(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		bin := writeScript(t, "printf 'JPEGDATA'\n")
		frame, err := New(WithBinary(bin)).ExtractFrame(context.Background(), "in.mp4", thumbnail.ExtractOptions{})
		require.NoError(t, err)
		assert.Equal(t, []byte("JPEGDATA"), frame)
	})

	t.Run("FailureIncludesStderr", func(t *testing.T) {
		bin := writeScript(t, "echo 'Decoder not found' >&2\nexit 1\n")
		_, err := New(WithBinary(bin)).ExtractFrame(context.Background(), "in.mp4", thumbnail.ExtractOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Decoder not found")
	})

	t.Run("EmptyOutput", func(t *testing.T) {
		bin := writeScript(t, "exit 0\n")
		_, err := New(WithBinary(bin)).ExtractFrame(context.Background(), "in.mp4", thumbnail.ExtractOptions{})
		assert.ErrorIs(t, err, ErrNoFrame)
	})

	t.Run("Timeout", func(t *testing.T) {
		bin := writeScript(t, "exec sleep 5\n")
		_, err := New(WithBinary(bin)).ExtractFrame(context.Background(), "in.mp4", thumbnail.ExtractOptions{Timeout: 50 * time.Millisecond})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
