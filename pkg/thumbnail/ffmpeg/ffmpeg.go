// Package ffmpeg extracts still frames by running the ffmpeg binary.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

// DefaultBinary is looked up on PATH when no binary is configured.
const DefaultBinary = "ffmpeg"

// maxStderr bounds how much diagnostic output ends up in an error.
const maxStderr = 2048

// ErrNoFrame is returned when ffmpeg exits cleanly but writes no image.
var ErrNoFrame = errors.New("ffmpeg produced no frame")

// Extractor implements thumbnail.FrameExtractor on top of ffmpeg.
type Extractor struct {
	binary string
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithBinary sets the ffmpeg executable path.
func WithBinary(path string) Option {
	return func(e *Extractor) {
		if path != "" {
			e.binary = path
		}
	}
}

// WithLogger sets the extractor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		binary: DefaultBinary,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Args returns the ffmpeg argument list that writes one JPEG frame of input
// to stdout. Seeking happens before -i so remote inputs are read with range
// requests instead of decoded from the start.
func Args(input string, opts thumbnail.ExtractOptions) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if opts.Offset > 0 {
		args = append(args, "-ss", formatOffset(opts.Offset))
	}
	args = append(args, "-i", input, "-frames:v", "1")
	if opts.Width > 0 {
		args = append(args, "-vf", "scale="+strconv.Itoa(opts.Width)+":-2")
	}
	args = append(args, "-f", "image2", "-c:v", "mjpeg", "pipe:1")
	return args
}

func formatOffset(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// ExtractFrame runs ffmpeg against input and returns the encoded frame.
func (e *Extractor) ExtractFrame(ctx context.Context, input string, opts thumbnail.ExtractOptions) ([]byte, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.binary, Args(input, opts)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	e.logger.Debug("ffmpeg finished", "duration", time.Since(start), "bytes", stdout.Len(), "error", err)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("ffmpeg aborted: %w", ctxErr)
	}
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, trimStderr(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, ErrNoFrame
	}
	return stdout.Bytes(), nil
}

func trimStderr(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = s[len(s)-maxStderr:]
	}
	return s
}
