package thumbnail

import (
	"context"
	"io"
	"time"
)

// ObjectStore is the object storage collaborator.
// Implementations never delete or list objects on behalf of this package.
type ObjectStore interface {
	// Exists reports whether an object is present at key
	Exists(ctx context.Context, key string) (bool, error)

	// HeadObject returns metadata for key, or ErrNotFound
	HeadObject(ctx context.Context, key string) (*ObjectInfo, error)

	// SignedReadURL returns a time-limited read URL for key
	SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// PutObject stores the content of reader under key
	PutObject(ctx context.Context, key string, reader io.Reader, contentType string) error
}

// IdentityProvider verifies bearer credentials.
type IdentityProvider interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}

// FrameExtractor pulls a single still frame out of a video. The input is
// either a URL readable with range requests or a local file path.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, input string, opts ExtractOptions) ([]byte, error)
}

// Transcoder is the optional managed transcoding collaborator used by the
// fallback strategy.
type Transcoder interface {
	Submit(ctx context.Context, video VideoObjectRef) (JobHandle, error)
	Status(ctx context.Context, job JobHandle) (JobStatus, error)
}

// Ledger records how thumbnails were produced.
type Ledger interface {
	Record(ctx context.Context, generation *Generation) error
	ListByVideo(ctx context.Context, videoKey string, limit int) ([]*Generation, error)
}
