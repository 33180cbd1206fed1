package thumbnail

import "time"

// VideoObjectRef identifies a source video in object storage.
type VideoObjectRef struct {
	Key          string
	SizeBytes    int64
	LastModified time.Time
}

// ThumbnailObjectRef identifies the still image derived from a video.
type ThumbnailObjectRef struct {
	Key string
}

// ObjectInfo contains metadata returned by an existence/metadata lookup
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// Identity is the verified caller behind a bearer credential.
type Identity struct {
	Subject string
	Scopes  []string
}

// HasScope reports whether the identity was granted the scope.
func (i *Identity) HasScope(scope string) bool {
	if i == nil {
		return false
	}
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Result is what the generation pipeline hands back to callers
type Result struct {
	URL         string `json:"url"`
	Strategy    string `json:"strategy"`
	Cached      bool   `json:"cached"`
	Placeholder bool   `json:"placeholder"`
}

// FolderResult is the batched result for one folder.
type FolderResult struct {
	FolderPath string
	URLs       map[string]string
	Cached     bool
}

// Generation is one ledger record describing how a thumbnail was produced.
type Generation struct {
	ID           string
	VideoKey     string
	ThumbnailKey string
	Strategy     string
	Placeholder  bool
	Duration     time.Duration
	GeneratedAt  time.Time
}

// ExtractOptions controls how a frame is pulled out of a video.
type ExtractOptions struct {
	// Offset is the position of the target frame from the start of the video.
	Offset time.Duration
	// Width of the output still; height keeps the aspect ratio.
	Width int
	// Timeout bounds a single extraction run. Zero means no extra bound.
	Timeout time.Duration
}

// JobHandle identifies a job submitted to the managed transcoding collaborator.
type JobHandle struct {
	ID string
}

// JobState is the lifecycle state of a managed transcoding job
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// JobStatus reports progress of a managed transcoding job.
type JobStatus struct {
	State     JobState
	OutputKey string
	Err       string
}
