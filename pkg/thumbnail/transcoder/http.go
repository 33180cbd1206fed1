// Package transcoder talks to an external managed transcoding service that
// renders thumbnails for videos the local extractor cannot decode.
package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

// Client submits thumbnail jobs over HTTP:
//
//	POST {base}/jobs       {"videoKey", "outputKey"} -> {"id"}
//	GET  {base}/jobs/{id}  -> {"state", "outputKey", "error"}
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a transcoder client for baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type submitRequest struct {
	VideoKey  string `json:"videoKey"`
	OutputKey string `json:"outputKey"`
}

type jobResponse struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	OutputKey string `json:"outputKey"`
	Error     string `json:"error"`
}

// Submit starts a job writing the thumbnail of video to its derived key.
func (c *Client) Submit(ctx context.Context, video thumbnail.VideoObjectRef) (thumbnail.JobHandle, error) {
	body, err := json.Marshal(submitRequest{
		VideoKey:  video.Key,
		OutputKey: thumbnail.ResolveThumbnailKey(video.Key),
	})
	if err != nil {
		return thumbnail.JobHandle{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return thumbnail.JobHandle{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	var out jobResponse
	if err := c.do(req, &out); err != nil {
		return thumbnail.JobHandle{}, fmt.Errorf("submit job: %w", err)
	}
	if out.ID == "" {
		return thumbnail.JobHandle{}, fmt.Errorf("submit job: empty job id")
	}
	return thumbnail.JobHandle{ID: out.ID}, nil
}

// Status reports the current state of job.
func (c *Client) Status(ctx context.Context, job thumbnail.JobHandle) (thumbnail.JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+url.PathEscape(job.ID), nil)
	if err != nil {
		return thumbnail.JobStatus{}, err
	}

	var out jobResponse
	if err := c.do(req, &out); err != nil {
		return thumbnail.JobStatus{}, fmt.Errorf("job status %s: %w", job.ID, err)
	}
	return thumbnail.JobStatus{
		State:     parseState(out.State),
		OutputKey: out.OutputKey,
		Err:       out.Error,
	}, nil
}

func parseState(s string) thumbnail.JobState {
	switch thumbnail.JobState(strings.ToLower(s)) {
	case thumbnail.JobStateRunning:
		return thumbnail.JobStateRunning
	case thumbnail.JobStateSucceeded:
		return thumbnail.JobStateSucceeded
	case thumbnail.JobStateFailed:
		return thumbnail.JobStateFailed
	default:
		return thumbnail.JobStatePending
	}
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
