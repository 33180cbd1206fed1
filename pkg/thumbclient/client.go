// Package thumbclient is the consumer side of the thumbnail service: a
// batched per-folder URL cache, a bounded request queue and a
// network-adaptive retrier, composed by Loader.
package thumbclient

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
)

// ThumbnailsPath is the generation endpoint relative to the server base URL
const ThumbnailsPath = "/api/v1/thumbnails"

// TokenSource returns the bearer credential for a request
type TokenSource func(ctx context.Context) (string, error)

// Client calls the thumbnail generation endpoint
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      TokenSource
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithToken uses a fixed bearer credential
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = func(context.Context) (string, error) { return token, nil }
	}
}

// WithTokenSource fetches the bearer credential per request
func WithTokenSource(source TokenSource) ClientOption {
	return func(c *Client) {
		c.token = source
	}
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type thumbnailRequest struct {
	Key        string   `json:"key,omitempty"`
	FolderPath string   `json:"folderPath,omitempty"`
	Keys       []string `json:"keys,omitempty"`
}

// Response mirrors the server's generation response
type Response struct {
	Success       bool              `json:"success"`
	ThumbnailURL  string            `json:"thumbnailUrl,omitempty"`
	ThumbnailURLs map[string]string `json:"thumbnailUrls,omitempty"`
	Cached        bool              `json:"cached"`
	Placeholder   bool              `json:"placeholder,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// Thumbnail requests the thumbnail for a single video key
func (c *Client) Thumbnail(ctx context.Context, videoKey string) (*Response, error) {
	resp, err := c.post(ctx, thumbnailRequest{Key: videoKey})
	if err != nil {
		return nil, err
	}
	resp.ThumbnailURL = c.resolve(resp.ThumbnailURL)
	return resp, nil
}

// FolderThumbnails requests thumbnails for keys of one folder in one batch
func (c *Client) FolderThumbnails(ctx context.Context, folderPath string, keys []string) (*Response, error) {
	resp, err := c.post(ctx, thumbnailRequest{FolderPath: folderPath, Keys: keys})
	if err != nil {
		return nil, err
	}
	for k, v := range resp.ThumbnailURLs {
		resp.ThumbnailURLs[k] = c.resolve(v)
	}
	return resp, nil
}

// resolve makes server-relative URLs such as the placeholder absolute
func (c *Client) resolve(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() {
		return raw
	}
	return c.baseURL.ResolveReference(u).String()
}

func (c *Client) post(ctx context.Context, body thumbnailRequest) (*Response, error) {
	endpoint := c.baseURL.String() + ThumbnailsPath
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{URL: endpoint, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 8<<20))
	if err != nil {
		return nil, &NetworkError{URL: endpoint, StatusCode: httpResp.StatusCode, Err: err}
	}

	var resp Response
	decodeErr := json.Unmarshal(data, &resp)
	if httpResp.StatusCode != http.StatusOK {
		msg := resp.Error
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return nil, statusError(endpoint, httpResp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode thumbnail response: %w", decodeErr)
	}
	if !resp.Success {
		return nil, fmt.Errorf("thumbnail request failed: %s", resp.Error)
	}
	return &resp, nil
}
