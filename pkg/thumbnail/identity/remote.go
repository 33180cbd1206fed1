package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
	"golang.org/x/time/rate"
)

// DefaultRemoteRate bounds calls to the remote verification endpoint.
const DefaultRemoteRate = 20

// RemoteProvider verifies credentials against an HTTP endpoint. The endpoint
// receives the credential as a bearer token and answers 200 with
// {"subject": "...", "scopes": [...]} or 401/403 when it is rejected.
type RemoteProvider struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// RemoteOption configures a RemoteProvider.
type RemoteOption func(*RemoteProvider)

// WithHTTPClient sets the client used to reach the endpoint.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(p *RemoteProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithRateLimit sets the sustained request rate and burst.
func WithRateLimit(perSecond float64, burst int) RemoteOption {
	return func(p *RemoteProvider) {
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRemoteLogger sets the provider logger.
func WithRemoteLogger(logger *slog.Logger) RemoteOption {
	return func(p *RemoteProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

type verifyResponse struct {
	Subject string   `json:"subject"`
	Scopes  []string `json:"scopes"`
}

// NewRemoteProvider creates a provider backed by endpoint.
func NewRemoteProvider(endpoint string, opts ...RemoteOption) (*RemoteProvider, error) {
	if endpoint == "" {
		return nil, errors.New("identity endpoint is required")
	}
	p := &RemoteProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(DefaultRemoteRate), DefaultRemoteRate),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Verify asks the remote endpoint whether credential is valid.
func (p *RemoteProvider) Verify(ctx context.Context, credential string) (*thumbnail.Identity, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, thumbnail.ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		p.logger.Warn("identity endpoint error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("identity endpoint returned %d", resp.StatusCode)
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if out.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", thumbnail.ErrUnauthorized)
	}
	return &thumbnail.Identity{Subject: out.Subject, Scopes: out.Scopes}, nil
}
