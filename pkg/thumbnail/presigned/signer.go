package presigned

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Signer generates and validates HMAC-signed read URLs
type Signer struct {
	secretKey         []byte
	defaultExpiration time.Duration
	pathPrefix        string // e.g. "/files/"
	now               func() time.Time
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		defaultExpiration: 1 * time.Hour,
		pathPrefix:        "/files/",
		now:               time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// PathFor returns the unsigned path serving key
func (s *Signer) PathFor(key string) string {
	return s.pathPrefix + strings.TrimPrefix(key, "/")
}

// SignPath signs a GET of key and returns the path with signature and
// expiration query parameters:
//
//	/files/thumbnails/a/b.jpg?expires=1696789012&signature=abc123...
func (s *Signer) SignPath(key string, expiresIn time.Duration) (string, error) {
	if len(s.secretKey) == 0 {
		return "", ErrNoSecretKey
	}

	if expiresIn <= 0 {
		expiresIn = s.defaultExpiration
	}

	p := s.PathFor(key)
	expiresAt := s.now().Add(expiresIn).Unix()
	signature := s.generateSignature(s.createPayload(http.MethodGet, p, expiresAt))

	// the signature covers the decoded path, which is what ValidateRequest sees
	escaped := (&url.URL{Path: p}).EscapedPath()
	return fmt.Sprintf("%s?expires=%d&signature=%s", escaped, expiresAt, signature), nil
}

// SignURL is SignPath prefixed with baseURL
func (s *Signer) SignURL(baseURL, key string, expiresIn time.Duration) (string, error) {
	signedPath, err := s.SignPath(key, expiresIn)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(baseURL, "/") + signedPath, nil
}

// ValidateRequest validates the signature and expiration of r and returns
// the object key it grants access to
func (s *Signer) ValidateRequest(r *http.Request) (string, error) {
	if len(s.secretKey) == 0 {
		return "", ErrNoSecretKey
	}

	query := r.URL.Query()
	signature := query.Get("signature")
	expiresStr := query.Get("expires")

	if signature == "" {
		return "", ErrMissingSignature
	}
	if expiresStr == "" {
		return "", ErrMissingExpiration
	}

	expiresAt, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidExpiration, err)
	}

	if !strings.HasPrefix(r.URL.Path, s.pathPrefix) {
		return "", ErrInvalidSignature
	}

	// HEAD is a GET without a body; ffmpeg requests both
	method := r.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	if err := s.Validate(method, r.URL.Path, signature, expiresAt); err != nil {
		return "", err
	}

	return strings.TrimPrefix(r.URL.Path, s.pathPrefix), nil
}

// Validate checks expiration and signature for method and path
func (s *Signer) Validate(method, path, signature string, expiresAt int64) error {
	if s.now().Unix() > expiresAt {
		return ErrExpired
	}

	expected := s.generateSignature(s.createPayload(method, path, expiresAt))

	// constant-time comparison
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}

	return nil
}

// IsEnabled returns true if a secret key is configured
func (s *Signer) IsEnabled() bool {
	return len(s.secretKey) > 0
}

// createPayload creates the signature payload METHOD|PATH|EXPIRES
func (s *Signer) createPayload(method, path string, expiresAt int64) string {
	return fmt.Sprintf("%s|%s|%d", method, path, expiresAt)
}

func (s *Signer) generateSignature(payload string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
