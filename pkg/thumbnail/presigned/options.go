package presigned

import (
	"strings"
	"time"
)

// Option is a functional option for configuring a Signer
type Option func(*Signer)

// WithSecretKey sets the secret key used for HMAC signing
// The key should be at least 32 bytes
func WithSecretKey(key string) Option {
	return func(s *Signer) {
		s.secretKey = []byte(key)
	}
}

// WithDefaultExpiration sets the expiration used when none is given
func WithDefaultExpiration(duration time.Duration) Option {
	return func(s *Signer) {
		s.defaultExpiration = duration
	}
}

// WithPathPrefix sets the route prefix that serves signed objects, e.g. "/files/"
func WithPathPrefix(prefix string) Option {
	return func(s *Signer) {
		if !strings.HasPrefix(prefix, "/") {
			prefix = "/" + prefix
		}
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		s.pathPrefix = prefix
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}
