package thumbnail

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Credential cache defaults. The TTL is kept below the client's polling
// interval so revocations are noticed within one poll.
const (
	DefaultCredentialTTL  = 30 * time.Second
	DefaultCredentialSize = 10000
	DefaultVerifyTimeout  = 10 * time.Second
	credentialPrefixLen   = 8
)

// credentialEntry is immutable once stored.
type credentialEntry struct {
	CredentialPrefix string
	Identity         Identity
	CachedAt         time.Time
}

// CredentialCache shields the identity provider from repeated verification
// of the same credential. Only successful verifications are cached.
type CredentialCache struct {
	provider IdentityProvider
	ttl      time.Duration
	timeout  time.Duration
	entries  *expirable.LRU[string, credentialEntry]
	group    singleflight.Group
	metrics  MetricsRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// CredentialCacheOption configures a CredentialCache
type CredentialCacheOption func(*CredentialCache)

// WithCredentialClock overrides the clock used for expiry checks
func WithCredentialClock(now func() time.Time) CredentialCacheOption {
	return func(c *CredentialCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCredentialVerifyTimeout bounds one shared provider verification.
// It applies independently of the callers' contexts.
func WithCredentialVerifyTimeout(d time.Duration) CredentialCacheOption {
	return func(c *CredentialCache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCredentialMetrics sets the metrics recorder
func WithCredentialMetrics(m MetricsRecorder) CredentialCacheOption {
	return func(c *CredentialCache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithCredentialLogger sets the logger
func WithCredentialLogger(logger *slog.Logger) CredentialCacheOption {
	return func(c *CredentialCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCredentialCache creates a cache in front of provider. Non-positive ttl
// and size fall back to the defaults.
func NewCredentialCache(provider IdentityProvider, ttl time.Duration, size int, opts ...CredentialCacheOption) *CredentialCache {
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	if size <= 0 {
		size = DefaultCredentialSize
	}
	c := &CredentialCache{
		provider: provider,
		ttl:      ttl,
		timeout:  DefaultVerifyTimeout,
		entries:  expirable.NewLRU[string, credentialEntry](size, nil, ttl),
		metrics:  NoopMetrics{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured entry lifetime
func (c *CredentialCache) TTL() time.Duration {
	return c.ttl
}

// Validate returns the identity behind credential. A live cache entry is
// returned without contacting the provider; otherwise the provider is
// called once and a successful result is cached. Failures are never cached.
func (c *CredentialCache) Validate(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		c.metrics.CredentialLookup("rejected")
		return nil, fmt.Errorf("%w: missing credential", ErrUnauthorized)
	}

	key := credentialKey(credential)
	if entry, ok := c.entries.Get(key); ok {
		if c.now().Sub(entry.CachedAt) < c.ttl {
			c.metrics.CredentialLookup("hit")
			return copyIdentity(&entry.Identity), nil
		}
		c.entries.Remove(key)
	}
	c.metrics.CredentialLookup("miss")

	// the flight outlives any single caller; each caller waits on its own ctx
	ch := c.group.DoChan(key, func() (interface{}, error) {
		vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		identity, err := c.provider.Verify(vctx, credential)
		if err != nil {
			return nil, err
		}
		if identity == nil {
			return nil, errors.New("identity provider returned no identity")
		}
		c.entries.Add(key, credentialEntry{
			CredentialPrefix: prefixOf(credential),
			Identity:         *copyIdentity(identity),
			CachedAt:         c.now(),
		})
		return identity, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	v, err := res.Val, res.Err
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		c.metrics.CredentialLookup("rejected")
		c.logger.Info("credential rejected", "credential_prefix", prefixOf(credential), "error", err)
		if errors.Is(err, ErrUnauthorized) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	return copyIdentity(v.(*Identity)), nil
}

// Invalidate drops the cached entry for credential, if any
func (c *CredentialCache) Invalidate(credential string) {
	c.entries.Remove(credentialKey(credential))
}

// Purge drops every cached entry
func (c *CredentialCache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached entries
func (c *CredentialCache) Len() int {
	return c.entries.Len()
}

func credentialKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

func prefixOf(credential string) string {
	if len(credential) <= credentialPrefixLen {
		return credential
	}
	return credential[:credentialPrefixLen]
}

func copyIdentity(identity *Identity) *Identity {
	cp := *identity
	cp.Scopes = append([]string(nil), identity.Scopes...)
	return &cp
}
