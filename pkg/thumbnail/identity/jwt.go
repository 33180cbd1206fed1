// Package identity provides thumbnail.IdentityProvider implementations.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

// ScopeClaim is the claim carrying space-separated scopes.
const ScopeClaim = "scope"

// JWTProvider verifies HMAC-signed JWT bearer tokens locally.
type JWTProvider struct {
	auth          *jwtauth.JWTAuth
	requiredScope string
}

// JWTOption configures a JWTProvider.
type JWTOption func(*JWTProvider)

// WithRequiredScope rejects tokens that do not carry scope.
func WithRequiredScope(scope string) JWTOption {
	return func(p *JWTProvider) {
		p.requiredScope = scope
	}
}

// NewJWTProvider creates a provider that verifies HS256 tokens with secret.
func NewJWTProvider(secret string, opts ...JWTOption) (*JWTProvider, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	p := &JWTProvider{
		auth: jwtauth.New("HS256", []byte(secret), nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Auth exposes the underlying signer, used by tooling that mints tokens.
func (p *JWTProvider) Auth() *jwtauth.JWTAuth {
	return p.auth
}

// Verify checks signature and expiry, then maps sub and scope claims.
func (p *JWTProvider) Verify(ctx context.Context, credential string) (*thumbnail.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	token, err := jwtauth.VerifyToken(p.auth, credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", thumbnail.ErrUnauthorized, err)
	}
	if token.Subject() == "" {
		return nil, fmt.Errorf("%w: token has no subject", thumbnail.ErrUnauthorized)
	}

	identity := &thumbnail.Identity{Subject: token.Subject()}
	if raw, ok := token.Get(ScopeClaim); ok {
		identity.Scopes = parseScopes(raw)
	}

	if p.requiredScope != "" && !identity.HasScope(p.requiredScope) {
		return nil, fmt.Errorf("%w: missing scope %q", thumbnail.ErrUnauthorized, p.requiredScope)
	}
	return identity, nil
}

func parseScopes(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []string:
		return v
	case []interface{}:
		scopes := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
		return scopes
	}
	return nil
}
