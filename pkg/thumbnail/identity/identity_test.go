package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

func mintToken(t *testing.T, p *JWTProvider, claims map[string]interface{}) string {
	t.Helper()
	_, token, err := p.Auth().Encode(claims)
	require.NoError(t, err)
	return token
}

func TestJWTProvider(t *testing.T) {
	p, err := NewJWTProvider("test-secret", WithRequiredScope("thumbnails:read"))
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("Valid", func(t *testing.T) {
		claims := map[string]interface{}{"sub": "user-1", "scope": "thumbnails:read profile"}
		jwtauth.SetExpiry(claims, time.Now().Add(time.Hour))

		identity, err := p.Verify(ctx, mintToken(t, p, claims))
		require.NoError(t, err)
		assert.Equal(t, "user-1", identity.Subject)
		assert.Equal(t, []string{"thumbnails:read", "profile"}, identity.Scopes)
	})

	t.Run("Expired", func(t *testing.T) {
		claims := map[string]interface{}{"sub": "user-1", "scope": "thumbnails:read"}
		jwtauth.SetExpiry(claims, time.Now().Add(-time.Hour))

		_, err := p.Verify(ctx, mintToken(t, p, claims))
		assert.ErrorIs(t, err, thumbnail.ErrUnauthorized)
	})

	t.Run("MissingScope", func(t *testing.T) {
		claims := map[string]interface{}{"sub": "user-1", "scope": "profile"}
		_, err := p.Verify(ctx, mintToken(t, p, claims))
		assert.ErrorIs(t, err, thumbnail.ErrUnauthorized)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other, err := NewJWTProvider("other-secret")
		require.NoError(t, err)
		token := mintToken(t, other, map[string]interface{}{"sub": "user-1", "scope": "thumbnails:read"})

		_, err = p.Verify(ctx, token)
		assert.ErrorIs(t, err, thumbnail.ErrUnauthorized)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := p.Verify(ctx, "not-a-jwt")
		assert.ErrorIs(t, err, thumbnail.ErrUnauthorized)
	})
}

func TestNewJWTProvider_RequiresSecret(t *testing.T) {
	_, err := NewJWTProvider("")
	assert.Error(t, err)
}

func TestRemoteProvider(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"subject":"user-9","scopes":["thumbnails:read"]}`))
		case "Bearer broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	p, err := NewRemoteProvider(srv.URL, WithRateLimit(1000, 10))
	require.NoError(t, err)
	ctx := context.Background()

	identity, err := p.Verify(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "user-9", identity.Subject)
	assert.True(t, identity.HasScope("thumbnails:read"))

	_, err = p.Verify(ctx, "bad")
	assert.ErrorIs(t, err, thumbnail.ErrUnauthorized)

	_, err = p.Verify(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, thumbnail.ErrUnauthorized)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRemoteProvider_RateLimitHonoursContext(t *testing.T) {
	p, err := NewRemoteProvider("http://127.0.0.1:0", WithRateLimit(0.001, 1))
	require.NoError(t, err)

	// Drain the single burst token.
	require.True(t, p.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Verify(ctx, "anything")
	assert.Error(t, err)
}
