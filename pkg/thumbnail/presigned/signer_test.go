package presigned

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_SignAndValidate(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := New(WithSecretKey("0123456789abcdef0123456789abcdef"), WithClock(func() time.Time { return now }))

	signed, err := s.SignURL("https://thumbs.example.com/", "thumbnails/a/b.jpg", 10*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "/files/thumbnails/a/b.jpg", u.Path)
	assert.Equal(t, "1700000600", u.Query().Get("expires"))

	r := httptest.NewRequest(http.MethodGet, u.RequestURI(), nil)
	key, err := s.ValidateRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "thumbnails/a/b.jpg", key)

	head := httptest.NewRequest(http.MethodHead, u.RequestURI(), nil)
	_, err = s.ValidateRequest(head)
	assert.NoError(t, err)

	now = now.Add(11 * time.Minute)
	_, err = s.ValidateRequest(r)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestSigner_RejectsTampering(t *testing.T) {
	s := New(WithSecretKey("secret"))
	p, err := s.SignPath("thumbnails/a.jpg", time.Minute)
	require.NoError(t, err)
	u, _ := url.Parse(p)
	q := u.Query()

	tests := []struct {
		name    string
		target  string
		wantErr error
	}{
		{"other key", "/files/thumbnails/b.jpg?" + q.Encode(), ErrInvalidSignature},
		{"outside prefix", "/private/thumbnails/a.jpg?" + q.Encode(), ErrInvalidSignature},
		{"missing signature", "/files/thumbnails/a.jpg?expires=" + q.Get("expires"), ErrMissingSignature},
		{"missing expires", "/files/thumbnails/a.jpg?signature=" + q.Get("signature"), ErrMissingExpiration},
		{"bad expires", "/files/thumbnails/a.jpg?expires=soon&signature=" + q.Get("signature"), ErrInvalidExpiration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ValidateRequest(httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsAuthError(err))
		})
	}

	other := New(WithSecretKey("different"))
	_, err = other.ValidateRequest(httptest.NewRequest(http.MethodGet, p, nil))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestSigner_Disabled(t *testing.T) {
	s := New()
	assert.False(t, s.IsEnabled())
	_, err := s.SignPath("a.jpg", time.Minute)
	assert.ErrorIs(t, err, ErrNoSecretKey)
}

func TestSigner_PathPrefixAndDefaultExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	s := New(WithSecretKey("k"), WithPathPrefix("thumbs"), WithDefaultExpiration(time.Minute),
		WithClock(func() time.Time { return now }))

	p, err := s.SignPath("/x.jpg", 0)
	require.NoError(t, err)
	u, _ := url.Parse(p)
	assert.Equal(t, "/thumbs/x.jpg", u.Path)
	assert.Equal(t, "1060", u.Query().Get("expires"))
}
