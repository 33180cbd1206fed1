package api

import (
	"bytes"
	"image"
	_ "image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

func TestPlaceholderHandler(t *testing.T) {
	h := PlaceholderHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, thumbnail.DefaultPlaceholderURL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, thumbnail.ThumbnailContentType, rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("Cache-Control"))

	cfg, format, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, placeholderWidth, cfg.Width)
	assert.Equal(t, placeholderHeight, cfg.Height)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, thumbnail.DefaultPlaceholderURL, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
