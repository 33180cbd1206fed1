package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail/presigned"
)

func TestFSBackend_BasicOps(t *testing.T) {
	tmp := t.TempDir()
	backend, err := New(Config{BaseDir: tmp, BaseURL: "http://localhost:8080", SecretKey: "secret"}, nil)
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	ctx := context.Background()
	key := "thumbnails/trip/a.jpg"

	ok, err := backend.Exists(ctx, key)
	if err != nil || ok {
		t.Fatalf("expected missing object, ok=%v err=%v", ok, err)
	}
	if _, err := backend.HeadObject(ctx, key); !errors.Is(err, thumbnail.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	data := []byte("jpeg bytes")
	if err := backend.PutObject(ctx, key, bytes.NewReader(data), "image/jpeg"); err != nil {
		t.Fatalf("put: %v", err)
	}

	ok, err = backend.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected object, ok=%v err=%v", ok, err)
	}
	info, err := backend.HeadObject(ctx, key)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.Size != int64(len(data)) {
		t.Fatalf("expected size %d, got %d", len(data), info.Size)
	}

	// no temporary files left next to the object
	entries, _ := os.ReadDir(filepath.Join(tmp, "thumbnails", "trip"))
	if len(entries) != 1 {
		t.Fatalf("expected one file, got %d", len(entries))
	}
}

func TestFSBackend_RequiresSecret(t *testing.T) {
	if _, err := New(Config{BaseDir: t.TempDir()}, nil); err == nil {
		t.Fatal("expected error without secret key")
	}
	if _, err := New(Config{SecretKey: "x"}, nil); err == nil {
		t.Fatal("expected error without base dir")
	}
}

func TestFSBackend_KeysStayInsideBaseDir(t *testing.T) {
	tmp := t.TempDir()
	backend, err := New(Config{BaseDir: filepath.Join(tmp, "store"), SecretKey: "secret"}, nil)
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	if err := backend.PutObject(context.Background(), "../../escape.jpg", strings.NewReader("x"), ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmp, "store", "escape.jpg")); err != nil {
		t.Fatalf("expected file inside base dir: %v", err)
	}
	if _, err := backend.Exists(context.Background(), "/"); !errors.Is(err, thumbnail.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestFSBackend_SignedURLServesRanges(t *testing.T) {
	signer := presigned.New(presigned.WithSecretKey("secret"))
	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	backend, err := New(Config{BaseDir: t.TempDir(), BaseURL: srv.URL}, signer)
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	handler = presigned.ServeHandler(signer, backend)

	ctx := context.Background()
	if err := backend.PutObject(ctx, "videos/a.mp4", strings.NewReader("0123456789"), "video/mp4"); err != nil {
		t.Fatalf("put: %v", err)
	}

	signed, err := backend.SignedReadURL(ctx, "videos/a.mp4", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, signed, nil)
	req.Header.Set("Range", "bytes=0-3")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent || string(body) != "0123" {
		t.Fatalf("expected partial content 0123, got %d %q", resp.StatusCode, body)
	}

	// unsigned access is refused
	resp, err = http.Get(srv.URL + "/files/videos/a.mp4?expires=9999999999&signature=bad")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	// a validly signed missing key is a 404
	missing, _ := backend.SignedReadURL(ctx, "videos/none.mp4", time.Minute)
	resp, err = http.Get(missing)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
