package presigned

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"time"
)

// Opener opens a stored object for serving
type Opener interface {
	Open(ctx context.Context, key string) (io.ReadSeekCloser, time.Time, error)
}

// ServeHandler serves objects behind signed URLs. Range requests are
// honoured so extraction tools can seek without downloading whole files.
func ServeHandler(signer *Signer, opener Opener) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		key, err := signer.ValidateRequest(r)
		if err != nil {
			handleValidationError(w, err)
			return
		}

		f, modTime, err := opener.Open(r.Context(), key)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				http.Error(w, "Not found", http.StatusNotFound)
				return
			}
			slog.Error("presigned: failed to open object", "key", key, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		http.ServeContent(w, r, path.Base(key), modTime, f)
	})
}

func handleValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrExpired):
		http.Error(w, "URL has expired", http.StatusForbidden)
	case errors.Is(err, ErrNoSecretKey):
		http.Error(w, "Signed URLs are disabled", http.StatusForbidden)
	case IsAuthError(err):
		http.Error(w, "Invalid signature", http.StatusForbidden)
	default:
		http.Error(w, "Bad request", http.StatusBadRequest)
	}
}
