package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

// CredentialValidator resolves a bearer credential to an identity
type CredentialValidator interface {
	Validate(ctx context.Context, credential string) (*thumbnail.Identity, error)
}

// Context keys for middleware
type contextKey string

const IdentityKey contextKey = "identity"

// IdentityFrom returns the identity stored by BearerAuth
func IdentityFrom(ctx context.Context) (*thumbnail.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(*thumbnail.Identity)
	return identity, ok
}

// BearerAuth rejects requests without a valid bearer credential
func BearerAuth(validator CredentialValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := jwtauth.TokenFromHeader(r)
			if credential == "" {
				writeError(w, r, http.StatusUnauthorized, "missing bearer credential")
				return
			}

			identity, err := validator.Validate(r.Context(), credential)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					writeError(w, r, http.StatusServiceUnavailable, "credential validation aborted")
					return
				}
				slog.Info("Rejected credential", "request_id", middleware.GetReqID(r.Context()), "error", err)
				writeError(w, r, http.StatusUnauthorized, "invalid credential")
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RecoveryMiddleware recovers from panics and returns a JSON 500
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("PANIC", "request_id", middleware.GetReqID(r.Context()), "panic", rec)
				writeError(w, r, http.StatusInternalServerError, "An internal server error occurred")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{
		Success:   false,
		Error:     message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
