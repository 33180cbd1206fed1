package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

const (
	// MaxBatchKeys bounds one folder batch request
	MaxBatchKeys = 500

	defaultGenerationsLimit = 20
	maxGenerationsLimit     = 100
)

// ThumbnailService is the subset of thumbnail.Service used by the handlers
type ThumbnailService interface {
	Thumbnail(ctx context.Context, videoKey string) (*thumbnail.Result, error)
	FolderThumbnails(ctx context.Context, folderPath string, videoKeys []string) (*thumbnail.FolderResult, error)
	Generations(ctx context.Context, videoKey string, limit int) ([]*thumbnail.Generation, error)
}

// ThumbnailHandler serves the thumbnail generation endpoints
type ThumbnailHandler struct {
	service   ThumbnailService
	validator CredentialValidator
}

func NewThumbnailHandler(service ThumbnailService, validator CredentialValidator) *ThumbnailHandler {
	return &ThumbnailHandler{
		service:   service,
		validator: validator,
	}
}

// Routes returns the router for thumbnail endpoints, all behind bearer auth
func (h *ThumbnailHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RecoveryMiddleware)
	r.Use(BearerAuth(h.validator))
	r.Post("/", h.CreateThumbnail)
	r.Get("/generations", h.ListGenerations)
	return r
}

// ThumbnailRequest asks for one key or a batch of keys in one folder
type ThumbnailRequest struct {
	Key        string   `json:"key,omitempty"`
	FolderPath string   `json:"folderPath,omitempty"`
	Keys       []string `json:"keys,omitempty"`
}

// ThumbnailResponse carries thumbnailUrl for single requests and
// thumbnailUrls for batches
type ThumbnailResponse struct {
	Success       bool              `json:"success"`
	ThumbnailURL  string            `json:"thumbnailUrl,omitempty"`
	ThumbnailURLs map[string]string `json:"thumbnailUrls,omitempty"`
	Cached        bool              `json:"cached"`
	Strategy      string            `json:"strategy,omitempty"`
	Placeholder   bool              `json:"placeholder,omitempty"`
}

// GenerationResponse is one ledger record
type GenerationResponse struct {
	ID           string    `json:"id"`
	VideoKey     string    `json:"videoKey"`
	ThumbnailKey string    `json:"thumbnailKey"`
	Strategy     string    `json:"strategy"`
	Placeholder  bool      `json:"placeholder"`
	DurationMS   int64     `json:"durationMs"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

// GenerationsResponse lists ledger records for one video
type GenerationsResponse struct {
	Success     bool                 `json:"success"`
	Generations []GenerationResponse `json:"generations"`
}

// CreateThumbnail returns a thumbnail URL for a key, or URLs for a folder batch
func (h *ThumbnailHandler) CreateThumbnail(w http.ResponseWriter, r *http.Request) {
	var req ThumbnailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request", "error", err)
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.Key != "" && req.FolderPath != "":
		writeError(w, r, http.StatusBadRequest, "key and folderPath are mutually exclusive")
	case req.Key != "":
		h.single(w, r, req.Key)
	case req.FolderPath != "":
		h.batch(w, r, req.FolderPath, req.Keys)
	default:
		writeError(w, r, http.StatusBadRequest, "key or folderPath is required")
	}
}

func (h *ThumbnailHandler) single(w http.ResponseWriter, r *http.Request, key string) {
	result, err := h.service.Thumbnail(r.Context(), key)
	if err != nil {
		h.handleServiceError(w, r, "Failed to resolve thumbnail", err)
		return
	}

	render.JSON(w, r, ThumbnailResponse{
		Success:      true,
		ThumbnailURL: result.URL,
		Cached:       result.Cached,
		Strategy:     result.Strategy,
		Placeholder:  result.Placeholder,
	})
}

func (h *ThumbnailHandler) batch(w http.ResponseWriter, r *http.Request, folder string, keys []string) {
	if len(keys) == 0 {
		writeError(w, r, http.StatusBadRequest, "keys are required for a folder batch")
		return
	}
	if len(keys) > MaxBatchKeys {
		writeError(w, r, http.StatusBadRequest, "too many keys in one batch, max "+strconv.Itoa(MaxBatchKeys))
		return
	}

	result, err := h.service.FolderThumbnails(r.Context(), folder, keys)
	if err != nil {
		h.handleServiceError(w, r, "Failed to resolve folder thumbnails", err)
		return
	}

	urls := result.URLs
	if urls == nil {
		urls = map[string]string{}
	}
	render.JSON(w, r, ThumbnailResponse{
		Success:       true,
		ThumbnailURLs: urls,
		Cached:        result.Cached,
	})
}

// ListGenerations returns the generation ledger for ?key=
func (h *ThumbnailHandler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, r, http.StatusBadRequest, "key is required")
		return
	}

	limit := defaultGenerationsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxGenerationsLimit)
	}

	generations, err := h.service.Generations(r.Context(), key, limit)
	if err != nil {
		h.handleServiceError(w, r, "Failed to list generations", err)
		return
	}

	resp := GenerationsResponse{Success: true, Generations: make([]GenerationResponse, 0, len(generations))}
	for _, g := range generations {
		resp.Generations = append(resp.Generations, GenerationResponse{
			ID:           g.ID,
			VideoKey:     g.VideoKey,
			ThumbnailKey: g.ThumbnailKey,
			Strategy:     g.Strategy,
			Placeholder:  g.Placeholder,
			DurationMS:   g.Duration.Milliseconds(),
			GeneratedAt:  g.GeneratedAt,
		})
	}
	render.JSON(w, r, resp)
}

func (h *ThumbnailHandler) handleServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, thumbnail.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, thumbnail.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "video not found")
	case errors.Is(err, thumbnail.ErrInvalidKey):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		slog.Error(msg, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
