package thumbnail

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultThumbnailURLTTL is the lifetime of signed thumbnail URLs handed to clients.
const DefaultThumbnailURLTTL = time.Hour

// Orchestrator runs the strategy cascade for videos without a stored
// thumbnail. Generate never fails: when every strategy fails the caller gets
// the placeholder reference.
type Orchestrator struct {
	store          ObjectStore
	strategies     []Strategy
	placeholderURL string
	urlTTL         time.Duration
	ledger         Ledger
	metrics        MetricsRecorder
	logger         *slog.Logger
	now            func() time.Time
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithPlaceholderURL sets the reference returned when generation is exhausted
func WithPlaceholderURL(url string) OrchestratorOption {
	return func(o *Orchestrator) {
		if url != "" {
			o.placeholderURL = url
		}
	}
}

// WithThumbnailURLTTL sets the lifetime of signed thumbnail URLs
func WithThumbnailURLTTL(ttl time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.urlTTL = ttl
		}
	}
}

// WithLedger records every generation in the ledger
func WithLedger(ledger Ledger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.ledger = ledger
	}
}

// WithOrchestratorMetrics sets the metrics recorder
func WithOrchestratorMetrics(m MetricsRecorder) OrchestratorOption {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithOrchestratorLogger sets the logger
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an orchestrator trying strategies in the given order.
func NewOrchestrator(store ObjectStore, strategies []Strategy, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:          store,
		strategies:     strategies,
		placeholderURL: DefaultPlaceholderURL,
		urlTTL:         DefaultThumbnailURLTTL,
		metrics:        NoopMetrics{},
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Strategies returns the names of the configured strategies in order.
func (o *Orchestrator) Strategies() []string {
	names := make([]string, 0, len(o.strategies))
	for _, s := range o.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Generate produces a thumbnail for video and returns a usable reference.
func (o *Orchestrator) Generate(ctx context.Context, video VideoObjectRef) Result {
	start := o.now()
	thumb := ThumbnailRef(video)
	attempt := Attempt{Video: video, Thumbnail: thumb}

	outcome, strategy, err := FirstSuccess(ctx, o.strategies, attempt, func(name string, err error) {
		o.logger.Warn("thumbnail strategy failed",
			"strategy", name, "video_key", video.Key, "error", err)
		o.metrics.StrategyAttempt(name, "failure")
	})
	if err != nil {
		o.logger.Error("thumbnail generation exhausted",
			"video_key", video.Key, "strategies", len(o.strategies), "error", err)
		return o.finish(ctx, video, thumb, start, o.placeholder())
	}
	o.metrics.StrategyAttempt(strategy, "success")

	if outcome.URL != "" {
		result := Result{URL: outcome.URL, Strategy: strategy, Placeholder: outcome.Placeholder}
		return o.finish(ctx, video, thumb, start, result)
	}

	contentType := outcome.ContentType
	if contentType == "" {
		contentType = ThumbnailContentType
	}
	var url string
	err = o.store.PutObject(ctx, thumb.Key, bytes.NewReader(outcome.Frame), contentType)
	if err == nil {
		url, err = o.store.SignedReadURL(ctx, thumb.Key, o.urlTTL)
	}
	if err != nil {
		o.logger.Error("failed to store generated thumbnail",
			"strategy", strategy, "video_key", video.Key, "thumbnail_key", thumb.Key, "error", err)
		return o.finish(ctx, video, thumb, start, o.placeholder())
	}

	return o.finish(ctx, video, thumb, start, Result{URL: url, Strategy: strategy})
}

func (o *Orchestrator) placeholder() Result {
	return Result{URL: o.placeholderURL, Strategy: StrategyPlaceholder, Placeholder: true}
}

func (o *Orchestrator) finish(ctx context.Context, video VideoObjectRef, thumb ThumbnailObjectRef, start time.Time, result Result) Result {
	if result.Placeholder {
		o.metrics.ThumbnailServed("placeholder")
	} else {
		o.metrics.ThumbnailServed("generated")
	}

	if o.ledger != nil {
		generation := &Generation{
			ID:           uuid.New().String(),
			VideoKey:     video.Key,
			ThumbnailKey: thumb.Key,
			Strategy:     result.Strategy,
			Placeholder:  result.Placeholder,
			Duration:     o.now().Sub(start),
			GeneratedAt:  o.now().UTC(),
		}
		// the caller's request may already be finished; the ledger write is not part of it
		if err := o.ledger.Record(context.WithoutCancel(ctx), generation); err != nil {
			o.logger.Warn("failed to record thumbnail generation", "video_key", video.Key, "error", err)
		}
	}

	o.logger.Info("thumbnail generated",
		"video_key", video.Key, "strategy", result.Strategy, "placeholder", result.Placeholder)
	return result
}
