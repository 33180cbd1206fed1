package thumbnail_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
	memledger "github.com/tendant/simple-thumbnail/pkg/thumbnail/ledger/memory"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail/storage/memory"
)

var beach = thumbnail.VideoObjectRef{Key: "videos/trips/beach.mov", SizeBytes: 1024}

func TestOrchestrator_StoresFrameOfWinningStrategy(t *testing.T) {
	store := memory.New("https://cdn.test/")
	ledger := memledger.New()
	metrics := &recordingMetrics{}
	streaming := failing(thumbnail.StrategyStreaming)
	partial := succeeding(thumbnail.StrategyPartialDownload, "jpeg-bytes")
	managed := succeeding(thumbnail.StrategyManagedFallback, "unused")

	o := thumbnail.NewOrchestrator(store, []thumbnail.Strategy{streaming, partial, managed},
		thumbnail.WithLedger(ledger), thumbnail.WithOrchestratorMetrics(metrics))
	assert.Equal(t, []string{"streaming", "partial_download", "managed_fallback"}, o.Strategies())

	result := o.Generate(context.Background(), beach)

	assert.Equal(t, thumbnail.StrategyPartialDownload, result.Strategy)
	assert.False(t, result.Placeholder)
	assert.True(t, strings.HasPrefix(result.URL, "https://cdn.test/thumbnails/trips/beach.jpg?expires="))
	assert.Equal(t, int32(0), managed.calls.Load())

	data, ok := store.Get("thumbnails/trips/beach.jpg")
	require.True(t, ok)
	assert.Equal(t, "jpeg-bytes", string(data))
	info, err := store.HeadObject(context.Background(), "thumbnails/trips/beach.jpg")
	require.NoError(t, err)
	assert.Equal(t, thumbnail.ThumbnailContentType, info.ContentType)

	assert.Equal(t, []string{"streaming:failure", "partial_download:success"}, metrics.attempts)
	assert.Equal(t, []string{"generated"}, metrics.served)

	generations, err := ledger.ListByVideo(context.Background(), beach.Key, 0)
	require.NoError(t, err)
	require.Len(t, generations, 1)
	assert.Equal(t, thumbnail.StrategyPartialDownload, generations[0].Strategy)
	assert.Equal(t, "thumbnails/trips/beach.jpg", generations[0].ThumbnailKey)
	assert.NotEmpty(t, generations[0].ID)
}

func TestOrchestrator_AllStrategiesFailGivesPlaceholder(t *testing.T) {
	metrics := &recordingMetrics{}
	o := thumbnail.NewOrchestrator(memory.New(""), []thumbnail.Strategy{failing("a"), failing("b")},
		thumbnail.WithPlaceholderURL("/static/none.jpg"), thumbnail.WithOrchestratorMetrics(metrics))

	result := o.Generate(context.Background(), beach)

	assert.Equal(t, thumbnail.Result{URL: "/static/none.jpg", Strategy: thumbnail.StrategyPlaceholder, Placeholder: true}, result)
	assert.Equal(t, []string{"placeholder"}, metrics.served)
}

func TestOrchestrator_URLOutcomeIsReturnedAsIs(t *testing.T) {
	store := memory.New("")
	managed := thumbnail.NewManagedFallbackStrategy("", nil, nil)
	o := thumbnail.NewOrchestrator(store, []thumbnail.Strategy{failing("streaming"), managed})

	result := o.Generate(context.Background(), beach)

	assert.Equal(t, thumbnail.DefaultPlaceholderURL, result.URL)
	assert.Equal(t, thumbnail.StrategyManagedFallback, result.Strategy)
	assert.True(t, result.Placeholder)
	_, stored := store.Get("thumbnails/trips/beach.jpg")
	assert.False(t, stored)
}

func TestOrchestrator_UploadFailureGivesPlaceholder(t *testing.T) {
	store := brokenStore{ObjectStore: memory.New("")}
	o := thumbnail.NewOrchestrator(store, []thumbnail.Strategy{succeeding("streaming", "frame")})

	result := o.Generate(context.Background(), beach)

	assert.True(t, result.Placeholder)
	assert.Equal(t, thumbnail.DefaultPlaceholderURL, result.URL)
}
