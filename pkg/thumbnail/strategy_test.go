package thumbnail_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

func TestFirstSuccess_StopsAtFirstWinner(t *testing.T) {
	first := failing("first")
	second := succeeding("second", "frame")
	third := succeeding("third", "never")

	var failed []string
	outcome, name, err := thumbnail.FirstSuccess(context.Background(),
		[]thumbnail.Strategy{first, second, third}, thumbnail.Attempt{},
		func(strategy string, err error) { failed = append(failed, strategy) })

	require.NoError(t, err)
	assert.Equal(t, "second", name)
	assert.Equal(t, "frame", string(outcome.Frame))
	assert.Equal(t, []string{"first"}, failed)
	assert.Equal(t, int32(1), first.calls.Load())
	assert.Equal(t, int32(1), second.calls.Load())
	assert.Equal(t, int32(0), third.calls.Load())
}

func TestFirstSuccess_AllFail(t *testing.T) {
	_, _, err := thumbnail.FirstSuccess(context.Background(),
		[]thumbnail.Strategy{failing("a"), failing("b")}, thumbnail.Attempt{}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, thumbnail.ErrGenerationExhausted)
	var extractionErr *thumbnail.ExtractionError
	require.True(t, errors.As(err, &extractionErr))
	assert.Equal(t, "a", extractionErr.Strategy)
}

func TestFirstSuccess_PanicAndNilOutcomeAreFailures(t *testing.T) {
	panicking := thumbnail.StrategyFunc{StrategyName: "panics", Fn: func(ctx context.Context, a thumbnail.Attempt) (*thumbnail.Outcome, error) {
		panic("boom")
	}}
	empty := thumbnail.StrategyFunc{StrategyName: "empty", Fn: func(ctx context.Context, a thumbnail.Attempt) (*thumbnail.Outcome, error) {
		return nil, nil
	}}
	last := succeeding("last", "ok")

	var failed []string
	_, name, err := thumbnail.FirstSuccess(context.Background(),
		[]thumbnail.Strategy{panicking, empty, last}, thumbnail.Attempt{},
		func(strategy string, err error) { failed = append(failed, strategy) })

	require.NoError(t, err)
	assert.Equal(t, "last", name)
	assert.Equal(t, []string{"panics", "empty"}, failed)
}

func TestFirstSuccess_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := succeeding("never", "x")

	_, _, err := thumbnail.FirstSuccess(ctx, []thumbnail.Strategy{s}, thumbnail.Attempt{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), s.calls.Load())
}
