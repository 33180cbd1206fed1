package thumbnail

import (
	"context"
	"errors"
	"log/slog"
)

// Attempt is the input handed to every strategy.
type Attempt struct {
	Video     VideoObjectRef
	Thumbnail ThumbnailObjectRef
}

// Outcome is a successful strategy result. Exactly one of Frame or URL is
// set: Frame holds still image bytes to be stored under the thumbnail key,
// URL is an already resolved reference.
type Outcome struct {
	Frame       []byte
	ContentType string
	URL         string
	Placeholder bool
}

// Strategy is one way of producing a thumbnail. Strategies are tried in
// increasing cost order; a returned error moves on to the next one.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, attempt Attempt) (*Outcome, error)
}

// StrategyFunc adapts a function to the Strategy interface
type StrategyFunc struct {
	StrategyName string
	Fn           func(ctx context.Context, attempt Attempt) (*Outcome, error)
}

func (f StrategyFunc) Name() string { return f.StrategyName }

func (f StrategyFunc) Attempt(ctx context.Context, attempt Attempt) (*Outcome, error) {
	return f.Fn(ctx, attempt)
}

// FailureFunc is called for every strategy that fails in FirstSuccess.
type FailureFunc func(strategy string, err error)

// FirstSuccess runs strategies in order and returns the first outcome that
// succeeds together with the name of the strategy that produced it. Failures
// are reported through onFailure and never stop the iteration; if every
// strategy fails the joined failures are returned wrapped in
// ErrGenerationExhausted. A cancelled context stops the iteration early.
func FirstSuccess(ctx context.Context, strategies []Strategy, attempt Attempt, onFailure FailureFunc) (*Outcome, string, error) {
	var errs []error
	for _, strategy := range strategies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		outcome, err := runStrategy(ctx, strategy, attempt)
		if err == nil && outcome == nil {
			err = errors.New("strategy returned no outcome")
		}
		if err != nil {
			err = asExtractionError(strategy.Name(), err)
			if onFailure != nil {
				onFailure(strategy.Name(), err)
			}
			errs = append(errs, err)
			continue
		}
		return outcome, strategy.Name(), nil
	}
	return nil, "", errors.Join(append([]error{ErrGenerationExhausted}, errs...)...)
}

// runStrategy converts a panicking strategy into an ordinary failure.
func runStrategy(ctx context.Context, strategy Strategy, attempt Attempt) (outcome *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("thumbnail strategy panicked", "strategy", strategy.Name(), "panic", r)
			outcome = nil
			err = errors.New("strategy panicked")
		}
	}()
	return strategy.Attempt(ctx, attempt)
}

func asExtractionError(name string, err error) error {
	var extractionErr *ExtractionError
	if errors.As(err, &extractionErr) {
		return err
	}
	return &ExtractionError{Strategy: name, Err: err}
}
