package thumbnail

import "context"

// MetricsRecorder receives pipeline events. The metrics package provides a
// Prometheus implementation.
type MetricsRecorder interface {
	// StrategyAttempt counts one strategy run with outcome "success" or "failure"
	StrategyAttempt(strategy, outcome string)
	// ThumbnailServed counts one resolved thumbnail by source: existing, generated or placeholder
	ThumbnailServed(source string)
	// CredentialLookup counts one credential validation: hit, miss or rejected
	CredentialLookup(result string)
}

// NoopMetrics discards every event
type NoopMetrics struct{}

func (NoopMetrics) StrategyAttempt(strategy, outcome string) {}
func (NoopMetrics) ThumbnailServed(source string)            {}
func (NoopMetrics) CredentialLookup(result string)           {}

// NoopLedger is a ledger that records nothing
type NoopLedger struct{}

// NewNoopLedger creates a ledger that discards records
func NewNoopLedger() Ledger {
	return NoopLedger{}
}

func (NoopLedger) Record(ctx context.Context, generation *Generation) error {
	return nil
}

func (NoopLedger) ListByVideo(ctx context.Context, videoKey string, limit int) ([]*Generation, error) {
	return nil, nil
}
