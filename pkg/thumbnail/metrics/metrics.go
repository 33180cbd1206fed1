// Package metrics exports thumbnail pipeline events to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "thumbnail"

// Recorder implements thumbnail.MetricsRecorder.
type Recorder struct {
	strategyAttempts  *promclient.CounterVec
	thumbnailsServed  *promclient.CounterVec
	credentialLookups *promclient.CounterVec
	gatherer          promclient.Gatherer
}

// New registers the pipeline counters with reg. A nil reg gets a fresh
// registry so tests and multiple servers never collide.
func New(namespace string, reg *promclient.Registry) (*Recorder, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = promclient.NewRegistry()
	}

	r := &Recorder{
		strategyAttempts: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_attempts_total",
			Help:      "Generation strategy runs by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		thumbnailsServed: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "served_total",
			Help:      "Thumbnails returned to callers by source.",
		}, []string{"source"}),
		credentialLookups: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "credential_lookups_total",
			Help:      "Credential cache lookups by result.",
		}, []string{"result"}),
		gatherer: reg,
	}

	for _, c := range []**promclient.CounterVec{&r.strategyAttempts, &r.thumbnailsServed, &r.credentialLookups} {
		registered, err := register(reg, *c)
		if err != nil {
			return nil, err
		}
		*c = registered
	}
	return r, nil
}

// register returns the collector already registered under the same
// descriptor, if any, so two recorders on one registry share counters.
func register(reg promclient.Registerer, c *promclient.CounterVec) (*promclient.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are promclient.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promclient.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register counter: %w", err)
	}
	return c, nil
}

func (r *Recorder) StrategyAttempt(strategy, outcome string) {
	r.strategyAttempts.WithLabelValues(strategy, outcome).Inc()
}

func (r *Recorder) ThumbnailServed(source string) {
	r.thumbnailsServed.WithLabelValues(source).Inc()
}

func (r *Recorder) CredentialLookup(result string) {
	r.credentialLookups.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
