package thumbclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// JitterFraction is the largest jitter as a fraction of the exponential delay
const JitterFraction = 0.3

// maxBody bounds one downloaded thumbnail
const maxBody = 32 << 20

// Phase is the retry state of one key
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAttempting
	PhaseWaiting
	PhaseSucceeded
	PhaseTerminallyFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAttempting:
		return "attempting"
	case PhaseWaiting:
		return "waiting"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseTerminallyFailed:
		return "terminally_failed"
	default:
		return "unknown"
	}
}

// State is the retry bookkeeping for one key. Failures counts consecutive
// retryable failures and never exceeds the policy's MaxRetries.
type State struct {
	Key       string
	Phase     Phase
	Failures  int
	LastDelay time.Duration
	LastErr   error
}

// Delay is min(base*2^n + jitter, max) where jitter is rnd (in [0,1)) times
// JitterFraction of the exponential term.
func (p Policy) Delay(n int, rnd float64) time.Duration {
	exp := p.BaseDelay
	for i := 0; i < n && exp < p.MaxDelay; i++ {
		exp *= 2
	}
	d := exp + time.Duration(rnd*JitterFraction*float64(exp))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Next is the transition taken when an attempt returns err. A nil error
// succeeds; a retryable error either waits or, once MaxRetries consecutive
// failures are reached, becomes terminal. Non-retryable errors return to
// Idle with the failure count unchanged.
func (p Policy) Next(s State, err error, rnd float64) State {
	switch {
	case err == nil:
		return State{Key: s.Key, Phase: PhaseSucceeded}
	case !IsRetryable(err):
		s.Phase = PhaseIdle
		s.LastErr = err
		return s
	}

	s.Failures++
	s.LastErr = err
	if s.Failures >= p.MaxRetries {
		s.Phase = PhaseTerminallyFailed
		s.LastDelay = 0
		return s
	}
	s.Phase = PhaseWaiting
	s.LastDelay = p.Delay(s.Failures-1, rnd)
	return s
}

// Retrier runs per-key operations with network-adaptive exponential backoff
// and remembers keys that exhausted their budget for the session.
type Retrier struct {
	mu       sync.Mutex
	states   map[string]State
	locks    map[string]*keyLock
	signals  Signals
	policies map[Quality]Policy
	epoch    uint64

	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
	jitter     func() float64
	logger     *slog.Logger
}

// RetrierOption configures a Retrier
type RetrierOption func(*Retrier)

// WithRetryHTTPClient sets the client used by LoadWithRetry
func WithRetryHTTPClient(client *http.Client) RetrierOption {
	return func(r *Retrier) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// WithSleep replaces the backoff sleep, for tests with a fake clock
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RetrierOption {
	return func(r *Retrier) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithJitter replaces the jitter source; it must return values in [0,1)
func WithJitter(jitter func() float64) RetrierOption {
	return func(r *Retrier) {
		if jitter != nil {
			r.jitter = jitter
		}
	}
}

// WithPolicies overrides the policy table
func WithPolicies(policies map[Quality]Policy) RetrierOption {
	return func(r *Retrier) {
		merged := make(map[Quality]Policy, len(DefaultPolicies))
		for q, p := range DefaultPolicies {
			merged[q] = p
		}
		for q, p := range policies {
			merged[q] = p
		}
		r.policies = merged
	}
}

// WithSignals sets the initial connection signals
func WithSignals(s Signals) RetrierOption {
	return func(r *Retrier) {
		r.signals = s
	}
}

// WithRetryLogger sets the retrier logger
func WithRetryLogger(logger *slog.Logger) RetrierOption {
	return func(r *Retrier) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRetrier creates a retrier assuming an online connection of unknown quality
func NewRetrier(opts ...RetrierOption) *Retrier {
	r := &Retrier{
		states:     make(map[string]State),
		locks:      make(map[string]*keyLock),
		signals:    Signals{Online: true},
		policies:   DefaultPolicies,
		httpClient: &http.Client{Timeout: time.Minute},
		sleep:      sleepContext,
		jitter:     rand.Float64,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ObserveSignals records new connection signals. Going from offline to
// online clears all retry state, terminal keys included.
func (r *Retrier) ObserveSignals(s Signals) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cameOnline := !r.signals.Online && s.Online
	r.signals = s
	if cameOnline {
		r.states = make(map[string]State)
		r.epoch++
		r.logger.Info("network back online, retry state cleared", "quality", Classify(s).String())
	}
}

// SetOnline records a connectivity change, keeping the other signals
func (r *Retrier) SetOnline(online bool) {
	r.mu.Lock()
	s := r.signals
	r.mu.Unlock()
	s.Online = online
	r.ObserveSignals(s)
}

// Quality is the current network tier
func (r *Retrier) Quality() Quality {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Classify(r.signals)
}

// Policy is the policy for the current network tier
func (r *Retrier) Policy() Policy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.policyLocked()
}

func (r *Retrier) policyLocked() Policy {
	if p, ok := r.policies[Classify(r.signals)]; ok {
		return p
	}
	return PolicyFor(Classify(r.signals))
}

// State returns the remembered state of key, if any
func (r *Retrier) State(key string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[key]
	return s, ok
}

// Reset forgets key
func (r *Retrier) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, key)
}

// Do runs fn for key until it succeeds, fails permanently, or the key
// becomes terminal. A key already terminal fails at once without calling fn.
// Attempts for one key are serialized across callers and always continue
// from the shared state, so concurrent callers spend a single budget.
func (r *Retrier) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	for {
		release, err := r.lockKey(ctx, key)
		if err != nil {
			return err
		}

		r.mu.Lock()
		state, ok := r.states[key]
		epoch := r.epoch
		r.mu.Unlock()
		if !ok {
			state = State{Key: key, Phase: PhaseIdle}
		}
		if state.Phase == PhaseTerminallyFailed {
			release()
			return &TerminalError{Key: key, Attempts: state.Failures, Err: state.LastErr}
		}

		state.Phase = PhaseAttempting
		err = fn(ctx)
		if err != nil && ctx.Err() != nil {
			// abandoned by the caller; keep earlier failures but do not count this one
			release()
			return ctx.Err()
		}

		r.mu.Lock()
		if r.epoch != epoch {
			// reset while this attempt was in flight
			state = State{Key: key, Phase: PhaseAttempting}
		}
		policy := r.policyLocked()
		state = policy.Next(state, err, r.jitter())
		switch state.Phase {
		case PhaseSucceeded, PhaseIdle:
			delete(r.states, key)
		default:
			r.states[key] = state
		}
		r.mu.Unlock()
		release()

		switch state.Phase {
		case PhaseSucceeded:
			return nil
		case PhaseIdle:
			return err
		case PhaseTerminallyFailed:
			r.logger.Warn("giving up on key", "key", key, "attempts", state.Failures, "error", err)
			return &TerminalError{Key: key, Attempts: state.Failures, Err: err}
		}

		r.logger.Debug("retrying", "key", key, "failures", state.Failures,
			"delay", state.LastDelay, "quality", r.Quality().String(), "error", err)
		if err := r.sleep(ctx, state.LastDelay); err != nil {
			return err
		}
	}
}

// keyLock admits one attempt per key at a time
type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

// lockKey waits for the attempt slot of key. The returned release must be
// called exactly once.
func (r *Retrier) lockKey(ctx context.Context, key string) (func(), error) {
	r.mu.Lock()
	kl, ok := r.locks[key]
	if !ok {
		kl = &keyLock{sem: semaphore.NewWeighted(1)}
		r.locks[key] = kl
	}
	kl.refs++
	r.mu.Unlock()

	unref := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		kl.refs--
		if kl.refs == 0 {
			delete(r.locks, key)
		}
	}
	if err := kl.sem.Acquire(ctx, 1); err != nil {
		unref()
		return nil, err
	}
	return func() {
		kl.sem.Release(1)
		unref()
	}, nil
}

// LoadWithRetry downloads url, retrying transient failures under key. An
// empty key uses the URL itself.
func (r *Retrier) LoadWithRetry(ctx context.Context, url, key string) ([]byte, error) {
	if key == "" {
		key = url
	}
	var data []byte
	err := r.Do(ctx, key, func(ctx context.Context) error {
		var err error
		data, err = r.fetch(ctx, url)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *Retrier) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, statusError(url, resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, &NetworkError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	if len(data) > maxBody {
		return nil, &NetworkError{URL: url, StatusCode: http.StatusRequestEntityTooLarge, Err: errors.New("thumbnail exceeds size limit")}
	}
	return data, nil
}
