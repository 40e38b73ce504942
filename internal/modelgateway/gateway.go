package modelgateway

import (
	"context"
	"fmt"
	"time"

	"github.com/Agnikulu/veritas/internal/resilience"
	"github.com/rs/zerolog"
)

// backoffCfg drives resilience.ComputeDelay with the gateway's own retry
// formula (spec.md §4.6: 500ms * 2^attempt + jitter(0..250ms)), sharing the
// exponential/cap arithmetic with internal/resilience's connector retries
// instead of reimplementing it here.
var backoffCfg = resilience.RetryConfig{
	InitialDelay:      500 * time.Millisecond,
	Multiplier:        2.0,
	AdditiveJitterMax: 250 * time.Millisecond,
}

// Result is the successful outcome of a Generate call.
type Result struct {
	Text      string
	ModelUsed string
}

// Gateway dispatches a chat completion across a preference-ordered chain of
// backends, per spec.md §4.6. It imposes no prompt policy — that is the
// RAG engine's contract.
type Gateway struct {
	backends         []Backend
	forceOffline     bool
	modelTimeout     time.Duration
	maxRetries       int
	breakers         *resilience.CircuitBreakerRegistry
	health           *resilience.HealthTracker
	logger           zerolog.Logger
}

// Config configures retry/timeout behavior for the gateway.
type Config struct {
	ForceOfflineMode bool
	ModelTimeout     time.Duration
	MaxRetries       int
	HealthInterval   time.Duration
}

// New constructs a Gateway over the given ordered backend chain.
func New(backends []Backend, cfg Config, health *resilience.HealthTracker, logger zerolog.Logger) *Gateway {
	logger = logger.With().Str("component", "model_gateway").Logger()
	breakers := resilience.NewCircuitBreakerRegistry(logger)
	for _, b := range backends {
		breakers.Register(resilience.CircuitBreakerConfig{Name: b.ID(), FailureThreshold: 3})
	}
	return &Gateway{
		backends:     backends,
		forceOffline: cfg.ForceOfflineMode,
		modelTimeout: cfg.ModelTimeout,
		maxRetries:   cfg.MaxRetries,
		breakers:     breakers,
		health:       health,
		logger:       logger,
	}
}

// Generate walks the backend chain strictly sequentially — parallel probing
// is rejected to avoid wasting paid LLM quota (spec.md §5) — retrying
// transient failures per backend before falling through to the next.
func (g *Gateway) Generate(ctx context.Context, system, prompt string) (*Result, error) {
	var lastErr error

	for _, backend := range g.backends {
		if g.forceOffline && !backend.IsLocal() {
			continue
		}

		breaker, _ := g.breakers.Get(backend.ID())

		text, err := g.callWithRetry(ctx, breaker, backend, system, prompt)
		if err == nil {
			return &Result{Text: text, ModelUsed: backend.ID()}, nil
		}
		lastErr = err
		g.logger.Warn().Err(err).Str("backend", backend.ID()).Msg("backend exhausted, falling through")
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no backends available (force_offline=%v)", g.forceOffline)
	}
	return nil, fmt.Errorf("all backends down: %w", lastErr)
}

func (g *Gateway) callWithRetry(ctx context.Context, breaker *resilience.CircuitBreaker, backend Backend, system, prompt string) (string, error) {
	var text string
	var lastErr error

	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		callCtx, cancel := context.WithTimeout(ctx, g.modelTimeout)
		err := breaker.Call(func() error {
			var genErr error
			text, genErr = backend.Generate(callCtx, system, prompt)
			return genErr
		})
		cancel()

		if err == nil {
			return text, nil
		}
		lastErr = err

		if err == resilience.ErrCircuitOpen {
			return "", err
		}
		if !isRetryable(err) {
			return "", err
		}
		if attempt == g.maxRetries-1 {
			break
		}

		delay := resilience.ComputeDelay(attempt, backoffCfg)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	return "", lastErr
}

// StartHealthSampler launches the out-of-band health sampling job (T_HEALTH):
// a periodic ping to each configured backend, recording ok|down in the shared
// status map. It runs until ctx is cancelled.
func (g *Gateway) StartHealthSampler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		g.sampleOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.sampleOnce(ctx)
			}
		}
	}()
}

// sampleOnce pings every backend and also folds in each backend's circuit
// breaker state: a backend can answer a cheap ping while its breaker is still
// open from a recent burst of Generate failures, and /health should report
// that backend as down in that window rather than waiting for the breaker's
// own reset timeout to expire.
func (g *Gateway) sampleOnce(ctx context.Context) {
	for _, backend := range g.backends {
		pingCtx, cancel := context.WithTimeout(ctx, g.modelTimeout)
		err := backend.Ping(pingCtx)
		cancel()

		healthy := err == nil
		if breaker, getErr := g.breakers.Get(backend.ID()); getErr == nil && breaker.IsOpen() {
			healthy = false
		}
		g.health.SetBackendHealth(backend.ID(), healthy)
	}
}

// BackendIDs returns the configured backend chain in order.
func (g *Gateway) BackendIDs() []string {
	ids := make([]string, len(g.backends))
	for i, b := range g.backends {
		ids[i] = b.ID()
	}
	return ids
}

// ForceOffline reports whether the gateway is configured to skip non-local
// backends (FORCE_OFFLINE_MODE), for the /health mode field.
func (g *Gateway) ForceOffline() bool {
	return g.forceOffline
}

// HealthSnapshot returns the most recently sampled ok/down status per backend
// and whether the gateway as a whole is degraded, for the /health endpoint.
func (g *Gateway) HealthSnapshot() (backends map[string]bool, degraded bool) {
	return g.health.Snapshot()
}
