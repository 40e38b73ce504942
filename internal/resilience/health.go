package resilience

import (
	"sync"

	"github.com/rs/zerolog"
)

// HealthTracker reports GET /health's degraded condition: the spec combines
// exactly two inputs (model backend health, last ingest outcome) rather than
// the multi-subsystem severity ladder a larger service would need, so this is
// a flat status map plus one terminal-state field instead of a weighted
// degradation-level calculator.
type HealthTracker struct {
	mu             sync.RWMutex
	backends       map[string]bool // true = ok, false = down
	lastIngestFail bool
	logger         zerolog.Logger
}

// NewHealthTracker constructs an empty tracker; backends report in as the
// health sampler runs its first pass.
func NewHealthTracker(logger zerolog.Logger) *HealthTracker {
	return &HealthTracker{
		backends: make(map[string]bool),
		logger:   logger.With().Str("component", "health_tracker").Logger(),
	}
}

// SetBackendHealth records the outcome of the most recent ping for a backend.
func (t *HealthTracker) SetBackendHealth(backendID string, ok bool) {
	t.mu.Lock()
	prev, had := t.backends[backendID]
	t.backends[backendID] = ok
	t.mu.Unlock()

	if had && prev != ok {
		t.logger.Info().Str("backend", backendID).Bool("ok", ok).Msg("backend health changed")
	}
}

// SetLastIngestFailed records whether the most recently finished ingestion
// run ended in FAILED state.
func (t *HealthTracker) SetLastIngestFailed(failed bool) {
	t.mu.Lock()
	t.lastIngestFail = failed
	t.mu.Unlock()
}

// Snapshot returns a copy of the current backend health map and a degraded
// flag: degraded iff at least one backend is down or the last ingest failed.
func (t *HealthTracker) Snapshot() (backends map[string]bool, degraded bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	backends = make(map[string]bool, len(t.backends))
	for id, ok := range t.backends {
		backends[id] = ok
		if !ok {
			degraded = true
		}
	}
	if t.lastIngestFail {
		degraded = true
	}
	return backends, degraded
}
