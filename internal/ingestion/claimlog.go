package ingestion

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Agnikulu/veritas/internal/docstore"
	"github.com/Agnikulu/veritas/internal/metrics"
	"github.com/Agnikulu/veritas/internal/models"
)

// ClaimLogQueue is the fire-and-forget write path for ClaimLog rows
// (spec.md §5): Enqueue never blocks the verification request, and a full
// queue drops its oldest pending entry rather than the newest one, so a
// burst of traffic loses the stalest logs first.
type ClaimLogQueue struct {
	ch     chan models.ClaimLog
	store  *docstore.Store
	logger zerolog.Logger
}

// NewClaimLogQueue constructs a queue with the given capacity (Q_LOG).
func NewClaimLogQueue(store *docstore.Store, capacity int, logger zerolog.Logger) *ClaimLogQueue {
	return &ClaimLogQueue{
		ch:     make(chan models.ClaimLog, capacity),
		store:  store,
		logger: logger.With().Str("component", "claimlog_queue").Logger(),
	}
}

// Enqueue submits log for durable persistence without blocking the caller.
func (q *ClaimLogQueue) Enqueue(log models.ClaimLog) {
	select {
	case q.ch <- log:
		return
	default:
	}

	// Queue full: drop the oldest pending entry to make room.
	select {
	case <-q.ch:
		metrics.IncrementCounter("claimlog_queue_dropped_total", map[string]string{})
		q.logger.Warn().Msg("claim log queue full, dropped oldest entry")
	default:
	}

	select {
	case q.ch <- log:
	default:
		// Lost the race to another producer; drop this entry instead.
		metrics.IncrementCounter("claimlog_queue_dropped_total", map[string]string{})
	}
}

// Run drains the queue until ctx is cancelled, then flushes whatever remains
// so a clean shutdown never loses a pending log.
func (q *ClaimLogQueue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return
		case log := <-q.ch:
			q.persist(log)
		}
	}
}

func (q *ClaimLogQueue) drain() {
	for {
		select {
		case log := <-q.ch:
			q.persist(log)
		default:
			return
		}
	}
}

func (q *ClaimLogQueue) persist(log models.ClaimLog) {
	if err := q.store.InsertClaimLog(log); err != nil {
		q.logger.Error().Err(err).Str("log_id", log.LogID).Msg("failed to persist claim log")
	}
}
