// Package ingestion implements the ingestion orchestrator (C6): the
// singleton, cooldown-gated batch job that fans out to every source
// connector, chunks and deduplicates their output, embeds the result, and
// persists it across the vector index and document store.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Agnikulu/veritas/internal/chunker"
	"github.com/Agnikulu/veritas/internal/config"
	"github.com/Agnikulu/veritas/internal/connectors"
	"github.com/Agnikulu/veritas/internal/docstore"
	"github.com/Agnikulu/veritas/internal/embedding"
	"github.com/Agnikulu/veritas/internal/metrics"
	"github.com/Agnikulu/veritas/internal/models"
	"github.com/Agnikulu/veritas/internal/verrors"
)

// ErrAlreadyRunning is returned when an ingestion run is already RUNNING.
var ErrAlreadyRunning = docstore.ErrAlreadyRunning

// ErrCooldown is returned when the last run finished too recently and
// force=false.
var ErrCooldown = errors.New("ingestion cooldown active")

// VectorIndex is the subset of vectorindex.Index the orchestrator needs —
// declared here so the orchestrator can be exercised against a stub.
type VectorIndex interface {
	Upsert(ctx context.Context, collection string, records []models.KBRecord, embeddingProvider string) error
}

// Orchestrator drives one ingestion run end to end.
type Orchestrator struct {
	store      *docstore.Store
	index      VectorIndex
	embeddings *embedding.Chain
	connectors []connectors.Connector
	cfg        config.IngestionConfig
	maxItems   int
	logger     zerolog.Logger
}

// New constructs an Orchestrator over the given connectors and backing
// stores.
func New(
	store *docstore.Store,
	index VectorIndex,
	embeddings *embedding.Chain,
	conns []connectors.Connector,
	cfg config.IngestionConfig,
	maxItemsPerFetch int,
	logger zerolog.Logger,
) *Orchestrator {
	if maxItemsPerFetch <= 0 {
		maxItemsPerFetch = 100
	}
	return &Orchestrator{
		store:      store,
		index:      index,
		embeddings: embeddings,
		connectors: conns,
		cfg:        cfg,
		maxItems:   maxItemsPerFetch,
		logger:     logger.With().Str("component", "ingestion_orchestrator").Logger(),
	}
}

// Ingest runs the full state machine of spec.md §4.5: singleton gate,
// cooldown check, concurrent connector fan-out, chunk+dedupe+embed+persist,
// and IngestRun finalization.
func (o *Orchestrator) Ingest(ctx context.Context, force bool, triggeredBy string) (*models.IngestRun, error) {
	// Rule 1: singleton gate, checked up front (StartIngestRun below is the
	// race-safe guard; this is just an early, cheap rejection).
	running, err := o.store.CurrentlyRunning()
	if err != nil {
		return nil, fmt.Errorf("check currently running: %w", err)
	}
	if running != nil {
		o.logger.Info().Err(verrors.New(verrors.KindRaceRejected, "ingestion run already in progress")).Msg("rejecting ingest trigger")
		return nil, ErrAlreadyRunning
	}

	// Rule 2: cooldown.
	if !force {
		last, err := o.store.LastFinishedIngestRun()
		if err != nil {
			return nil, fmt.Errorf("check last ingest run: %w", err)
		}
		if last != nil && last.FinishedAt != nil {
			cooldown := time.Duration(o.cfg.CooldownSeconds) * time.Second
			if time.Since(*last.FinishedAt) < cooldown {
				return nil, ErrCooldown
			}
		}
	}

	run := models.IngestRun{
		RunID:       uuid.NewString(),
		StartedAt:   time.Now(),
		TriggeredBy: triggeredBy,
		Forced:      force,
		Status:      models.IngestRunning,
	}
	if err := o.store.StartIngestRun(run); err != nil {
		if errors.Is(err, docstore.ErrAlreadyRunning) {
			o.logger.Info().Err(verrors.New(verrors.KindRaceRejected, "lost the race to start an ingest run")).Msg("rejecting ingest trigger")
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("start ingest run: %w", verrors.Wrap(verrors.KindStorageFault, "start ingest run", err))
	}

	o.logger.Info().Str("run_id", run.RunID).Bool("forced", force).Msg("ingestion run started")

	counts, fetchErrs, connectorsAttempted := o.fetchAndPersist(ctx, run.RunID)

	status := models.IngestOK
	switch {
	case len(fetchErrs) >= connectorsAttempted && connectorsAttempted > 0:
		status = models.IngestFailed
	case len(fetchErrs) > 0:
		status = models.IngestPartial
	}

	finishedAt := time.Now()
	run.FinishedAt = &finishedAt
	run.Status = status
	run.Counts = counts
	run.Errors = fetchErrs

	if err := o.store.FinishIngestRun(run); err != nil {
		o.logger.Error().Err(err).Str("run_id", run.RunID).Msg("failed to finalize ingest run")
		return nil, fmt.Errorf("finish ingest run: %w", err)
	}

	metrics.IncrementCounter("ingest_runs_total", map[string]string{"status": string(status)})
	metrics.ObserveHistogram("ingest_duration_seconds", finishedAt.Sub(run.StartedAt).Seconds(), map[string]string{})

	o.logger.Info().Str("run_id", run.RunID).Str("status", string(status)).
		Int("errors", len(fetchErrs)).Msg("ingestion run finished")

	return &run, nil
}

// fetchAndPersist fans out to every connector concurrently, each bounded by
// T_CONNECTOR, then chunks/dedupes/embeds/persists whatever came back.
// A per-connector failure is recorded but never aborts the others.
func (o *Orchestrator) fetchAndPersist(ctx context.Context, runID string) (models.IngestCounts, []string, int) {
	type connResult struct {
		name  string
		kind  models.ItemKind
		items []models.RawItem
		err   error
	}

	results := make([]connResult, len(o.connectors))
	var wg sync.WaitGroup
	for i, c := range o.connectors {
		wg.Add(1)
		go func(i int, c connectors.Connector) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, o.cfg.ConnectorTimeout)
			defer cancel()
			items, err := c.Fetch(cctx, connectors.FetchOptions{MaxItems: o.maxItems})
			results[i] = connResult{name: c.Name(), kind: c.Kind(), items: items, err: err}
		}(i, c)
	}
	wg.Wait()

	var errs []string
	counts := models.IngestCounts{}
	dedupers := make(map[models.ItemKind]*chunker.Deduper)

	for _, r := range results {
		if r.err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", r.name, r.err))
			o.logger.Warn().Err(r.err).Str("connector", r.name).Msg("connector fetch failed")
			continue
		}

		dedup := o.deduperFor(r.kind, dedupers)
		n := o.persistItems(ctx, runID, r.items, dedup)
		addCount(&counts, r.kind, n)
	}

	return counts, errs, len(o.connectors)
}

func (o *Orchestrator) deduperFor(kind models.ItemKind, cache map[models.ItemKind]*chunker.Deduper) *chunker.Deduper {
	if d, ok := cache[kind]; ok {
		return d
	}

	var historical []string
	if kind != models.KindFactCheck {
		keys, err := o.store.HistoricalURLKeys(kind)
		if err != nil {
			o.logger.Warn().Err(err).Str("kind", string(kind)).Msg("failed to load historical url keys, deduping within run only")
		} else {
			historical = keys
		}
	}

	d := chunker.NewDeduper(historical)
	cache[kind] = d
	return d
}

// persistItems chunks/embeds/persists every item that survives deduping,
// returning how many were kept. A single item's persistence failure is
// logged and skipped — it never aborts the rest of the batch.
func (o *Orchestrator) persistItems(ctx context.Context, runID string, items []models.RawItem, dedup *chunker.Deduper) int {
	kept := 0
	for _, item := range items {
		if !dedup.Accept(item.URL, item.Body) {
			continue
		}

		var err error
		if item.Kind == models.KindFactCheck {
			err = o.persistFactCheck(ctx, item)
		} else {
			err = o.persistSourceItem(ctx, item)
		}
		if err != nil {
			o.logger.Warn().Err(err).Str("run_id", runID).Str("kind", string(item.Kind)).Msg("failed to persist item")
			continue
		}
		kept++
	}
	return kept
}

// persistSourceItem chunks a news/gov/social item, embeds each batch of
// B_EMBED chunks, upserts the resulting KBRecords, then the raw row — per
// spec.md §4.5 rule 6, KBRecords land before the raw row they came from.
func (o *Orchestrator) persistSourceItem(ctx context.Context, item models.RawItem) error {
	rawID := uuid.NewString()
	cfg := chunker.Config{Window: o.cfg.ChunkSize, Overlap: o.cfg.ChunkOverlap}
	chunks := chunker.Split(rawID, item.Body, cfg)
	if len(chunks) == 0 {
		return nil
	}

	score, level, verified := models.ClassifyCredibility(item.SourceName, item.Kind)
	collection := vectorCollectionFor(item.Kind)
	batchSize := o.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		result, err := o.embeddings.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunk batch: %w", err)
		}

		records := make([]models.KBRecord, len(batch))
		for i, c := range batch {
			records[i] = models.KBRecord{
				RecordID: models.RecordID(item.ProviderTag, item.URL, c.Ordinal, c.Text),
				Vector:   result.Vectors[i],
				Text:     c.Text,
				Metadata: models.KBRecordMetadata{
					Kind:             item.Kind,
					SourceName:       item.SourceName,
					URL:              item.URL,
					PublishedAt:      item.PublishedAt,
					Title:            item.Title,
					CredibilityScore: score,
					CredibilityLevel: string(level),
					IsVerifiedSource: verified,
				},
			}
		}

		if err := o.index.Upsert(ctx, collection, records, result.ProviderName); err != nil {
			return fmt.Errorf("upsert chunk batch: %w", err)
		}
	}

	if err := o.store.InsertRawItem(rawID, item); err != nil {
		return fmt.Errorf("insert raw item: %w", err)
	}
	return nil
}

// persistFactCheck normalizes a FactCheck connector item into a
// VerifiedClaim (spec.md §4.5 rule 7) and indexes its claim text in the
// verified_claims vector collection so Phase 1 canon lookup can find it.
func (o *Orchestrator) persistFactCheck(ctx context.Context, item models.RawItem) error {
	claim := models.VerifiedClaim{
		ClaimID:             uuid.NewString(),
		ClaimText:           item.Body,
		NormalizedClaimText: normalizeClaimText(item.Body),
		Verdict:             models.NewCanonVerdict(item.FactCheckVerdict),
		Explanation:         item.Title,
		SourceURL:           item.URL,
		Publisher:           item.SourceName,
		Language:            item.Language,
		PublishedAt:         item.PublishedAt,
		ProviderTag:         item.ProviderTag,
	}
	if err := o.store.SaveVerifiedClaim(claim); err != nil {
		return fmt.Errorf("save verified claim: %w", err)
	}

	result, err := o.embeddings.Embed(ctx, []string{item.Body})
	if err != nil {
		return fmt.Errorf("embed claim text: %w", err)
	}

	score, level, verified := models.ClassifyCredibility(item.SourceName, models.KindFactCheck)
	record := models.KBRecord{
		// RecordID is the claim_id itself (not the usual provider/url/ordinal
		// hash) so Phase 1 canon lookup can join a vector hit straight back
		// to its VerifiedClaim row without a separate index.
		RecordID: claim.ClaimID,
		Vector:   result.Vectors[0],
		Text:     item.Body,
		Metadata: models.KBRecordMetadata{
			Kind:             models.KindFactCheck,
			SourceName:       item.SourceName,
			URL:              item.URL,
			PublishedAt:      item.PublishedAt,
			Title:            item.Title,
			CredibilityScore: score,
			CredibilityLevel: string(level),
			IsVerifiedSource: verified,
		},
	}

	return o.index.Upsert(ctx, CollectionVerifiedClaims, []models.KBRecord{record}, result.ProviderName)
}

func normalizeClaimText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func addCount(counts *models.IngestCounts, kind models.ItemKind, n int) {
	switch kind {
	case models.KindNews:
		counts.News += n
	case models.KindGov:
		counts.Gov += n
	case models.KindFactCheck:
		counts.FactCheck += n
	case models.KindSocial:
		counts.Social += n
	}
}
