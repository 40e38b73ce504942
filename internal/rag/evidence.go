package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Agnikulu/veritas/internal/connectors"
	"github.com/Agnikulu/veritas/internal/ingestion"
	"github.com/Agnikulu/veritas/internal/models"
)

// evidenceItem is one piece of grounding evidence gathered in Phase 2,
// uniformly shaped whether it came from an indexed collection or a live C1
// fetch (spec.md §4.7-2).
type evidenceItem struct {
	Text             string
	Kind             models.ItemKind
	SourceName       string
	URL              string
	PublishedAt      *time.Time
	Similarity       float64
	CredibilityScore float64
	CredibilityLevel string
	IsVerifiedSource bool
}

func (e evidenceItem) rankScore() float64 {
	return e.CredibilityScore*0.6 + e.Similarity*0.4
}

// collectionQuery is one row of the Phase 2 collection table.
type collectionQuery struct {
	Collection string
	K          int
	MinSim     float64
}

var phase2Collections = []collectionQuery{
	{ingestion.CollectionNewsArticles, 50, 0.65},
	{ingestion.CollectionGovBulletins, 20, 0.65},
	{ingestion.CollectionSocialPosts, 15, 0.65},
}

// gatherEvidence runs every Phase 2 collection query and the two live C1
// fetches concurrently, tolerating individual failures (spec.md §4.7 failure
// semantics: a single collection or live-fetch failure never aborts the
// others), and returns the merged, ranked, truncated evidence list.
// queryProvider is the embedding provider that produced queryVector, used to
// detect and correct a per-collection provider mismatch (spec.md §4.2).
func (e *Engine) gatherEvidence(ctx context.Context, claimText string, queryVector []float32, queryProvider string) []evidenceItem {
	var mu sync.Mutex
	var items []evidenceItem
	var wg sync.WaitGroup

	for _, cq := range phase2Collections {
		wg.Add(1)
		go func(cq collectionQuery) {
			defer wg.Done()
			hits, err := e.queryCollection(ctx, claimText, cq.Collection, queryVector, queryProvider, cq.K, cq.MinSim)
			if err != nil {
				e.logger.Warn().Err(err).Str("collection", cq.Collection).Msg("evidence query failed, continuing without it")
				return
			}
			mu.Lock()
			for _, h := range hits {
				items = append(items, hitToEvidence(h))
			}
			mu.Unlock()
		}(cq)
	}

	if e.liveNews != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			live := e.fetchLiveEvidence(ctx, e.liveNews, 10, claimText, queryVector)
			mu.Lock()
			items = append(items, live...)
			mu.Unlock()
		}()
	}

	if e.liveFactCheck != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			live := e.fetchLiveEvidence(ctx, e.liveFactCheck, 5, claimText, queryVector)
			mu.Lock()
			items = append(items, live...)
			mu.Unlock()
		}()
	}

	wg.Wait()

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].rankScore() > items[j].rankScore()
	})

	contextSize := e.cfg.ContextSize
	if contextSize <= 0 {
		contextSize = 25
	}
	if len(items) > contextSize {
		items = items[:contextSize]
	}
	return items
}

// queryCollection queries collection with queryVector, then checks the
// returned hits' recorded embedding_provider against queryProvider. A
// collection is embedded by a single active provider at a time, so a hit
// reporting a different provider means the fallback chain has moved on since
// this collection was last indexed — comparing those vectors by cosine
// similarity would silently compare two different embedding spaces. When
// that happens, the claim is re-embedded through the collection's recorded
// provider and the collection is re-queried once with the corrected vector
// (spec.md §4.2's transparent-re-embed path).
func (e *Engine) queryCollection(ctx context.Context, claimText, collection string, queryVector []float32, queryProvider string, k int, minSim float64) ([]models.Hit, error) {
	hits, err := e.index.Query(ctx, collection, queryVector, k, minSim)
	if err != nil {
		return nil, err
	}

	collectionProvider := mismatchedProvider(hits, queryProvider)
	if collectionProvider == "" {
		return hits, nil
	}

	e.logger.Warn().
		Str("collection", collection).
		Str("query_provider", queryProvider).
		Str("collection_provider", collectionProvider).
		Msg("embedding provider mismatch detected, re-embedding query for collection")

	reVec, err := e.embeddings.EmbedQuery(ctx, claimText, collectionProvider)
	if err != nil {
		return nil, fmt.Errorf("re-embed query for collection %s: %w", collection, err)
	}
	return e.index.Query(ctx, collection, reVec, k, minSim)
}

// mismatchedProvider returns the first embedding_provider recorded on a hit
// that differs from queryProvider, or "" if every hit agrees — including
// hits with no recorded provider at all, predating this tracking.
func mismatchedProvider(hits []models.Hit, queryProvider string) string {
	for _, h := range hits {
		if p := h.Metadata.EmbeddingProvider; p != "" && p != queryProvider {
			return p
		}
	}
	return ""
}

func hitToEvidence(h models.Hit) evidenceItem {
	return evidenceItem{
		Text:             h.Text,
		Kind:             h.Metadata.Kind,
		SourceName:       h.Metadata.SourceName,
		URL:              h.Metadata.URL,
		PublishedAt:      h.Metadata.PublishedAt,
		Similarity:       h.Similarity,
		CredibilityScore: h.Metadata.CredibilityScore,
		CredibilityLevel: h.Metadata.CredibilityLevel,
		IsVerifiedSource: h.Metadata.IsVerifiedSource,
	}
}

// fetchLiveEvidence best-effort fetches maxItems items from a live C1
// connector and scores them against queryVector by embedding their bodies
// and computing cosine similarity locally — the connector itself has no
// notion of similarity, only recency.
func (e *Engine) fetchLiveEvidence(ctx context.Context, conn connectors.Connector, maxItems int, claimText string, queryVector []float32) []evidenceItem {
	raw, err := conn.Fetch(ctx, connectors.FetchOptions{MaxItems: maxItems, QueryTerms: []string{claimText}})
	if err != nil {
		e.logger.Warn().Err(err).Str("connector", conn.Name()).Msg("live evidence fetch failed, continuing without it")
		return nil
	}
	if len(raw) == 0 {
		return nil
	}

	texts := make([]string, len(raw))
	for i, item := range raw {
		texts[i] = item.Body
	}

	result, err := e.embeddings.Embed(ctx, texts)
	if err != nil {
		e.logger.Warn().Err(err).Str("connector", conn.Name()).Msg("failed to embed live evidence, continuing without it")
		return nil
	}

	items := make([]evidenceItem, len(raw))
	for i, item := range raw {
		score, level, verified := models.ClassifyCredibility(item.SourceName, item.Kind)
		items[i] = evidenceItem{
			Text:             item.Body,
			Kind:             item.Kind,
			SourceName:       item.SourceName,
			URL:              item.URL,
			PublishedAt:      item.PublishedAt,
			Similarity:       cosineSimilarity(queryVector, result.Vectors[i]),
			CredibilityScore: score,
			CredibilityLevel: string(level),
			IsVerifiedSource: verified,
		}
	}
	return items
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
