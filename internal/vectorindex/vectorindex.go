// Package vectorindex implements the vector index (C3): N named collections
// of KBRecords with top-k similarity search, backed by Elasticsearch
// dense_vector fields and script_score cosine similarity.
package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/Agnikulu/veritas/internal/metrics"
	"github.com/Agnikulu/veritas/internal/models"
	"github.com/rs/zerolog"
)

const indexPrefix = "veritas-kb-"

// Index is the Elasticsearch-backed realization of C3.
type Index struct {
	client        *elasticsearch.Client
	logger        zerolog.Logger
	minSimilarity float64
}

// Config configures the Elasticsearch connection.
type Config struct {
	URL           string
	MinSimilarity float64
}

// New constructs an Index and verifies connectivity.
func New(cfg Config, logger zerolog.Logger) (*Index, error) {
	esConfig := elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(100*i*i) * time.Millisecond
		},
		MaxRetries:    3,
		EnableMetrics: true,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := client.Ping(client.Ping.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to ping ES: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("ES ping failed with status: %s", res.Status())
	}

	return &Index{
		client:        client,
		logger:        logger.With().Str("component", "vector_index").Logger(),
		minSimilarity: cfg.MinSimilarity,
	}, nil
}

func indexName(collection string) string {
	return indexPrefix + strings.ToLower(collection)
}

// EnsureCollection creates the backing index with a dense_vector mapping of
// the given dimension if it does not already exist. Idempotent.
func (idx *Index) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	name := indexName(collection)

	existsRes, err := idx.client.Indices.Exists([]string{name}, idx.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	defer existsRes.Body.Close()
	if existsRes.StatusCode == 200 {
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"vector": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       dimension,
					"index":      true,
					"similarity": "cosine",
				},
				"text":              map[string]interface{}{"type": "text"},
				"source_name":       map[string]interface{}{"type": "keyword"},
				"url":               map[string]interface{}{"type": "keyword"},
				"kind":              map[string]interface{}{"type": "keyword"},
				"title":             map[string]interface{}{"type": "text"},
				"published_at":      map[string]interface{}{"type": "date"},
				"credibility_score": map[string]interface{}{"type": "float"},
				"credibility_level": map[string]interface{}{"type": "keyword"},
				"is_verified_source": map[string]interface{}{"type": "boolean"},
				"embedding_provider": map[string]interface{}{"type": "keyword"},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	req := esapi.IndicesCreateRequest{Index: name, Body: bytes.NewReader(body)}
	res, err := req.Do(ctx, idx.client)
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 400 { // 400: already exists (race)
		return fmt.Errorf("create index %s failed: %s", name, res.Status())
	}
	return nil
}

type indexedDoc struct {
	Vector             []float32 `json:"vector"`
	Text               string    `json:"text"`
	SourceName         string    `json:"source_name"`
	URL                string    `json:"url,omitempty"`
	Kind               string    `json:"kind"`
	Title              string    `json:"title,omitempty"`
	PublishedAt        *time.Time `json:"published_at,omitempty"`
	CredibilityScore   float64   `json:"credibility_score"`
	CredibilityLevel   string    `json:"credibility_level"`
	IsVerifiedSource   bool      `json:"is_verified_source"`
	EmbeddingProvider  string    `json:"embedding_provider"`
}

// Upsert replaces records by record_id within collection.
func (idx *Index) Upsert(ctx context.Context, collection string, records []models.KBRecord, embeddingProvider string) error {
	if len(records) == 0 {
		return nil
	}
	name := indexName(collection)
	start := time.Now()

	var buf bytes.Buffer
	for _, r := range records {
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_index": name, "_id": r.RecordID},
		}
		metaJSON, _ := json.Marshal(meta)
		buf.Write(metaJSON)
		buf.WriteByte('\n')

		doc := indexedDoc{
			Vector:            r.Vector,
			Text:              r.Text,
			SourceName:        r.Metadata.SourceName,
			URL:               r.Metadata.URL,
			Kind:              string(r.Metadata.Kind),
			Title:             r.Metadata.Title,
			PublishedAt:       r.Metadata.PublishedAt,
			CredibilityScore:  r.Metadata.CredibilityScore,
			CredibilityLevel:  r.Metadata.CredibilityLevel,
			IsVerifiedSource:  r.Metadata.IsVerifiedSource,
			EmbeddingProvider: embeddingProvider,
		}
		docJSON, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", r.RecordID, err)
		}
		buf.Write(docJSON)
		buf.WriteByte('\n')
	}

	res, err := idx.client.Bulk(bytes.NewReader(buf.Bytes()), idx.client.Bulk.WithContext(ctx), idx.client.Bulk.WithIndex(name))
	if err != nil {
		return fmt.Errorf("bulk upsert to %s: %w", name, err)
	}
	defer res.Body.Close()

	var bulkResp struct {
		Errors bool                     `json:"errors"`
		Items  []map[string]interface{} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		idx.logger.Warn().Str("collection", collection).Msg("bulk upsert reported partial errors")
	}

	metrics.ObserveHistogram("vector_query_latency_seconds", time.Since(start).Seconds(), map[string]string{"collection": collection})
	return nil
}

// Count returns the number of records in collection.
func (idx *Index) Count(ctx context.Context, collection string) (int, error) {
	res, err := idx.client.Count(
		idx.client.Count.WithContext(ctx),
		idx.client.Count.WithIndex(indexName(collection)),
	)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		if res.StatusCode == 404 {
			return 0, nil
		}
		return 0, fmt.Errorf("count %s failed: %s", collection, res.Status())
	}

	var parsed struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return parsed.Count, nil
}

// Query returns the top-k hits by cosine similarity, excluding any below
// minSimilarity (falling back to the index default when negative), applying
// the deterministic tie-break: higher credibility_score, then more recent
// published_at, then lexicographic record_id (spec.md §4.3).
func (idx *Index) Query(ctx context.Context, collection string, queryVector []float32, k int, minSimilarity float64) ([]models.Hit, error) {
	if minSimilarity < 0 {
		minSimilarity = idx.minSimilarity
	}
	start := time.Now()

	// Over-fetch: script_score ranks by similarity alone, so fetch more than
	// k to have enough candidates left after the min_similarity floor and to
	// make the Go-side tie-break meaningful on near-ties.
	fetchSize := k * 4
	if fetchSize < 50 {
		fetchSize = 50
	}

	query := map[string]interface{}{
		"size": fetchSize,
		"query": map[string]interface{}{
			"script_score": map[string]interface{}{
				"query": map[string]interface{}{"match_all": map[string]interface{}{}},
				"script": map[string]interface{}{
					"source": "cosineSimilarity(params.query_vector, 'vector') + 1.0",
					"params": map[string]interface{}{"query_vector": queryVector},
				},
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	res, err := idx.client.Search(
		idx.client.Search.WithContext(ctx),
		idx.client.Search.WithIndex(indexName(collection)),
		idx.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	defer res.Body.Close()

	metrics.ObserveHistogram("vector_query_latency_seconds", time.Since(start).Seconds(), map[string]string{"collection": collection})

	if res.IsError() {
		if res.StatusCode == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("search %s failed: %s", collection, res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string     `json:"_id"`
				Score  float64    `json:"_score"`
				Source indexedDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]models.Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		similarity := h.Score - 1.0 // undo the +1.0 offset added to keep ES scores non-negative
		if similarity < minSimilarity {
			continue
		}
		hits = append(hits, models.Hit{
			RecordID:   h.ID,
			Similarity: similarity,
			Text:       h.Source.Text,
			Metadata: models.KBRecordMetadata{
				Kind:             models.ItemKind(h.Source.Kind),
				SourceName:       h.Source.SourceName,
				URL:              h.Source.URL,
				PublishedAt:      h.Source.PublishedAt,
				Title:            h.Source.Title,
				CredibilityScore:  h.Source.CredibilityScore,
				CredibilityLevel:  h.Source.CredibilityLevel,
				IsVerifiedSource:  h.Source.IsVerifiedSource,
				EmbeddingProvider: h.Source.EmbeddingProvider,
			},
		})
	}

	sortByTieBreak(hits)

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// sortByTieBreak orders hits by descending similarity, breaking ties by
// higher credibility_score, then more recent published_at, then
// lexicographic record_id (spec.md §4.3).
func sortByTieBreak(hits []models.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Metadata.CredibilityScore != b.Metadata.CredibilityScore {
			return a.Metadata.CredibilityScore > b.Metadata.CredibilityScore
		}
		at, bt := publishedOrZero(a.Metadata.PublishedAt), publishedOrZero(b.Metadata.PublishedAt)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return a.RecordID < b.RecordID
	})
}

func publishedOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// RawClient exposes the underlying Elasticsearch client for operational
// tooling (index maintenance, diagnostics).
func (idx *Index) RawClient() *elasticsearch.Client {
	return idx.client
}
