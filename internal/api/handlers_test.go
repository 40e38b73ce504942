package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agnikulu/veritas/internal/config"
	"github.com/Agnikulu/veritas/internal/connectors"
	"github.com/Agnikulu/veritas/internal/docstore"
	"github.com/Agnikulu/veritas/internal/embedding"
	"github.com/Agnikulu/veritas/internal/ingestion"
	"github.com/Agnikulu/veritas/internal/modelgateway"
	"github.com/Agnikulu/veritas/internal/models"
	"github.com/Agnikulu/veritas/internal/rag"
	"github.com/Agnikulu/veritas/internal/resilience"
)

// ---------------------------------------------------------------------------
// Stubs satisfying the narrow interfaces rag.Engine and ingestion.Orchestrator
// accept.
// ---------------------------------------------------------------------------

type stubIndex struct {
	byCollection map[string][]models.Hit
}

func (s *stubIndex) Query(ctx context.Context, collection string, queryVector []float32, k int, minSimilarity float64) ([]models.Hit, error) {
	return s.byCollection[collection], nil
}

func (s *stubIndex) Upsert(ctx context.Context, collection string, records []models.KBRecord, embeddingProvider string) error {
	return nil
}

type stubClaimStore struct {
	claims map[string]*models.VerifiedClaim
}

func (s *stubClaimStore) GetVerifiedClaim(claimID string) (*models.VerifiedClaim, error) {
	c, ok := s.claims[claimID]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return c, nil
}

type stubBackend struct {
	id      string
	local   bool
	up      bool
	replies []string
	calls   int
}

func (b *stubBackend) ID() string { return b.id }
func (b *stubBackend) IsLocal() bool { return b.local }
func (b *stubBackend) Ping(ctx context.Context) error {
	if !b.up {
		return fmt.Errorf("%s unreachable", b.id)
	}
	return nil
}
func (b *stubBackend) Generate(ctx context.Context, system, prompt string) (string, error) {
	if !b.up {
		return "", fmt.Errorf("%s unreachable", b.id)
	}
	reply := b.replies[b.calls]
	if b.calls < len(b.replies)-1 {
		b.calls++
	}
	return reply, nil
}

type stubConn struct {
	name string
	kind models.ItemKind
	items []models.RawItem
	err  error
}

func (s *stubConn) Name() string          { return s.name }
func (s *stubConn) Kind() models.ItemKind { return s.kind }
func (s *stubConn) Fetch(ctx context.Context, opts connectors.FetchOptions) ([]models.RawItem, error) {
	return s.items, s.err
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	server *APIServer
	store  *docstore.Store
}

func newHarness(t *testing.T, index *stubIndex, claims *stubClaimStore, backends []modelgateway.Backend, conns []connectors.Connector, adminToken string) *harness {
	t.Helper()
	store, err := docstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zerolog.Nop()
	chain := embedding.NewChain([]embedding.Provider{embedding.NewDeterministicProvider(8)}, logger)

	health := resilience.NewHealthTracker(logger)
	for _, b := range backends {
		sb := b.(*stubBackend)
		health.SetBackendHealth(sb.id, sb.up)
	}
	gateway := modelgateway.New(backends, modelgateway.Config{
		ModelTimeout: 0,
		MaxRetries:   1,
	}, health, logger)

	ragCfg := config.RAGConfig{CanonSimilarity: 0.85, ContextSize: 25, SnippetChars: 500}
	engine := rag.New(index, claims, chain, gateway, nil, nil, ragCfg, logger)

	orch := ingestion.New(store, index, chain, conns, config.IngestionConfig{
		ChunkSize: 800, ChunkOverlap: 120, CooldownSeconds: 0, ConnectorTimeout: 5 * time.Second,
	}, 100, logger)

	queue := ingestion.NewClaimLogQueue(store, 64, logger)

	cfg := &config.Config{
		API: config.APIConfig{Port: 8080, RateLimiting: config.APIRateLimiting{Enabled: false}},
		Auth: config.AuthConfig{AdminToken: adminToken},
	}

	srv := NewAPIServer(nil, engine, orch, store, gateway, queue, cfg, logger)
	return &harness{server: srv, store: store}
}

func doRequest(h *harness, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != nil {
		data, _ := json.Marshal(body)
		r = httptest.NewRequest(method, path, bytes.NewReader(data))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, r)
	return rec
}

// ---------------------------------------------------------------------------
// S1: canon hit short-circuits to existing_fact_check
// ---------------------------------------------------------------------------

func TestScenario_VerifyCanonHit(t *testing.T) {
	index := &stubIndex{byCollection: map[string][]models.Hit{
		ingestion.CollectionVerifiedClaims: {{RecordID: "c1", Similarity: 0.92}},
	}}
	claims := &stubClaimStore{claims: map[string]*models.VerifiedClaim{
		"c1": {ClaimID: "c1", ClaimText: "drinking hot water with lemon cures cancer", Verdict: "FALSE", Explanation: "no clinical evidence supports this", Publisher: "HealthCheck", SourceURL: "https://example.test/1"},
	}}
	h := newHarness(t, index, claims, []modelgateway.Backend{&stubBackend{id: "local", local: true, up: true, replies: []string{"unused"}}}, nil, "secret")

	rec := doRequest(h, http.MethodPost, "/verify", VerifyRequest{Text: "Drinking hot water with lemon cures cancer", Language: "en"}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.VerifyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.ModeExistingFactCheck, result.Mode)
	assert.Equal(t, models.VerdictFalse, result.Verdict)
	assert.InDelta(t, 0.92, result.Confidence, 0.0001)
	require.Len(t, result.SourcesUsed, 1)
	assert.Equal(t, "factcheck", result.SourcesUsed[0].Type)
}

// ---------------------------------------------------------------------------
// S3: no hits anywhere -> reasoned/unverified, empty sources
// ---------------------------------------------------------------------------

func TestScenario_VerifyNoEvidence(t *testing.T) {
	index := &stubIndex{byCollection: map[string][]models.Hit{}}
	claims := &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}
	h := newHarness(t, index, claims, []modelgateway.Backend{&stubBackend{id: "local", local: true, up: true, replies: []string{"unused"}}}, nil, "secret")

	rec := doRequest(h, http.MethodPost, "/verify", VerifyRequest{Text: "an entirely unevidenced and peculiar claim"}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.VerifyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.ModeReasoned, result.Mode)
	assert.Equal(t, models.VerdictUnverified, result.Verdict)
	assert.LessOrEqual(t, result.Confidence, 0.3)
	assert.Empty(t, result.SourcesUsed)
}

func TestVerify_ShortTextRejected(t *testing.T) {
	h := newHarness(t, &stubIndex{}, &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}, []modelgateway.Backend{&stubBackend{id: "local", local: true, up: true}}, nil, "secret")

	rec := doRequest(h, http.MethodPost, "/verify", VerifyRequest{Text: "too short"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---------------------------------------------------------------------------
// S4: admin route without header -> 401
// ---------------------------------------------------------------------------

func TestScenario_AdminIngestMissingToken(t *testing.T) {
	h := newHarness(t, &stubIndex{}, &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}, []modelgateway.Backend{&stubBackend{id: "local", local: true, up: true}}, nil, "secret")

	rec := doRequest(h, http.MethodPost, "/admin/ingest", IngestRequest{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScenario_AdminIngestWrongToken(t *testing.T) {
	h := newHarness(t, &stubIndex{}, &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}, []modelgateway.Backend{&stubBackend{id: "local", local: true, up: true}}, nil, "secret")

	rec := doRequest(h, http.MethodPost, "/admin/ingest", IngestRequest{}, map[string]string{"X-Admin-Token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ---------------------------------------------------------------------------
// S5: partial ingest — one connector fails, others succeed
// ---------------------------------------------------------------------------

func TestScenario_AdminIngestPartialFailure(t *testing.T) {
	conns := []connectors.Connector{
		&stubConn{name: "news", kind: models.KindNews, err: fmt.Errorf("news upstream down")},
		&stubConn{name: "gov", kind: models.KindGov, items: []models.RawItem{{ProviderTag: "gov", Kind: models.KindGov, SourceName: "Ministry", Body: "a government bulletin body long enough to chunk"}}},
		&stubConn{name: "social", kind: models.KindSocial, items: []models.RawItem{{ProviderTag: "social", Kind: models.KindSocial, SourceName: "social-feed", Body: "a social post body long enough to chunk through the pipeline"}}},
	}
	index := &stubIndex{}
	h := newHarness(t, index, &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}, []modelgateway.Backend{&stubBackend{id: "local", local: true, up: true}}, conns, "secret")

	rec := doRequest(h, http.MethodPost, "/admin/ingest", IngestRequest{}, map[string]string{"X-Admin-Token": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "partial", resp.Status)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "news")
	assert.Greater(t, resp.Ingested["gov"]+resp.Ingested["social"], 0)
}

// ---------------------------------------------------------------------------
// S6: remote backend unreachable -> degraded health (offline mode not set here)
// ---------------------------------------------------------------------------

func TestScenario_HealthDegradedWhenBackendDown(t *testing.T) {
	h := newHarness(t, &stubIndex{}, &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}, []modelgateway.Backend{
		&stubBackend{id: "remote-a", local: false, up: false},
	}, nil, "secret")

	rec := doRequest(h, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Models["remote-a"])
}

func TestFeedback_PersistsAndReturns200(t *testing.T) {
	h := newHarness(t, &stubIndex{}, &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}, []modelgateway.Backend{&stubBackend{id: "local", local: true, up: true}}, nil, "secret")

	rec := doRequest(h, http.MethodPost, "/feedback", FeedbackRequest{ClaimText: "some claim", VerdictReturned: "unverified", Comment: "disagree"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserHistory_ScopedByFingerprint(t *testing.T) {
	h := newHarness(t, &stubIndex{}, &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}, []modelgateway.Backend{&stubBackend{id: "local", local: true, up: true, replies: []string{`{"verdict":"unverified","confidence":0,"contradiction_score":0,"explanation":"no evidence","cited_evidence_indices":[]}`}}}, nil, "secret")

	rec := doRequest(h, http.MethodGet, "/user/history", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
