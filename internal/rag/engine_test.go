package rag

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agnikulu/veritas/internal/config"
	"github.com/Agnikulu/veritas/internal/connectors"
	"github.com/Agnikulu/veritas/internal/embedding"
	"github.com/Agnikulu/veritas/internal/ingestion"
	"github.com/Agnikulu/veritas/internal/modelgateway"
	"github.com/Agnikulu/veritas/internal/models"
)

type stubIndex struct {
	byCollection map[string][]models.Hit
	errs         map[string]error
}

func (s *stubIndex) Query(ctx context.Context, collection string, queryVector []float32, k int, minSimilarity float64) ([]models.Hit, error) {
	if err, ok := s.errs[collection]; ok {
		return nil, err
	}
	return s.byCollection[collection], nil
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

type stubGateway struct {
	replies []string
	calls   int
	err     error
}

func (s *stubGateway) Generate(ctx context.Context, system, prompt string) (*modelgateway.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls
	if idx > len(s.replies)-1 {
		idx = len(s.replies) - 1
	}
	reply := s.replies[idx]
	s.calls++
	return &modelgateway.Result{Text: reply, ModelUsed: "stub-backend"}, nil
}

type stubConn struct {
	items []models.RawItem
	err   error
}

func (s *stubConn) Name() string          { return "stub-live" }
func (s *stubConn) Kind() models.ItemKind { return models.KindNews }
func (s *stubConn) Fetch(ctx context.Context, opts connectors.FetchOptions) ([]models.RawItem, error) {
	return s.items, s.err
}

func testEngine(index VectorIndex, claims ClaimStore, gw Gateway, liveNews, liveFactCheck connectors.Connector) *Engine {
	chain := embedding.NewChain([]embedding.Provider{embedding.NewDeterministicProvider(8)}, zerolog.Nop())
	cfg := config.RAGConfig{CanonSimilarity: 0.85, ContextSize: 25, SnippetChars: 500}
	return New(index, claims, chain, gw, liveNews, liveFactCheck, cfg, zerolog.Nop())
}

func TestVerify_CanonHitShortCircuitsWithoutCallingGateway(t *testing.T) {
	index := &stubIndex{byCollection: map[string][]models.Hit{
		ingestion.CollectionVerifiedClaims: {{RecordID: "claim-1", Similarity: 0.93}},
	}}
	claims := &stubClaimStore{claims: map[string]*models.VerifiedClaim{
		"claim-1": {ClaimID: "claim-1", ClaimText: "the earth is round", Verdict: "TRUE", Explanation: "established science", SourceURL: "https://factchecker.example/1", Publisher: "ExampleCheck"},
	}}
	gw := &stubGateway{err: fmt.Errorf("gateway must not be called")}

	e := testEngine(index, claims, gw, nil, nil)
	result, err := e.Verify(context.Background(), "the earth is round", "en", "")
	require.NoError(t, err)
	assert.Equal(t, models.ModeExistingFactCheck, result.Mode)
	assert.Equal(t, models.VerdictTrue, result.Verdict)
	assert.InDelta(t, 0.93, result.Confidence, 0.0001)
	require.Len(t, result.SourcesUsed, 1)
	assert.Equal(t, "ExampleCheck", result.SourcesUsed[0].Source)
}

func TestVerify_CanonMissFallsThroughToReasonedMode(t *testing.T) {
	index := &stubIndex{byCollection: map[string][]models.Hit{
		ingestion.CollectionNewsArticles: {
			{RecordID: "r1", Similarity: 0.8, Text: "officials confirmed the bridge reopened Tuesday", Metadata: models.KBRecordMetadata{Kind: models.KindNews, SourceName: "Reuters", CredibilityScore: 0.9, CredibilityLevel: "high"}},
		},
	}}
	claims := &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}
	gw := &stubGateway{replies: []string{`{"verdict":"true","confidence":0.8,"contradiction_score":0.1,"explanation":"confirmed by [1]","cited_evidence_indices":[1]}`}}

	e := testEngine(index, claims, gw, nil, nil)
	result, err := e.Verify(context.Background(), "the bridge reopened Tuesday", "en", "")
	require.NoError(t, err)
	assert.Equal(t, models.ModeReasoned, result.Mode)
	assert.Equal(t, models.VerdictTrue, result.Verdict)
	require.Len(t, result.SourcesUsed, 1)
	assert.Equal(t, "Reuters", result.SourcesUsed[0].Source)
}

func TestVerify_OneCollectionFailureDoesNotAbortOthers(t *testing.T) {
	index := &stubIndex{
		byCollection: map[string][]models.Hit{
			ingestion.CollectionGovBulletins: {
				{RecordID: "r2", Similarity: 0.7, Text: "the health ministry issued a statement", Metadata: models.KBRecordMetadata{Kind: models.KindGov, SourceName: "Ministry of Health", CredibilityScore: 0.95, CredibilityLevel: "high"}},
			},
		},
		errs: map[string]error{ingestion.CollectionNewsArticles: fmt.Errorf("index unreachable")},
	}
	claims := &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}
	gw := &stubGateway{replies: []string{`{"verdict":"misleading","confidence":0.6,"contradiction_score":0.3,"explanation":"partially supported by [1]","cited_evidence_indices":[1]}`}}

	e := testEngine(index, claims, gw, nil, nil)
	result, err := e.Verify(context.Background(), "a claim about health policy", "en", "")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictMisleading, result.Verdict)
	require.Len(t, result.SourcesUsed, 1)
}

func TestVerify_NoEvidenceYieldsUnverifiedWithoutCallingGateway(t *testing.T) {
	index := &stubIndex{byCollection: map[string][]models.Hit{}}
	claims := &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}
	gw := &stubGateway{err: fmt.Errorf("gateway must not be called when there is no evidence")}

	e := testEngine(index, claims, gw, nil, nil)
	result, err := e.Verify(context.Background(), "an entirely unevidenced claim", "en", "")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictUnverified, result.Verdict)
	assert.LessOrEqual(t, result.Confidence, 0.3)
	assert.Empty(t, result.SourcesUsed)
}

func TestVerify_MalformedReplyRecoversViaRepairRetry(t *testing.T) {
	index := &stubIndex{byCollection: map[string][]models.Hit{
		ingestion.CollectionNewsArticles: {
			{RecordID: "r3", Similarity: 0.75, Text: "a detailed news account of the event", Metadata: models.KBRecordMetadata{Kind: models.KindNews, SourceName: "AP", CredibilityScore: 0.9, CredibilityLevel: "high"}},
		},
	}}
	claims := &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}
	gw := &stubGateway{replies: []string{
		"I'm not sure, here's some prose without JSON at all.",
		`{"verdict":"false","confidence":0.5,"contradiction_score":0.2,"explanation":"contradicted by [1]","cited_evidence_indices":[1]}`,
	}}

	e := testEngine(index, claims, gw, nil, nil)
	result, err := e.Verify(context.Background(), "a claim under dispute", "en", "")
	require.NoError(t, err)
	assert.Equal(t, 2, gw.calls) // confirms the repair retry actually happened
	assert.Equal(t, models.VerdictFalse, result.Verdict)
}

func TestVerify_TotalGatewayFailureYieldsRefusedMode(t *testing.T) {
	index := &stubIndex{byCollection: map[string][]models.Hit{
		ingestion.CollectionNewsArticles: {
			{RecordID: "r4", Similarity: 0.7, Text: "some evidence text here", Metadata: models.KBRecordMetadata{Kind: models.KindNews, SourceName: "AP", CredibilityScore: 0.9}},
		},
	}}
	claims := &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}
	gw := &stubGateway{err: fmt.Errorf("all backends down")}

	e := testEngine(index, claims, gw, nil, nil)
	result, err := e.Verify(context.Background(), "a claim with unreachable backends", "en", "")
	require.NoError(t, err)
	assert.Equal(t, models.ModeRefused, result.Mode)
	assert.Equal(t, models.VerdictUnverified, result.Verdict)
}

func TestVerify_CitedIndexWithEmptySnippetIsDroppedAndDowngradesVerdict(t *testing.T) {
	index := &stubIndex{byCollection: map[string][]models.Hit{
		ingestion.CollectionNewsArticles: {
			{RecordID: "r5", Similarity: 0.7, Text: "", Metadata: models.KBRecordMetadata{Kind: models.KindNews, SourceName: "AP", CredibilityScore: 0.9}},
		},
	}}
	claims := &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}
	gw := &stubGateway{replies: []string{`{"verdict":"true","confidence":0.9,"contradiction_score":0.0,"explanation":"supported by [1]","cited_evidence_indices":[1]}`}}

	e := testEngine(index, claims, gw, nil, nil)
	result, err := e.Verify(context.Background(), "a claim whose only evidence is empty", "en", "")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictUnverified, result.Verdict)
	assert.Empty(t, result.SourcesUsed)
}

type namedStubProvider struct {
	name string
	dim  int
}

func (p *namedStubProvider) Name() string   { return p.name }
func (p *namedStubProvider) Dimension() int { return p.dim }
func (p *namedStubProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{1, 2, 3}
	}
	return vecs, nil
}

// providerMismatchIndex reports every news_articles hit as indexed under
// "retired-provider", regardless of the chain's currently active provider,
// so every query against that collection is a forced mismatch.
type providerMismatchIndex struct {
	calls int
}

func (p *providerMismatchIndex) Query(ctx context.Context, collection string, queryVector []float32, k int, minSimilarity float64) ([]models.Hit, error) {
	if collection != ingestion.CollectionNewsArticles {
		return nil, nil
	}
	p.calls++
	return []models.Hit{{
		RecordID:   "r1",
		Similarity: 0.8,
		Text:       "an article indexed under the retired embedding provider",
		Metadata: models.KBRecordMetadata{
			Kind:              models.KindNews,
			SourceName:        "Reuters",
			CredibilityScore:  0.9,
			EmbeddingProvider: "retired-provider",
		},
	}}, nil
}

func TestVerify_CollectionProviderMismatchTriggersReEmbedAndRequery(t *testing.T) {
	index := &providerMismatchIndex{}
	claims := &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}
	gw := &stubGateway{replies: []string{`{"verdict":"true","confidence":0.9,"contradiction_score":0.0,"explanation":"supported by [1]","cited_evidence_indices":[1]}`}}
	chain := embedding.NewChain([]embedding.Provider{
		&namedStubProvider{name: "active-provider", dim: 3},
		&namedStubProvider{name: "retired-provider", dim: 3},
	}, zerolog.Nop())
	cfg := config.RAGConfig{CanonSimilarity: 0.85, ContextSize: 25, SnippetChars: 500}

	e := New(index, claims, chain, gw, nil, nil, cfg, zerolog.Nop())
	result, err := e.Verify(context.Background(), "a claim whose evidence collection used a retired embedding provider", "en", "")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictTrue, result.Verdict)
	assert.Equal(t, 2, index.calls) // first query surfaces the mismatch, second re-queries with the re-embedded vector
}

func TestVerify_LiveConnectorFailureIsToleratedAlongsideIndexedEvidence(t *testing.T) {
	index := &stubIndex{byCollection: map[string][]models.Hit{
		ingestion.CollectionNewsArticles: {
			{RecordID: "r6", Similarity: 0.8, Text: "an indexed article about the claim", Metadata: models.KBRecordMetadata{Kind: models.KindNews, SourceName: "Reuters", CredibilityScore: 0.9}},
		},
	}}
	claims := &stubClaimStore{claims: map[string]*models.VerifiedClaim{}}
	gw := &stubGateway{replies: []string{`{"verdict":"true","confidence":0.7,"contradiction_score":0.1,"explanation":"supported by [1]","cited_evidence_indices":[1]}`}}
	failingLive := &stubConn{err: fmt.Errorf("live source unreachable")}

	e := testEngine(index, claims, gw, failingLive, failingLive)
	result, err := e.Verify(context.Background(), "a claim with a broken live source", "en", "")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictTrue, result.Verdict)
}
