package ingestion

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agnikulu/veritas/internal/config"
	"github.com/Agnikulu/veritas/internal/connectors"
	"github.com/Agnikulu/veritas/internal/docstore"
	"github.com/Agnikulu/veritas/internal/embedding"
	"github.com/Agnikulu/veritas/internal/models"
)

type stubConnector struct {
	name  string
	kind  models.ItemKind
	items []models.RawItem
	err   error
}

func (s *stubConnector) Name() string          { return s.name }
func (s *stubConnector) Kind() models.ItemKind { return s.kind }
func (s *stubConnector) Fetch(ctx context.Context, opts connectors.FetchOptions) ([]models.RawItem, error) {
	return s.items, s.err
}

type stubVectorIndex struct {
	mu      sync.Mutex
	upserts int
	records []models.KBRecord
}

func (s *stubVectorIndex) Upsert(ctx context.Context, collection string, records []models.KBRecord, embeddingProvider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.records = append(s.records, records...)
	return nil
}

func testOrchestrator(t *testing.T, conns []connectors.Connector) (*Orchestrator, *docstore.Store, *stubVectorIndex) {
	t.Helper()
	store, err := docstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	index := &stubVectorIndex{}
	chain := embedding.NewChain([]embedding.Provider{embedding.NewDeterministicProvider(8)}, zerolog.Nop())

	cfg := config.IngestionConfig{
		ChunkSize:        800,
		ChunkOverlap:     120,
		CooldownSeconds:  600,
		ConnectorTimeout: 5 * time.Second,
		BatchSize:        32,
	}

	o := New(store, index, chain, conns, cfg, 100, zerolog.Nop())
	return o, store, index
}

func TestIngest_PersistsNewsItemAcrossVectorAndDocStore(t *testing.T) {
	conn := &stubConnector{
		name: "news", kind: models.KindNews,
		items: []models.RawItem{
			{ProviderTag: "newsapi", Kind: models.KindNews, SourceName: "Reuters", URL: "https://reuters.com/a", Body: "a claim was made about the economy today"},
		},
	}
	o, store, index := testOrchestrator(t, []connectors.Connector{conn})

	run, err := o.Ingest(context.Background(), false, "test")
	require.NoError(t, err)
	assert.Equal(t, models.IngestOK, run.Status)
	assert.Equal(t, 1, run.Counts.News)

	assert.NotZero(t, index.upserts)
	keys, err := store.HistoricalURLKeys(models.KindNews)
	require.NoError(t, err)
	assert.Contains(t, keys, "https://reuters.com/a")
}

func TestIngest_FactCheckItemBecomesVerifiedClaim(t *testing.T) {
	conn := &stubConnector{
		name: "factcheck", kind: models.KindFactCheck,
		items: []models.RawItem{
			{ProviderTag: "google_factcheck", Kind: models.KindFactCheck, SourceName: "PolitiFact",
				URL: "https://politifact.com/a", Body: "the moon is made of cheese", FactCheckVerdict: "Pants on Fire"},
		},
	}
	o, _, index := testOrchestrator(t, []connectors.Connector{conn})

	run, err := o.Ingest(context.Background(), false, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Counts.FactCheck)
	require.Len(t, index.records, 1)
	assert.Equal(t, models.KindFactCheck, index.records[0].Metadata.Kind)
}

func TestIngest_ConnectorFailureYieldsPartialStatus(t *testing.T) {
	good := &stubConnector{name: "news", kind: models.KindNews, items: []models.RawItem{
		{ProviderTag: "newsapi", Kind: models.KindNews, SourceName: "Reuters", URL: "https://reuters.com/b", Body: "another claim entirely distinct"},
	}}
	bad := &stubConnector{name: "gov", kind: models.KindGov, err: fmt.Errorf("upstream unreachable")}

	o, _, _ := testOrchestrator(t, []connectors.Connector{good, bad})

	run, err := o.Ingest(context.Background(), false, "test")
	require.NoError(t, err)
	assert.Equal(t, models.IngestPartial, run.Status)
	require.Len(t, run.Errors, 1)
	assert.Contains(t, run.Errors[0], "gov")
}

func TestIngest_AllConnectorsFailingYieldsFailedStatus(t *testing.T) {
	bad1 := &stubConnector{name: "news", kind: models.KindNews, err: fmt.Errorf("down")}
	bad2 := &stubConnector{name: "gov", kind: models.KindGov, err: fmt.Errorf("down")}

	o, _, _ := testOrchestrator(t, []connectors.Connector{bad1, bad2})

	run, err := o.Ingest(context.Background(), false, "test")
	require.NoError(t, err)
	assert.Equal(t, models.IngestFailed, run.Status)
}

func TestIngest_SingletonGateRejectsConcurrentRun(t *testing.T) {
	store, err := docstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.StartIngestRun(models.IngestRun{RunID: "already-running", StartedAt: time.Now(), TriggeredBy: "other"}))

	index := &stubVectorIndex{}
	chain := embedding.NewChain([]embedding.Provider{embedding.NewDeterministicProvider(8)}, zerolog.Nop())
	cfg := config.IngestionConfig{ChunkSize: 800, ChunkOverlap: 120, ConnectorTimeout: 5 * time.Second, BatchSize: 32}
	o := New(store, index, chain, nil, cfg, 100, zerolog.Nop())

	_, err = o.Ingest(context.Background(), true, "test")
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestIngest_CooldownBlocksUnforcedRun(t *testing.T) {
	store, err := docstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	finished := time.Now()
	require.NoError(t, store.StartIngestRun(models.IngestRun{RunID: "r1", StartedAt: finished.Add(-time.Minute), TriggeredBy: "test"}))
	require.NoError(t, store.FinishIngestRun(models.IngestRun{RunID: "r1", FinishedAt: &finished, Status: models.IngestOK}))

	index := &stubVectorIndex{}
	chain := embedding.NewChain([]embedding.Provider{embedding.NewDeterministicProvider(8)}, zerolog.Nop())
	cfg := config.IngestionConfig{ChunkSize: 800, ChunkOverlap: 120, ConnectorTimeout: 5 * time.Second, BatchSize: 32, CooldownSeconds: 600}
	o := New(store, index, chain, nil, cfg, 100, zerolog.Nop())

	_, err = o.Ingest(context.Background(), false, "test")
	assert.ErrorIs(t, err, ErrCooldown)
}

func TestIngest_DuplicateURLAcrossRunsIsSkipped(t *testing.T) {
	item := models.RawItem{ProviderTag: "newsapi", Kind: models.KindNews, SourceName: "Reuters", URL: "https://reuters.com/dup", Body: "duplicate across runs"}

	conn := &stubConnector{name: "news", kind: models.KindNews, items: []models.RawItem{item}}
	o, store, _ := testOrchestrator(t, []connectors.Connector{conn})

	run1, err := o.Ingest(context.Background(), true, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, run1.Counts.News)

	time.Sleep(time.Millisecond) // ensure distinct timestamps aren't the reason for a retained item
	run2, err := o.Ingest(context.Background(), true, "test")
	require.NoError(t, err)
	assert.Equal(t, 0, run2.Counts.News)

	keys, err := store.HistoricalURLKeys(models.KindNews)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
