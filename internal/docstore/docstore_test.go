package docstore

import (
	"testing"
	"time"

	"github.com/Agnikulu/veritas/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRawItems_InsertAndHistoricalURLKeys(t *testing.T) {
	s := openTestStore(t)

	err := s.InsertRawItem("raw-1", models.RawItem{
		ProviderTag: "newsapi", Kind: models.KindNews, SourceName: "Reuters",
		URL: "https://reuters.com/a", Body: "body text",
	})
	require.NoError(t, err)

	keys, err := s.HistoricalURLKeys(models.KindNews)
	require.NoError(t, err)
	assert.Contains(t, keys, "https://reuters.com/a")
}

func TestRawItems_UnknownKindRejected(t *testing.T) {
	s := openTestStore(t)
	err := s.InsertRawItem("raw-x", models.RawItem{Kind: models.KindFactCheck, Body: "x"})
	assert.Error(t, err)
}

func TestVerifiedClaims_SaveAndGet(t *testing.T) {
	s := openTestStore(t)

	claim := models.VerifiedClaim{
		ClaimID: "c1", ClaimText: "The sky is green", NormalizedClaimText: "sky is green",
		Verdict: models.NewCanonVerdict("False"), Explanation: "It is blue.",
		SourceURL: "https://politifact.com/a", Publisher: "PolitiFact", Language: "en",
		Tags: []string{"science"}, ProviderTag: "google_factcheck",
	}
	require.NoError(t, s.SaveVerifiedClaim(claim))

	got, err := s.GetVerifiedClaim("c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "The sky is green", got.ClaimText)
	assert.Equal(t, []string{"science"}, got.Tags)
}

func TestIngestLogs_SingletonGate(t *testing.T) {
	s := openTestStore(t)

	run1 := models.IngestRun{RunID: "r1", StartedAt: time.Now(), TriggeredBy: "admin"}
	require.NoError(t, s.StartIngestRun(run1))

	run2 := models.IngestRun{RunID: "r2", StartedAt: time.Now(), TriggeredBy: "admin"}
	err := s.StartIngestRun(run2)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestIngestLogs_FinishAllowsNextStart(t *testing.T) {
	s := openTestStore(t)

	run1 := models.IngestRun{RunID: "r1", StartedAt: time.Now(), TriggeredBy: "admin"}
	require.NoError(t, s.StartIngestRun(run1))

	finishedAt := time.Now()
	run1.FinishedAt = &finishedAt
	run1.Status = models.IngestOK
	require.NoError(t, s.FinishIngestRun(run1))

	run2 := models.IngestRun{RunID: "r2", StartedAt: time.Now(), TriggeredBy: "admin"}
	assert.NoError(t, s.StartIngestRun(run2))
}

func TestIngestLogs_LastFinished(t *testing.T) {
	s := openTestStore(t)

	run1 := models.IngestRun{RunID: "r1", StartedAt: time.Now(), TriggeredBy: "admin"}
	require.NoError(t, s.StartIngestRun(run1))
	finishedAt := time.Now()
	run1.FinishedAt = &finishedAt
	run1.Status = models.IngestOK
	require.NoError(t, s.FinishIngestRun(run1))

	last, err := s.LastFinishedIngestRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "r1", last.RunID)
}

func TestClaimLogs_InsertAndQuery(t *testing.T) {
	s := openTestStore(t)

	log := models.ClaimLog{
		LogID: "l1", ReceivedAt: time.Now(), ClientFingerprint: "fp-1", ClaimText: "claim",
		Mode: models.ModeReasoned, Verdict: models.VerdictTrue, Confidence: 0.9,
		SourcesUsed: []string{"s1"}, ModelUsed: "gemini-primary", LatencyMS: 120,
	}
	require.NoError(t, s.InsertClaimLog(log))

	recent, err := s.RecentClaimLogs(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "claim", recent[0].ClaimText)

	byFingerprint, err := s.ClaimLogsByFingerprint("fp-1", 10)
	require.NoError(t, err)
	require.Len(t, byFingerprint, 1)

	none, err := s.ClaimLogsByFingerprint("fp-nonexistent", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFeedback_Insert(t *testing.T) {
	s := openTestStore(t)
	err := s.InsertFeedback(models.Feedback{
		FeedbackID: "f1", ReceivedAt: time.Now(), ClaimText: "claim",
		VerdictReturned: models.VerdictMisleading, Comment: "disagree",
	})
	assert.NoError(t, err)
}
