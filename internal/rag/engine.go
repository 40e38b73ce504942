// Package rag implements the two-phase verification engine (C8): a fast
// canon lookup against previously fact-checked claims, falling through to
// grounded reasoning over freshly retrieved evidence when no canon match
// exists.
package rag

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Agnikulu/veritas/internal/config"
	"github.com/Agnikulu/veritas/internal/connectors"
	"github.com/Agnikulu/veritas/internal/embedding"
	"github.com/Agnikulu/veritas/internal/ingestion"
	"github.com/Agnikulu/veritas/internal/metrics"
	"github.com/Agnikulu/veritas/internal/modelgateway"
	"github.com/Agnikulu/veritas/internal/models"
	"github.com/Agnikulu/veritas/internal/verrors"
)

// VectorIndex is the narrow slice of the vector index the engine needs —
// query-only, mirroring the upsert-only interface the ingestion orchestrator
// accepts, so the engine is testable without a live Elasticsearch.
type VectorIndex interface {
	Query(ctx context.Context, collection string, queryVector []float32, k int, minSimilarity float64) ([]models.Hit, error)
}

// ClaimStore is the narrow slice of the document store the engine needs to
// join a canon vector hit back to its full VerifiedClaim row.
type ClaimStore interface {
	GetVerifiedClaim(claimID string) (*models.VerifiedClaim, error)
}

// Gateway is the slice of the model gateway the engine calls through.
type Gateway interface {
	Generate(ctx context.Context, system, prompt string) (*modelgateway.Result, error)
}

// Engine is the C8 two-phase verification engine.
type Engine struct {
	index         VectorIndex
	claims        ClaimStore
	embeddings    *embedding.Chain
	gateway       Gateway
	liveNews      connectors.Connector
	liveFactCheck connectors.Connector
	cfg           config.RAGConfig
	logger        zerolog.Logger
}

// New constructs an Engine. liveNews and liveFactCheck may be nil, in which
// case Phase 2 skips the corresponding live C1 fetch entirely.
func New(index VectorIndex, claims ClaimStore, embeddings *embedding.Chain, gateway Gateway,
	liveNews, liveFactCheck connectors.Connector, cfg config.RAGConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		index:         index,
		claims:        claims,
		embeddings:    embeddings,
		gateway:       gateway,
		liveNews:      liveNews,
		liveFactCheck: liveFactCheck,
		cfg:           cfg,
		logger:        logger.With().Str("component", "rag_engine").Logger(),
	}
}

// Verify runs the full two-phase pipeline for one claim (spec.md §4.7).
func (e *Engine) Verify(ctx context.Context, claimText, language, category string) (*models.VerifyResult, error) {
	start := time.Now()

	embedResult, err := e.embeddings.Embed(ctx, []string{claimText})
	if err != nil {
		classified := verrors.Wrap(verrors.KindUpstreamUnavailable, "embedding chain exhausted", err)
		e.logger.Error().Err(classified).Msg("failed to embed claim, cannot verify")
		return e.refusedResult(claimText, "the verification engine could not process this claim right now"), nil
	}
	queryVector := embedResult.Vectors[0]
	queryProvider := embedResult.ProviderName

	if result := e.tryCanonLookup(ctx, claimText, queryVector, queryProvider); result != nil {
		metrics.ObserveHistogram("verify_latency_seconds", time.Since(start).Seconds(), map[string]string{"mode": string(models.ModeExistingFactCheck)})
		return result, nil
	}

	result := e.reason(ctx, claimText, language, category, queryVector, queryProvider)
	metrics.ObserveHistogram("verify_latency_seconds", time.Since(start).Seconds(), map[string]string{"mode": string(result.Mode)})
	return result, nil
}

// tryCanonLookup implements Phase 1: a k=1 query against verified_claims at
// τ_canon. Any failure (embed already succeeded by the time this runs, so
// only the vector query or the document-store join can fail here) falls
// through to Phase 2 rather than surfacing an error, per spec.md §4.7.
func (e *Engine) tryCanonLookup(ctx context.Context, claimText string, queryVector []float32, queryProvider string) *models.VerifyResult {
	canonSim := e.cfg.CanonSimilarity
	if canonSim <= 0 {
		canonSim = 0.85
	}

	hits, err := e.queryCollection(ctx, claimText, ingestion.CollectionVerifiedClaims, queryVector, queryProvider, 1, canonSim)
	if err != nil {
		e.logger.Warn().Err(err).Msg("canon lookup query failed, falling through to grounded reasoning")
		return nil
	}
	if len(hits) == 0 {
		return nil
	}

	hit := hits[0]
	claim, err := e.claims.GetVerifiedClaim(hit.RecordID)
	if err != nil || claim == nil {
		e.logger.Warn().Err(err).Str("record_id", hit.RecordID).Msg("canon hit did not resolve to a verified claim, falling through")
		return nil
	}

	return &models.VerifyResult{
		Mode:               models.ModeExistingFactCheck,
		Verdict:            canonToVerdict(claim),
		Confidence:         hit.Similarity,
		ContradictionScore: 0,
		Explanation:        claim.Explanation,
		SourcesUsed: []models.SourceUsed{{
			Type:             string(models.KindFactCheck),
			Source:           claim.Publisher,
			URL:              claim.SourceURL,
			Snippet:          snippet(claim.ClaimText, e.snippetChars()),
			CredibilityScore: 1.0,
			CredibilityLevel: "verified",
			IsVerifiedSource: true,
		}},
		Timestamp: time.Now(),
	}
}

// canonToVerdict converts a VerifiedClaim's canon verdict (TRUE/FALSE/MISLEADING)
// to the lowercase Verdict enum a VerifyResult carries.
func canonToVerdict(claim *models.VerifiedClaim) models.Verdict {
	return models.Verdict(strings.ToLower(string(claim.Verdict)))
}

// reason implements Phase 2: fan-out retrieval, rank, prompt, generate,
// parse, post-process.
func (e *Engine) reason(ctx context.Context, claimText, language, category string, queryVector []float32, queryProvider string) *models.VerifyResult {
	evidence := e.gatherEvidence(ctx, claimText, queryVector, queryProvider)
	if len(evidence) == 0 {
		e.logger.Info().Err(verrors.New(verrors.KindEvidenceInsufficient, "no evidence retrieved for claim")).Msg("reasoning skipped")
		return &models.VerifyResult{
			Mode:        models.ModeReasoned,
			Verdict:     models.VerdictUnverified,
			Confidence:  0,
			Explanation: "no supporting or contradicting evidence could be found for this claim",
			SourcesUsed: nil,
			Timestamp:   time.Now(),
		}
	}

	prompt := buildPrompt(claimText, language, category, evidence, e.snippetChars())

	reply, modelUsed, err := e.generate(ctx, systemDirective, prompt)
	if err != nil {
		e.logger.Error().Err(verrors.Wrap(verrors.KindAllBackendsDown, "model gateway exhausted", err)).Msg("refusing to verify")
		return e.refusedResult(claimText, "no model backend was available to reason over the evidence")
	}

	parsed, err := extractJSON(reply)
	if err != nil {
		e.logger.Warn().Err(verrors.Wrap(verrors.KindParseFailure, "model reply did not parse", err)).Msg("retrying with repair directive")
		reply, modelUsed, err = e.generate(ctx, systemDirective, prompt+"\n\n"+repairDirective)
		if err != nil {
			e.logger.Error().Err(verrors.Wrap(verrors.KindAllBackendsDown, "model gateway exhausted on repair retry", err)).Msg("refusing to verify")
			return e.refusedResult(claimText, "no model backend was available to reason over the evidence")
		}
		parsed, err = extractJSON(reply)
		if err != nil {
			e.logger.Error().Err(verrors.Wrap(verrors.KindParseFailure, "model reply still did not parse after repair retry", err)).Msg("refusing to verify")
			return e.refusedResult(claimText, "the model's response could not be understood")
		}
	}

	result := e.postProcess(parsed, evidence, reply)
	result.ModelUsed = modelUsed
	result.Timestamp = time.Now()
	return result
}

func (e *Engine) generate(ctx context.Context, system, prompt string) (string, string, error) {
	res, err := e.gateway.Generate(ctx, system, prompt)
	if err != nil {
		return "", "", err
	}
	return res.Text, res.ModelUsed, nil
}

// postProcess coerces the model's raw verdict, clamps confidence scores, and
// resolves cited_evidence_indices into SourcesUsed, downgrading to
// unverified if nothing the model cited survives filtering — a verdict with
// zero supporting sources is not a verdict (spec.md §4.7).
func (e *Engine) postProcess(parsed *modelVerdict, evidence []evidenceItem, raw string) *models.VerifyResult {
	verdict := coerceVerdict(parsed.Verdict)
	sources := buildSourcesUsed(evidence, parsed.CitedEvidenceIndices, e.snippetChars())

	if len(sources) == 0 {
		verdict = models.VerdictUnverified
	}

	return &models.VerifyResult{
		Mode:               models.ModeReasoned,
		Verdict:            verdict,
		Confidence:         clamp01(parsed.Confidence),
		ContradictionScore: clamp01(parsed.ContradictionScore),
		Explanation:        parsed.Explanation,
		RawAnswer:          raw,
		SourcesUsed:        sources,
	}
}

func (e *Engine) refusedResult(claimText, reason string) *models.VerifyResult {
	return &models.VerifyResult{
		Mode:        models.ModeRefused,
		Verdict:     models.VerdictUnverified,
		Confidence:  0,
		Explanation: reason,
		SourcesUsed: nil,
		Timestamp:   time.Now(),
	}
}

func (e *Engine) snippetChars() int {
	if e.cfg.SnippetChars <= 0 {
		return 500
	}
	return e.cfg.SnippetChars
}
