package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Agnikulu/veritas/internal/ingestion"
	"github.com/Agnikulu/veritas/internal/models"
)

// handleHealth reports liveness, operating mode, per-backend model health,
// and the last ingest run's outcome. No auth required (spec.md §6).
func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	backends, degraded := s.gateway.HealthSnapshot()

	modelStatus := make(map[string]string, len(backends))
	for id, ok := range backends {
		if ok {
			modelStatus[id] = "ok"
		} else {
			modelStatus[id] = "down"
		}
	}

	lastIngest := ""
	if run, err := s.store.LastFinishedIngestRun(); err == nil && run != nil {
		if run.FinishedAt != nil {
			lastIngest = run.FinishedAt.UTC().Format(time.RFC3339)
		}
		if run.Status == models.IngestFailed {
			degraded = true
		}
	}

	mode := "online"
	if s.gateway.ForceOffline() {
		mode = "offline"
	}

	status := "ok"
	if degraded {
		status = "degraded"
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:     status,
		Mode:       mode,
		LastIngest: lastIngest,
		Models:     modelStatus,
	})
}

// handleHealthLive is a bare liveness probe: if the process can answer HTTP
// at all, it is live. No dependency checks.
func (s *APIServer) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealthReady gates readiness on the same degraded computation as
// /health, so an orchestrator stops routing traffic to an instance whose
// model backends include at least one that is down or whose last ingest failed.
func (s *APIServer) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	_, degraded := s.gateway.HealthSnapshot()
	if run, err := s.store.LastFinishedIngestRun(); err == nil && run != nil && run.Status == models.IngestFailed {
		degraded = true
	}
	if degraded {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleVerify runs a claim through the RAG engine and logs the request.
// Errors: 400 on short/empty text; 503 whenever the engine returns a refused
// result (no model backend reachable, embedding chain exhausted, or a reply
// still unparseable after the repair retry); otherwise 200 (including
// verdict=unverified, which is not itself an error).
func (s *APIServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "request body must be valid JSON", ErrCodeInvalidParameter)
		return
	}

	text := strings.TrimSpace(req.Text)
	if len(text) < 10 {
		writeValidationError(w, r, ErrEmptyClaimText)
		return
	}

	language := req.Language
	if language == "" {
		language = "en"
	}

	result, err := s.ragEngine.Verify(r.Context(), text, language, req.Category)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "verification failed unexpectedly", ErrCodeInternalError)
		return
	}

	s.claimLogQueue.Enqueue(models.ClaimLog{
		LogID:              uuid.New().String(),
		ReceivedAt:         time.Now(),
		ClientFingerprint:  clientFingerprint(r),
		ClaimText:          text,
		Language:           language,
		Category:           req.Category,
		Mode:               result.Mode,
		Verdict:            result.Verdict,
		Confidence:         result.Confidence,
		ContradictionScore: result.ContradictionScore,
		SourcesUsed:        sourceURLs(result.SourcesUsed),
		ModelUsed:          result.ModelUsed,
		LatencyMS:          time.Since(start).Milliseconds(),
	})

	if result.Mode == models.ModeRefused {
		respondJSON(w, http.StatusServiceUnavailable, result)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func sourceURLs(sources []models.SourceUsed) []string {
	urls := make([]string, 0, len(sources))
	for _, src := range sources {
		urls = append(urls, src.URL)
	}
	return urls
}

// handleIngest triggers an ingestion run. Requires X-Admin-Token.
func (s *APIServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "request body must be valid JSON", ErrCodeInvalidParameter)
			return
		}
	}

	run, err := s.orchestrator.Ingest(r.Context(), req.Force, "api")
	switch {
	case err == ingestion.ErrAlreadyRunning:
		respondJSON(w, http.StatusOK, IngestResponse{Status: "already_running"})
		return
	case err == ingestion.ErrCooldown:
		respondJSON(w, http.StatusOK, IngestResponse{Status: "cooldown"})
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "ingestion run failed to start", ErrCodeInternalError)
		return
	}

	status := "ok"
	if run.Status == models.IngestPartial || run.Status == models.IngestFailed {
		status = "partial"
	}

	lastSynced := ""
	if run.FinishedAt != nil {
		lastSynced = run.FinishedAt.UTC().Format(time.RFC3339)
	}

	respondJSON(w, http.StatusOK, IngestResponse{
		Status: status,
		Ingested: map[string]int{
			"news":       run.Counts.News,
			"gov":        run.Counts.Gov,
			"factchecks": run.Counts.FactCheck,
			"social":     run.Counts.Social,
		},
		LastSynced: lastSynced,
		Errors:     run.Errors,
	})
}

// handleAdminLogs returns the most recent ClaimLog rows. Requires X-Admin-Token.
func (s *APIServer) handleAdminLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntQuery(r, "limit", 50, 1000)
	if err != nil {
		writeValidationError(w, r, ErrInvalidLimit)
		return
	}

	logs, err := s.store.RecentClaimLogs(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read claim logs", ErrCodeInternalError)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

// handleFeedback appends a Feedback row. No auth required.
func (s *APIServer) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "request body must be valid JSON", ErrCodeInvalidParameter)
		return
	}
	if strings.TrimSpace(req.ClaimText) == "" {
		respondError(w, http.StatusBadRequest, "claim_text is required", ErrCodeInvalidParameter)
		return
	}

	fb := models.Feedback{
		FeedbackID:      uuid.New().String(),
		ReceivedAt:      time.Now(),
		ClaimText:       req.ClaimText,
		VerdictReturned: models.Verdict(req.VerdictReturned),
		Comment:         req.Comment,
		ScreenshotURL:   req.ScreenshotURL,
	}
	if err := s.store.InsertFeedback(fb); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record feedback", ErrCodeInternalError)
		return
	}
	respondJSON(w, http.StatusOK, fb)
}

// handleUserHistory returns ClaimLog rows scoped to the caller's fingerprint.
// No auth required — the fingerprint itself is the scoping key.
func (s *APIServer) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntQuery(r, "limit", 50, 200)
	if err != nil {
		writeValidationError(w, r, ErrInvalidLimit)
		return
	}

	logs, err := s.store.ClaimLogsByFingerprint(clientFingerprint(r), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read claim history", ErrCodeInternalError)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

// clientFingerprint derives a stable, non-reversible identifier for a caller
// from its IP and User-Agent, used to scope GET /user/history without
// requiring accounts.
func clientFingerprint(r *http.Request) string {
	ip := getClientIP(r)
	h := sha256.Sum256([]byte(ip + "|" + r.UserAgent()))
	return hex.EncodeToString(h[:16])
}

// requireAdminToken guards the /admin/* routes with a constant-time compare
// against the configured shared secret.
func (s *APIServer) requireAdminToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if token == "" || s.adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			writeValidationError(w, r, ErrMissingAdminTok)
			return
		}
		next(w, r)
	}
}
