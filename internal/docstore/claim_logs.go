package docstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Agnikulu/veritas/internal/models"
)

// InsertClaimLog appends a request log row. Called from the fire-and-forget
// ClaimLog queue consumer (spec.md §5) — writes are deferred and may be
// reordered relative to the HTTP response that triggered them.
func (s *Store) InsertClaimLog(log models.ClaimLog) error {
	sourcesJSON, err := json.Marshal(log.SourcesUsed)
	if err != nil {
		return fmt.Errorf("marshal sources_used: %w", err)
	}
	errorsJSON, err := json.Marshal(log.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO claim_logs
		(log_id, received_at, client_fingerprint, claim_text, language, category, mode, verdict,
		 confidence, contradiction_score, sources_used, model_used, latency_ms, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.LogID, formatTime(log.ReceivedAt), log.ClientFingerprint, log.ClaimText,
		nullableString(log.Language), nullableString(log.Category), string(log.Mode), string(log.Verdict),
		log.Confidence, log.ContradictionScore, string(sourcesJSON), nullableString(log.ModelUsed),
		log.LatencyMS, string(errorsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert claim log: %w", err)
	}
	return nil
}

// RecentClaimLogs returns the most recent limit ClaimLog rows, newest first.
func (s *Store) RecentClaimLogs(limit int) ([]models.ClaimLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT log_id, received_at, client_fingerprint, claim_text, language, category,
		mode, verdict, confidence, contradiction_score, sources_used, model_used, latency_ms, errors
		FROM claim_logs ORDER BY received_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent claim logs: %w", err)
	}
	defer rows.Close()
	return scanClaimLogRows(rows)
}

// ClaimLogsByFingerprint returns the most recent limit ClaimLog rows for a
// given client fingerprint, newest first, powering GET /user/history.
func (s *Store) ClaimLogsByFingerprint(fingerprint string, limit int) ([]models.ClaimLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT log_id, received_at, client_fingerprint, claim_text, language, category,
		mode, verdict, confidence, contradiction_score, sources_used, model_used, latency_ms, errors
		FROM claim_logs WHERE client_fingerprint = ? ORDER BY received_at DESC LIMIT ?`, fingerprint, limit)
	if err != nil {
		return nil, fmt.Errorf("query claim logs by fingerprint: %w", err)
	}
	defer rows.Close()
	return scanClaimLogRows(rows)
}

func scanClaimLogRows(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]models.ClaimLog, error) {
	var logs []models.ClaimLog
	for rows.Next() {
		var l models.ClaimLog
		var receivedAt string
		var language, category, modelUsed sql.NullString
		var mode, verdict, sourcesJSON, errorsJSON string

		if err := rows.Scan(&l.LogID, &receivedAt, &l.ClientFingerprint, &l.ClaimText, &language, &category,
			&mode, &verdict, &l.Confidence, &l.ContradictionScore, &sourcesJSON, &modelUsed, &l.LatencyMS, &errorsJSON); err != nil {
			return nil, fmt.Errorf("scan claim log row: %w", err)
		}

		t, err := parseTimeRFC3339Nano(receivedAt)
		if err != nil {
			return nil, err
		}
		l.ReceivedAt = t
		l.Language = language.String
		l.Category = category.String
		l.Mode = models.Mode(mode)
		l.Verdict = models.Verdict(verdict)
		l.ModelUsed = modelUsed.String
		_ = json.Unmarshal([]byte(sourcesJSON), &l.SourcesUsed)
		_ = json.Unmarshal([]byte(errorsJSON), &l.Errors)

		logs = append(logs, l)
	}
	return logs, rows.Err()
}
