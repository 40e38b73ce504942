package docstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Agnikulu/veritas/internal/models"
)

// ErrAlreadyRunning is returned by StartIngestRun when another run is
// currently RUNNING — the singleton gate of spec.md §5, enforced here by a
// conditional insert against the partial unique index on status='RUNNING'.
var ErrAlreadyRunning = fmt.Errorf("an ingestion run is already RUNNING")

// StartIngestRun inserts a new RUNNING row. If one already exists the
// partial unique index rejects the insert and this returns ErrAlreadyRunning.
func (s *Store) StartIngestRun(run models.IngestRun) error {
	_, err := s.db.Exec(`
		INSERT INTO ingest_logs (run_id, started_at, finished_at, triggered_by, forced, status, counts, errors)
		VALUES (?, ?, NULL, ?, ?, 'RUNNING', '{}', '[]')`,
		run.RunID, formatTime(run.StartedAt), run.TriggeredBy, boolToInt(run.Forced),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("start ingest run: %w", err)
	}
	return nil
}

// FinishIngestRun finalizes a run row with its end state, counts, and errors.
func (s *Store) FinishIngestRun(run models.IngestRun) error {
	countsJSON, err := json.Marshal(run.Counts)
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}
	errorsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	finishedAt := formatTime(*run.FinishedAt)
	result, err := s.db.Exec(`
		UPDATE ingest_logs SET finished_at = ?, status = ?, counts = ?, errors = ?
		WHERE run_id = ?`,
		finishedAt, string(run.Status), string(countsJSON), string(errorsJSON), run.RunID,
	)
	if err != nil {
		return fmt.Errorf("finish ingest run: %w", err)
	}
	return checkRowsAffected(result, "ingest run not found")
}

// LastFinishedIngestRun returns the most recently finished run (any
// end-state), or nil if none has ever finished. Used for the cooldown check.
func (s *Store) LastFinishedIngestRun() (*models.IngestRun, error) {
	row := s.db.QueryRow(`
		SELECT run_id, started_at, finished_at, triggered_by, forced, status, counts, errors
		FROM ingest_logs WHERE finished_at IS NOT NULL ORDER BY finished_at DESC LIMIT 1`)
	return scanIngestRun(row)
}

// CurrentlyRunning returns the RUNNING row, if any.
func (s *Store) CurrentlyRunning() (*models.IngestRun, error) {
	row := s.db.QueryRow(`
		SELECT run_id, started_at, finished_at, triggered_by, forced, status, counts, errors
		FROM ingest_logs WHERE status = 'RUNNING' LIMIT 1`)
	return scanIngestRun(row)
}

func scanIngestRun(row *sql.Row) (*models.IngestRun, error) {
	var run models.IngestRun
	var startedAt string
	var finishedAt sql.NullString
	var forced int
	var status, countsJSON, errorsJSON string

	err := row.Scan(&run.RunID, &startedAt, &finishedAt, &run.TriggeredBy, &forced, &status, &countsJSON, &errorsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan ingest run: %w", err)
	}

	t, err := parseTimeRFC3339Nano(startedAt)
	if err != nil {
		return nil, err
	}
	run.StartedAt = t
	run.FinishedAt = parseTimePtr(finishedAt)
	run.Forced = forced == 1
	run.Status = models.IngestStatus(status)
	_ = json.Unmarshal([]byte(countsJSON), &run.Counts)
	_ = json.Unmarshal([]byte(errorsJSON), &run.Errors)

	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
