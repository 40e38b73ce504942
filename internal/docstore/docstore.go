// Package docstore implements the document store (C4): durable
// append-mostly persistence of the verified-claim canon, raw source items,
// per-claim request logs, ingestion run logs, and user feedback, on SQLite.
package docstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Agnikulu/veritas/internal/models"
)

// Store wraps the SQLite connection backing all seven document-store
// collections (spec.md §6: verified_claims, news_items, gov_items,
// social_items, claim_logs, ingest_logs, feedback).
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite does not support concurrent writers; serialize through one
	// connection rather than fighting SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS verified_claims (
		claim_id              TEXT PRIMARY KEY,
		claim_text             TEXT NOT NULL,
		normalized_claim_text  TEXT NOT NULL,
		verdict                TEXT NOT NULL,
		explanation            TEXT NOT NULL,
		source_url             TEXT,
		publisher              TEXT,
		language               TEXT,
		published_at           TEXT,
		tags                   TEXT NOT NULL DEFAULT '[]',
		provider_tag           TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_verified_claims_normalized ON verified_claims(normalized_claim_text);

	CREATE TABLE IF NOT EXISTS news_items (
		raw_id       TEXT PRIMARY KEY,
		provider_tag TEXT NOT NULL,
		source_name  TEXT NOT NULL,
		url          TEXT,
		url_key      TEXT,
		title        TEXT,
		body         TEXT NOT NULL,
		published_at TEXT,
		language     TEXT,
		ingested_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_news_items_url_key ON news_items(url_key);

	CREATE TABLE IF NOT EXISTS gov_items (
		raw_id       TEXT PRIMARY KEY,
		provider_tag TEXT NOT NULL,
		source_name  TEXT NOT NULL,
		url          TEXT,
		url_key      TEXT,
		title        TEXT,
		body         TEXT NOT NULL,
		published_at TEXT,
		language     TEXT,
		ingested_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_gov_items_url_key ON gov_items(url_key);

	CREATE TABLE IF NOT EXISTS social_items (
		raw_id       TEXT PRIMARY KEY,
		provider_tag TEXT NOT NULL,
		source_name  TEXT NOT NULL,
		url          TEXT,
		url_key      TEXT,
		title        TEXT,
		body         TEXT NOT NULL,
		published_at TEXT,
		language     TEXT,
		ingested_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_social_items_url_key ON social_items(url_key);

	CREATE TABLE IF NOT EXISTS claim_logs (
		log_id               TEXT PRIMARY KEY,
		received_at          TEXT NOT NULL,
		client_fingerprint   TEXT NOT NULL,
		claim_text           TEXT NOT NULL,
		language             TEXT,
		category             TEXT,
		mode                 TEXT NOT NULL,
		verdict              TEXT NOT NULL,
		confidence           REAL NOT NULL,
		contradiction_score  REAL NOT NULL,
		sources_used         TEXT NOT NULL DEFAULT '[]',
		model_used           TEXT,
		latency_ms           INTEGER NOT NULL,
		errors               TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_claim_logs_fingerprint ON claim_logs(client_fingerprint);
	CREATE INDEX IF NOT EXISTS idx_claim_logs_received_at ON claim_logs(received_at);

	CREATE TABLE IF NOT EXISTS ingest_logs (
		run_id       TEXT PRIMARY KEY,
		started_at   TEXT NOT NULL,
		finished_at  TEXT,
		triggered_by TEXT,
		forced       INTEGER NOT NULL DEFAULT 0,
		status       TEXT NOT NULL,
		counts       TEXT NOT NULL DEFAULT '{}',
		errors       TEXT NOT NULL DEFAULT '[]'
	);
	-- Singleton ingestion gate (spec.md §5): at most one RUNNING row at a time.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ingest_logs_singleton_running
		ON ingest_logs(status) WHERE status = 'RUNNING';

	CREATE TABLE IF NOT EXISTS feedback (
		feedback_id    TEXT PRIMARY KEY,
		received_at    TEXT NOT NULL,
		claim_text     TEXT NOT NULL,
		verdict_returned TEXT NOT NULL,
		comment        TEXT,
		screenshot_url TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func checkRowsAffected(result sql.Result, notFoundMsg string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s", notFoundMsg)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTimeRFC3339Nano(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func itemTable(kind models.ItemKind) (string, error) {
	switch kind {
	case models.KindNews:
		return "news_items", nil
	case models.KindGov:
		return "gov_items", nil
	case models.KindSocial:
		return "social_items", nil
	default:
		// FactCheck items are persisted as VerifiedClaims (see
		// SaveVerifiedClaim), never as a raw row — there is no
		// factcheck_items table in the document store (spec.md §6).
		return "", fmt.Errorf("item kind %s has no raw-item table", kind)
	}
}
