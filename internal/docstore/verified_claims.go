package docstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Agnikulu/veritas/internal/models"
)

// SaveVerifiedClaim inserts or replaces a canon entry, produced either from a
// FactCheck connector item (ingestion, spec.md §4.5 rule 7) or not at all
// from the verification path — the RAG engine reads verified_claims, it
// never writes them.
func (s *Store) SaveVerifiedClaim(claim models.VerifiedClaim) error {
	tagsJSON, err := json.Marshal(claim.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO verified_claims
		(claim_id, claim_text, normalized_claim_text, verdict, explanation, source_url,
		 publisher, language, published_at, tags, provider_tag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		claim.ClaimID, claim.ClaimText, claim.NormalizedClaimText, string(claim.Verdict), claim.Explanation,
		nullableString(claim.SourceURL), nullableString(claim.Publisher), nullableString(claim.Language),
		formatTimePtr(claim.PublishedAt), string(tagsJSON), nullableString(claim.ProviderTag),
	)
	if err != nil {
		return fmt.Errorf("save verified claim: %w", err)
	}
	return nil
}

// GetVerifiedClaim fetches a canon claim by ID. Returns nil, nil if absent.
func (s *Store) GetVerifiedClaim(claimID string) (*models.VerifiedClaim, error) {
	row := s.db.QueryRow(`SELECT claim_id, claim_text, normalized_claim_text, verdict, explanation,
		source_url, publisher, language, published_at, tags, provider_tag
		FROM verified_claims WHERE claim_id = ?`, claimID)
	return scanVerifiedClaim(row)
}

func scanVerifiedClaim(row *sql.Row) (*models.VerifiedClaim, error) {
	var c models.VerifiedClaim
	var verdict string
	var sourceURL, publisher, language, providerTag sql.NullString
	var publishedAt sql.NullString
	var tagsJSON string

	err := row.Scan(&c.ClaimID, &c.ClaimText, &c.NormalizedClaimText, &verdict, &c.Explanation,
		&sourceURL, &publisher, &language, &publishedAt, &tagsJSON, &providerTag)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan verified claim: %w", err)
	}

	c.Verdict = models.NewCanonVerdict(verdict)
	c.SourceURL = sourceURL.String
	c.Publisher = publisher.String
	c.Language = language.String
	c.ProviderTag = providerTag.String
	c.PublishedAt = parseTimePtr(publishedAt)
	_ = json.Unmarshal([]byte(tagsJSON), &c.Tags)

	return &c, nil
}
