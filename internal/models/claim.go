package models

import (
	"strings"
	"time"
)

// Verdict is the classification a VerifyResult or VerifiedClaim carries.
type Verdict string

const (
	VerdictTrue       Verdict = "true"
	VerdictFalse      Verdict = "false"
	VerdictMisleading Verdict = "misleading"
	VerdictUnverified Verdict = "unverified"
)

// canonVerdict is the subset VerifiedClaim.Verdict may hold (no "unverified" canon).
type canonVerdict string

const (
	CanonTrue       canonVerdict = "TRUE"
	CanonFalse      canonVerdict = "FALSE"
	CanonMisleading canonVerdict = "MISLEADING"
)

// VerifiedClaim is one row of the verified_claims canon collection.
type VerifiedClaim struct {
	ClaimID             string       `json:"claim_id"`
	ClaimText           string       `json:"claim_text"`
	NormalizedClaimText string       `json:"normalized_claim_text"`
	Verdict             canonVerdict `json:"verdict"`
	Explanation         string       `json:"explanation"`
	SourceURL           string       `json:"source_url"`
	Publisher           string       `json:"publisher"`
	Language            string       `json:"language"`
	PublishedAt         *time.Time   `json:"published_at,omitempty"`
	Tags                []string     `json:"tags,omitempty"`
	ProviderTag         string       `json:"provider_tag"`
}

// NewCanonVerdict validates and normalizes a raw verdict string into the canon enum,
// per spec.md §4.5-7: unknown ratings default to MISLEADING.
func NewCanonVerdict(raw string) canonVerdict {
	switch normalizeVerdictToken(raw) {
	case "true":
		return CanonTrue
	case "false":
		return CanonFalse
	default:
		return CanonMisleading
	}
}

// normalizeVerdictToken applies a small, explicit case-insensitive rating map for
// provider-supplied fact-check ratings (spec.md §9 open question: "only partially
// specified" — treated here as a policy decision to confirm per deployment).
func normalizeVerdictToken(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "correct", "accurate", "verified true":
		return "true"
	case "false", "incorrect", "pants on fire", "fake":
		return "false"
	default:
		return "misleading"
	}
}

// Mode identifies which branch of the RAG engine (C8) produced a VerifyResult.
type Mode string

const (
	ModeExistingFactCheck Mode = "existing_fact_check"
	ModeReasoned          Mode = "reasoned"
	ModeRefused           Mode = "refused"
)

// ClaimLog is one append-only record of a verification request.
type ClaimLog struct {
	LogID              string    `json:"log_id"`
	ReceivedAt         time.Time `json:"received_at"`
	ClientFingerprint  string    `json:"client_fingerprint"`
	ClaimText          string    `json:"claim_text"`
	Language           string    `json:"language"`
	Category           string    `json:"category,omitempty"`
	Mode               Mode      `json:"mode"`
	Verdict            Verdict   `json:"verdict"`
	Confidence         float64   `json:"confidence"`
	ContradictionScore float64   `json:"contradiction_score"`
	SourcesUsed        []string  `json:"sources_used"`
	ModelUsed          string    `json:"model_used"`
	LatencyMS          int64     `json:"latency_ms"`
	Errors             []string  `json:"errors,omitempty"`
}

// Feedback is one append-only user feedback record.
type Feedback struct {
	FeedbackID     string    `json:"feedback_id"`
	ReceivedAt     time.Time `json:"received_at"`
	ClaimText      string    `json:"claim_text"`
	VerdictReturned Verdict  `json:"verdict_returned"`
	Comment        string    `json:"comment"`
	ScreenshotURL  string    `json:"screenshot_url,omitempty"`
}
