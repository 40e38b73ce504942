package rag

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Agnikulu/veritas/internal/models"
)

// trailingCommaRE strips a comma that precedes a closing brace/bracket,
// possibly across whitespace — models asked for strict JSON still sometimes
// emit `{"a":1,}` or `[1,2,]`.
var trailingCommaRE = regexp.MustCompile(`,(\s*[}\]])`)

// modelVerdict is the raw shape a backend's JSON reply is decoded into,
// before verdict coercion and source-index resolution.
type modelVerdict struct {
	Verdict              string  `json:"verdict"`
	Confidence           float64 `json:"confidence"`
	ContradictionScore   float64 `json:"contradiction_score"`
	Explanation          string  `json:"explanation"`
	CitedEvidenceIndices []int   `json:"cited_evidence_indices"`
}

// extractJSON finds the first '{' and the last '}' in raw and parses only
// that substring, tolerant of leading/trailing prose, a code-fence wrapper
// the model ignored the instruction not to use, and a dangling trailing
// comma before the closing brace or bracket.
func extractJSON(raw string) (*modelVerdict, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object found in model response")
	}

	cleaned := trailingCommaRE.ReplaceAllString(raw[start:end+1], "$1")

	var v modelVerdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}
	return &v, nil
}

// coerceVerdict maps a raw, case-insensitive verdict token to the canon
// enum, defaulting to unverified on anything unrecognized — an LLM
// hallucinating a fifth category must never propagate past this boundary.
func coerceVerdict(raw string) models.Verdict {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true":
		return models.VerdictTrue
	case "false":
		return models.VerdictFalse
	case "misleading":
		return models.VerdictMisleading
	default:
		return models.VerdictUnverified
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// buildSourcesUsed resolves cited_evidence_indices (1-based, matching the
// numbering in buildPrompt) against the evidence list actually sent to the
// model, dropping any index the model invented and any evidence item with no
// text to show for it. Evidence cited with a missing URL gets a deterministic
// placeholder so the caller never has to special-case an empty link.
func buildSourcesUsed(evidence []evidenceItem, indices []int, snippetChars int) []models.SourceUsed {
	seen := make(map[int]bool, len(indices))
	var sources []models.SourceUsed
	for _, idx := range indices {
		pos := idx - 1
		if pos < 0 || pos >= len(evidence) || seen[idx] {
			continue
		}
		seen[idx] = true

		ev := evidence[pos]
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			continue
		}

		url := ev.URL
		if url == "" {
			url = fmt.Sprintf("veritas://unsourced/%s", strings.ToLower(strings.ReplaceAll(ev.SourceName, " ", "-")))
		}

		sources = append(sources, models.SourceUsed{
			Type:             string(ev.Kind),
			Source:           ev.SourceName,
			URL:              url,
			Snippet:          snippet(text, snippetChars),
			CredibilityScore: ev.CredibilityScore,
			CredibilityLevel: ev.CredibilityLevel,
			IsVerifiedSource: ev.IsVerifiedSource,
		})
	}
	return sources
}
