package rag

import (
	"fmt"
	"strings"
)

const systemDirective = `You are a fact-checking assistant. You are given a claim and a numbered list of evidence snippets gathered from news outlets, government bulletins, social media, and fact-checking organizations.

Decide whether the claim is true, false, or misleading based ONLY on the evidence provided. If the evidence does not clearly support or refute the claim, respond with "unverified" rather than guessing.

Respond with a single JSON object and nothing else, in this exact shape:
{
  "verdict": "true" | "false" | "misleading" | "unverified",
  "confidence": 0.0-1.0,
  "contradiction_score": 0.0-1.0,
  "explanation": "a short, neutral explanation citing evidence by number, e.g. [2][5]",
  "cited_evidence_indices": [2, 5]
}

contradiction_score reflects how much the evidence set disagrees internally (0 = fully consistent, 1 = sharply contradictory). cited_evidence_indices must only contain numbers that appear in the evidence list below. Do not invent sources. Do not wrap the JSON in a code fence.`

const repairDirective = `Your previous response could not be parsed as the required JSON object. Respond again with ONLY the JSON object described, no prose before or after it, no code fence.`

// buildPrompt assembles the user-turn prompt: the claim followed by
// numbered, truncated evidence snippets, mirroring the teacher's
// system/user split and strings.Builder assembly pattern.
func buildPrompt(claimText, language, category string, evidence []evidenceItem, snippetChars int) string {
	if snippetChars <= 0 {
		snippetChars = 500
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Claim: %s\n", claimText)
	if language != "" {
		fmt.Fprintf(&b, "Respond in language: %s\n", language)
	}
	if category != "" {
		fmt.Fprintf(&b, "Category: %s\n", category)
	}
	b.WriteString("\n")

	if len(evidence) == 0 {
		b.WriteString("Evidence: none available.\n")
		return b.String()
	}

	b.WriteString("Evidence:\n")
	for i, ev := range evidence {
		published := "unknown date"
		if ev.PublishedAt != nil {
			published = ev.PublishedAt.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "[%d] (%s, %s, %s): %s\n", i+1, ev.Kind, ev.SourceName, published, snippet(ev.Text, snippetChars))
	}
	return b.String()
}

func snippet(text string, n int) string {
	text = strings.TrimSpace(text)
	if len(text) <= n {
		return text
	}
	return text[:n]
}
