package models

import "strings"

// CredibilityLevel is the coarse bucket a source falls into.
type CredibilityLevel string

const (
	CredibilityHigh       CredibilityLevel = "high"
	CredibilityMediumHigh CredibilityLevel = "medium-high"
	CredibilityMedium     CredibilityLevel = "medium"
	CredibilityLow        CredibilityLevel = "low"
)

// VerifiedSourceThreshold is the score at or above which a source is "verified".
const VerifiedSourceThreshold = 0.85

// govSources and factCheckSources are illustrative per spec.md §3; treated as
// configuration data, not a closed enumeration — unrecognized names still
// classify sensibly by kind.
var govSources = map[string]bool{
	"pib": true, "who": true, "eci": true, "ministry": true,
	"press information bureau": true, "world health organization": true,
	"election commission of india": true,
}

var factCheckSources = map[string]bool{
	"altnews": true, "boomlive": true, "snopes": true, "reuters fact check": true,
	"factcheck.org": true, "politifact": true,
}

var tier1NewsSources = map[string]bool{
	"bbc": true, "reuters": true, "the hindu": true, "ndtv": true,
	"associated press": true, "ap": true,
}

// ClassifyCredibility is a pure function of (source_name, kind) per spec.md §3's
// credibility classification table.
func ClassifyCredibility(sourceName string, kind ItemKind) (score float64, level CredibilityLevel, verified bool) {
	name := strings.ToLower(strings.TrimSpace(sourceName))

	switch {
	case kind == KindGov || govSources[name]:
		score, level = 0.95, CredibilityHigh
	case kind == KindFactCheck || factCheckSources[name]:
		score, level = 0.90, CredibilityHigh
	case kind == KindSocial:
		score, level = 0.35, CredibilityLow
	case tier1NewsSources[name]:
		score, level = 0.80, CredibilityMediumHigh
	case kind == KindNews:
		score, level = 0.60, CredibilityMedium
	default:
		score, level = 0.60, CredibilityMedium
	}

	verified = score >= VerifiedSourceThreshold
	return score, level, verified
}
