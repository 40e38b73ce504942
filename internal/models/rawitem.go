package models

import "time"

// ItemKind identifies which source bucket a RawItem or KBRecord came from.
type ItemKind string

const (
	KindNews      ItemKind = "news"
	KindGov       ItemKind = "gov"
	KindFactCheck ItemKind = "factcheck"
	KindSocial    ItemKind = "social"
)

// RawItem is the normalized shape every source connector (C1) returns.
type RawItem struct {
	ProviderTag  string     `json:"provider_tag"`
	Kind         ItemKind   `json:"kind"`
	SourceName   string     `json:"source_name"`
	URL          string     `json:"url,omitempty"`
	Title        string     `json:"title,omitempty"`
	Body         string     `json:"body"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	Language     string     `json:"language,omitempty"`
	ProviderMeta string     `json:"provider_meta,omitempty"`

	// FactCheckVerdict carries the provider's raw textual rating for
	// kind=factcheck items, normalized by the ingestion orchestrator into
	// a VerifiedClaim verdict. Empty for every other kind.
	FactCheckVerdict string `json:"factcheck_verdict,omitempty"`
}

// Chunk is one overlapping window of a RawItem's body, produced by the chunker (C5).
type Chunk struct {
	ChunkID     string   `json:"chunk_id"`
	ParentRawID string   `json:"parent_raw_id"`
	Ordinal     int      `json:"ordinal"`
	Text        string   `json:"text"`
	CharSpan    [2]int   `json:"char_span"`
	Parent      *RawItem `json:"-"`
}
