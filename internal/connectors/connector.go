// Package connectors normalizes upstream provider responses into the common
// RawItem shape (C1). Each connector is a black-box provider client; the
// wire formats of the upstream APIs are intentionally out of scope (spec.md
// §1) — these implementations cover the normalization contract and the
// surrounding reliability idiom (timeout, rate limit, retry), not full
// provider API coverage.
package connectors

import (
	"context"
	"time"

	"github.com/Agnikulu/veritas/internal/models"
)

// FetchOptions bounds a single fetch call. Connectors are stateless between
// calls (spec.md §4.1) — since is the caller's responsibility to track.
type FetchOptions struct {
	MaxItems   int
	Since      *time.Time
	QueryTerms []string
}

// Connector normalizes one upstream provider's responses into RawItems.
// Failures are returned, never panicked — a single connector failing must
// never interrupt an ingestion run (spec.md §4.1).
type Connector interface {
	// Name identifies the connector for logging and ingest-run bookkeeping.
	Name() string
	// Kind reports the ItemKind this connector produces.
	Kind() models.ItemKind
	// Fetch retrieves and normalizes items per opts.
	Fetch(ctx context.Context, opts FetchOptions) ([]models.RawItem, error)
}
