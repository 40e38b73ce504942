// Package embedding implements the text -> dense vector abstraction (C2) and
// its fallback chain: primary remote provider -> secondary remote provider ->
// local on-host provider -> local deterministic fallback (spec.md §4.2).
package embedding

import "context"

// Provider maps a batch of texts to one vector per text, preserving order.
// A Provider must fail atomically — no partial results — and every vector
// returned by one call must share the same dimension.
type Provider interface {
	// Name identifies the provider for degraded_embedding logging and
	// collection provenance tracking.
	Name() string
	// Dimension reports the vector width this provider produces.
	Dimension() int
	// Embed maps texts to vectors, one per input, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
