package embedding

import (
	"context"
	"fmt"

	"github.com/Agnikulu/veritas/internal/metrics"
	"github.com/rs/zerolog"
)

// Chain embeds a batch through primary -> secondary -> local -> deterministic
// providers, short-circuiting on first success (spec.md §4.2). A batch call
// never mixes providers — the whole batch comes from whichever provider
// succeeds.
type Chain struct {
	providers []Provider
	logger    zerolog.Logger
}

// NewChain constructs a Chain over providers in fallback order.
func NewChain(providers []Provider, logger zerolog.Logger) *Chain {
	return &Chain{
		providers: providers,
		logger:    logger.With().Str("component", "embedding_chain").Logger(),
	}
}

// EmbedResult carries the vectors plus the identity of the provider that
// produced them, for collection provenance tracking.
type EmbedResult struct {
	Vectors      [][]float32
	ProviderName string
	Dimension    int
}

// Embed walks the fallback chain, logging a degraded_embedding event on each
// transition away from the first (primary) provider.
func (c *Chain) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	if len(texts) == 0 {
		return &EmbedResult{}, nil
	}

	var lastErr error
	for i, p := range c.providers {
		vectors, err := p.Embed(ctx, texts)
		if err == nil {
			if i > 0 {
				from := "none"
				if i-1 >= 0 {
					from = c.providers[i-1].Name()
				}
				c.logger.Warn().
					Str("event", "degraded_embedding").
					Str("from", from).
					Str("to", p.Name()).
					Msg("embedding fallback chain transitioned")
				metrics.IncrementCounter("embedding_provider_fallback_total", map[string]string{
					"from": from,
					"to":   p.Name(),
				})
			}
			return &EmbedResult{Vectors: vectors, ProviderName: p.Name(), Dimension: p.Dimension()}, nil
		}
		c.logger.Warn().Err(err).Str("provider", p.Name()).Msg("embedding provider failed, falling through")
		lastErr = err
	}

	return nil, fmt.Errorf("all embedding providers exhausted: %w", lastErr)
}

// EmbedQuery embeds a single query string, re-embedding through the
// collection's recorded provider if it differs from whatever the chain would
// otherwise pick — the alternative, rejecting the query outright, is a worse
// user experience than an extra call (spec.md §4.2 leaves the choice open).
func (c *Chain) EmbedQuery(ctx context.Context, text, collectionProvider string) ([]float32, error) {
	for _, p := range c.providers {
		if p.Name() == collectionProvider {
			vecs, err := p.Embed(ctx, []string{text})
			if err != nil {
				return nil, fmt.Errorf("re-embed with collection provider %s: %w", collectionProvider, err)
			}
			return vecs[0], nil
		}
	}

	// Collection provider no longer configured: fall back to the chain.
	result, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return result.Vectors[0], nil
}
