// Package modelgateway implements the model gateway (C7): a preference-ordered
// dispatch of chat completion requests across heterogeneous LLM backends with
// retry, fallback, and live health sampling.
package modelgateway

import "context"

// Backend is the shared capability every gateway entry must implement,
// whether it is a remote provider or a local on-host one. Modeled as a tagged
// variant at the call site (RemoteBackend | LocalBackend) behind this one
// interface, per the re-architecture note for dynamic dispatch across model
// backends.
type Backend interface {
	// ID returns the backend identifier used for model_used and health maps.
	ID() string
	// Generate sends a single chat completion request and returns the raw
	// response text.
	Generate(ctx context.Context, system, prompt string) (string, error)
	// Ping performs a trivial liveness check used by the health sampler.
	Ping(ctx context.Context) error
	// IsLocal reports whether this backend runs on-host (exempt from forced
	// offline mode).
	IsLocal() bool
}
