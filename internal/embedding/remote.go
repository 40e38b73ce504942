package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteProvider speaks an OpenAI-compatible /v1/embeddings endpoint. Both
// the primary and secondary remote providers in the fallback chain are
// instances of this type, distinguished only by endpoint/model/key.
type RemoteProvider struct {
	name      string
	endpoint  string
	apiKey    string
	model     string
	dimension int
	http      *http.Client
}

// NewRemoteProvider constructs a RemoteProvider.
func NewRemoteProvider(name, endpoint, apiKey, model string, dimension int, timeout time.Duration) *RemoteProvider {
	return &RemoteProvider{
		name:      name,
		endpoint:  endpoint,
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		http:      &http.Client{Timeout: timeout},
	}
}

func (p *RemoteProvider) Name() string   { return p.name }
func (p *RemoteProvider) Dimension() int { return p.dimension }

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *RemoteProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody, err := json.Marshal(embeddingRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	url := strings.TrimRight(p.endpoint, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: returned %d: %s", p.name, resp.StatusCode, truncate(body, 200))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%s: unmarshal response: %w", p.name, err)
	}
	if len(parsed.Data) != len(texts) {
		// A partial batch violates the all-or-nothing contract (spec.md §4.2).
		return nil, fmt.Errorf("%s: expected %d vectors, got %d", p.name, len(texts), len(parsed.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%s: embedding index %d out of range", p.name, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%s: missing vector at index %d", p.name, i)
		}
	}
	return vectors, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
