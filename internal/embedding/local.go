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

// LocalProvider speaks Ollama's /api/embeddings endpoint, one text at a
// time — Ollama does not batch embedding requests.
type LocalProvider struct {
	endpoint  string
	model     string
	dimension int
	http      *http.Client
}

// NewLocalProvider constructs a LocalProvider.
func NewLocalProvider(endpoint, model string, dimension int, timeout time.Duration) *LocalProvider {
	return &LocalProvider{
		endpoint:  endpoint,
		model:     model,
		dimension: dimension,
		http:      &http.Client{Timeout: timeout},
	}
}

func (p *LocalProvider) Name() string   { return "local_ollama" }
func (p *LocalProvider) Dimension() int { return p.dimension }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	url := strings.TrimRight(p.endpoint, "/") + "/api/embeddings"

	for i, text := range texts {
		reqBody, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Prompt: text})
		if err != nil {
			return nil, fmt.Errorf("local_ollama: marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("local_ollama: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("local_ollama: request failed: %w", err)
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("local_ollama: returned %d: %s", resp.StatusCode, truncate(body, 200))
		}

		var parsed ollamaEmbedResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("local_ollama: unmarshal response: %w", err)
		}
		vectors[i] = parsed.Embedding
	}

	return vectors, nil
}
