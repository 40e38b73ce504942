package modelgateway

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

// RemoteProvider selects the wire format a RemoteBackend speaks.
type RemoteProvider string

const (
	ProviderGemini     RemoteProvider = "gemini"
	ProviderOpenRouter RemoteProvider = "openrouter"
)

// RemoteBackend is a hosted LLM reached over the network, charged per call —
// the retry/circuit-breaker wrapping in Gateway exists specifically to avoid
// wasting its quota.
type RemoteBackend struct {
	id       string
	provider RemoteProvider
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
}

// NewRemoteBackend constructs a remote backend. endpoint may be empty to use
// the provider's default.
func NewRemoteBackend(id string, provider RemoteProvider, endpoint, apiKey, model string, timeout time.Duration) *RemoteBackend {
	return &RemoteBackend{
		id:       id,
		provider: provider,
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		http:     &http.Client{Timeout: timeout},
	}
}

func (b *RemoteBackend) ID() string    { return b.id }
func (b *RemoteBackend) IsLocal() bool { return false }

func (b *RemoteBackend) Generate(ctx context.Context, system, prompt string) (string, error) {
	switch b.provider {
	case ProviderGemini:
		return b.generateGemini(ctx, system, prompt)
	case ProviderOpenRouter:
		return b.generateOpenRouter(ctx, system, prompt)
	default:
		return "", newNonRetryable(fmt.Errorf("unsupported remote provider: %s", b.provider))
	}
}

func (b *RemoteBackend) Ping(ctx context.Context) error {
	_, err := b.Generate(ctx, "", "ping")
	return err
}

func (b *RemoteBackend) generateGemini(ctx context.Context, system, prompt string) (string, error) {
	baseURL := b.endpoint
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	model := b.model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", strings.TrimRight(baseURL, "/"), model, b.apiKey)

	body := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"role": "user", "parts": []map[string]string{{"text": prompt}}},
		},
	}
	if system != "" {
		body["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]string{{"text": system}},
		}
	}

	respBody, status, err := b.post(ctx, url, body, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", classifyHTTPError(status, respBody)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", newNonRetryable(fmt.Errorf("unmarshal gemini response: %w", err))
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", newNonRetryable(fmt.Errorf("gemini returned no candidates"))
	}
	return strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text), nil
}

func (b *RemoteBackend) generateOpenRouter(ctx context.Context, system, prompt string) (string, error) {
	baseURL := b.endpoint
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	url := strings.TrimRight(baseURL, "/") + "/chat/completions"

	body := map[string]interface{}{
		"model": b.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
	}

	headers := map[string]string{"Authorization": "Bearer " + b.apiKey}
	respBody, status, err := b.post(ctx, url, body, headers)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", classifyHTTPError(status, respBody)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", newNonRetryable(fmt.Errorf("unmarshal openrouter response: %w", err))
	}
	if len(result.Choices) == 0 {
		return "", newNonRetryable(fmt.Errorf("openrouter returned no choices"))
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (b *RemoteBackend) post(ctx context.Context, url string, body map[string]interface{}, headers map[string]string) ([]byte, int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, 0, newNonRetryable(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, 0, newNonRetryable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, 0, newRetryable(fmt.Errorf("%s request failed: %w", b.provider, err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return respBody, resp.StatusCode, nil
}
