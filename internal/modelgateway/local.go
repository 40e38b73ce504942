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

// LocalBackend is an on-host Ollama instance: no auth, and exempt from forced
// offline mode. The gateway retries it like any other backend.
type LocalBackend struct {
	id       string
	endpoint string
	model    string
	http     *http.Client
}

// NewLocalBackend constructs a local backend.
func NewLocalBackend(id, endpoint, model string, timeout time.Duration) *LocalBackend {
	return &LocalBackend{
		id:       id,
		endpoint: endpoint,
		model:    model,
		http:     &http.Client{Timeout: timeout},
	}
}

func (b *LocalBackend) ID() string    { return b.id }
func (b *LocalBackend) IsLocal() bool { return true }

func (b *LocalBackend) Generate(ctx context.Context, system, prompt string) (string, error) {
	url := strings.TrimRight(b.endpoint, "/") + "/api/chat"

	body := map[string]interface{}{
		"model": b.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
		"stream": false,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", newNonRetryable(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", newNonRetryable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return "", newRetryable(fmt.Errorf("ollama request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTPError(resp.StatusCode, respBody)
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", newNonRetryable(fmt.Errorf("unmarshal ollama response: %w", err))
	}
	return strings.TrimSpace(result.Message.Content), nil
}

func (b *LocalBackend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(b.endpoint, "/")+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama ping returned %d", resp.StatusCode)
	}
	return nil
}
