package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Agnikulu/veritas/internal/models"
	"github.com/Agnikulu/veritas/internal/resilience"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// NewsConnector pulls general news articles from a NewsAPI-compatible
// headlines/everything endpoint.
type NewsConnector struct {
	endpoint string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// NewNewsConnector constructs a NewsConnector rate-limited to avoid tripping
// the upstream provider's quota during a large ingestion run.
func NewNewsConnector(endpoint, apiKey string, timeout time.Duration, logger zerolog.Logger) *NewsConnector {
	return &NewsConnector{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 2),
		logger:   logger.With().Str("connector", "news").Logger(),
	}
}

func (c *NewsConnector) Name() string          { return "news" }
func (c *NewsConnector) Kind() models.ItemKind { return models.KindNews }

type newsAPIResponse struct {
	Articles []struct {
		Source      struct{ Name string `json:"name"` } `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Language    string `json:"-"`
	} `json:"articles"`
}

func (c *NewsConnector) Fetch(ctx context.Context, opts FetchOptions) ([]models.RawItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	if len(opts.QueryTerms) > 0 {
		q.Set("q", strings.Join(opts.QueryTerms, " OR "))
	} else {
		q.Set("q", "news")
	}
	if opts.Since != nil {
		q.Set("from", opts.Since.Format(time.RFC3339))
	}
	max := opts.MaxItems
	if max <= 0 || max > 100 {
		max = 100
	}
	q.Set("pageSize", strconv.Itoa(max))
	q.Set("apiKey", c.apiKey)

	reqURL := strings.TrimRight(c.endpoint, "/") + "/everything?" + q.Encode()

	var parsed newsAPIResponse
	err := resilience.RetryWithBackoff(ctx, resilience.RetryConfig{
		MaxAttempts:   3,
		OperationName: "news_connector_fetch",
		Logger:        &c.logger,
	}, func(ctx context.Context) error {
		body, status, err := doGet(ctx, c.http, reqURL)
		if err != nil {
			return resilience.NewRetryableError(err)
		}
		if status >= 500 {
			return resilience.NewRetryableError(fmt.Errorf("news api returned %d", status))
		}
		if status != http.StatusOK {
			return resilience.NewNonRetryableError(fmt.Errorf("news api returned %d", status))
		}
		return json.Unmarshal(body, &parsed)
	})
	if err != nil {
		return nil, fmt.Errorf("news connector fetch: %w", err)
	}

	items := make([]models.RawItem, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		body := strings.TrimSpace(a.Content)
		if body == "" {
			body = strings.TrimSpace(a.Description)
		}
		if body == "" {
			continue
		}
		item := models.RawItem{
			ProviderTag: "newsapi",
			Kind:        models.KindNews,
			SourceName:  a.Source.Name,
			URL:         a.URL,
			Title:       a.Title,
			Body:        body,
			Language:    "en",
		}
		if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			item.PublishedAt = &t
		}
		items = append(items, item)
	}
	return items, nil
}

func doGet(ctx context.Context, client *http.Client, reqURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
