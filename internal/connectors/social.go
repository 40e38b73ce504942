package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Agnikulu/veritas/internal/models"
	"github.com/Agnikulu/veritas/internal/resilience"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"net/http"
)

// SocialConnector samples public posts from a configured aggregation
// endpoint. Social items are always low credibility (spec.md §3) — they
// exist to give the RAG engine negative/unverified context, not canon
// material.
type SocialConnector struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// NewSocialConnector constructs a SocialConnector.
func NewSocialConnector(endpoint string, timeout time.Duration, logger zerolog.Logger) *SocialConnector {
	return &SocialConnector{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 3),
		logger:   logger.With().Str("connector", "social").Logger(),
	}
}

func (c *SocialConnector) Name() string          { return "social" }
func (c *SocialConnector) Kind() models.ItemKind { return models.KindSocial }

type socialSampleResponse struct {
	Posts []struct {
		ID        string `json:"id"`
		Author    string `json:"author"`
		Text      string `json:"text"`
		URL       string `json:"url"`
		CreatedAt string `json:"created_at"`
		Lang      string `json:"lang"`
	} `json:"posts"`
}

func (c *SocialConnector) Fetch(ctx context.Context, opts FetchOptions) ([]models.RawItem, error) {
	if c.endpoint == "" {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	if len(opts.QueryTerms) > 0 {
		q.Set("q", strings.Join(opts.QueryTerms, " "))
	}
	max := opts.MaxItems
	if max <= 0 || max > 100 {
		max = 100
	}
	q.Set("limit", strconv.Itoa(max))

	reqURL := strings.TrimRight(c.endpoint, "/") + "/sample?" + q.Encode()

	var parsed socialSampleResponse
	err := resilience.RetryWithBackoff(ctx, resilience.RetryConfig{
		MaxAttempts:   3,
		OperationName: "social_connector_fetch",
		Logger:        &c.logger,
	}, func(ctx context.Context) error {
		body, status, err := doGet(ctx, c.http, reqURL)
		if err != nil {
			return resilience.NewRetryableError(err)
		}
		if status >= 500 {
			return resilience.NewRetryableError(fmt.Errorf("social endpoint returned %d", status))
		}
		if status != http.StatusOK {
			return resilience.NewNonRetryableError(fmt.Errorf("social endpoint returned %d", status))
		}
		return json.Unmarshal(body, &parsed)
	})
	if err != nil {
		return nil, fmt.Errorf("social connector fetch: %w", err)
	}

	items := make([]models.RawItem, 0, len(parsed.Posts))
	for _, p := range parsed.Posts {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		item := models.RawItem{
			ProviderTag: "social_sampler",
			Kind:        models.KindSocial,
			SourceName:  p.Author,
			URL:         p.URL,
			Body:        text,
			Language:    p.Lang,
			ProviderMeta: p.ID,
		}
		if t, err := time.Parse(time.RFC3339, p.CreatedAt); err == nil {
			item.PublishedAt = &t
		}
		items = append(items, item)
	}
	return items, nil
}
