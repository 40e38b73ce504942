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

// FactCheckConnector queries a Google Fact Check Tools-compatible claim
// search endpoint. This is the one connector whose items carry a
// FactCheckVerdict, later normalized by the ingestion orchestrator into a
// VerifiedClaim (spec.md §4.5).
type FactCheckConnector struct {
	endpoint string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// NewFactCheckConnector constructs a FactCheckConnector.
func NewFactCheckConnector(endpoint, apiKey string, timeout time.Duration, logger zerolog.Logger) *FactCheckConnector {
	return &FactCheckConnector{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		logger:   logger.With().Str("connector", "factcheck").Logger(),
	}
}

func (c *FactCheckConnector) Name() string          { return "factcheck" }
func (c *FactCheckConnector) Kind() models.ItemKind { return models.KindFactCheck }

type claimSearchResponse struct {
	Claims []struct {
		Text      string `json:"text"`
		ClaimDate string `json:"claimDate"`
		ClaimReview []struct {
			Publisher struct {
				Name string `json:"name"`
			} `json:"publisher"`
			URL           string `json:"url"`
			Title         string `json:"title"`
			ReviewDate    string `json:"reviewDate"`
			TextualRating string `json:"textualRating"`
			LanguageCode  string `json:"languageCode"`
		} `json:"claimReview"`
	} `json:"claims"`
}

func (c *FactCheckConnector) Fetch(ctx context.Context, opts FetchOptions) ([]models.RawItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	if len(opts.QueryTerms) > 0 {
		q.Set("query", strings.Join(opts.QueryTerms, " "))
	} else {
		q.Set("query", "news")
	}
	max := opts.MaxItems
	if max <= 0 || max > 100 {
		max = 100
	}
	q.Set("pageSize", strconv.Itoa(max))
	q.Set("key", c.apiKey)

	reqURL := strings.TrimRight(c.endpoint, "/") + "/claims:search?" + q.Encode()

	var parsed claimSearchResponse
	err := resilience.RetryWithBackoff(ctx, resilience.RetryConfig{
		MaxAttempts:   3,
		OperationName: "factcheck_connector_fetch",
		Logger:        &c.logger,
	}, func(ctx context.Context) error {
		body, status, err := doGet(ctx, c.http, reqURL)
		if err != nil {
			return resilience.NewRetryableError(err)
		}
		if status >= 500 {
			return resilience.NewRetryableError(fmt.Errorf("fact check api returned %d", status))
		}
		if status != http.StatusOK {
			return resilience.NewNonRetryableError(fmt.Errorf("fact check api returned %d", status))
		}
		return json.Unmarshal(body, &parsed)
	})
	if err != nil {
		return nil, fmt.Errorf("factcheck connector fetch: %w", err)
	}

	var items []models.RawItem
	for _, claim := range parsed.Claims {
		for _, review := range claim.ClaimReview {
			item := models.RawItem{
				ProviderTag:      "google_factcheck",
				Kind:             models.KindFactCheck,
				SourceName:       review.Publisher.Name,
				URL:              review.URL,
				Title:            review.Title,
				Body:             claim.Text,
				Language:         review.LanguageCode,
				FactCheckVerdict: review.TextualRating,
			}
			if t, err := time.Parse("2006-01-02T15:04:05Z", review.ReviewDate); err == nil {
				item.PublishedAt = &t
			} else if t, err := time.Parse(time.RFC3339, review.ReviewDate); err == nil {
				item.PublishedAt = &t
			}
			items = append(items, item)
		}
	}
	return items, nil
}
