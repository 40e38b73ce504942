package connectors

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/Agnikulu/veritas/internal/models"
	"github.com/Agnikulu/veritas/internal/resilience"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"net/http"
)

// GovConnector polls a fixed list of government/multilateral RSS bulletin
// feeds (e.g. a health ministry, a statistics office).
type GovConnector struct {
	feedURLs []string
	http     *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// NewGovConnector constructs a GovConnector over feedURLs.
func NewGovConnector(feedURLs []string, timeout time.Duration, logger zerolog.Logger) *GovConnector {
	return &GovConnector{
		feedURLs: feedURLs,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		logger:   logger.With().Str("connector", "gov").Logger(),
	}
}

func (c *GovConnector) Name() string          { return "gov" }
func (c *GovConnector) Kind() models.ItemKind { return models.KindGov }

type rssFeed struct {
	Channel struct {
		Title string `xml:"title"`
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
			PubDate     string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

func (c *GovConnector) Fetch(ctx context.Context, opts FetchOptions) ([]models.RawItem, error) {
	var items []models.RawItem

	for _, feedURL := range c.feedURLs {
		if err := c.limiter.Wait(ctx); err != nil {
			return items, err
		}

		var feed rssFeed
		err := resilience.RetryWithBackoff(ctx, resilience.RetryConfig{
			MaxAttempts:   3,
			OperationName: "gov_connector_fetch",
			Logger:        &c.logger,
		}, func(ctx context.Context) error {
			body, status, err := doGet(ctx, c.http, feedURL)
			if err != nil {
				return resilience.NewRetryableError(err)
			}
			if status >= 500 {
				return resilience.NewRetryableError(fmt.Errorf("gov feed %s returned %d", feedURL, status))
			}
			if status != http.StatusOK {
				return resilience.NewNonRetryableError(fmt.Errorf("gov feed %s returned %d", feedURL, status))
			}
			return xml.Unmarshal(body, &feed)
		})
		if err != nil {
			// One bad feed must not sink the whole connector call.
			c.logger.Warn().Err(err).Str("feed", feedURL).Msg("skipping feed")
			continue
		}

		sourceName := feed.Channel.Title
		for i, it := range feed.Channel.Items {
			if opts.MaxItems > 0 && i >= opts.MaxItems {
				break
			}
			body := strings.TrimSpace(it.Description)
			if body == "" {
				continue
			}
			item := models.RawItem{
				ProviderTag: "gov_rss",
				Kind:        models.KindGov,
				SourceName:  sourceName,
				URL:         it.Link,
				Title:       it.Title,
				Body:        body,
				Language:    "en",
			}
			if t, err := time.Parse(time.RFC1123Z, it.PubDate); err == nil {
				item.PublishedAt = &t
			}
			items = append(items, item)
		}
	}

	return items, nil
}
