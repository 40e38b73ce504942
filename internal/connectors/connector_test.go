package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewsConnector_NormalizesArticles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"articles":[{"source":{"name":"Reuters"},"title":"T","description":"D","content":"Full body text","url":"https://reuters.com/a","publishedAt":"2026-01-01T00:00:00Z"}]}`))
	}))
	defer srv.Close()

	c := NewNewsConnector(srv.URL, "key", 5*time.Second, zerolog.Nop())
	items, err := c.Fetch(context.Background(), FetchOptions{MaxItems: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Reuters", items[0].SourceName)
	assert.Equal(t, "Full body text", items[0].Body)
	assert.NotNil(t, items[0].PublishedAt)
}

func TestNewsConnector_SkipsArticlesWithNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"articles":[{"source":{"name":"X"},"title":"T","description":"","content":"","url":"https://x.com/a"}]}`))
	}))
	defer srv.Close()

	c := NewNewsConnector(srv.URL, "key", 5*time.Second, zerolog.Nop())
	items, err := c.Fetch(context.Background(), FetchOptions{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFactCheckConnector_CarriesVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"claims":[{"text":"Vaccines cause X","claimReview":[{"publisher":{"name":"PolitiFact"},"url":"https://politifact.com/a","title":"Review","reviewDate":"2026-01-02T00:00:00Z","textualRating":"False","languageCode":"en"}]}]}`))
	}))
	defer srv.Close()

	c := NewFactCheckConnector(srv.URL, "key", 5*time.Second, zerolog.Nop())
	items, err := c.Fetch(context.Background(), FetchOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "False", items[0].FactCheckVerdict)
	assert.Equal(t, "PolitiFact", items[0].SourceName)
}

func TestSocialConnector_EmptyEndpointReturnsNoItems(t *testing.T) {
	c := NewSocialConnector("", 5*time.Second, zerolog.Nop())
	items, err := c.Fetch(context.Background(), FetchOptions{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGovConnector_SkipsUnreachableFeedWithoutFailingCall(t *testing.T) {
	c := NewGovConnector([]string{"http://127.0.0.1:0/unreachable"}, 2*time.Second, zerolog.Nop())
	items, err := c.Fetch(context.Background(), FetchOptions{})
	require.NoError(t, err)
	assert.Empty(t, items)
}
