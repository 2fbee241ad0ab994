package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"feedrelay/internal/domain/entity"
	"feedrelay/internal/resilience/circuitbreaker"
	"feedrelay/internal/resilience/retry"
)

const algoliaBaseURL = "https://hn.algolia.com/api/v1"

// AlgoliaSource harvests items through the Algolia Hacker News search API.
// Unlike the HTML scraper it filters server-side, so distinct keyword sets
// can be fetched independently.
type AlgoliaSource struct {
	client         *http.Client
	baseURL        string
	maxAge         time.Duration
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// NewAlgoliaSource creates an AlgoliaSource with the given HTTP client.
// baseURL overrides the production endpoint for tests; maxAge bounds the
// server-side recency filter (zero disables it).
func NewAlgoliaSource(client *http.Client, baseURL string, maxAge time.Duration) *AlgoliaSource {
	if baseURL == "" {
		baseURL = algoliaBaseURL
	}
	return &AlgoliaSource{
		client:         client,
		baseURL:        baseURL,
		maxAge:         maxAge,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedQueryConfig()),
		retryConfig:    retry.FeedQueryConfig(),
	}
}

// FiltersServerSide reports that query terms are pushed down to the API.
func (a *AlgoliaSource) FiltersServerSide() bool { return true }

type algoliaResponse struct {
	Hits []algoliaHit `json:"hits"`
}

type algoliaHit struct {
	ObjectID  string `json:"objectID"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"created_at_i"`
}

// Fetch retrieves up to limit recent stories matching queryTerms
// (empty terms return the newest stories unfiltered). Malformed hits are
// skipped, never fatal.
func (a *AlgoliaSource) Fetch(ctx context.Context, limit int, queryTerms []string) ([]entity.Item, error) {
	var items []entity.Item

	retryErr := retry.WithBackoff(ctx, a.retryConfig, func() error {
		cbResult, err := a.circuitBreaker.Execute(func() (interface{}, error) {
			return a.doFetch(ctx, limit, queryTerms)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("feed query circuit breaker open, request rejected",
					slog.String("service", "algolia-source"),
					slog.String("state", a.circuitBreaker.State().String()))
			}
			return err
		}
		items = cbResult.([]entity.Item)
		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}
	return items, nil
}

// doFetch performs the actual API call without retry or circuit breaker.
func (a *AlgoliaSource) doFetch(ctx context.Context, limit int, queryTerms []string) ([]entity.Item, error) {
	q := url.Values{}
	q.Set("tags", "story")
	q.Set("hitsPerPage", fmt.Sprintf("%d", limit))
	if len(queryTerms) > 0 {
		q.Set("query", strings.Join(queryTerms, " "))
	}
	if a.maxAge > 0 {
		cutoff := time.Now().Add(-a.maxAge).Unix()
		q.Set("numericFilters", fmt.Sprintf("created_at_i>%d", cutoff))
	}

	endpoint := a.baseURL + "/search_by_date?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "feedrelay-bot")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query search api: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Message: "search api query failed"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var parsed algoliaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal search response: %w", err)
	}

	items := make([]entity.Item, 0, len(parsed.Hits))
	for _, hit := range parsed.Hits {
		if hit.ObjectID == "" || hit.Title == "" {
			continue // malformed hit, skip
		}
		items = append(items, entity.Item{
			ID:         hit.ObjectID,
			Title:      hit.Title,
			URL:        hit.URL,
			Discussion: fmt.Sprintf("%s/item?id=%s", hnBaseURL, hit.ObjectID),
			CreatedAt:  time.Unix(hit.CreatedAt, 0),
		})
	}
	return items, nil
}
