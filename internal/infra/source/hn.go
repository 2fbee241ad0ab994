// Package source provides content-source adapters for the Hacker News
// newest-items feed. Two interchangeable implementations produce the same
// normalized item list: an HTML scraper of the /newest page and the Algolia
// search API. Only the Algolia adapter filters server-side.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sony/gobreaker"

	"feedrelay/internal/domain/entity"
	"feedrelay/internal/resilience/circuitbreaker"
	"feedrelay/internal/resilience/retry"
)

const hnBaseURL = "https://news.ycombinator.com"

// HNScraper harvests items by scraping the Hacker News newest page.
// It includes circuit breaker and retry logic for improved reliability.
type HNScraper struct {
	client         *http.Client
	baseURL        string
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// NewHNScraper creates an HNScraper with the given HTTP client.
// baseURL overrides the production site for tests; empty selects it.
func NewHNScraper(client *http.Client, baseURL string) *HNScraper {
	if baseURL == "" {
		baseURL = hnBaseURL
	}
	return &HNScraper{
		client:         client,
		baseURL:        baseURL,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedQueryConfig()),
		retryConfig:    retry.FeedQueryConfig(),
	}
}

// FiltersServerSide reports that the scraper cannot filter by query terms;
// the scheduler shares one unfiltered fetch across all subscriber groups.
func (s *HNScraper) FiltersServerSide() bool { return false }

// Fetch retrieves up to limit items from the newest page. queryTerms are
// ignored (client-side matching). Malformed rows are skipped, never fatal.
func (s *HNScraper) Fetch(ctx context.Context, limit int, queryTerms []string) ([]entity.Item, error) {
	var items []entity.Item

	retryErr := retry.WithBackoff(ctx, s.retryConfig, func() error {
		cbResult, err := s.circuitBreaker.Execute(func() (interface{}, error) {
			return s.doFetch(ctx, limit)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("feed query circuit breaker open, request rejected",
					slog.String("service", "hn-scraper"),
					slog.String("state", s.circuitBreaker.State().String()))
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

// doFetch performs the actual scrape without retry or circuit breaker.
func (s *HNScraper) doFetch(ctx context.Context, limit int) ([]entity.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/newest", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "feedrelay-bot")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch newest page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Message: "newest page fetch failed"}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse newest page: %w", err)
	}

	items := make([]entity.Item, 0, limit)
	doc.Find("tr.athing").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if len(items) >= limit {
			return false
		}

		id, ok := row.Attr("id")
		if !ok || id == "" {
			return true // malformed row, skip
		}

		titleLink := row.Find("span.titleline a").First()
		if titleLink.Length() == 0 {
			return true
		}
		title := strings.TrimSpace(titleLink.Text())
		href := titleLink.AttrOr("href", "")

		item := entity.Item{
			ID:         id,
			Title:      title,
			URL:        s.resolveURL(href, id),
			Discussion: fmt.Sprintf("%s/item?id=%s", s.baseURL, id),
			CreatedAt:  time.Now(),
		}

		// The age string lives in the sibling subtext row.
		if age := row.Next().Find("td.subtext span.age").First(); age.Length() > 0 {
			item.Age = strings.TrimSpace(age.Text())
		}

		items = append(items, item)
		return true
	})

	return items, nil
}

// resolveURL normalizes a title link href. Feed-internal item?id= links
// yield an empty URL so the discussion link is substituted downstream;
// relative links resolve against the site root.
func (s *HNScraper) resolveURL(href, id string) string {
	if href == "" || strings.HasPrefix(href, "item?id=") {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}

	base, err := url.Parse(s.baseURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
