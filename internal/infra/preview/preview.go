// Package preview extracts link preview metadata (description and image)
// from an item's external page. Results are consulted through the response
// cache so a URL is scraped at most once per TTL across all subscribers.
package preview

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Preview holds the extracted page metadata. Both fields may be empty.
type Preview struct {
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Fetcher scrapes preview metadata from external pages.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with the given HTTP client.
func NewFetcher(client *http.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch loads the page and extracts the meta description (falling back to
// og:description) and the og:image URL. Relative image URLs are resolved
// against the page. Any failure is the caller's cue to deliver without a
// preview, never to abort the delivery.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (Preview, error) {
	if pageURL == "" {
		return Preview{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Preview{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; feedrelay-bot)")

	resp, err := f.client.Do(req)
	if err != nil {
		return Preview{}, fmt.Errorf("fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Preview{}, fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Preview{}, fmt.Errorf("parse page: %w", err)
	}

	p := Preview{
		Description: metaContent(doc, `meta[name="description"]`),
	}
	if p.Description == "" {
		p.Description = metaContent(doc, `meta[property="og:description"]`)
	}

	if image := metaContent(doc, `meta[property="og:image"]`); image != "" {
		p.ImageURL = resolveImageURL(image, pageURL)
	}

	return p, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

// resolveImageURL turns protocol-relative and page-relative image URLs
// into absolute ones.
func resolveImageURL(image, pageURL string) string {
	if strings.HasPrefix(image, "//") {
		return "https:" + image
	}
	if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		return image
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(image)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
