package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const newestPageFixture = `<html><body><table>
<tr class="athing" id="1001">
  <td class="title"><span class="titleline">
    <a href="https://example.com/llm-post">New LLM released</a>
  </span></td>
</tr>
<tr>
  <td class="subtext"><span class="age"><a href="item?id=1001">2 hours ago</a></span></td>
</tr>
<tr class="athing" id="1002">
  <td class="title"><span class="titleline">
    <a href="item?id=1002">Ask HN: How do you test scrapers?</a>
  </span></td>
</tr>
<tr>
  <td class="subtext"><span class="age"><a href="item?id=1002">3 hours ago</a></span></td>
</tr>
<tr class="athing">
  <td class="title"><span class="titleline">
    <a href="https://example.com/no-id">Row without an id</a>
  </span></td>
</tr>
<tr class="athing" id="1003">
  <td class="title"><span class="titleline">
    <a href="/launches/42">Relative launch link</a>
  </span></td>
</tr>
</table></body></html>`

func newTestScraper(t *testing.T, handler http.HandlerFunc) *HNScraper {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHNScraper(server.Client(), server.URL)
}

func TestHNScraper_Fetch(t *testing.T) {
	var gotPath string
	scraper := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(newestPageFixture))
	})

	items, err := scraper.Fetch(context.Background(), 10, nil)
	require.NoError(t, err)
	assert.Equal(t, "/newest", gotPath)

	// The row without an id is skipped, not fatal.
	require.Len(t, items, 3)

	first := items[0]
	assert.Equal(t, "1001", first.ID)
	assert.Equal(t, "New LLM released", first.Title)
	assert.Equal(t, "https://example.com/llm-post", first.URL)
	assert.Contains(t, first.Discussion, "/item?id=1001")
	assert.Equal(t, "2 hours ago", first.Age)
	assert.False(t, first.CreatedAt.IsZero())

	// Feed-internal links yield an empty URL so Link() falls back to the
	// discussion page.
	second := items[1]
	assert.Equal(t, "1002", second.ID)
	assert.Empty(t, second.URL)
	assert.Contains(t, second.Link(), "/item?id=1002")

	// Relative links resolve against the site root.
	third := items[2]
	assert.Equal(t, "1003", third.ID)
	assert.Contains(t, third.URL, "/launches/42")
	assert.NotEqual(t, "/launches/42", third.URL)
}

func TestHNScraper_FetchHonorsLimit(t *testing.T) {
	scraper := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(newestPageFixture))
	})

	items, err := scraper.Fetch(context.Background(), 2, nil)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestHNScraper_FetchRetriesServerErrors(t *testing.T) {
	attempts := 0
	scraper := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(newestPageFixture))
	})
	scraper.retryConfig.BaseDelay = 1
	scraper.retryConfig.MaxDelay = 1

	items, err := scraper.Fetch(context.Background(), 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.NotEmpty(t, items)
}

func TestHNScraper_FiltersServerSide(t *testing.T) {
	assert.False(t, NewHNScraper(http.DefaultClient, "").FiltersServerSide())
}

func TestResolveURL(t *testing.T) {
	scraper := NewHNScraper(http.DefaultClient, "https://news.ycombinator.com")

	tests := []struct {
		name string
		href string
		want string
	}{
		{"absolute https", "https://example.com/a", "https://example.com/a"},
		{"absolute http", "http://example.com/a", "http://example.com/a"},
		{"feed internal", "item?id=99", ""},
		{"empty", "", ""},
		{"relative", "/launches/7", "https://news.ycombinator.com/launches/7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scraper.resolveURL(tt.href, "99"))
		})
	}
}
