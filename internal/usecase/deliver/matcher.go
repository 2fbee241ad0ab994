package deliver

import (
	"strings"

	"feedrelay/internal/domain/entity"
)

// Matches decides whether an item is interesting to a subscriber with the
// given normalized keyword list.
//
// An empty keyword list follows emptyMatchesAll ("no filter means receive
// everything" when true). Otherwise the item matches iff any keyword is a
// substring of the case-folded title or URL. Pure containment: no
// tokenization, no stemming, first match short-circuits.
func Matches(item *entity.Item, keywords []string, emptyMatchesAll bool) bool {
	if len(keywords) == 0 {
		return emptyMatchesAll
	}

	title := strings.ToLower(item.Title)
	url := strings.ToLower(item.URL)

	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(title, kw) || strings.Contains(url, kw) {
			return true
		}
	}
	return false
}
