package entity

import (
	"sort"
	"strings"
)

// Subscriber represents one recipient's delivery configuration.
// Subscribers are created on first subscribe, mutated by keyword and
// subscription commands, and never hard-deleted: unsubscribing only
// clears the flag so keyword history is preserved.
type Subscriber struct {
	// RecipientID is the opaque identifier the delivery channel resolves
	// to a destination (for Discord, the user snowflake).
	RecipientID string

	// Subscribed gates delivery entirely when false.
	Subscribed bool

	// Keywords holds the normalized, case-folded match terms.
	// Invariant: no empty or whitespace-only entries, no duplicates.
	Keywords []string
}

// NormalizeKeywords case-folds and trims the given terms, dropping empty
// entries and suppressing duplicates while preserving first-seen order.
func NormalizeKeywords(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		k := strings.ToLower(strings.TrimSpace(t))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// FilterKey returns a canonical representation of the subscriber's keyword
// set, identical for subscribers with the same set regardless of order.
// The scheduler groups subscribers by this key to share fetch work.
func (s *Subscriber) FilterKey() string {
	if len(s.Keywords) == 0 {
		return ""
	}
	sorted := make([]string, len(s.Keywords))
	copy(sorted, s.Keywords)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}
