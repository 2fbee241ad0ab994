package deliver

import (
	"testing"

	"feedrelay/internal/domain/entity"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		url      string
		keywords []string
		want     bool
	}{
		{
			name:     "keyword in title",
			title:    "AI breakthrough",
			keywords: []string{"ai"},
			want:     true,
		},
		{
			name:     "keyword case folded",
			title:    "New LLM Released",
			keywords: []string{"llm"},
			want:     true,
		},
		{
			name:     "keyword in url only",
			title:    "Go concurrency",
			url:      "https://golang.org",
			keywords: []string{"golang"},
			want:     true,
		},
		{
			name:     "no match",
			title:    "Go concurrency",
			url:      "https://golang.org",
			keywords: []string{"rust"},
			want:     false,
		},
		{
			name:     "substring inside word",
			title:    "Brainstorming session",
			keywords: []string{"rain"},
			want:     true,
		},
		{
			name:     "second keyword matches",
			title:    "Weather today",
			keywords: []string{"rust", "weather"},
			want:     true,
		},
		{
			name:     "unnormalized keyword still matches",
			title:    "AI breakthrough",
			keywords: []string{"  AI  "},
			want:     true,
		},
		{
			name:     "blank keyword ignored",
			title:    "anything",
			keywords: []string{"   "},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := entity.Item{Title: tt.title, URL: tt.url}
			if got := Matches(&item, tt.keywords, true); got != tt.want {
				t.Errorf("Matches(%q, %v) = %v, want %v", tt.title, tt.keywords, got, tt.want)
			}
		})
	}
}

func TestMatches_EmptyKeywordPolicy(t *testing.T) {
	item := entity.Item{Title: "anything at all"}

	if !Matches(&item, nil, true) {
		t.Error("empty keywords with match-all policy should match")
	}
	if Matches(&item, nil, false) {
		t.Error("empty keywords with match-none policy should not match")
	}
}
