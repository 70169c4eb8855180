package websearch

import (
	"reflect"
	"testing"
)

func TestFilterSnippets(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		minLen  int
		max     int
		want    []string
	}{
		{
			name: "joins title and snippet",
			results: []Result{
				{Title: "The Road review", Snippet: "A father and son walk through the ash of a burned America toward the coast."},
			},
			minLen: 60,
			max:    5,
			want:   []string{"The Road review. A father and son walk through the ash of a burned America toward the coast."},
		},
		{
			name: "drops entries under the minimum length",
			results: []Result{
				{Title: "Short", Snippet: "Too brief."},
				{Title: "Long enough", Snippet: "This snippet carries enough context to be worth handing to a language model."},
			},
			minLen: 60,
			max:    5,
			want:   []string{"Long enough. This snippet carries enough context to be worth handing to a language model."},
		},
		{
			name: "collapses internal whitespace",
			results: []Result{
				{Title: "Bless Me,\n\tUltima", Snippet: "Antonio  comes   of age under the guidance\nof a curandera in New Mexico."},
			},
			minLen: 20,
			max:    5,
			want:   []string{"Bless Me, Ultima. Antonio comes of age under the guidance of a curandera in New Mexico."},
		},
		{
			name: "caps the number of snippets",
			results: []Result{
				{Title: "One", Snippet: "A long enough snippet for the first result in the capped list."},
				{Title: "Two", Snippet: "A long enough snippet for the second result in the capped list."},
				{Title: "Three", Snippet: "A long enough snippet for the third result in the capped list."},
			},
			minLen: 20,
			max:    2,
			want: []string{
				"One. A long enough snippet for the first result in the capped list.",
				"Two. A long enough snippet for the second result in the capped list.",
			},
		},
		{
			name: "keeps title-only results",
			results: []Result{
				{Title: "A very descriptive page title that stands on its own without a snippet"},
			},
			minLen: 60,
			max:    5,
			want:   []string{"A very descriptive page title that stands on its own without a snippet"},
		},
		{
			name:    "empty input",
			results: nil,
			minLen:  60,
			max:     5,
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterSnippets(tt.results, tt.minLen, tt.max)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FilterSnippets() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	client := New(Config{})
	if client.htmlBase != "https://html.duckduckgo.com" {
		t.Errorf("htmlBase = %q, want DuckDuckGo HTML endpoint", client.htmlBase)
	}
	if client.imageBase != "https://duckduckgo.com" {
		t.Errorf("imageBase = %q, want DuckDuckGo endpoint", client.imageBase)
	}
	if client.booksBase != "https://www.googleapis.com" {
		t.Errorf("booksBase = %q, want Google APIs endpoint", client.booksBase)
	}
}
