// Package websearch finds book context and cover candidates on the open
// web. Text and image search go through DuckDuckGo's non-JS endpoints
// (scraped HTML for text, the token-gated i.js JSON endpoint for images);
// Google Books is the preferred cover source because its image links are
// stable CDN URLs.
package websearch

import (
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/quartoworks/shelfmark/pkg/constants"
)

// browserUA keeps the scraping endpoints from rejecting the client.
const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Result is one text search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// ImageResult is one image search hit.
type ImageResult struct {
	Title     string `json:"title"`
	Image     string `json:"image"`
	Thumbnail string `json:"thumbnail"`
	URL       string `json:"url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Config holds endpoint overrides (for tests) and the request timeout.
type Config struct {
	// HTMLBaseURL overrides the DuckDuckGo HTML endpoint.
	HTMLBaseURL string

	// ImageBaseURL overrides the DuckDuckGo image endpoint (token page
	// and i.js share it).
	ImageBaseURL string

	// BooksBaseURL overrides the Google Books API endpoint.
	BooksBaseURL string

	// Timeout bounds each request. Defaults to
	// constants.ImageHTTPTimeout.
	Timeout time.Duration
}

// Client performs web searches.
type Client struct {
	http      *resty.Client
	htmlBase  string
	imageBase string
	booksBase string
}

// New creates a search client.
func New(cfg Config) *Client {
	htmlBase := cfg.HTMLBaseURL
	if htmlBase == "" {
		htmlBase = "https://html.duckduckgo.com"
	}
	imageBase := cfg.ImageBaseURL
	if imageBase == "" {
		imageBase = "https://duckduckgo.com"
	}
	booksBase := cfg.BooksBaseURL
	if booksBase == "" {
		booksBase = "https://www.googleapis.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.ImageHTTPTimeout
	}

	http := resty.New()
	http.SetTimeout(timeout)
	http.SetHeader("User-Agent", browserUA)

	return &Client{
		http:      http,
		htmlBase:  htmlBase,
		imageBase: imageBase,
		booksBase: booksBase,
	}
}

// FilterSnippets folds search results into context lines for a model
// prompt: title and snippet joined, whitespace collapsed, entries shorter
// than minLen dropped, and at most max entries returned.
func FilterSnippets(results []Result, minLen, max int) []string {
	snippets := make([]string, 0, len(results))
	for _, r := range results {
		parts := make([]string, 0, 2)
		if cleaned := collapseSpace(r.Title); cleaned != "" {
			parts = append(parts, cleaned)
		}
		if cleaned := collapseSpace(r.Snippet); cleaned != "" {
			parts = append(parts, cleaned)
		}
		snippet := strings.Join(parts, ". ")
		if len(snippet) < minLen {
			continue
		}
		snippets = append(snippets, snippet)
		if max > 0 && len(snippets) >= max {
			break
		}
	}
	return snippets
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
