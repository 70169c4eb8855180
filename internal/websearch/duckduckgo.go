package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/quartoworks/shelfmark/pkg/errors"
)

// Search runs a text search and returns at most max results. Results whose
// link cannot be resolved are skipped.
func (c *Client) Search(ctx context.Context, query string, max int) ([]Result, error) {
	endpoint := c.htmlBase + "/html/"
	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"q":  query,
			"b":  "",
			"kl": "us-en",
		}).
		Post(endpoint)
	if err != nil {
		return nil, &errors.APIError{Service: "duckduckgo", Endpoint: endpoint, Message: "search request failed", Err: err}
	}
	if res.IsError() {
		return nil, &errors.APIError{Service: "duckduckgo", Endpoint: endpoint, StatusCode: res.StatusCode(), Message: res.Status()}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, errors.WrapParse("html", "search results", err)
	}

	var results []Result
	doc.Find("div.result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a").First()
		href := link.AttrOr("href", "")
		target := resolveRedirect(href)
		if target == "" {
			return true
		}

		results = append(results, Result{
			Title:   strings.TrimSpace(link.Text()),
			URL:     target,
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").First().Text()),
		})
		return max <= 0 || len(results) < max
	})
	return results, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links to the real
// target. Ad links (y.js) resolve to empty and are dropped.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.Contains(parsed.Path, "y.js") {
		return ""
	}
	if strings.HasSuffix(parsed.Path, "/l/") || parsed.Path == "/l/" {
		target := parsed.Query().Get("uddg")
		if target == "" {
			return ""
		}
		return target
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return href
}

// vqdPattern pulls the per-query token out of the search page; the image
// endpoint rejects requests without it.
var vqdPattern = regexp.MustCompile(`vqd=["']?([0-9-]+)`)

// SearchImages runs an image search and returns at most max results.
func (c *Client) SearchImages(ctx context.Context, query string, max int) ([]ImageResult, error) {
	token, err := c.imageToken(ctx, query)
	if err != nil {
		return nil, err
	}

	endpoint := c.imageBase + "/i.js"
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Referer", c.imageBase+"/").
		SetQueryParams(map[string]string{
			"l":   "us-en",
			"o":   "json",
			"q":   query,
			"vqd": token,
			"f":   ",,,",
			"p":   "1",
		}).
		Get(endpoint)
	if err != nil {
		return nil, &errors.APIError{Service: "duckduckgo", Endpoint: endpoint, Message: "image search failed", Err: err}
	}
	if res.IsError() {
		return nil, &errors.APIError{Service: "duckduckgo", Endpoint: endpoint, StatusCode: res.StatusCode(), Message: res.Status()}
	}

	var payload struct {
		Results []ImageResult `json:"results"`
	}
	if err := json.Unmarshal(res.Body(), &payload); err != nil {
		return nil, errors.WrapParse("json", "image results", err)
	}

	results := payload.Results
	if max > 0 && len(results) > max {
		results = results[:max]
	}
	return results, nil
}

// imageToken fetches the image search page and scrapes the vqd token.
func (c *Client) imageToken(ctx context.Context, query string) (string, error) {
	endpoint := c.imageBase + "/"
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":   query,
			"iax": "images",
			"ia":  "images",
		}).
		Get(endpoint)
	if err != nil {
		return "", &errors.APIError{Service: "duckduckgo", Endpoint: endpoint, Message: "token request failed", Err: err}
	}
	if res.IsError() {
		return "", &errors.APIError{Service: "duckduckgo", Endpoint: endpoint, StatusCode: res.StatusCode(), Message: res.Status()}
	}

	match := vqdPattern.FindSubmatch(res.Body())
	if match == nil {
		return "", &errors.ParseError{
			Format:  "html",
			Message: "no vqd token in image search page",
		}
	}
	return string(match[1]), nil
}
