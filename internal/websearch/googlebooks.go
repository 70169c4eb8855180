package websearch

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/quartoworks/shelfmark/pkg/errors"
)

// coverSizes is the quality ladder for Google Books image links, best
// first.
var coverSizes = []string{"extraLarge", "large", "medium", "small", "thumbnail", "smallThumbnail"}

// GoogleBooksCover looks a title (and optional author) up in the Google
// Books volumes API and returns the best cover image URL it offers, or an
// empty string when no volume carries one.
func (c *Client) GoogleBooksCover(ctx context.Context, title, author string) (string, error) {
	query := title
	if author != "" {
		query += " " + author
	}

	endpoint := c.booksBase + "/books/v1/volumes"
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":          query,
			"maxResults": "5",
			"printType":  "books",
		}).
		Get(endpoint)
	if err != nil {
		return "", &errors.APIError{Service: "googlebooks", Endpoint: endpoint, Message: "volume lookup failed", Err: err}
	}
	if res.IsError() {
		return "", &errors.APIError{Service: "googlebooks", Endpoint: endpoint, StatusCode: res.StatusCode(), Message: res.Status()}
	}

	var payload struct {
		Items []struct {
			VolumeInfo struct {
				ImageLinks map[string]string `json:"imageLinks"`
			} `json:"volumeInfo"`
		} `json:"items"`
	}
	if err := json.Unmarshal(res.Body(), &payload); err != nil {
		return "", errors.WrapParse("json", "volume listing", err)
	}

	for _, item := range payload.Items {
		links := item.VolumeInfo.ImageLinks
		if len(links) == 0 {
			continue
		}
		for _, size := range coverSizes {
			link, ok := links[size]
			if !ok || link == "" {
				continue
			}
			return normalizeCoverURL(link), nil
		}
	}
	return "", nil
}

// normalizeCoverURL forces https and strips the zoom parameter, which caps
// the image at a thumbnail when present.
func normalizeCoverURL(link string) string {
	link = strings.ReplaceAll(link, "http://", "https://")
	link = strings.ReplaceAll(link, "&zoom=1", "")
	link = strings.ReplaceAll(link, "zoom=1&", "")
	return link
}
