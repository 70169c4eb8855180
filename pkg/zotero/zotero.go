// Package zotero provides a client for the Zotero Web API v3.
//
// The client covers the slice of the API the enrichment pipelines need:
// listing and searching items, walking collections, reading an item's
// children, and writing items, notes, and linked-URL attachments back with
// optimistic version checking.
//
// All write operations carry the library version the caller last saw in an
// If-Unmodified-Since-Version header. A concurrent edit surfaces as HTTP 412,
// exposed as errors.ErrVersionConflict; ModifyItem re-fetches and replays the
// mutation once before giving up.
//
// Usage:
//
//	client, err := zotero.New(zotero.Config{
//		UserID: os.Getenv("ZOTERO_USER_ID"),
//		APIKey: os.Getenv("ZOTERO_API_KEY"),
//	})
//	if err != nil {
//		return err
//	}
//	books, err := client.Items(ctx, zotero.ItemQuery{ItemType: "book"})
package zotero

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/quartoworks/shelfmark/pkg/constants"
	"github.com/quartoworks/shelfmark/pkg/errors"
)

const (
	// DefaultBaseURL is the public Zotero API endpoint.
	DefaultBaseURL = "https://api.zotero.org"

	// APIVersion is the Zotero API version the client speaks.
	APIVersion = "3"

	// LibraryTypeUser addresses a personal library.
	LibraryTypeUser = "user"

	// LibraryTypeGroup addresses a shared group library.
	LibraryTypeGroup = "group"
)

// Config holds the settings needed to reach a library.
type Config struct {
	// UserID is the numeric library identifier (user or group ID).
	UserID string

	// APIKey authenticates write access to the library.
	APIKey string

	// LibraryType selects between a user and a group library.
	// Defaults to LibraryTypeUser.
	LibraryType string

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string

	// Timeout bounds each HTTP request. Defaults to
	// constants.DefaultHTTPTimeout.
	Timeout time.Duration
}

// Client talks to a single Zotero library.
type Client struct {
	http        *resty.Client
	userID      string
	libraryType string
	prefix      string
}

// New creates a client for the library described by cfg.
func New(cfg Config) (*Client, error) {
	if cfg.UserID == "" {
		return nil, &errors.ValidationError{
			Field:   "UserID",
			Message: "library ID is required (set ZOTERO_USER_ID)",
		}
	}
	if cfg.APIKey == "" {
		return nil, &errors.AuthenticationError{
			Service: "zotero",
			Method:  "api_key",
			Message: "API key is required (set ZOTERO_API_KEY)",
			Err:     errors.ErrAPIKeyRequired,
		}
	}

	libraryType := cfg.LibraryType
	if libraryType == "" {
		libraryType = LibraryTypeUser
	}
	var prefix string
	switch libraryType {
	case LibraryTypeUser:
		prefix = "/users/" + cfg.UserID
	case LibraryTypeGroup:
		prefix = "/groups/" + cfg.UserID
	default:
		return nil, &errors.ValidationError{
			Field:   "LibraryType",
			Value:   libraryType,
			Message: "must be \"user\" or \"group\"",
		}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	http := resty.New()
	http.SetBaseURL(baseURL)
	http.SetTimeout(timeout)
	http.SetHeader("Zotero-API-Version", APIVersion)
	http.SetHeader("Zotero-API-Key", cfg.APIKey)
	http.SetHeader("User-Agent", "shelfmark/1.0")

	return &Client{
		http:        http,
		userID:      cfg.UserID,
		libraryType: libraryType,
		prefix:      prefix,
	}, nil
}

// ItemURI returns the canonical URI for an item in this library, the form
// used as the value of dc:relation links.
func (c *Client) ItemURI(key string) string {
	return "http://zotero.org/" + c.libraryType + "s/" + c.userID + "/items/" + key
}

// Verify probes the library with a minimal read to confirm the credentials
// and library ID are usable.
func (c *Client) Verify(ctx context.Context) error {
	endpoint := c.prefix + "/items"
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", "1").
		SetQueryParam("format", "json").
		Get(endpoint)
	if err != nil {
		return requestError(endpoint, err)
	}
	return c.checkResponse(res, endpoint)
}

// checkResponse maps a non-2xx response to an APIError carrying the status
// code and a trimmed body snippet. Zotero error bodies are short plain-text
// messages.
func (c *Client) checkResponse(res *resty.Response, endpoint string) error {
	if res.IsSuccess() {
		return nil
	}
	msg := strings.TrimSpace(string(res.Body()))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = res.Status()
	}
	return &errors.APIError{
		Service:    "zotero",
		Endpoint:   endpoint,
		StatusCode: res.StatusCode(),
		Message:    msg,
	}
}

// requestError wraps a transport-level failure (DNS, timeout, refused
// connection) that never produced a response.
func requestError(endpoint string, err error) error {
	return &errors.APIError{
		Service:  "zotero",
		Endpoint: endpoint,
		Message:  "request failed",
		Err:      err,
	}
}

// headerVersion parses the Last-Modified-Version response header, returning
// -1 when absent.
func headerVersion(res *resty.Response) int {
	h := res.Header().Get("Last-Modified-Version")
	if h == "" {
		return -1
	}
	n, err := strconv.Atoi(h)
	if err != nil {
		return -1
	}
	return n
}

// headerTotal parses the Total-Results response header, returning -1 when
// absent.
func headerTotal(res *resty.Response) int {
	h := res.Header().Get("Total-Results")
	if h == "" {
		return -1
	}
	n, err := strconv.Atoi(h)
	if err != nil {
		return -1
	}
	return n
}
