package zotero

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/quartoworks/shelfmark/pkg/constants"
	"github.com/quartoworks/shelfmark/pkg/errors"
)

// ItemQuery narrows an item listing.
type ItemQuery struct {
	// Collection restricts the listing to one collection (by key).
	Collection string

	// ItemType filters by item type, e.g. "book" or "note". Child
	// objects never match a non-child type, so a "book" filter excludes
	// notes and attachments.
	ItemType string

	// Q runs a title/creator/year search on the server.
	Q string

	// Tag filters to items carrying the tag.
	Tag string

	// Top restricts the listing to top-level items.
	Top bool

	// Limit caps the number of items returned; zero means all.
	Limit int
}

func (q ItemQuery) path(prefix string) string {
	path := prefix + "/items"
	if q.Collection != "" {
		path = prefix + "/collections/" + q.Collection + "/items"
	}
	if q.Top {
		path += "/top"
	}
	return path
}

func (q ItemQuery) params() map[string]string {
	params := map[string]string{"format": "json"}
	if q.ItemType != "" {
		params["itemType"] = q.ItemType
	}
	if q.Q != "" {
		params["q"] = q.Q
		params["qmode"] = "titleCreatorYear"
	}
	if q.Tag != "" {
		params["tag"] = q.Tag
	}
	return params
}

// Items lists items matching the query, following pagination until the
// server runs out of results.
func (c *Client) Items(ctx context.Context, q ItemQuery) ([]Item, error) {
	path := q.path(c.prefix)
	params := q.params()

	pageSize := constants.DefaultPageSize
	if q.Limit > 0 && q.Limit < pageSize {
		pageSize = q.Limit
	}

	var all []Item
	start := 0
	for {
		page, total, err := c.itemsPage(ctx, path, params, start, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if q.Limit > 0 && len(all) >= q.Limit {
			return all[:q.Limit], nil
		}
		if len(page) < pageSize {
			return all, nil
		}
		start += len(page)
		if total >= 0 && start >= total {
			return all, nil
		}
	}
}

// itemsPage fetches one page of an item listing.
func (c *Client) itemsPage(ctx context.Context, path string, params map[string]string, start, limit int) ([]Item, int, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("start", strconv.Itoa(start)).
		SetQueryParam("limit", strconv.Itoa(limit)).
		Get(path)
	if err != nil {
		return nil, 0, requestError(path, err)
	}
	if err := c.checkResponse(res, path); err != nil {
		return nil, 0, err
	}

	var page []Item
	if err := json.Unmarshal(res.Body(), &page); err != nil {
		return nil, 0, errors.WrapParse("json", "item listing", err)
	}
	return page, headerTotal(res), nil
}

// Item fetches a single item by key.
func (c *Client) Item(ctx context.Context, key string) (*Item, error) {
	endpoint := c.prefix + "/items/" + key
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("format", "json").
		Get(endpoint)
	if err != nil {
		return nil, requestError(endpoint, err)
	}
	if err := c.checkResponse(res, endpoint); err != nil {
		return nil, err
	}

	var item Item
	if err := json.Unmarshal(res.Body(), &item); err != nil {
		return nil, errors.WrapParse("json", "item "+key, err)
	}
	return &item, nil
}

// Children lists the notes and attachments attached to an item, optionally
// filtered by item type ("note", "attachment").
func (c *Client) Children(ctx context.Context, key, itemType string) ([]Item, error) {
	path := c.prefix + "/items/" + key + "/children"
	params := map[string]string{"format": "json"}
	if itemType != "" {
		params["itemType"] = itemType
	}

	var all []Item
	start := 0
	for {
		page, total, err := c.itemsPage(ctx, path, params, start, constants.DefaultPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < constants.DefaultPageSize {
			return all, nil
		}
		start += len(page)
		if total >= 0 && start >= total {
			return all, nil
		}
	}
}

// Books lists the book items of the library, or of a single collection when
// collectionKey is non-empty. This is the selection every enrichment
// pipeline starts from.
func (c *Client) Books(ctx context.Context, collectionKey string) ([]Item, error) {
	q := ItemQuery{ItemType: "book"}
	if collectionKey == "" {
		return c.Items(ctx, q)
	}
	return c.CollectionItems(ctx, collectionKey, q, false)
}

// WriteResult is the response to a batch write: per-index maps of what was
// created, what the server already had, and what it rejected.
type WriteResult struct {
	Successful map[string]Item       `json:"successful"`
	Success    map[string]string     `json:"success"`
	Unchanged  map[string]string     `json:"unchanged"`
	Failed     map[string]WriteError `json:"failed"`
}

// WriteError is one rejected entry of a batch write.
type WriteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CreatedKeys returns the keys of the created items in submission order.
func (r *WriteResult) CreatedKeys() []string {
	indexes := make([]string, 0, len(r.Success))
	for idx := range r.Success {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool {
		a, _ := strconv.Atoi(indexes[i])
		b, _ := strconv.Atoi(indexes[j])
		return a < b
	})
	keys := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		keys = append(keys, r.Success[idx])
	}
	return keys
}

// First returns the created item at index 0, or nil when it was not created.
func (r *WriteResult) First() *Item {
	if item, ok := r.Successful["0"]; ok {
		return &item
	}
	return nil
}

// Err folds any per-index failures into a single error, nil when every entry
// was accepted.
func (r *WriteResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(r.Failed))
	for idx, f := range r.Failed {
		parts = append(parts, "#"+idx+": "+f.Message)
	}
	sort.Strings(parts)
	return &errors.APIError{
		Service: "zotero",
		Message: "write rejected " + strconv.Itoa(len(r.Failed)) + " of batch: " + strings.Join(parts, "; "),
	}
}

// CreateItems submits new items in one batch. Failures of individual entries
// do not fail the call; inspect the result (or its Err method).
func (c *Client) CreateItems(ctx context.Context, items ...ItemData) (*WriteResult, error) {
	endpoint := c.prefix + "/items"
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(items).
		Post(endpoint)
	if err != nil {
		return nil, requestError(endpoint, err)
	}
	if err := c.checkResponse(res, endpoint); err != nil {
		return nil, err
	}

	var result WriteResult
	if err := json.Unmarshal(res.Body(), &result); err != nil {
		return nil, errors.WrapParse("json", "write response", err)
	}
	return &result, nil
}

// UpdateItem writes an item's data back, guarded by the version the caller
// last saw. A concurrent edit returns an error matching
// errors.ErrVersionConflict; see ModifyItem for the retrying form. On
// success the item's version fields are advanced to the server's.
func (c *Client) UpdateItem(ctx context.Context, item *Item) error {
	if item == nil || item.Key == "" {
		return &errors.ValidationError{Field: "item", Message: "item with key required"}
	}
	version := item.Version
	if item.Data.Version > version {
		version = item.Data.Version
	}

	endpoint := c.prefix + "/items/" + item.Key
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("If-Unmodified-Since-Version", strconv.Itoa(version)).
		SetBody(item.Data).
		Put(endpoint)
	if err != nil {
		return requestError(endpoint, err)
	}
	if err := c.checkResponse(res, endpoint); err != nil {
		return err
	}

	if v := headerVersion(res); v >= 0 {
		item.Version = v
		item.Data.Version = v
	}
	return nil
}

// ModifyItem fetches an item, applies mutate to its data, and writes it
// back. When the write loses a version race it re-fetches and replays the
// mutation once, so the change lands on top of the concurrent edit instead
// of clobbering it. Returns the item as written.
func (c *Client) ModifyItem(ctx context.Context, key string, mutate func(*ItemData) error) (*Item, error) {
	item, err := c.Item(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := mutate(&item.Data); err != nil {
		return nil, err
	}

	err = c.UpdateItem(ctx, item)
	if err == nil {
		return item, nil
	}
	if !errors.IsVersionConflict(err) {
		return nil, err
	}

	item, err = c.Item(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := mutate(&item.Data); err != nil {
		return nil, err
	}
	if err := c.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteItem removes an item (or note, or attachment), guarded by its
// version.
func (c *Client) DeleteItem(ctx context.Context, item *Item) error {
	if item == nil || item.Key == "" {
		return &errors.ValidationError{Field: "item", Message: "item with key required"}
	}
	version := item.Version
	if item.Data.Version > version {
		version = item.Data.Version
	}

	endpoint := c.prefix + "/items/" + item.Key
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("If-Unmodified-Since-Version", strconv.Itoa(version)).
		Delete(endpoint)
	if err != nil {
		return requestError(endpoint, err)
	}
	return c.checkResponse(res, endpoint)
}

// ItemTemplate fetches a fresh data skeleton for the item type, with every
// valid field present and empty. Templates live outside the library prefix.
func (c *Client) ItemTemplate(ctx context.Context, itemType string) (ItemData, error) {
	const endpoint = "/items/new"
	var data ItemData

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("itemType", itemType).
		Get(endpoint)
	if err != nil {
		return data, requestError(endpoint, err)
	}
	if err := c.checkResponse(res, endpoint); err != nil {
		return data, err
	}
	if err := json.Unmarshal(res.Body(), &data); err != nil {
		return data, errors.WrapParse("json", "item template", err)
	}
	return data, nil
}

// MatchItem resolves a title (optionally narrowed by author) to exactly one
// item. An exact title match wins over substring matches. Zero candidates
// return an error matching errors.ErrNotFound; two or more return an
// AmbiguousMatchError listing the candidate keys, never an arbitrary pick.
func (c *Client) MatchItem(ctx context.Context, title, author, itemType string) (*Item, error) {
	items, err := c.Items(ctx, ItemQuery{Q: title, ItemType: itemType})
	if err != nil {
		return nil, err
	}

	wantTitle := normalizeMatch(title)
	wantAuthor := normalizeMatch(author)

	var exact, fuzzy []Item
	for _, item := range items {
		gotTitle := normalizeMatch(item.Data.Title)
		if gotTitle == "" {
			continue
		}
		if wantAuthor != "" && !matchesAuthor(&item, wantAuthor) {
			continue
		}
		switch {
		case gotTitle == wantTitle:
			exact = append(exact, item)
		case strings.Contains(gotTitle, wantTitle):
			fuzzy = append(fuzzy, item)
		}
	}

	candidates := exact
	if len(candidates) == 0 {
		candidates = fuzzy
	}

	switch len(candidates) {
	case 0:
		return nil, &errors.NotFoundError{Resource: "item", ID: title}
	case 1:
		match := candidates[0]
		return &match, nil
	default:
		keys := make([]string, 0, len(candidates))
		for _, item := range candidates {
			keys = append(keys, item.Key)
		}
		return nil, &errors.AmbiguousMatchError{Title: title, Author: author, Keys: keys}
	}
}

func matchesAuthor(item *Item, wantAuthor string) bool {
	if summary := normalizeMatch(item.Meta.CreatorSummary); summary != "" {
		if strings.Contains(summary, wantAuthor) || strings.Contains(wantAuthor, summary) {
			return true
		}
	}
	for _, creator := range item.Data.Creators {
		name := creator.Name
		if name == "" {
			name = strings.TrimSpace(creator.FirstName + " " + creator.LastName)
		}
		got := normalizeMatch(name)
		if got == "" {
			continue
		}
		if strings.Contains(got, wantAuthor) || strings.Contains(wantAuthor, got) {
			return true
		}
		if last := normalizeMatch(creator.LastName); last != "" && strings.Contains(wantAuthor, last) {
			return true
		}
	}
	return false
}

func normalizeMatch(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
