package zotero

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/quartoworks/shelfmark/pkg/constants"
	"github.com/quartoworks/shelfmark/pkg/errors"
)

// Collection is the API envelope around one collection.
type Collection struct {
	Key     string         `json:"key"`
	Version int            `json:"version"`
	Meta    CollectionMeta `json:"meta,omitempty"`
	Data    CollectionData `json:"data"`
}

// CollectionMeta carries server-computed collection counters.
type CollectionMeta struct {
	NumCollections int `json:"numCollections,omitempty"`
	NumItems       int `json:"numItems,omitempty"`
}

// CollectionData is the writable portion of a collection.
type CollectionData struct {
	Key              string           `json:"key,omitempty"`
	Version          int              `json:"version,omitempty"`
	Name             string           `json:"name"`
	ParentCollection ParentCollection `json:"parentCollection,omitempty"`
	Relations        Relations        `json:"relations,omitempty"`
}

// ParentCollection is the parent key of a collection. The API encodes "no
// parent" as the JSON literal false rather than null or an empty string;
// the empty ParentCollection maps to that literal.
type ParentCollection string

// UnmarshalJSON accepts either false or a key string.
func (p *ParentCollection) UnmarshalJSON(b []byte) error {
	if string(b) == "false" {
		*p = ""
		return nil
	}
	var key string
	if err := json.Unmarshal(b, &key); err != nil {
		return err
	}
	*p = ParentCollection(key)
	return nil
}

// MarshalJSON emits false for the empty value.
func (p ParentCollection) MarshalJSON() ([]byte, error) {
	if p == "" {
		return []byte("false"), nil
	}
	return json.Marshal(string(p))
}

// Collections lists every collection in the library.
func (c *Client) Collections(ctx context.Context) ([]Collection, error) {
	path := c.prefix + "/collections"

	var all []Collection
	start := 0
	for {
		page, total, err := c.collectionsPage(ctx, path, start)
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

// SubCollections lists the direct child collections of one collection.
func (c *Client) SubCollections(ctx context.Context, key string) ([]Collection, error) {
	path := c.prefix + "/collections/" + key + "/collections"

	var all []Collection
	start := 0
	for {
		page, total, err := c.collectionsPage(ctx, path, start)
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

func (c *Client) collectionsPage(ctx context.Context, path string, start int) ([]Collection, int, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("format", "json").
		SetQueryParam("start", strconv.Itoa(start)).
		SetQueryParam("limit", strconv.Itoa(constants.DefaultPageSize)).
		Get(path)
	if err != nil {
		return nil, 0, requestError(path, err)
	}
	if err := c.checkResponse(res, path); err != nil {
		return nil, 0, err
	}

	var page []Collection
	if err := json.Unmarshal(res.Body(), &page); err != nil {
		return nil, 0, errors.WrapParse("json", "collection listing", err)
	}
	return page, headerTotal(res), nil
}

// FindCollection resolves a collection by name, compared case-insensitively.
// Returns an error matching errors.ErrNotFound when no collection has the
// name.
func (c *Client) FindCollection(ctx context.Context, name string) (*Collection, error) {
	collections, err := c.Collections(ctx)
	if err != nil {
		return nil, err
	}
	for _, collection := range collections {
		if strings.EqualFold(collection.Data.Name, name) {
			found := collection
			return &found, nil
		}
	}
	return nil, &errors.NotFoundError{Resource: "collection", ID: name}
}

// CreateCollection creates a collection, optionally under a parent, and
// returns it.
func (c *Client) CreateCollection(ctx context.Context, name, parentKey string) (*Collection, error) {
	endpoint := c.prefix + "/collections"
	body := []CollectionData{{
		Name:             name,
		ParentCollection: ParentCollection(parentKey),
	}}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(endpoint)
	if err != nil {
		return nil, requestError(endpoint, err)
	}
	if err := c.checkResponse(res, endpoint); err != nil {
		return nil, err
	}

	var result struct {
		Successful map[string]Collection `json:"successful"`
		Failed     map[string]WriteError `json:"failed"`
	}
	if err := json.Unmarshal(res.Body(), &result); err != nil {
		return nil, errors.WrapParse("json", "collection write response", err)
	}
	if created, ok := result.Successful["0"]; ok {
		return &created, nil
	}
	message := "collection not created"
	if failure, ok := result.Failed["0"]; ok {
		message = failure.Message
	}
	return nil, &errors.ResourceError{
		Operation: "create",
		Resource:  "collection",
		ID:        name,
		Message:   message,
	}
}

// EnsureCollection finds a collection by name, creating it when missing.
func (c *Client) EnsureCollection(ctx context.Context, name string) (*Collection, error) {
	collection, err := c.FindCollection(ctx, name)
	if err == nil {
		return collection, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}
	return c.CreateCollection(ctx, name, "")
}

// CollectionItems lists the items of a collection. With recursive set it
// also walks every nested subcollection, deduplicating items that appear
// more than once.
func (c *Client) CollectionItems(ctx context.Context, key string, q ItemQuery, recursive bool) ([]Item, error) {
	q.Collection = key
	items, err := c.Items(ctx, q)
	if err != nil {
		return nil, err
	}
	if !recursive {
		return items, nil
	}

	subs, err := c.SubCollections(ctx, key)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		nested, err := c.CollectionItems(ctx, sub.Key, q, true)
		if err != nil {
			return nil, err
		}
		items = append(items, nested...)
	}

	seen := make(map[string]struct{}, len(items))
	deduped := items[:0]
	for _, item := range items {
		if _, dup := seen[item.Key]; dup {
			continue
		}
		seen[item.Key] = struct{}{}
		deduped = append(deduped, item)
	}
	return deduped, nil
}
