package zotero

import (
	"context"
	"strings"
	"time"
)

// CreateNote attaches a new child note with the given HTML body to an item
// and returns the created note.
func (c *Client) CreateNote(ctx context.Context, parentKey, html string, tags ...string) (*Item, error) {
	data := ItemData{
		ItemType:   "note",
		ParentItem: parentKey,
		Note:       html,
	}
	for _, tag := range tags {
		data.Tags = append(data.Tags, Tag{Tag: tag})
	}

	result, err := c.CreateItems(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return result.First(), nil
}

// UpdateNote replaces a note's HTML body. The write inherits UpdateItem's
// version guard.
func (c *Client) UpdateNote(ctx context.Context, note *Item, html string) error {
	note.Data.Note = html
	return c.UpdateItem(ctx, note)
}

// FindChildNote returns the first child note whose content contains marker,
// or nil when the item has none. The pipelines stamp a fixed heading into
// every note they create and use it as the marker.
func (c *Client) FindChildNote(ctx context.Context, parentKey, marker string) (*Item, error) {
	notes, err := c.Children(ctx, parentKey, "note")
	if err != nil {
		return nil, err
	}
	for _, note := range notes {
		if strings.Contains(note.Data.Note, marker) {
			found := note
			return &found, nil
		}
	}
	return nil, nil
}

// CreateLinkedURLAttachment attaches a linked-URL child attachment to an
// item, pointing at url without downloading it.
func (c *Client) CreateLinkedURLAttachment(ctx context.Context, parentKey, title, url string) (*Item, error) {
	data := ItemData{
		ItemType:   "attachment",
		LinkMode:   "linked_url",
		ParentItem: parentKey,
		Title:      title,
		Url:        url,
		AccessDate: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
	}

	result, err := c.CreateItems(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return result.First(), nil
}

// FindChildAttachment returns the first child attachment with the exact
// title, or nil when the item has none.
func (c *Client) FindChildAttachment(ctx context.Context, parentKey, title string) (*Item, error) {
	attachments, err := c.Children(ctx, parentKey, "attachment")
	if err != nil {
		return nil, err
	}
	for _, attachment := range attachments {
		if attachment.Data.Title == title {
			found := attachment
			return &found, nil
		}
	}
	return nil, nil
}
