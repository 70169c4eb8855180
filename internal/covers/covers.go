// Package covers finds, validates, and embeds book cover images. The fetch
// pipeline attaches a linked-URL cover to each book, the embed pipeline
// stores the image itself as a base64 data URI in a child note so it
// survives link rot, and the purge pipeline removes both kinds of artifact.
package covers

import (
	"context"
	"strings"
	"time"

	"github.com/quartoworks/shelfmark/internal/websearch"
	"github.com/quartoworks/shelfmark/pkg/constants"
	"github.com/quartoworks/shelfmark/pkg/logging"
	"github.com/quartoworks/shelfmark/pkg/zotero"
)

// Service wires the library client, the search client, and the image
// fetcher into the cover pipelines.
type Service struct {
	zot    *zotero.Client
	search *websearch.Client
	fetch  *Fetcher
}

// NewService creates a cover service. A nil fetcher gets the default one.
func NewService(zot *zotero.Client, search *websearch.Client, fetch *Fetcher) *Service {
	if fetch == nil {
		fetch = NewFetcher(0)
	}
	return &Service{zot: zot, search: search, fetch: fetch}
}

// Options select which items a pipeline touches and how fast it runs.
type Options struct {
	// Collection restricts the run to one collection key; empty means
	// the whole library.
	Collection string

	// Delay is the pause between items, keeping the search engines and
	// image hosts happy.
	Delay time.Duration
}

// Stats counts what a pipeline run did.
type Stats struct {
	Processed int
	Skipped   int
	Created   int
	Updated   int
	Removed   int
	Missing   int
	Errors    int
}

// Fetch attaches a linked-URL cover to every book that does not already
// carry a working one. Cover attachments already on an item are
// re-validated first, and the ones whose URL no longer serves an image are
// deleted.
func (s *Service) Fetch(ctx context.Context, opts Options) (*Stats, error) {
	books, err := s.zot.Books(ctx, opts.Collection)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	for _, book := range books {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++
		logger := logging.WithItem(ctx, book.Key)
		title := book.Data.Title

		hasCover, err := s.ensureValidCover(logger, book.Key, stats)
		if err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Checking existing covers failed")
			stats.Errors++
			continue
		}
		if hasCover {
			stats.Skipped++
			continue
		}

		coverURL := s.FindCoverURL(logger, title, book.Data.FirstAuthor())
		if coverURL == "" {
			logging.Ctx(logger).Warn().Str("title", title).Msg("No cover found")
			stats.Missing++
			continue
		}

		if _, err := s.zot.CreateLinkedURLAttachment(logger, book.Key, constants.CoverAttachmentTitle, coverURL); err != nil {
			logging.Ctx(logger).Error().Err(err).Str("title", title).Msg("Attaching cover failed")
			stats.Errors++
			continue
		}
		logging.Ctx(logger).Info().Str("title", title).Str("url", coverURL).Msg("Cover attached")
		stats.Created++

		if err := pause(ctx, opts.Delay); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// ensureValidCover re-validates the cover attachments already on an item,
// deleting the ones whose URL no longer serves an image. Reports whether a
// working cover remains.
func (s *Service) ensureValidCover(ctx context.Context, itemKey string, stats *Stats) (bool, error) {
	attachments, err := s.zot.Children(ctx, itemKey, "attachment")
	if err != nil {
		return false, err
	}

	found := false
	for _, att := range attachments {
		if !strings.Contains(strings.ToLower(att.Data.Title), "cover") {
			continue
		}
		url := att.Data.Url
		if url == "" {
			url = att.Links["enclosure"].Href
		}
		if url != "" && s.fetch.ValidateImageURL(ctx, url) {
			found = true
			continue
		}
		if err := s.zot.DeleteItem(ctx, &att); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("attachment", att.Key).Msg("Removing stale cover failed")
			stats.Errors++
			continue
		}
		logging.Ctx(ctx).Info().Str("attachment", att.Key).Msg("Removed stale cover attachment")
		stats.Removed++
	}
	return found, nil
}

// FindCoverURL looks for a cover image. Google Books is asked first because
// its links are stable CDN URLs; image search candidates are validated one
// by one until something actually serves an image.
func (s *Service) FindCoverURL(ctx context.Context, title, author string) string {
	gbURL, err := s.search.GoogleBooksCover(ctx, title, author)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Google Books lookup failed")
	}
	if gbURL != "" {
		return gbURL
	}

	query := title + " book cover"
	if author != "" {
		query += " by " + author
	}
	images, err := s.search.SearchImages(ctx, query, constants.MaxSearchResults)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Image search failed")
		return ""
	}
	for _, candidate := range images {
		if candidate.Image != "" && s.fetch.ValidateImageURL(ctx, candidate.Image) {
			return candidate.Image
		}
	}
	return ""
}

// Embed stores each book's cover as a base64 data URI inside a child note.
// Notes whose payload was stripped (Zotero 7 rewrites data URIs it does not
// recognize, leaving the heading but no image) are regenerated.
func (s *Service) Embed(ctx context.Context, opts Options) (*Stats, error) {
	books, err := s.zot.Books(ctx, opts.Collection)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	for _, book := range books {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++
		logger := logging.WithItem(ctx, book.Key)
		title := book.Data.Title

		note, err := s.zot.FindChildNote(logger, book.Key, constants.CoverNoteTitle)
		if err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Checking cover notes failed")
			stats.Errors++
			continue
		}
		if note != nil && !CorruptedNote(note.Data.Note) {
			stats.Skipped++
			continue
		}

		coverURL := s.coverSourceURL(logger, &book)
		if coverURL == "" {
			logging.Ctx(logger).Warn().Str("title", title).Msg("No cover source")
			stats.Missing++
			continue
		}

		dataURI, err := s.fetch.DownloadDataURI(logger, coverURL)
		if err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Cover download failed")
			stats.Errors++
			continue
		}

		html := NoteHTML(dataURI)
		if note != nil {
			if err := s.zot.UpdateNote(logger, note, html); err != nil {
				logging.Ctx(logger).Error().Err(err).Str("title", title).Msg("Updating cover note failed")
				stats.Errors++
				continue
			}
			logging.Ctx(logger).Info().Str("title", title).Msg("Regenerated cover note")
			stats.Updated++
		} else {
			if _, err := s.zot.CreateNote(logger, book.Key, html); err != nil {
				logging.Ctx(logger).Error().Err(err).Str("title", title).Msg("Creating cover note failed")
				stats.Errors++
				continue
			}
			logging.Ctx(logger).Info().Str("title", title).Msg("Embedded cover note")
			stats.Created++
		}

		if err := pause(ctx, opts.Delay); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// coverSourceURL prefers the URL already attached as the web cover and only
// falls back to searching when the item has none.
func (s *Service) coverSourceURL(ctx context.Context, book *zotero.Item) string {
	att, err := s.zot.FindChildAttachment(ctx, book.Key, constants.CoverAttachmentTitle)
	if err == nil && att != nil && att.Data.Url != "" {
		return att.Data.Url
	}
	return s.FindCoverURL(ctx, book.Data.Title, book.Data.FirstAuthor())
}

// Purge deletes the artifacts the cover pipelines create: linked cover
// attachments and embedded cover notes.
func (s *Service) Purge(ctx context.Context, opts Options) (*Stats, error) {
	books, err := s.zot.Books(ctx, opts.Collection)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	for _, book := range books {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++
		logger := logging.WithItem(ctx, book.Key)

		children, err := s.zot.Children(logger, book.Key, "")
		if err != nil {
			logging.Ctx(logger).Warn().Err(err).Msg("Listing children failed")
			stats.Errors++
			continue
		}
		for _, child := range children {
			if !coverArtifact(&child) {
				continue
			}
			if err := s.zot.DeleteItem(logger, &child); err != nil {
				logging.Ctx(logger).Warn().Err(err).Str("child", child.Key).Msg("Delete failed")
				stats.Errors++
				continue
			}
			logging.Ctx(logger).Info().Str("child", child.Key).Str("type", child.Data.ItemType).Msg("Removed cover artifact")
			stats.Removed++
		}
	}
	return stats, nil
}

// coverArtifact reports whether a child item belongs to the cover
// pipelines: an attachment with "cover" in its title, or the base64 note.
func coverArtifact(child *zotero.Item) bool {
	switch child.Data.ItemType {
	case "attachment":
		return strings.Contains(strings.ToLower(child.Data.Title), "cover")
	case "note":
		return strings.Contains(child.Data.Note, constants.CoverNoteTitle)
	}
	return false
}

// pause sleeps between items, bailing out early when the context ends.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
