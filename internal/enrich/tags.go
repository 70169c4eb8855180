package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quartoworks/shelfmark/internal/ollama"
	"github.com/quartoworks/shelfmark/pkg/constants"
	"github.com/quartoworks/shelfmark/pkg/logging"
	"github.com/quartoworks/shelfmark/pkg/zotero"
)

// TagOptions select which items the tag pipeline touches.
type TagOptions struct {
	// Collection restricts the run to one collection key, descending into
	// subcollections; empty means the whole library.
	Collection string

	// ItemType is the target item type; empty means book.
	ItemType string

	// Overwrite regenerates items that already carry AI tags, replacing
	// the old AI set.
	Overwrite bool

	// Delay is the pause between items, spacing out search traffic.
	Delay time.Duration
}

// Tags asks the model for subject tags and merges them into each selected
// item. Generated tags carry a marker prefix so they stay distinguishable
// from (and never displace) hand-assigned ones; items that already have
// marked tags are skipped unless Overwrite replaces their AI set.
func (s *Service) Tags(ctx context.Context, opts TagOptions) (*Stats, error) {
	items, err := s.selectItems(ctx, opts.Collection, opts.ItemType)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Int("items", len(items)).Msg("Starting tag run")

	stats := &Stats{}
	for i := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		item := &items[i]
		stats.Processed++

		title := itemTitle(item)
		author := item.Data.FirstAuthor()
		logger := logging.WithItem(ctx, item.Key)

		if hasAITags(&item.Data) && !opts.Overwrite {
			logging.Ctx(logger).Debug().Str("title", title).Msg("AI tags already present")
			stats.Skipped++
			continue
		}

		snippets := s.bookContext(logger, title, author)
		if len(snippets) == 0 {
			logging.Ctx(logger).Warn().Str("title", title).Msg("No search context for tags")
			stats.NoContext++
			continue
		}

		reply, err := s.llm.GenerateJSON(logger, tagPrompt(title, author, snippets))
		if err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Tag generation failed")
			stats.Failed++
			continue
		}
		tags := cleanTags(ollama.SplitList(reply))
		if len(tags) == 0 {
			logging.Ctx(logger).Warn().Str("title", title).Msg("Model returned no usable tags")
			stats.Failed++
			continue
		}

		if opts.Overwrite {
			item.Data.Tags = withoutAITags(item.Data.Tags)
		}
		added := 0
		for _, tag := range tags {
			if item.Data.AddTag(constants.AITagPrefix + tag) {
				added++
			}
		}

		if err := s.zot.UpdateItem(logger, item); err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Saving tags failed")
			stats.Failed++
			continue
		}
		logging.Ctx(logger).Info().Str("title", title).Int("tags", added).Msg("Tags added")
		stats.Updated++

		if i < len(items)-1 {
			if err := pause(ctx, opts.Delay); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

func tagPrompt(title, author string, snippets []string) string {
	header := []string{
		"You are a librarian expert in book classification.",
		fmt.Sprintf("Suggest subject tags for the book '%s' based on the context provided.", title),
	}
	if author != "" {
		header = append(header, fmt.Sprintf("The author is %s.", author))
	}
	header = append(header,
		"Respond with ONLY a valid JSON array of 3 to 6 specific subject tags. "+
			"Tags MUST be in the original language of the book: if the book is in Spanish, "+
			"use Spanish tags; if in English, use English tags. "+
			"Do not include any text outside the JSON array.")

	return promptWithContext(header, snippets, "JSON Response:")
}

// cleanTags collapses inner whitespace, drops empties, and caps the list.
func cleanTags(raw []string) []string {
	tags := make([]string, 0, len(raw))
	for _, tag := range raw {
		cleaned := strings.Join(strings.Fields(tag), " ")
		if cleaned == "" {
			continue
		}
		tags = append(tags, cleaned)
		if len(tags) >= constants.MaxAITags {
			break
		}
	}
	return tags
}

func hasAITags(d *zotero.ItemData) bool {
	for _, t := range d.Tags {
		if strings.HasPrefix(t.Tag, constants.AITagPrefix) {
			return true
		}
	}
	return false
}

func withoutAITags(tags []zotero.Tag) []zotero.Tag {
	kept := make([]zotero.Tag, 0, len(tags))
	for _, t := range tags {
		if !strings.HasPrefix(t.Tag, constants.AITagPrefix) {
			kept = append(kept, t)
		}
	}
	return kept
}
