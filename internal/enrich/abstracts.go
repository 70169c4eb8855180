package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quartoworks/shelfmark/pkg/logging"
	"github.com/quartoworks/shelfmark/pkg/zotero"
)

// alreadySpanish is the sentinel the language-check prompt asks for when
// an existing abstract needs no rewrite.
const alreadySpanish = "ALREADY_SPANISH"

// AbstractOptions select which items the abstract pipeline touches.
type AbstractOptions struct {
	// Collection restricts the run to one collection key, descending into
	// subcollections; empty means the whole library.
	Collection string

	// ItemType is the target item type; empty means book.
	ItemType string

	// Overwrite regenerates abstracts that are already filled.
	Overwrite bool

	// Translate rewrites existing abstracts that are not in Spanish
	// instead of skipping filled items.
	Translate bool

	// Delay is the pause between items, spacing out search traffic.
	Delay time.Duration
}

// Abstracts writes a Spanish abstract into every selected item whose
// abstractNote is empty. Filled items are skipped unless Overwrite
// regenerates them or Translate rewrites the ones in other languages.
func (s *Service) Abstracts(ctx context.Context, opts AbstractOptions) (*Stats, error) {
	items, err := s.selectItems(ctx, opts.Collection, opts.ItemType)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Int("items", len(items)).Msg("Starting abstract run")

	stats := &Stats{}
	for i := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		item := &items[i]
		stats.Processed++

		title := itemTitle(item)
		author := item.Data.FirstAuthor()
		existing := strings.TrimSpace(item.Data.AbstractNote)
		logger := logging.WithItem(ctx, item.Key)

		switch {
		case existing != "" && opts.Translate && !opts.Overwrite:
			s.translateAbstract(logger, item, title, author, existing, stats)
		case existing != "" && !opts.Overwrite:
			logging.Ctx(logger).Debug().Str("title", title).Msg("Abstract already present")
			stats.Skipped++
		default:
			s.writeAbstract(logger, item, title, author, stats)
		}

		if i < len(items)-1 {
			if err := pause(ctx, opts.Delay); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

func (s *Service) writeAbstract(ctx context.Context, item *zotero.Item, title, author string, stats *Stats) {
	snippets := s.bookContext(ctx, title, author)
	if len(snippets) == 0 {
		logging.Ctx(ctx).Warn().Str("title", title).Msg("No search context for abstract")
		stats.NoContext++
		return
	}

	abstract, err := s.llm.Generate(ctx, abstractPrompt(title, author, snippets))
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("title", title).Msg("Abstract generation failed")
		stats.Failed++
		return
	}
	abstract = strings.TrimSpace(abstract)
	if abstract == "" {
		stats.Failed++
		return
	}

	item.Data.AbstractNote = abstract
	if err := s.zot.UpdateItem(ctx, item); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("title", title).Msg("Saving abstract failed")
		stats.Failed++
		return
	}
	logging.Ctx(ctx).Info().Str("title", title).Int("words", len(strings.Fields(abstract))).Msg("Abstract written")
	stats.Updated++
}

// translateAbstract asks the model whether the existing abstract is
// Spanish and rewrites it from search context when it is not.
func (s *Service) translateAbstract(ctx context.Context, item *zotero.Item, title, author, existing string, stats *Stats) {
	snippets := s.bookContext(ctx, title, author)

	reply, err := s.llm.Generate(ctx, translatePrompt(title, existing, snippets))
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("title", title).Msg("Language check failed")
		stats.Failed++
		return
	}
	reply = strings.TrimSpace(reply)
	if reply == "" || strings.Contains(reply, alreadySpanish) {
		logging.Ctx(ctx).Debug().Str("title", title).Msg("Abstract already in Spanish")
		stats.Skipped++
		return
	}

	item.Data.AbstractNote = reply
	if err := s.zot.UpdateItem(ctx, item); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("title", title).Msg("Saving rewritten abstract failed")
		stats.Failed++
		return
	}
	logging.Ctx(ctx).Info().Str("title", title).Msg("Abstract rewritten in Spanish")
	stats.Updated++
}

func abstractPrompt(title, author string, snippets []string) string {
	header := []string{
		"You are a research assistant creating an academic-style abstract.",
		fmt.Sprintf("Write an abstract in SPANISH for the book '%s'.", title),
	}
	if author != "" {
		header = append(header, fmt.Sprintf("The author is %s.", author))
	}
	header = append(header,
		"Use only the supplied context, highlight key themes, and keep the abstract under 160 words. "+
			"Do not fabricate information. Do not reference the context directly. "+
			"Do not add titles like 'Abstract' or 'Summary'. Output ONLY the Spanish text.")

	return promptWithContext(header, snippets, "Abstract (in Spanish):")
}

func translatePrompt(title, existing string, snippets []string) string {
	header := []string{
		fmt.Sprintf("Analyze the following abstract for the book '%s'.", title),
		fmt.Sprintf("Current Abstract: %s", existing),
		"Task: Check if the Current Abstract is WRITTEN IN SPANISH.",
		fmt.Sprintf("1. If it is already in Spanish, output the text '%s'.", alreadySpanish),
		"2. If it is NOT in Spanish, write a new abstract in Spanish based on the Context below.",
		fmt.Sprintf("Output ONLY the final Spanish abstract or '%s'. Do not add markdown.", alreadySpanish),
	}
	return promptWithContext(header, snippets, "Response:")
}
