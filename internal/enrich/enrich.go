// Package enrich implements the AI metadata pipelines: abstracts, subject
// tags, original publication dates, field repair, and related-item links.
// A local Ollama model does the writing; web search snippets ground every
// prompt so the model corrects and summarizes instead of inventing.
package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/quartoworks/shelfmark/internal/ollama"
	"github.com/quartoworks/shelfmark/internal/websearch"
	"github.com/quartoworks/shelfmark/pkg/constants"
	"github.com/quartoworks/shelfmark/pkg/logging"
	"github.com/quartoworks/shelfmark/pkg/zotero"
)

// Service runs the enrichment pipelines against one library.
type Service struct {
	zot    *zotero.Client
	llm    *ollama.Client
	search *websearch.Client
}

// NewService wires the library, the model, and the search client together.
func NewService(zot *zotero.Client, llm *ollama.Client, search *websearch.Client) *Service {
	return &Service{zot: zot, llm: llm, search: search}
}

// Stats counts what an enrichment run did.
type Stats struct {
	Processed int
	Skipped   int
	Updated   int
	Unchanged int
	NoContext int
	Failed    int
	Linked    int
}

// selectItems resolves the target items: a collection (descending into
// subcollections) or the whole library, filtered by item type.
func (s *Service) selectItems(ctx context.Context, collection, itemType string) ([]zotero.Item, error) {
	if itemType == "" {
		itemType = "book"
	}
	if collection != "" {
		return s.zot.CollectionItems(ctx, collection, zotero.ItemQuery{ItemType: itemType}, true)
	}
	return s.zot.Items(ctx, zotero.ItemQuery{ItemType: itemType})
}

// bookContext collects search snippets describing a book. Search failures
// are logged, not fatal: an item without context is skipped and the run
// moves on.
func (s *Service) bookContext(ctx context.Context, title, author string) []string {
	query := title + " book summary"
	if author != "" {
		query += " by " + author
	}
	results, err := s.search.Search(ctx, query, constants.MaxSearchResults)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("query", query).Msg("Context search failed")
		return nil
	}
	return websearch.FilterSnippets(results, constants.MinSnippetLength, constants.MaxSearchResults)
}

// dateContext collects snippets about a book's first publication. Quoted
// terms keep the results on the exact work.
func (s *Service) dateContext(ctx context.Context, title, author string) []string {
	query := `"` + title + `" original publication date first published`
	if author != "" {
		query += ` "` + author + `"`
	}
	results, err := s.search.Search(ctx, query, constants.DateSearchResults)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("query", query).Msg("Date search failed")
		return nil
	}
	return websearch.FilterSnippets(results, 1, constants.DateSearchResults)
}

// detailContext collects snippets about a book's publishing details for
// the metadata repair prompt.
func (s *Service) detailContext(ctx context.Context, title, author string) []string {
	query := `"` + title + `" "` + author + `" book details publisher isbn pages`
	results, err := s.search.Search(ctx, query, constants.MaxSearchResults)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("query", query).Msg("Detail search failed")
		return nil
	}
	return websearch.FilterSnippets(results, 1, constants.MaxSearchResults)
}

// promptWithContext joins instruction sentences and appends the snippets
// as a bulleted context block, ending with the cue the model completes.
func promptWithContext(header []string, snippets []string, cue string) string {
	var b strings.Builder
	b.WriteString(strings.Join(header, " "))
	b.WriteString("\n\nContext:\n")
	for _, snippet := range snippets {
		b.WriteString("- ")
		b.WriteString(snippet)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(cue)
	return b.String()
}

func itemTitle(item *zotero.Item) string {
	if item.Data.Title == "" {
		return "Untitled"
	}
	return item.Data.Title
}

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
