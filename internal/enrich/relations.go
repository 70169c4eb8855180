package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quartoworks/shelfmark/internal/ollama"
	"github.com/quartoworks/shelfmark/pkg/logging"
	"github.com/quartoworks/shelfmark/pkg/zotero"
)

// Relation scoring weights. A pair of items is linked when its combined
// score reaches the threshold, so one shared author or five shared tags
// is enough on its own.
const (
	weightSameAuthor  = 5
	weightSharedTag   = 1
	weightSharedGenre = 2
	relationThreshold = 5
)

// RelationOptions select which items the linking pipeline considers.
type RelationOptions struct {
	// Collection restricts the run to one collection key, descending into
	// subcollections; empty means the whole library.
	Collection string

	// ItemType is the target item type; empty means book.
	ItemType string

	// DryRun logs the links each item would receive without writing them.
	DryRun bool

	// Delay is the pause between items, spacing out search traffic.
	Delay time.Duration
}

// classification is the JSON shape the classify prompt asks the model for.
type classification struct {
	Tags     []string `json:"tags"`
	Genres   []string `json:"genres"`
	Keywords []string `json:"keywords"`
}

// itemProfile holds the normalized terms one item is scored on.
type itemProfile struct {
	key      string
	title    string
	author   string
	tags     map[string]bool
	genres   map[string]bool
	keywords map[string]bool
}

// Relations classifies each selected item, scores every pair on shared
// authorship and vocabulary, and records dc:relation links both ways for
// pairs that score at or above the threshold. Classification failures
// degrade to the item's existing tags rather than aborting the run.
func (s *Service) Relations(ctx context.Context, opts RelationOptions) (*Stats, error) {
	items, err := s.selectItems(ctx, opts.Collection, opts.ItemType)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Int("items", len(items)).Bool("dry_run", opts.DryRun).Msg("Starting relation run")

	stats := &Stats{}
	profiles := make([]*itemProfile, 0, len(items))
	for i := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		item := &items[i]
		stats.Processed++

		title := itemTitle(item)
		author := item.Data.FirstAuthor()
		logger := logging.WithItem(ctx, item.Key)

		profile := &itemProfile{
			key:      item.Key,
			title:    title,
			author:   strings.ToLower(strings.TrimSpace(author)),
			tags:     map[string]bool{},
			genres:   map[string]bool{},
			keywords: map[string]bool{},
		}
		for _, t := range item.Data.Tags {
			addTerm(profile.tags, t.Tag)
		}
		profiles = append(profiles, profile)

		snippets := s.bookContext(logger, title, author)
		if len(snippets) == 0 {
			logging.Ctx(logger).Warn().Str("title", title).Msg("No search context, scoring on existing tags only")
			stats.NoContext++
			continue
		}

		reply, err := s.llm.GenerateJSON(logger, classifyPrompt(title, author, snippets))
		if err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Classification failed")
			stats.Failed++
			continue
		}
		var class classification
		if err := ollama.DecodeJSON(reply, &class); err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Unparseable classification")
			stats.Failed++
			continue
		}
		for _, t := range class.Tags {
			addTerm(profile.tags, t)
		}
		for _, g := range class.Genres {
			addTerm(profile.genres, g)
		}
		for _, k := range class.Keywords {
			addTerm(profile.keywords, k)
		}

		if i < len(items)-1 {
			if err := pause(ctx, opts.Delay); err != nil {
				return stats, err
			}
		}
	}

	links := scorePairs(profiles)
	for _, profile := range profiles {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		related := links[profile.key]
		if len(related) == 0 {
			continue
		}
		logger := logging.WithItem(ctx, profile.key)

		if opts.DryRun {
			logging.Ctx(logger).Info().Str("title", profile.title).
				Int("links", len(related)).Msg("Dry run, links not saved")
			stats.Linked++
			continue
		}

		// Re-fetch for a current version: the classification pass may have
		// been running for a while.
		fresh, err := s.zot.Item(logger, profile.key)
		if err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", profile.title).Msg("Reloading item failed")
			stats.Failed++
			continue
		}
		added := 0
		for _, other := range related {
			if fresh.Data.AddRelation("dc:relation", s.zot.ItemURI(other)) {
				added++
			}
		}
		if added == 0 {
			stats.Unchanged++
			continue
		}
		if err := s.zot.UpdateItem(logger, fresh); err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", profile.title).Msg("Saving links failed")
			stats.Failed++
			continue
		}
		logging.Ctx(logger).Info().Str("title", profile.title).Int("links", added).Msg("Items linked")
		stats.Linked++
	}
	return stats, nil
}

// scorePairs compares every pair once and returns the keys each item
// should link to. Links are symmetric.
func scorePairs(profiles []*itemProfile) map[string][]string {
	links := make(map[string][]string)
	for i := 0; i < len(profiles); i++ {
		for j := i + 1; j < len(profiles); j++ {
			a, b := profiles[i], profiles[j]
			if pairScore(a, b) < relationThreshold {
				continue
			}
			links[a.key] = append(links[a.key], b.key)
			links[b.key] = append(links[b.key], a.key)
		}
	}
	return links
}

func pairScore(a, b *itemProfile) int {
	score := 0
	if a.author != "" && a.author == b.author {
		score += weightSameAuthor
	}
	score += overlap(a.tags, b.tags) * weightSharedTag
	score += overlap(a.genres, b.genres) * weightSharedGenre
	// Keywords weigh like tags.
	score += overlap(a.keywords, b.keywords) * weightSharedTag
	return score
}

func overlap(a, b map[string]bool) int {
	n := 0
	for term := range a {
		if b[term] {
			n++
		}
	}
	return n
}

func addTerm(set map[string]bool, term string) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term != "" {
		set[term] = true
	}
}

func classifyPrompt(title, author string, snippets []string) string {
	header := []string{
		"You are a librarian expert in book classification.",
		fmt.Sprintf("Analyze the book '%s' based on the context provided.", title),
	}
	if author != "" {
		header = append(header, fmt.Sprintf("The author is %s.", author))
	}
	header = append(header,
		"Provide the following in strictly valid JSON format:\n"+
			"{\n"+
			`  "tags": ["tag1", "tag2", ...],  // 5-10 specific subject tags (lowercase)`+"\n"+
			`  "genres": ["genre1", "genre2", ...], // 2-4 broad genres`+"\n"+
			`  "keywords": ["keyword1", "keyword2", ...] // 3-5 key themes`+"\n"+
			"}\n"+
			"IMPORTANT: All tags, genres, and keywords MUST be in the original language of the book. "+
			"If the book is in Spanish, use Spanish tags. If in English, use English tags.\n"+
			"Do not include any text outside the JSON block.")

	return promptWithContext(header, snippets, "JSON Response:")
}
