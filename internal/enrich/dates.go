package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/quartoworks/shelfmark/internal/ollama"
	"github.com/quartoworks/shelfmark/pkg/logging"
)

// originalDateField is the Extra-field key recording when a work was first
// published, as opposed to the date of the edition on the shelf.
const originalDateField = "original-date"

// dateFormat accepts a year or a full ISO date, nothing else.
var dateFormat = regexp.MustCompile(`^\d{4}(-\d{2}-\d{2})?$`)

// DateOptions select which items the original-date pipeline touches.
type DateOptions struct {
	// Collection restricts the run to one collection key, descending into
	// subcollections; empty means the whole library.
	Collection string

	// ItemType is the target item type; empty means book.
	ItemType string

	// Overwrite re-researches items that already record an original date.
	Overwrite bool

	// Delay is the pause between items, spacing out search traffic.
	Delay time.Duration
}

// dateFinding is the JSON shape the research prompt asks the model for.
type dateFinding struct {
	OriginalDate string `json:"original_date"`
	Confidence   string `json:"confidence"`
	Notes        string `json:"notes"`
}

// Dates researches each selected item's first publication date and records
// it in the Extra field. The edition date in the date field is left alone.
// Low-confidence findings are discarded rather than written.
func (s *Service) Dates(ctx context.Context, opts DateOptions) (*Stats, error) {
	items, err := s.selectItems(ctx, opts.Collection, opts.ItemType)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Int("items", len(items)).Msg("Starting original-date run")

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

		if _, ok := item.Data.ExtraField(originalDateField); ok && !opts.Overwrite {
			logging.Ctx(logger).Debug().Str("title", title).Msg("Original date already recorded")
			stats.Skipped++
			continue
		}

		snippets := s.dateContext(logger, title, author)
		if len(snippets) == 0 {
			logging.Ctx(logger).Warn().Str("title", title).Msg("No search context for original date")
			stats.NoContext++
			continue
		}

		reply, err := s.llm.GenerateJSON(logger, datePrompt(title, author, snippets))
		if err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Date research failed")
			stats.Failed++
			continue
		}
		var finding dateFinding
		if err := ollama.DecodeJSON(reply, &finding); err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Unparseable date response")
			stats.Failed++
			continue
		}
		if finding.OriginalDate == "" || strings.EqualFold(finding.OriginalDate, "null") {
			logging.Ctx(logger).Info().Str("title", title).Str("notes", finding.Notes).Msg("No reliable original date found")
			stats.Failed++
			continue
		}
		if strings.EqualFold(finding.Confidence, "low") {
			logging.Ctx(logger).Warn().Str("title", title).
				Str("date", finding.OriginalDate).Str("notes", finding.Notes).
				Msg("Discarding low-confidence date")
			stats.Skipped++
			continue
		}
		if !dateFormat.MatchString(finding.OriginalDate) {
			logging.Ctx(logger).Warn().Str("title", title).Str("date", finding.OriginalDate).Msg("Malformed date from model")
			stats.Failed++
			continue
		}

		if !item.Data.SetExtraField(originalDateField, finding.OriginalDate) {
			stats.Unchanged++
			continue
		}
		if err := s.zot.UpdateItem(logger, item); err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Saving original date failed")
			stats.Failed++
			continue
		}
		logging.Ctx(logger).Info().Str("title", title).
			Str("date", finding.OriginalDate).Str("confidence", finding.Confidence).
			Msg("Original date recorded")
		stats.Updated++

		if i < len(items)-1 {
			if err := pause(ctx, opts.Delay); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

func datePrompt(title, author string, snippets []string) string {
	header := []string{
		"You are a librarian expert in bibliographic research.",
		fmt.Sprintf("Determine the ORIGINAL publication date for the book '%s'.", title),
	}
	if author != "" {
		header = append(header, fmt.Sprintf("The author is %s.", author))
	}
	header = append(header,
		"The original date is when the work was FIRST published anywhere, "+
			"not the date of a later edition, translation, or reprint. "+
			`Respond with ONLY a valid JSON object: {"original_date": "YYYY" or "YYYY-MM-DD", `+
			`"confidence": "high", "medium" or "low", "notes": "one short sentence"}. `+
			"Use null for original_date if the context is unreliable. "+
			"Do not include any text outside the JSON object.")

	return promptWithContext(header, snippets, "JSON Response:")
}
