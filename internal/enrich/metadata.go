package enrich

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/quartoworks/shelfmark/internal/ollama"
	"github.com/quartoworks/shelfmark/pkg/logging"
	"github.com/quartoworks/shelfmark/pkg/zotero"
)

// MetadataOptions select which items the repair pipeline touches.
type MetadataOptions struct {
	// Collection restricts the run to one collection key, descending into
	// subcollections; empty means the whole library.
	Collection string

	// ItemType is the target item type; empty means book.
	ItemType string

	// DryRun logs every correction an item would receive without writing
	// any of them back.
	DryRun bool

	// Limit caps how many items one run touches; zero means no cap.
	Limit int

	// Delay is the pause between items, spacing out search traffic.
	Delay time.Duration
}

// garbageValues are placeholder strings that count as empty. Catalog
// imports leave them behind; "s.n." and "s.l." are the bibliographic
// abbreviations for an unknown publisher and place.
var garbageValues = map[string]bool{
	"-":             true,
	"n/a":           true,
	"not specified": true,
	"unknown":       true,
	"none":          true,
	"s.n.":          true,
	"s.l.":          true,
}

// fixableFields are the only fields the repair pipeline may rewrite.
// Anything else the model volunteers is ignored.
var fixableFields = []string{
	"title", "place", "publisher", "date", "numPages", "language",
	"ISBN", "series", "seriesNumber", "edition", "shortTitle",
	"abstractNote", "url",
}

// Metadata asks the model to correct and complete each selected item's
// bibliographic fields from search context. Placeholder values are
// scrubbed, whitelisted fields the model is confident about are applied,
// and creators are replaced as a unit when the model respells them.
func (s *Service) Metadata(ctx context.Context, opts MetadataOptions) (*Stats, error) {
	items, err := s.selectItems(ctx, opts.Collection, opts.ItemType)
	if err != nil {
		return nil, err
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	logging.Ctx(ctx).Info().Int("items", len(items)).Bool("dry_run", opts.DryRun).Msg("Starting metadata repair run")

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

		snippets := s.detailContext(logger, title, author)
		if len(snippets) == 0 {
			logging.Ctx(logger).Warn().Str("title", title).Msg("No search context for repair")
			stats.NoContext++
			continue
		}

		meta, err := json.MarshalIndent(currentMeta(&item.Data), "", "  ")
		if err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Encoding current metadata failed")
			stats.Failed++
			continue
		}
		reply, err := s.llm.GenerateJSON(logger, metadataPrompt(meta, snippets))
		if err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Metadata analysis failed")
			stats.Failed++
			continue
		}
		var patch map[string]any
		if err := ollama.DecodeJSON(reply, &patch); err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Unparseable metadata response")
			stats.Failed++
			continue
		}

		if !applyPatch(logger, &item.Data, patch) {
			logging.Ctx(logger).Debug().Str("title", title).Msg("No corrections needed")
			stats.Unchanged++
			continue
		}
		if opts.DryRun {
			logging.Ctx(logger).Info().Str("title", title).Msg("Dry run, corrections not saved")
			stats.Updated++
			continue
		}
		if err := s.zot.UpdateItem(logger, item); err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Saving corrections failed")
			stats.Failed++
			continue
		}
		logging.Ctx(logger).Info().Str("title", title).Msg("Metadata repaired")
		stats.Updated++

		if i < len(items)-1 {
			if err := pause(ctx, opts.Delay); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

// applyPatch scrubs placeholder values and folds the model's corrections
// into the item data. Reports whether anything changed.
func applyPatch(ctx context.Context, d *zotero.ItemData, patch map[string]any) bool {
	changed := false
	for _, field := range fixableFields {
		old := fieldValue(d, field)
		if isGarbage(old) {
			logging.Ctx(ctx).Info().Str("field", field).Str("old", old).Msg("Scrubbing placeholder value")
			setField(d, field, "")
			changed = true
			old = ""
		}
		raw, ok := patch[field]
		if !ok {
			continue
		}
		next := cleanString(raw)
		if next == "" || next == old {
			continue
		}
		logging.Ctx(ctx).Info().Str("field", field).Str("old", old).Str("new", next).Msg("Correcting field")
		setField(d, field, next)
		changed = true
	}

	if creators := decodeCreators(patch["creators"]); len(creators) > 0 && !creatorsEqual(d.Creators, creators) {
		logging.Ctx(ctx).Info().Int("creators", len(creators)).Msg("Correcting creators")
		d.Creators = creators
		changed = true
	}
	return changed
}

// currentMeta is the item snapshot the prompt shows the model.
func currentMeta(d *zotero.ItemData) map[string]any {
	return map[string]any{
		"title":        d.Title,
		"creators":     d.Creators,
		"date":         d.Date,
		"publisher":    d.Publisher,
		"place":        d.Place,
		"numPages":     d.NumPages,
		"ISBN":         d.ISBN,
		"language":     d.Language,
		"series":       d.Series,
		"abstractNote": d.AbstractNote,
	}
}

func metadataPrompt(currentMeta []byte, snippets []string) string {
	var b strings.Builder
	b.WriteString("You are a librarian expert. Analyze the book metadata and search results below.\n")
	b.WriteString("Your task is to CORRECT any errors (spelling, wrong dates) and FILL missing fields.\n")
	b.WriteString("Pay special attention to AUTHOR NAMES. Correctly split First Names and Last Names " +
		"(e.g. 'Gabriel García Márquez' -> First: 'Gabriel', Last: 'García Márquez').\n")
	b.WriteString("Do NOT include explanations, 'likely', 'probably', or parenthetical notes in the values. Just the data.\n")
	b.WriteString("For 'date', use ONLY YYYY or YYYY-MM-DD format. No text.\n")
	b.WriteString("Use the search context to verify information.\n\n")
	b.WriteString("Current Metadata:\n")
	b.Write(currentMeta)
	b.WriteString("\n\nSearch Context:\n")
	for _, snippet := range snippets {
		b.WriteString("- ")
		b.WriteString(clip(snippet, 300))
		b.WriteByte('\n')
	}
	b.WriteString("\nRespond with a JSON object following this schema (only include fields you are confident about):\n")
	b.WriteString(`{
  "title": "Corrected Title",
  "creators": [{"creatorType": "author", "firstName": "Name", "lastName": "Surname"}],
  "place": "City, Country",
  "publisher": "Publisher Name",
  "date": "YYYY",
  "numPages": "123",
  "language": "Language",
  "ISBN": "ISBN",
  "series": "Series Name",
  "seriesNumber": "Series Number",
  "edition": "Edition",
  "shortTitle": "Short Title",
  "abstractNote": "Concise summary",
  "url": "URL to buy or view the book"
}`)
	return b.String()
}

func isGarbage(v string) bool {
	return garbageValues[strings.ToLower(strings.TrimSpace(v))]
}

// cleanString coerces a patch value to a usable string. The model
// sometimes answers numPages as a bare number.
func cleanString(v any) string {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if isGarbage(s) {
			return ""
		}
		return s
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func fieldValue(d *zotero.ItemData, field string) string {
	switch field {
	case "title":
		return d.Title
	case "place":
		return d.Place
	case "publisher":
		return d.Publisher
	case "date":
		return d.Date
	case "numPages":
		return d.NumPages
	case "language":
		return d.Language
	case "ISBN":
		return d.ISBN
	case "series":
		return d.Series
	case "seriesNumber":
		return d.SeriesNumber
	case "edition":
		return d.Edition
	case "shortTitle":
		return d.ShortTitle
	case "abstractNote":
		return d.AbstractNote
	case "url":
		return d.Url
	}
	return ""
}

func setField(d *zotero.ItemData, field, value string) {
	switch field {
	case "title":
		d.Title = value
	case "place":
		d.Place = value
	case "publisher":
		d.Publisher = value
	case "date":
		d.Date = value
	case "numPages":
		d.NumPages = value
	case "language":
		d.Language = value
	case "ISBN":
		d.ISBN = value
	case "series":
		d.Series = value
	case "seriesNumber":
		d.SeriesNumber = value
	case "edition":
		d.Edition = value
	case "shortTitle":
		d.ShortTitle = value
	case "abstractNote":
		d.AbstractNote = value
	case "url":
		d.Url = value
	}
}

// decodeCreators re-reads the model's creators array into typed creators,
// dropping entries with no name.
func decodeCreators(raw any) []zotero.Creator {
	if raw == nil {
		return nil
	}
	blob, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var creators []zotero.Creator
	if err := json.Unmarshal(blob, &creators); err != nil {
		return nil
	}
	kept := creators[:0]
	for _, c := range creators {
		if c.FirstName == "" && c.LastName == "" && c.Name == "" {
			continue
		}
		if c.CreatorType == "" {
			c.CreatorType = "author"
		}
		kept = append(kept, c)
	}
	return kept
}

func creatorsEqual(a, b []zotero.Creator) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
