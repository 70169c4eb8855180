package prizes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quartoworks/shelfmark/internal/ollama"
	"github.com/quartoworks/shelfmark/pkg/errors"
	"github.com/quartoworks/shelfmark/pkg/logging"
	"github.com/quartoworks/shelfmark/pkg/zotero"
)

// Default collection names for the two imports.
const (
	NobelCollection   = "Nobel Prize in Literature"
	AquileoCollection = "Premio Aquileo J. Echeverría"
)

// Service imports prize reading lists into one library.
type Service struct {
	zot *zotero.Client
	llm *ollama.Client
}

// NewService wires the library and the model together.
func NewService(zot *zotero.Client, llm *ollama.Client) *Service {
	return &Service{zot: zot, llm: llm}
}

// ImportOptions configures a prize import run.
type ImportOptions struct {
	// Collection overrides the default collection name for the prize.
	Collection string
	// DryRun logs what would be added without writing anything.
	DryRun bool
	// Delay is the pause between roster entries.
	Delay time.Duration
}

// Stats counts what an import run did.
type Stats struct {
	Processed int
	Created   int
	Skipped   int
	Failed    int
}

// ImportNobel adds one representative book per Nobel laureate to the
// prize collection. The local model names each laureate's most famous
// work; entries whose book is already in the collection are skipped.
func (s *Service) ImportNobel(ctx context.Context, opts ImportOptions) (*Stats, error) {
	laureates, err := Nobel()
	if err != nil {
		return nil, err
	}
	name := opts.Collection
	if name == "" {
		name = NobelCollection
	}
	imp, err := s.newImporter(ctx, name, opts)
	if err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().
		Int("winners", len(laureates)).
		Str("collection", name).
		Msg("Importing Nobel laureates")

	for i, laureate := range laureates {
		imp.stats.Processed++
		s.importLaureate(logging.WithField(ctx, "winner", laureate.Name), imp, laureate)
		if i < len(laureates)-1 {
			if err := pause(ctx, opts.Delay); err != nil {
				return imp.stats, err
			}
		}
	}
	return imp.stats, nil
}

// ImportAquileo adds one book per Aquileo J. Echeverría Prize winner.
// The roster names the awarded work for some years; otherwise the model
// picks the winner's most famous book.
func (s *Service) ImportAquileo(ctx context.Context, opts ImportOptions) (*Stats, error) {
	winners, err := Aquileo()
	if err != nil {
		return nil, err
	}
	name := opts.Collection
	if name == "" {
		name = AquileoCollection
	}
	imp, err := s.newImporter(ctx, name, opts)
	if err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().
		Int("winners", len(winners)).
		Str("collection", name).
		Msg("Importing Aquileo winners")

	for i, winner := range winners {
		imp.stats.Processed++
		s.importWinner(logging.WithField(ctx, "winner", winner.Name), imp, winner)
		if i < len(winners)-1 {
			if err := pause(ctx, opts.Delay); err != nil {
				return imp.stats, err
			}
		}
	}
	return imp.stats, nil
}

// importLaureate asks the model for the laureate's most famous work and
// hands it to the importer.
func (s *Service) importLaureate(ctx context.Context, imp *importer, l Laureate) {
	book, err := s.pickBook(ctx, nobelBookPrompt(l))
	if err != nil || book.Title == "" {
		logging.Ctx(ctx).Warn().Err(err).Int("year", l.Year).Msg("Could not identify a book")
		imp.stats.Failed++
		return
	}
	imp.add(ctx, candidate{
		Title:  book.Title,
		Author: l.Name,
		Date:   string(book.Year),
		ISBN:   book.ISBN,
		Extra:  fmt.Sprintf("Nobel Prize in Literature: %d", l.Year),
		Tags:   []string{"Nobel Prize in Literature", fmt.Sprintf("Nobel %d", l.Year)},
	})
}

// importWinner identifies the winner's book and hands it to the importer.
// When the model cannot answer but the roster names the awarded work, the
// entry is created from the roster alone.
func (s *Service) importWinner(ctx context.Context, imp *importer, w Winner) {
	book, err := s.pickBook(ctx, aquileoBookPrompt(w))
	if err != nil || book.Title == "" {
		if w.Title == "" {
			logging.Ctx(ctx).Warn().Err(err).Int("year", w.Year).Msg("Could not identify a book")
			imp.stats.Failed++
			return
		}
		logging.Ctx(ctx).Warn().Err(err).Int("year", w.Year).Msg("Falling back to the roster title")
		book = &bookInfo{Title: w.Title}
	}
	imp.add(ctx, candidate{
		Title:  book.Title,
		Author: w.Name,
		Date:   string(book.Year),
		ISBN:   book.ISBN,
		Extra:  fmt.Sprintf("Premio Aquileo J. Echeverría: %s (%d)", w.Category, w.Year),
		Tags:   []string{"Premio Aquileo J. Echeverría", fmt.Sprintf("Aquileo %d", w.Year), w.Category},
	})
}

// bookInfo is the model's answer to a book identification prompt.
type bookInfo struct {
	Title string     `json:"title"`
	Year  yearString `json:"year"`
	ISBN  string     `json:"isbn"`
}

// yearString tolerates the model emitting the year as a JSON number or a
// quoted string.
type yearString string

func (y *yearString) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "null" {
		s = ""
	}
	*y = yearString(s)
	return nil
}

// pickBook runs a book identification prompt and decodes the reply. A
// missing title is left for the caller to judge; the Aquileo flow can
// still fall back on its roster.
func (s *Service) pickBook(ctx context.Context, prompt string) (*bookInfo, error) {
	reply, err := s.llm.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var book bookInfo
	if err := ollama.DecodeJSON(reply, &book); err != nil {
		return nil, err
	}
	if strings.EqualFold(book.ISBN, "null") {
		book.ISBN = ""
	}
	return &book, nil
}

func nobelBookPrompt(l Laureate) string {
	return fmt.Sprintf(`You are a literary expert. Identify the MOST FAMOUS or NOBEL PRIZE-WINNING book by %s (Nobel Prize %d).
Respond with ONLY valid JSON:
{
  "title": "Book Title",
  "year": YYYY,
  "isbn": "ISBN if available or null"
}
`, l.Name, l.Year)
}

func aquileoBookPrompt(w Winner) string {
	if w.Title != "" {
		return fmt.Sprintf(`You are a literary expert. Provide metadata for the book '%s' by %s (Aquileo J. Echeverría Prize %d).
Respond with ONLY valid JSON:
{
  "title": %q,
  "year": YYYY,
  "isbn": "ISBN if available or null"
}
`, w.Title, w.Name, w.Year, w.Title)
	}
	return fmt.Sprintf(`You are a literary expert. Identify the MOST FAMOUS book by %s (Aquileo J. Echeverría Prize %d).
Respond with ONLY valid JSON:
{
  "title": "Book Title",
  "year": YYYY,
  "isbn": "ISBN if available or null"
}
`, w.Name, w.Year)
}

// importer carries the per-run state shared by the prize flows: the
// target collection, the book template, and the books already listed.
type importer struct {
	svc        *Service
	collection *zotero.Collection
	template   zotero.ItemData
	existing   []listedBook
	dryRun     bool
	stats      *Stats
}

// listedBook is the lowercased title/authors pair used for duplicate
// checks.
type listedBook struct {
	title   string
	authors []string
}

// newImporter resolves the collection (creating it when missing), loads
// its current books for duplicate checks, and fetches the book template
// once for the whole run. A dry run never creates the collection either;
// it proceeds against an empty one.
func (s *Service) newImporter(ctx context.Context, collectionName string, opts ImportOptions) (*importer, error) {
	var collection *zotero.Collection
	var err error
	if opts.DryRun {
		collection, err = s.zot.FindCollection(ctx, collectionName)
		if errors.IsNotFound(err) {
			logging.Ctx(ctx).Info().Str("collection", collectionName).Msg("Would create collection")
			collection, err = &zotero.Collection{}, nil
		}
	} else {
		collection, err = s.zot.EnsureCollection(ctx, collectionName)
	}
	if err != nil {
		return nil, err
	}

	var items []zotero.Item
	if collection.Key != "" {
		items, err = s.zot.CollectionItems(ctx, collection.Key, zotero.ItemQuery{ItemType: "book"}, false)
		if err != nil {
			return nil, err
		}
	}
	template, err := s.zot.ItemTemplate(ctx, "book")
	if err != nil {
		return nil, err
	}

	imp := &importer{
		svc:        s,
		collection: collection,
		template:   template,
		dryRun:     opts.DryRun,
		stats:      &Stats{},
	}
	for _, item := range items {
		imp.remember(&item.Data)
	}
	return imp, nil
}

// remember records a book for duplicate checks within this run.
func (imp *importer) remember(d *zotero.ItemData) {
	book := listedBook{title: strings.ToLower(d.Title)}
	for _, c := range d.Creators {
		book.authors = append(book.authors, strings.ToLower(creatorName(c)))
	}
	imp.existing = append(imp.existing, book)
}

// listed reports whether a similar book by the author is already in the
// collection. Titles match when one contains the other, and likewise for
// the author name, so "Cien años de soledad" matches a listed "Cien años
// de soledad (edición conmemorativa)".
func (imp *importer) listed(title, author string) bool {
	title = strings.ToLower(title)
	author = strings.ToLower(author)
	for _, book := range imp.existing {
		if book.title == "" {
			continue
		}
		if !strings.Contains(book.title, title) && !strings.Contains(title, book.title) {
			continue
		}
		for _, name := range book.authors {
			if name == "" {
				continue
			}
			if strings.Contains(name, author) || strings.Contains(author, name) {
				return true
			}
		}
	}
	return false
}

// candidate is one book ready to join the prize collection.
type candidate struct {
	Title  string
	Author string
	Date   string
	ISBN   string
	Extra  string
	Tags   []string
}

// add creates the candidate unless a similar book is already listed. The
// new item joins the prize collection at creation time, and is remembered
// so repeated winners dedupe within the same run.
func (imp *importer) add(ctx context.Context, c candidate) {
	logger := logging.Ctx(ctx)
	if imp.listed(c.Title, c.Author) {
		logger.Info().Str("title", c.Title).Msg("Already in collection")
		imp.stats.Skipped++
		return
	}

	data := imp.template
	data.Title = c.Title
	first, last := splitName(c.Author)
	data.Creators = []zotero.Creator{{CreatorType: "author", FirstName: first, LastName: last}}
	data.Date = c.Date
	data.ISBN = c.ISBN
	data.Extra = c.Extra
	tags := make([]zotero.Tag, 0, len(c.Tags))
	for _, tag := range c.Tags {
		tags = append(tags, zotero.Tag{Tag: tag})
	}
	data.Tags = tags
	if imp.collection.Key != "" {
		data.Collections = []string{imp.collection.Key}
	}

	if imp.dryRun {
		logger.Info().Str("title", c.Title).Msg("Would add")
		imp.stats.Created++
		imp.remember(&data)
		return
	}

	result, err := imp.svc.zot.CreateItems(ctx, data)
	if err == nil {
		err = result.Err()
	}
	if err != nil {
		logger.Error().Err(err).Str("title", c.Title).Msg("Create failed")
		imp.stats.Failed++
		return
	}
	imp.stats.Created++
	if created := result.First(); created != nil {
		logger.Info().Str("title", c.Title).Str("item", created.Key).Msg("Added")
		imp.remember(&created.Data)
		return
	}
	imp.remember(&data)
}

// creatorName renders a creator for comparison: the institutional single
// field when set, otherwise the joined personal names.
func creatorName(c zotero.Creator) string {
	if c.Name != "" {
		return c.Name
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// splitName splits a display name into first/last fields. The last
// space-separated token is the surname, everything before it the given
// names.
func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", name
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
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
