package prizes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/quartoworks/shelfmark/internal/ollama"
	"github.com/quartoworks/shelfmark/pkg/zotero"
)

// fakeShelf serves the collection, template, and item-creation endpoints
// the prize imports touch.
type fakeShelf struct {
	collections     []zotero.Collection
	items           map[string][]zotero.Item
	created         []zotero.ItemData
	collectionPosts int
}

func (f *fakeShelf) server(t *testing.T) *httptest.Server {
	t.Helper()
	if f.items == nil {
		f.items = map[string][]zotero.Item{}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/users/12345/collections", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(t, w, f.collections)
		case http.MethodPost:
			var body []zotero.CollectionData
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) == 0 {
				t.Errorf("decode collection create: %v", err)
				return
			}
			f.collectionPosts++
			coll := zotero.Collection{
				Key:  fmt.Sprintf("COLL%d", len(f.collections)+1),
				Data: zotero.CollectionData{Name: body[0].Name},
			}
			coll.Data.Key = coll.Key
			f.collections = append(f.collections, coll)
			writeJSON(t, w, map[string]any{
				"successful": map[string]zotero.Collection{"0": coll},
				"failed":     map[string]zotero.WriteError{},
			})
		}
	})
	mux.HandleFunc("/users/12345/collections/", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/users/12345/collections/"), "/items")
		itemType := r.URL.Query().Get("itemType")
		out := []zotero.Item{}
		for _, item := range f.items[key] {
			if itemType == "" || item.Data.ItemType == itemType {
				out = append(out, item)
			}
		}
		writeJSON(t, w, out)
	})
	mux.HandleFunc("/items/new", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, zotero.ItemData{ItemType: "book"})
	})
	mux.HandleFunc("/users/12345/items", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var batch []zotero.ItemData
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Errorf("decode item create: %v", err)
			return
		}
		successful := map[string]zotero.Item{}
		success := map[string]string{}
		for i, data := range batch {
			key := fmt.Sprintf("NEW%03d", len(f.created)+1)
			f.created = append(f.created, data)
			data.Key = key
			successful[strconv.Itoa(i)] = zotero.Item{Key: key, Version: 1, Data: data}
			success[strconv.Itoa(i)] = key
		}
		writeJSON(t, w, map[string]any{
			"successful": successful,
			"success":    success,
			"unchanged":  map[string]string{},
			"failed":     map[string]zotero.WriteError{},
		})
	})
	return httptest.NewServer(mux)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

// fakeModel scripts the book-identification replies. Every prompt is
// recorded so tests can assert what the model was asked.
type fakeModel struct {
	prompts []string
	reply   func(prompt, format string) string
	status  int
}

func (f *fakeModel) server(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
			Format string `json:"format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode generate request: %v", err)
		}
		f.prompts = append(f.prompts, req.Prompt)
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		writeJSON(t, w, map[string]string{"response": f.reply(req.Prompt, req.Format)})
	}))
}

func newTestService(t *testing.T, shelfURL, modelURL string) *Service {
	t.Helper()
	zot, err := zotero.New(zotero.Config{UserID: "12345", APIKey: "test-key", BaseURL: shelfURL})
	if err != nil {
		t.Fatalf("zotero.New() error = %v", err)
	}
	return NewService(zot, ollama.New(ollama.Config{URL: modelURL, Model: "test-model"}))
}

// authorPattern recovers the winner name every identification prompt
// carries, so scripted replies can answer per author.
var authorPattern = regexp.MustCompile(` by ([^(]+) \(`)

func promptAuthor(prompt string) string {
	m := authorPattern.FindStringSubmatch(prompt)
	if m == nil {
		return ""
	}
	return m[1]
}

var quotedTitle = regexp.MustCompile(`book '([^']+)'`)

// famousBook scripts a model that names one distinct work per author and
// echoes back any title the prompt asks about.
func famousBook(t *testing.T) func(prompt, format string) string {
	return func(prompt, format string) string {
		if format != "json" {
			t.Errorf("format = %q, want json", format)
		}
		if m := quotedTitle.FindStringSubmatch(prompt); m != nil {
			return fmt.Sprintf(`{"title": %q, "year": "1963", "isbn": "9789930941706"}`, m[1])
		}
		return fmt.Sprintf(`{"title": "La obra de %s", "year": 1950, "isbn": null}`, promptAuthor(prompt))
	}
}

func TestImportNobelCreatesBooks(t *testing.T) {
	shelf := &fakeShelf{}
	shelfSrv := shelf.server(t)
	defer shelfSrv.Close()
	model := &fakeModel{reply: famousBook(t)}
	modelSrv := model.server(t)
	defer modelSrv.Close()

	svc := newTestService(t, shelfSrv.URL, modelSrv.URL)
	stats, err := svc.ImportNobel(context.Background(), ImportOptions{})
	if err != nil {
		t.Fatalf("ImportNobel() error = %v", err)
	}

	if stats.Processed != 122 || stats.Created != 122 || stats.Skipped != 0 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 122 processed and created", stats)
	}
	if len(model.prompts) == 0 {
		t.Fatal("no prompts recorded")
	}
	if !strings.Contains(model.prompts[0], "Identify the MOST FAMOUS or NOBEL PRIZE-WINNING book by Sully Prudhomme (Nobel Prize 1901).") {
		t.Errorf("first prompt = %q", model.prompts[0])
	}
	if shelf.collectionPosts != 1 {
		t.Errorf("collection creates = %d, want 1", shelf.collectionPosts)
	}
	if len(shelf.created) != 122 {
		t.Fatalf("created items = %d, want 122", len(shelf.created))
	}

	first := shelf.created[0]
	if first.Title != "La obra de Sully Prudhomme" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.ItemType != "book" {
		t.Errorf("ItemType = %q, want book", first.ItemType)
	}
	if first.Date != "1950" {
		t.Errorf("Date = %q, want 1950", first.Date)
	}
	if first.ISBN != "" {
		t.Errorf("ISBN = %q, want empty for null", first.ISBN)
	}
	if first.Extra != "Nobel Prize in Literature: 1901" {
		t.Errorf("Extra = %q", first.Extra)
	}
	wantCreator := zotero.Creator{CreatorType: "author", FirstName: "Sully", LastName: "Prudhomme"}
	if len(first.Creators) != 1 || first.Creators[0] != wantCreator {
		t.Errorf("Creators = %+v", first.Creators)
	}
	wantTags := []zotero.Tag{{Tag: "Nobel Prize in Literature"}, {Tag: "Nobel 1901"}}
	if len(first.Tags) != 2 || first.Tags[0] != wantTags[0] || first.Tags[1] != wantTags[1] {
		t.Errorf("Tags = %+v", first.Tags)
	}
	if len(first.Collections) != 1 || first.Collections[0] != "COLL1" {
		t.Errorf("Collections = %+v", first.Collections)
	}
}

func TestImportNobelSkipsListedBooks(t *testing.T) {
	seeded := zotero.Collection{Key: "NOBEL1"}
	seeded.Data = zotero.CollectionData{Key: "NOBEL1", Name: "Nobel Prize in Literature"}
	shelf := &fakeShelf{
		collections: []zotero.Collection{seeded},
		items: map[string][]zotero.Item{
			"NOBEL1": {{
				Key: "GGM1",
				Data: zotero.ItemData{
					Key: "GGM1", ItemType: "book",
					Title: "La obra de Gabriel García Márquez",
					Creators: []zotero.Creator{
						{CreatorType: "author", FirstName: "Gabriel", LastName: "García Márquez"},
					},
				},
			}},
		},
	}
	shelfSrv := shelf.server(t)
	defer shelfSrv.Close()
	model := &fakeModel{reply: famousBook(t)}
	modelSrv := model.server(t)
	defer modelSrv.Close()

	svc := newTestService(t, shelfSrv.URL, modelSrv.URL)
	stats, err := svc.ImportNobel(context.Background(), ImportOptions{})
	if err != nil {
		t.Fatalf("ImportNobel() error = %v", err)
	}

	if stats.Skipped != 1 || stats.Created != 121 {
		t.Errorf("stats = %+v, want 1 skipped and 121 created", stats)
	}
	if shelf.collectionPosts != 0 {
		t.Errorf("collection creates = %d, want 0 for an existing collection", shelf.collectionPosts)
	}
	for _, data := range shelf.created {
		if strings.Contains(data.Title, "García Márquez") {
			t.Errorf("duplicate created for listed laureate: %q", data.Title)
		}
	}
}

func TestImportNobelDryRun(t *testing.T) {
	shelf := &fakeShelf{}
	shelfSrv := shelf.server(t)
	defer shelfSrv.Close()
	model := &fakeModel{reply: famousBook(t)}
	modelSrv := model.server(t)
	defer modelSrv.Close()

	svc := newTestService(t, shelfSrv.URL, modelSrv.URL)
	stats, err := svc.ImportNobel(context.Background(), ImportOptions{DryRun: true})
	if err != nil {
		t.Fatalf("ImportNobel() error = %v", err)
	}

	if stats.Created != 122 {
		t.Errorf("Created = %d, want 122 counted", stats.Created)
	}
	if len(shelf.created) != 0 {
		t.Errorf("created items = %d, want none on a dry run", len(shelf.created))
	}
	if shelf.collectionPosts != 0 {
		t.Errorf("collection creates = %d, want none on a dry run", shelf.collectionPosts)
	}
}

func TestImportAquileoPromptsAndAssembly(t *testing.T) {
	shelf := &fakeShelf{}
	shelfSrv := shelf.server(t)
	defer shelfSrv.Close()
	model := &fakeModel{reply: famousBook(t)}
	modelSrv := model.server(t)
	defer modelSrv.Close()

	svc := newTestService(t, shelfSrv.URL, modelSrv.URL)
	stats, err := svc.ImportAquileo(context.Background(), ImportOptions{})
	if err != nil {
		t.Fatalf("ImportAquileo() error = %v", err)
	}

	// Six winners repeat with the same scripted title; Uriel Quesada's two
	// entries carry distinct roster titles and both get in.
	if stats.Processed != 50 || stats.Created != 43 || stats.Skipped != 7 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 50/43/7/0", stats)
	}

	if len(model.prompts) == 0 || len(shelf.created) == 0 {
		t.Fatalf("prompts = %d, created = %d, want both non-empty", len(model.prompts), len(shelf.created))
	}
	titled := model.prompts[0]
	if !strings.Contains(titled, "Provide metadata for the book 'La hora de los vencidos' by Samuel Rovinski (Aquileo J. Echeverría Prize 1963).") {
		t.Errorf("titled prompt = %q", titled)
	}
	var famous string
	for _, p := range model.prompts {
		if strings.Contains(p, "Alberto Cañas") {
			famous = p
			break
		}
	}
	if !strings.Contains(famous, "Identify the MOST FAMOUS book by Alberto Cañas (Aquileo J. Echeverría Prize 1965).") {
		t.Errorf("untitled prompt = %q", famous)
	}

	first := shelf.created[0]
	if first.Title != "La hora de los vencidos" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Date != "1963" || first.ISBN != "9789930941706" {
		t.Errorf("Date/ISBN = %q/%q", first.Date, first.ISBN)
	}
	if first.Extra != "Premio Aquileo J. Echeverría: Cuento (1963)" {
		t.Errorf("Extra = %q", first.Extra)
	}
	wantTags := []zotero.Tag{
		{Tag: "Premio Aquileo J. Echeverría"},
		{Tag: "Aquileo 1963"},
		{Tag: "Cuento"},
	}
	if len(first.Tags) != 3 {
		t.Fatalf("Tags = %+v", first.Tags)
	}
	for i, want := range wantTags {
		if first.Tags[i] != want {
			t.Errorf("Tags[%d] = %+v, want %+v", i, first.Tags[i], want)
		}
	}
}

func TestImportAquileoFallsBackToRosterTitles(t *testing.T) {
	shelf := &fakeShelf{}
	shelfSrv := shelf.server(t)
	defer shelfSrv.Close()
	model := &fakeModel{status: http.StatusInternalServerError}
	modelSrv := model.server(t)
	defer modelSrv.Close()

	svc := newTestService(t, shelfSrv.URL, modelSrv.URL)
	stats, err := svc.ImportAquileo(context.Background(), ImportOptions{})
	if err != nil {
		t.Fatalf("ImportAquileo() error = %v", err)
	}

	// With the model down only the seven roster-titled entries survive.
	if stats.Created != 7 || stats.Failed != 43 {
		t.Errorf("stats = %+v, want 7 created and 43 failed", stats)
	}

	wantTitles := []string{
		"La hora de los vencidos",
		"Tres cantares (El ángel que se quedó perdido)",
		"El atardecer de los niños",
		"La invención y el olvido",
		"Monstruos bajo la lluvia",
		"Anatomía de la casa",
		"Yeso",
	}
	if len(shelf.created) != len(wantTitles) {
		t.Fatalf("created items = %d, want %d", len(shelf.created), len(wantTitles))
	}
	for i, want := range wantTitles {
		if shelf.created[i].Title != want {
			t.Errorf("created[%d].Title = %q, want %q", i, shelf.created[i].Title, want)
		}
	}
	if shelf.created[0].Date != "" {
		t.Errorf("Date = %q, want empty without model metadata", shelf.created[0].Date)
	}
}

func TestListed(t *testing.T) {
	imp := &importer{}
	imp.remember(&zotero.ItemData{
		Title: "Cien años de soledad (edición conmemorativa)",
		Creators: []zotero.Creator{
			{CreatorType: "author", FirstName: "Gabriel", LastName: "García Márquez"},
		},
	})
	imp.remember(&zotero.ItemData{
		Creators: []zotero.Creator{{Name: "Fundación Neruda"}},
	})

	cases := []struct {
		name          string
		title, author string
		want          bool
	}{
		{"shorter title matches listed", "Cien años de soledad", "Gabriel García Márquez", true},
		{"longer title matches listed", "Cien años de soledad (edición conmemorativa) tapa dura", "García Márquez", true},
		{"author mismatch", "Cien años de soledad", "Mario Vargas Llosa", false},
		{"title mismatch", "El otoño del patriarca", "Gabriel García Márquez", false},
		{"untitled listing never matches", "Canto general", "Fundación Neruda", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := imp.listed(tc.title, tc.author); got != tc.want {
				t.Errorf("listed(%q, %q) = %v, want %v", tc.title, tc.author, got, tc.want)
			}
		})
	}
}

func TestSplitName(t *testing.T) {
	cases := []struct {
		in, first, last string
	}{
		{"Gabriel García Márquez", "Gabriel García", "Márquez"},
		{"Colette", "", "Colette"},
		{"Jean-Marie Gustave Le Clézio", "Jean-Marie Gustave Le", "Clézio"},
		{"", "", ""},
	}
	for _, tc := range cases {
		first, last := splitName(tc.in)
		if first != tc.first || last != tc.last {
			t.Errorf("splitName(%q) = %q/%q, want %q/%q", tc.in, first, last, tc.first, tc.last)
		}
	}
}

func TestBookInfoDecoding(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  bookInfo
	}{
		{"year as number", `{"title": "Pedro Páramo", "year": 1955, "isbn": null}`,
			bookInfo{Title: "Pedro Páramo", Year: "1955"}},
		{"year as string", `{"title": "Pedro Páramo", "year": "1955"}`,
			bookInfo{Title: "Pedro Páramo", Year: "1955"}},
		{"null year", `{"title": "Pedro Páramo", "year": null, "isbn": "968-16-0502-2"}`,
			bookInfo{Title: "Pedro Páramo", ISBN: "968-16-0502-2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got bookInfo
			if err := ollama.DecodeJSON(tc.reply, &got); err != nil {
				t.Fatalf("DecodeJSON() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("bookInfo = %+v, want %+v", got, tc.want)
			}
		})
	}
}
