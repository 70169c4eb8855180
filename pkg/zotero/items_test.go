package zotero

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"

	"github.com/quartoworks/shelfmark/pkg/errors"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestItemsPagination(t *testing.T) {
	const total = 150
	library := make([]Item, total)
	for i := range library {
		library[i] = Item{
			Key:  fmt.Sprintf("KEY%05d", i),
			Data: ItemData{ItemType: "book", Title: fmt.Sprintf("Book %d", i)},
		}
	}

	var requests int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/12345/items" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("itemType"); got != "book" {
			t.Errorf("itemType = %q, want book", got)
		}
		requests++

		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end := start + limit
		if end > total {
			end = total
		}
		w.Header().Set("Total-Results", strconv.Itoa(total))
		writeJSON(t, w, library[start:end])
	}))

	items, err := client.Items(context.Background(), ItemQuery{ItemType: "book"})
	if err != nil {
		t.Fatalf("Items() failed: %v", err)
	}
	if len(items) != total {
		t.Errorf("got %d items, want %d", len(items), total)
	}
	if requests != 2 {
		t.Errorf("made %d requests, want 2", requests)
	}
	if items[0].Key != "KEY00000" || items[total-1].Key != "KEY00149" {
		t.Errorf("page order wrong: first %s last %s", items[0].Key, items[total-1].Key)
	}
}

func TestItemsLimit(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "3" {
			t.Errorf("limit = %q, want 3 (capped to the query limit)", got)
		}
		w.Header().Set("Total-Results", "500")
		writeJSON(t, w, []Item{{Key: "A"}, {Key: "B"}, {Key: "C"}})
	}))

	items, err := client.Items(context.Background(), ItemQuery{Limit: 3})
	if err != nil {
		t.Fatalf("Items() failed: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("got %d items, want 3", len(items))
	}
}

func TestChildrenFiltersByType(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/12345/items/PARENT01/children" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("itemType"); got != "note" {
			t.Errorf("itemType = %q, want note", got)
		}
		writeJSON(t, w, []Item{{Key: "NOTE0001", Data: ItemData{ItemType: "note", Note: "<p>hi</p>"}}})
	}))

	notes, err := client.Children(context.Background(), "PARENT01", "note")
	if err != nil {
		t.Fatalf("Children() failed: %v", err)
	}
	if len(notes) != 1 || notes[0].Data.Note != "<p>hi</p>" {
		t.Errorf("children = %+v", notes)
	}
}

func TestUpdateItemSendsVersionHeader(t *testing.T) {
	var gotHeader string
	var gotBody ItemData
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		gotHeader = r.Header.Get("If-Unmodified-Since-Version")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Last-Modified-Version", "43")
		w.WriteHeader(http.StatusNoContent)
	}))

	item := &Item{
		Key:     "ABCD2345",
		Version: 42,
		Data:    ItemData{Key: "ABCD2345", Version: 42, ItemType: "book", Title: "Ficciones"},
	}
	if err := client.UpdateItem(context.Background(), item); err != nil {
		t.Fatalf("UpdateItem() failed: %v", err)
	}

	if gotHeader != "42" {
		t.Errorf("If-Unmodified-Since-Version = %q, want 42", gotHeader)
	}
	if gotBody.Title != "Ficciones" {
		t.Errorf("body title = %q", gotBody.Title)
	}
	if item.Version != 43 || item.Data.Version != 43 {
		t.Errorf("version not advanced: %d/%d", item.Version, item.Data.Version)
	}
}

// TestModifyItemReplaysOnConflict loses the first write to a concurrent
// edit and checks the mutation is replayed on the re-fetched item rather
// than surfaced as an error or written over the newer version.
func TestModifyItemReplaysOnConflict(t *testing.T) {
	serverVersion := 10
	var gets, puts int
	var lastPutHeader string
	var lastPutBody ItemData

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			gets++
			writeJSON(t, w, Item{
				Key:     "ABCD2345",
				Version: serverVersion,
				Data:    ItemData{Key: "ABCD2345", Version: serverVersion, ItemType: "book", Title: "Rayuela"},
			})
		case http.MethodPut:
			puts++
			lastPutHeader = r.Header.Get("If-Unmodified-Since-Version")
			if err := json.NewDecoder(r.Body).Decode(&lastPutBody); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if lastPutHeader != strconv.Itoa(serverVersion) {
				// Simulate the concurrent edit: the first write sees a
				// stale version and is rejected.
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
			serverVersion++
			w.Header().Set("Last-Modified-Version", strconv.Itoa(serverVersion))
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	// Bump the server version between the client's read and write.
	mutations := 0
	item, err := client.ModifyItem(context.Background(), "ABCD2345", func(d *ItemData) error {
		mutations++
		if mutations == 1 {
			serverVersion = 11
		}
		d.AbstractNote = "Hopscotch."
		return nil
	})
	if err != nil {
		t.Fatalf("ModifyItem() failed: %v", err)
	}

	if gets != 2 || puts != 2 {
		t.Errorf("gets=%d puts=%d, want 2/2", gets, puts)
	}
	if mutations != 2 {
		t.Errorf("mutation ran %d times, want 2", mutations)
	}
	if lastPutHeader != "11" {
		t.Errorf("replay version header = %q, want 11", lastPutHeader)
	}
	if lastPutBody.AbstractNote != "Hopscotch." {
		t.Errorf("replay body missing mutation: %+v", lastPutBody)
	}
	if item.Version != 12 {
		t.Errorf("final version = %d, want 12", item.Version)
	}
}

func TestCreateItemsParsesWriteResult(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var batch []ItemData
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Errorf("decode batch: %v", err)
		}
		if len(batch) != 3 {
			t.Errorf("batch size = %d, want 3", len(batch))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"successful": {"0": {"key": "NEW00001", "version": 1, "data": {"key": "NEW00001", "itemType": "book"}}},
			"success": {"0": "NEW00001", "2": "NEW00003"},
			"unchanged": {},
			"failed": {"1": {"code": 400, "message": "'invalid' is not a valid item type"}}
		}`))
	}))

	result, err := client.CreateItems(context.Background(),
		ItemData{ItemType: "book", Title: "A"},
		ItemData{ItemType: "invalid"},
		ItemData{ItemType: "book", Title: "C"},
	)
	if err != nil {
		t.Fatalf("CreateItems() failed: %v", err)
	}

	keys := result.CreatedKeys()
	if len(keys) != 2 || keys[0] != "NEW00001" || keys[1] != "NEW00003" {
		t.Errorf("CreatedKeys = %v", keys)
	}
	if result.First() == nil || result.First().Key != "NEW00001" {
		t.Errorf("First = %+v", result.First())
	}
	if result.Err() == nil {
		t.Error("Err() should report the rejected entry")
	}
}

func TestItemTemplate(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/items/new" {
			t.Errorf("unexpected path %s (templates live outside the library prefix)", r.URL.Path)
		}
		if got := r.URL.Query().Get("itemType"); got != "book" {
			t.Errorf("itemType = %q, want book", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"itemType": "book", "title": "", "creators": [{"creatorType": "author", "firstName": "", "lastName": ""}], "tags": [], "collections": [], "relations": {}}`))
	}))

	data, err := client.ItemTemplate(context.Background(), "book")
	if err != nil {
		t.Fatalf("ItemTemplate() failed: %v", err)
	}
	if data.ItemType != "book" {
		t.Errorf("template itemType = %q", data.ItemType)
	}
	if len(data.Creators) != 1 || data.Creators[0].CreatorType != "author" {
		t.Errorf("template creators = %+v", data.Creators)
	}
}

func matchLibrary() []Item {
	return []Item{
		{
			Key:  "ROAD0001",
			Meta: ItemMeta{CreatorSummary: "McCarthy"},
			Data: ItemData{ItemType: "book", Title: "The Road",
				Creators: []Creator{{CreatorType: "author", FirstName: "Cormac", LastName: "McCarthy"}}},
		},
		{
			Key:  "ROAD0002",
			Meta: ItemMeta{CreatorSummary: "Anaya"},
			Data: ItemData{ItemType: "book", Title: "The Road",
				Creators: []Creator{{CreatorType: "author", FirstName: "Rudolfo", LastName: "Anaya"}}},
		},
		{
			Key:  "ROAD0003",
			Meta: ItemMeta{CreatorSummary: "Orwell"},
			Data: ItemData{ItemType: "book", Title: "The Road to Wigan Pier",
				Creators: []Creator{{CreatorType: "author", FirstName: "George", LastName: "Orwell"}}},
		},
	}
}

func newMatchClient(t *testing.T) *Client {
	t.Helper()
	return newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, matchLibrary())
	}))
}

func TestMatchItemAmbiguous(t *testing.T) {
	client := newMatchClient(t)

	_, err := client.MatchItem(context.Background(), "The Road", "", "book")
	if err == nil {
		t.Fatal("two exact title matches must not silently resolve")
	}
	if !errors.IsAmbiguous(err) {
		t.Fatalf("expected ambiguous match error, got %v", err)
	}

	var ambiguous *errors.AmbiguousMatchError
	if !stderrors.As(err, &ambiguous) {
		t.Fatalf("error is not AmbiguousMatchError: %v", err)
	}
	if len(ambiguous.Keys) != 2 {
		t.Errorf("candidate keys = %v, want the two exact matches", ambiguous.Keys)
	}
}

func TestMatchItemAuthorDisambiguates(t *testing.T) {
	client := newMatchClient(t)

	item, err := client.MatchItem(context.Background(), "The Road", "Cormac McCarthy", "book")
	if err != nil {
		t.Fatalf("MatchItem() failed: %v", err)
	}
	if item.Key != "ROAD0001" {
		t.Errorf("matched %s, want ROAD0001", item.Key)
	}
}

func TestMatchItemSubstringFallback(t *testing.T) {
	client := newMatchClient(t)

	// No exact title match survives the author filter, so the substring
	// match "The Road to Wigan Pier" is the lone candidate.
	item, err := client.MatchItem(context.Background(), "the road", "Orwell", "book")
	if err != nil {
		t.Fatalf("MatchItem() failed: %v", err)
	}
	if item.Key != "ROAD0003" {
		t.Errorf("matched %s, want ROAD0003", item.Key)
	}
}

func TestMatchItemNotFound(t *testing.T) {
	client := newMatchClient(t)

	_, err := client.MatchItem(context.Background(), "Blood Meridian", "", "book")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestDeleteItemSendsVersionHeader(t *testing.T) {
	var gotMethod, gotHeader string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("If-Unmodified-Since-Version")
		w.WriteHeader(http.StatusNoContent)
	}))

	item := &Item{Key: "GONE0001", Version: 7}
	if err := client.DeleteItem(context.Background(), item); err != nil {
		t.Fatalf("DeleteItem() failed: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", gotMethod)
	}
	if gotHeader != "7" {
		t.Errorf("If-Unmodified-Since-Version = %q, want 7", gotHeader)
	}
}
