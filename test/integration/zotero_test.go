// Package integration holds tests that talk to the live Zotero API.
// They run only when ZOTERO_USER_ID and ZOTERO_API_KEY are set, and they
// only read.
package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/quartoworks/shelfmark/pkg/zotero"
)

func liveClient(t *testing.T) *zotero.Client {
	t.Helper()

	userID := os.Getenv("ZOTERO_USER_ID")
	apiKey := os.Getenv("ZOTERO_API_KEY")
	if userID == "" || apiKey == "" {
		t.Skip("ZOTERO_USER_ID and ZOTERO_API_KEY not set; skipping live test")
	}

	client, err := zotero.New(zotero.Config{
		UserID:      userID,
		APIKey:      apiKey,
		LibraryType: os.Getenv("ZOTERO_LIBRARY_TYPE"),
		Timeout:     30 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestLiveItems(t *testing.T) {
	client := liveClient(t)

	items, err := client.Items(context.Background(), zotero.ItemQuery{Limit: 5})
	if err != nil {
		t.Fatalf("Items() failed: %v", err)
	}
	t.Logf("fetched %d items", len(items))

	for _, item := range items {
		if item.Key == "" {
			t.Error("item returned without a key")
		}
	}
}

func TestLiveCollections(t *testing.T) {
	client := liveClient(t)

	collections, err := client.Collections(context.Background())
	if err != nil {
		t.Fatalf("Collections() failed: %v", err)
	}
	t.Logf("fetched %d collections", len(collections))
}

func TestLiveItemRoundTrip(t *testing.T) {
	client := liveClient(t)
	ctx := context.Background()

	items, err := client.Items(ctx, zotero.ItemQuery{Limit: 1})
	if err != nil {
		t.Fatalf("Items() failed: %v", err)
	}
	if len(items) == 0 {
		t.Skip("library is empty")
	}

	// Fetching a single item by key must agree with the listing.
	item, err := client.Item(ctx, items[0].Key)
	if err != nil {
		t.Fatalf("Item(%s) failed: %v", items[0].Key, err)
	}
	if item.Key != items[0].Key {
		t.Errorf("Item() key = %q, want %q", item.Key, items[0].Key)
	}
	if item.Version != items[0].Version {
		t.Logf("version moved between calls: %d -> %d", items[0].Version, item.Version)
	}
}
