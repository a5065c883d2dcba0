package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/iamwavecut/ngprep/internal/db"
)

func newTestClient(t *testing.T) *sqliteClient {
	t.Helper()

	client, err := NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNormalizedCacheRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)
	key := db.CacheKey("Привет!!!")

	if _, ok, err := client.GetNormalized(ctx, key); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := client.SetNormalized(ctx, key, "привет!"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := client.GetNormalized(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got != "привет!" {
		t.Fatalf("got %q", got)
	}

	if err := client.SetNormalized(ctx, key, "привет"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _, _ = client.GetNormalized(ctx, key)
	if got != "привет" {
		t.Fatalf("overwrite not applied, got %q", got)
	}

	stats, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Entries != 1 || stats.Hits != 2 {
		t.Fatalf("unexpected stats %#v", stats)
	}
}

func TestNormalizedCacheStoresEmptyResults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)
	key := db.CacheKey("hello")

	if err := client.SetNormalized(ctx, key, ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := client.GetNormalized(ctx, key)
	if err != nil || !ok || got != "" {
		t.Fatalf("expected cached empty result, got %q ok=%v err=%v", got, ok, err)
	}
}

func TestNormalizedCachePurge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)
	base := time.Unix(1_700_000_000, 0)

	client.now = func() time.Time { return base }
	if err := client.SetNormalized(ctx, "old", "старое"); err != nil {
		t.Fatalf("set old: %v", err)
	}
	client.now = func() time.Time { return base.Add(48 * time.Hour) }
	if err := client.SetNormalized(ctx, "fresh", "новое"); err != nil {
		t.Fatalf("set fresh: %v", err)
	}

	n, err := client.Purge(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d rows, want 1", n)
	}
	if _, ok, _ := client.GetNormalized(ctx, "old"); ok {
		t.Fatal("old entry survived purge")
	}
	if _, ok, _ := client.GetNormalized(ctx, "fresh"); !ok {
		t.Fatal("fresh entry purged")
	}
}

func TestMigrationsCreateIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	var names []string
	if err := client.db.SelectContext(ctx, &names, "SELECT name FROM pragma_index_list('normalized_cache')"); err != nil {
		t.Fatalf("index list: %v", err)
	}
	found := false
	for _, name := range names {
		if name == "idx_normalized_cache_updated_at" {
			found = true
		}
	}
	if !found {
		t.Fatalf("index missing, have %v", names)
	}
}
