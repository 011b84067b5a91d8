package seen_test

import (
	"context"
	"testing"
	"time"

	"coursewatch/internal/catalog"
	"coursewatch/internal/seen"
	"coursewatch/internal/testsupport"
)

func item(id, title string) catalog.Item {
	return catalog.Item{ID: id, Title: title, URL: "https://www.udemy.com/course/" + id + "/"}
}

func TestDiffAndMarkReturnsOnlyNewItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	fresh, err := store.DiffAndMark(ctx, []catalog.Item{item("a", "A"), item("b", "B")})
	if err != nil {
		t.Fatalf("DiffAndMark failed: %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("expected 2 new items, got %d", len(fresh))
	}

	fresh, err = store.DiffAndMark(ctx, []catalog.Item{item("a", "A"), item("c", "C")})
	if err != nil {
		t.Fatalf("second DiffAndMark failed: %v", err)
	}
	if len(fresh) != 1 || fresh[0].ID != "c" {
		t.Fatalf("expected only item c, got %+v", fresh)
	}
}

func TestDiffAndMarkPreservesListingOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	items := []catalog.Item{item("z", "Z"), item("a", "A"), item("m", "M")}
	fresh, err := store.DiffAndMark(context.Background(), items)
	if err != nil {
		t.Fatalf("DiffAndMark failed: %v", err)
	}
	for i := range items {
		if fresh[i].ID != items[i].ID {
			t.Fatalf("order not preserved at %d: got %q want %q", i, fresh[i].ID, items[i].ID)
		}
	}
}

func TestDiffAndMarkRefreshesSeenMetadata(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.DiffAndMark(ctx, []catalog.Item{item("a", "A")}); err != nil {
		t.Fatalf("DiffAndMark failed: %v", err)
	}
	if _, err := store.DiffAndMark(ctx, []catalog.Item{item("a", "A")}); err != nil {
		t.Fatalf("second DiffAndMark failed: %v", err)
	}

	record, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record == nil {
		t.Fatal("record not found")
	}
	if record.SeenCount != 2 {
		t.Fatalf("expected seen count 2, got %d", record.SeenCount)
	}
	if record.LastSeenAt.Before(record.FirstSeenAt) {
		t.Fatal("last seen precedes first seen")
	}
}

func TestUnnotifiedSurvivesFailedDigest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	// Cycle N discovers A and B but the digest never confirms.
	if _, err := store.DiffAndMark(ctx, []catalog.Item{item("a", "A"), item("b", "B")}); err != nil {
		t.Fatalf("DiffAndMark failed: %v", err)
	}

	// Cycle N+1 discovers C; the digest should carry all three.
	if _, err := store.DiffAndMark(ctx, []catalog.Item{item("a", "A"), item("b", "B"), item("c", "C")}); err != nil {
		t.Fatalf("second DiffAndMark failed: %v", err)
	}

	pending, err := store.Unnotified(ctx)
	if err != nil {
		t.Fatalf("Unnotified failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending records, got %d", len(pending))
	}

	ids := make([]string, len(pending))
	for i, rec := range pending {
		ids[i] = rec.Identity
	}
	if err := store.MarkNotified(ctx, ids); err != nil {
		t.Fatalf("MarkNotified failed: %v", err)
	}

	pending, err = store.Unnotified(ctx)
	if err != nil {
		t.Fatalf("Unnotified after mark failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending records, got %d", len(pending))
	}
}

func TestSeenSetSurvivesReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	store, err := seen.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := store.DiffAndMark(ctx, []catalog.Item{item("a", "A")}); err != nil {
		t.Fatalf("DiffAndMark failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	fresh, err := reopened.DiffAndMark(ctx, []catalog.Item{item("a", "A"), item("b", "B")})
	if err != nil {
		t.Fatalf("DiffAndMark after reopen failed: %v", err)
	}
	if len(fresh) != 1 || fresh[0].ID != "b" {
		t.Fatalf("seen set did not survive restart: %+v", fresh)
	}
}

func TestPruneRemovesOnlyNotifiedRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.DiffAndMark(ctx, []catalog.Item{item("a", "A"), item("b", "B")}); err != nil {
		t.Fatalf("DiffAndMark failed: %v", err)
	}
	if err := store.MarkNotified(ctx, []string{"a"}); err != nil {
		t.Fatalf("MarkNotified failed: %v", err)
	}

	// A cutoff in the future makes every record "old".
	removed, err := store.Prune(ctx, -time.Hour)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned record, got %d", removed)
	}
	record, err := store.Get(ctx, "b")
	if err != nil || record == nil {
		t.Fatalf("unnotified record should survive prune: rec=%v err=%v", record, err)
	}
}

func TestStatsReportsTotals(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.DiffAndMark(ctx, []catalog.Item{item("a", "A"), item("b", "B")}); err != nil {
		t.Fatalf("DiffAndMark failed: %v", err)
	}
	if err := store.MarkNotified(ctx, []string{"a"}); err != nil {
		t.Fatalf("MarkNotified failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 2 || stats.Unnotified != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.LastSeenAt.IsZero() {
		t.Fatal("expected last seen timestamp")
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if err := store.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
}

func TestIdentityFallsBackToURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	noID := catalog.Item{Title: "No ID", URL: "https://www.udemy.com/course/no-id/?couponCode=X"}
	if _, err := store.DiffAndMark(ctx, []catalog.Item{noID}); err != nil {
		t.Fatalf("DiffAndMark failed: %v", err)
	}

	// Same course with a different tracking parameter is not new.
	again := catalog.Item{Title: "No ID", URL: "https://www.udemy.com/course/no-id/?couponCode=Y"}
	fresh, err := store.DiffAndMark(ctx, []catalog.Item{again})
	if err != nil {
		t.Fatalf("second DiffAndMark failed: %v", err)
	}
	if len(fresh) != 0 {
		t.Fatalf("tracking parameter change should not create a new record: %+v", fresh)
	}
}

func TestListOrdersByMostRecentSighting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.DiffAndMark(ctx, []catalog.Item{item("a", "A"), item("b", "B")}); err != nil {
		t.Fatalf("DiffAndMark failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := store.DiffAndMark(ctx, []catalog.Item{item("c", "C")}); err != nil {
		t.Fatalf("second DiffAndMark failed: %v", err)
	}

	records, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 3 || records[0].Identity != "c" {
		t.Fatalf("expected c first, got %+v", records)
	}

	capped, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List with limit failed: %v", err)
	}
	if len(capped) != 2 || capped[0].Identity != "c" {
		t.Fatalf("unexpected capped listing: %+v", capped)
	}
}
