package activity

import (
	"context"
	"testing"
	"time"

	"github.com/matthewbaird/compliance/internal/types"
)

func testEntry(entityType, entityID, category, stage, summary string, daysAgo int) types.ActivityEntry {
	return types.ActivityEntry{
		EventID:           "test-" + summary,
		EventType:         "corrective_issue_tracked",
		OccurredAt:        time.Now().AddDate(0, 0, -daysAgo),
		IndexedEntityType: entityType,
		IndexedEntityID:   entityID,
		EntityRole:        "subject",
		Summary:           summary,
		Category:          category,
		Stage:             stage,
	}
}

func TestMemoryStore_WriteAndQuery(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	entries := []types.ActivityEntry{
		testEntry("corrective_issue", "inspection:1", "Plumbing", "needs_work_order", "Plumbing tracked", 10),
		testEntry("corrective_issue", "inspection:1", "Plumbing", "work_order_created", "Work order created", 5),
		testEntry("corrective_issue", "inspection:2", "Electrical", "needs_work_order", "Electrical tracked", 10),
	}

	if err := store.WriteEntries(ctx, entries); err != nil {
		t.Fatalf("WriteEntries: %v", err)
	}

	results, _, total, err := store.QueryByEntity(ctx, "corrective_issue", "inspection:1", DefaultQueryOptions())
	if err != nil {
		t.Fatalf("QueryByEntity: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Stage != "work_order_created" {
		t.Errorf("first stage = %q, want newest entry first", results[0].Stage)
	}
}

func TestMemoryStore_WriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	e := testEntry("corrective_issue", "inspection:1", "Plumbing", "needs_work_order", "tracked", 1)
	store.WriteEntries(ctx, []types.ActivityEntry{e})
	store.WriteEntries(ctx, []types.ActivityEntry{e})

	_, _, total, _ := store.QueryByEntity(ctx, "corrective_issue", "inspection:1", DefaultQueryOptions())
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
}

func TestMemoryStore_QueryByEntity_FilterStage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	entries := []types.ActivityEntry{
		testEntry("property", "prop-1", "Plumbing", "needs_work_order", "tracked", 10),
		testEntry("property", "prop-1", "Plumbing", "closed", "closed", 5),
	}
	store.WriteEntries(ctx, entries)

	opts := DefaultQueryOptions()
	opts.Stages = []string{"closed"}
	results, _, total, err := store.QueryByEntity(ctx, "property", "prop-1", opts)
	if err != nil {
		t.Fatalf("QueryByEntity: %v", err)
	}
	if total != 1 || len(results) != 1 {
		t.Fatalf("total = %d, results = %d, want 1", total, len(results))
	}
	if results[0].Stage != "closed" {
		t.Errorf("stage = %q, want closed", results[0].Stage)
	}
}

func TestMemoryStore_QueryByEntity_TimeWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	entries := []types.ActivityEntry{
		testEntry("property", "prop-1", "Plumbing", "closed", "Recent", 5),
		testEntry("property", "prop-1", "Plumbing", "closed", "Old", 200),
	}
	store.WriteEntries(ctx, entries)

	since := time.Now().AddDate(0, 0, -30)
	opts := DefaultQueryOptions()
	opts.Since = &since
	results, _, total, err := store.QueryByEntity(ctx, "property", "prop-1", opts)
	if err != nil {
		t.Fatalf("QueryByEntity: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
	if len(results) != 1 || results[0].Summary != "Recent" {
		t.Errorf("expected only 'Recent' entry")
	}
}

func TestMemoryStore_QueryByEntity_DefaultKeepsOldHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.WriteEntries(ctx, []types.ActivityEntry{
		testEntry("corrective_issue", "inspection:1", "Plumbing", "needs_work_order", "Tracked", 800),
		testEntry("corrective_issue", "inspection:1", "Plumbing", "closed", "Closed", 2),
	})

	results, _, total, err := store.QueryByEntity(ctx, "corrective_issue", "inspection:1", DefaultQueryOptions())
	if err != nil {
		t.Fatalf("QueryByEntity: %v", err)
	}
	if total != 2 || len(results) != 2 {
		t.Fatalf("total = %d, len = %d, want 2 entries", total, len(results))
	}
}

func TestMemoryStore_QueryByEntity_Cursor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 1; i <= 3; i++ {
		e := testEntry("property", "prop-1", "Plumbing", "closed", "entry", i)
		e.EventID = e.EventID + string(rune('0'+i))
		store.WriteEntries(ctx, []types.ActivityEntry{e})
	}

	opts := DefaultQueryOptions()
	opts.Limit = 2
	page1, cursor, total, _ := store.QueryByEntity(ctx, "property", "prop-1", opts)
	if total != 3 || len(page1) != 2 || cursor == "" {
		t.Fatalf("page1 = %d entries, total %d, cursor %q", len(page1), total, cursor)
	}

	opts.Cursor = cursor
	page2, cursor2, _, _ := store.QueryByEntity(ctx, "property", "prop-1", opts)
	if len(page2) != 1 || cursor2 != "" {
		t.Errorf("page2 = %d entries, cursor %q; want 1 entry and no cursor", len(page2), cursor2)
	}
}

func TestMemoryStore_Search(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	entries := []types.ActivityEntry{
		testEntry("corrective_issue", "inspection:1", "Plumbing", "work_order_created", "Work order WO-1 created", 5),
		testEntry("corrective_issue", "inspection:2", "Plumbing", "closed", "inspection:2 closed", 10),
		testEntry("work_order", "WO-1", "Plumbing", "work_order_created", "Work order WO-1 created", 3),
	}
	store.WriteEntries(ctx, entries)

	results, total, err := store.Search(ctx, "work order", DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if len(results) != 2 {
		t.Errorf("results = %d, want 2", len(results))
	}

	opts := DefaultSearchOptions()
	opts.EntityType = "work_order"
	results, total, _ = store.Search(ctx, "work order", opts)
	if total != 1 || results[0].IndexedEntityType != "work_order" {
		t.Errorf("expected only work_order entity")
	}
}

func TestMemoryStore_EmptyStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	results, _, total, err := store.QueryByEntity(ctx, "corrective_issue", "nobody", DefaultQueryOptions())
	if err != nil {
		t.Fatalf("QueryByEntity: %v", err)
	}
	if total != 0 || len(results) != 0 {
		t.Errorf("expected empty results from empty store")
	}
}
