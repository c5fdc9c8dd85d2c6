package search

import (
	"context"
	"testing"
	"time"

	"docuflex/internal/events"
	"docuflex/internal/store"
)

func testTree(bus *events.Broadcaster) *store.Tree {
	return store.NewTree(&store.Item{
		ID:   store.RootID,
		Name: "Root",
		Type: store.TypeFolder,
		Children: []*store.Item{
			{ID: "f1", Name: "Reports", Type: store.TypeFolder, Children: []*store.Item{
				{ID: "d1", Name: "Annual.pdf", Type: store.TypePDF, Content: "annual revenue summary"},
			}},
			{ID: "d2", Name: "Notes.docx", Type: store.TypeDoc, Content: "meeting notes"},
		},
	}, store.WithEvents(bus))
}

func TestServiceFallsBackToMemory(t *testing.T) {
	svc := NewService(nil, nil, nil)
	svc.ReindexAll(testTree(events.NewBroadcaster()).Snapshot())

	resp := svc.Search(Query{Text: "revenue"})
	if resp.Backend != BackendMemory {
		t.Fatalf("expected memory backend, got %q", resp.Backend)
	}
	if resp.Total != 1 || resp.Results[0].ID != "d1" {
		t.Fatalf("expected d1, got %+v", resp)
	}

	empty := svc.Search(Query{Text: "nothing here"})
	if empty.Results == nil {
		t.Fatal("expected non-nil empty results")
	}
}

func TestServiceReindexSkipsRoot(t *testing.T) {
	mem := NewMemory()
	svc := NewService(nil, mem, nil)
	svc.ReindexAll(testTree(events.NewBroadcaster()).Snapshot())
	if mem.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", mem.Len())
	}
}

func TestServiceFollowsTreeEvents(t *testing.T) {
	bus := events.NewBroadcaster()
	tree := testTree(bus)
	mem := NewMemory()
	svc := NewService(nil, mem, nil)
	svc.ReindexAll(tree.Snapshot())

	ctx, cancel := context.WithCancel(context.Background())
	done := svc.Follow(ctx, tree, bus)

	if err := tree.Insert("f1", &store.Item{ID: "d3", Name: "Forecast.pdf", Type: store.TypePDF, Content: "forecast revenue"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	waitFor(t, func() bool { return svc.Search(Query{Text: "forecast"}).Total == 1 })

	name := "Renamed.docx"
	if err := tree.Update("d2", store.ItemPatch{Name: &name}); err != nil {
		t.Fatalf("update: %v", err)
	}
	waitFor(t, func() bool { return svc.Search(Query{Text: "renamed"}).Total == 1 })

	if _, err := tree.Delete("f1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	waitFor(t, func() bool { return svc.Search(Query{Text: "revenue"}).Total == 0 })
	if mem.Len() != 1 {
		t.Fatalf("expected only d2 to remain indexed, got %d records", mem.Len())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected follower to stop after cancel")
	}
	if bus.Count() != 0 {
		t.Fatalf("expected follower to unsubscribe, got %d subscribers", bus.Count())
	}
}

func TestServiceResyncDropsStaleRecords(t *testing.T) {
	mem := NewMemory()
	svc := NewService(nil, mem, nil)
	if err := mem.IndexItems([]ItemRecord{{ID: "gone", Name: "Deleted revenue.pdf", Type: "pdf"}}); err != nil {
		t.Fatalf("index: %v", err)
	}

	svc.Resync(testTree(events.NewBroadcaster()).Snapshot())

	if mem.Len() != 3 {
		t.Fatalf("expected 3 records after resync, got %d", mem.Len())
	}
	resp := svc.Search(Query{Text: "revenue"})
	if resp.Total != 1 || resp.Results[0].ID != "d1" {
		t.Fatalf("expected only d1, got %+v", resp.Results)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
