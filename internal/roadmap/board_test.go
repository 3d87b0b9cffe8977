package roadmap

import (
	"testing"

	"changespage/api/internal/store"
)

// assertItemOrder checks a column snapshot's display order.
func assertItemOrder(t *testing.T, items []store.RoadmapItem, want ...string) {
	t.Helper()
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d: %v", len(want), len(items), items)
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("index %d: expected %s, got %s", i, id, items[i].ID)
		}
	}
}

func TestBoardGroupsAndSortsByColumn(t *testing.T) {
	board := NewBoard([]store.RoadmapItem{
		{ID: "C", ColumnID: "col-1", Position: 3},
		{ID: "A", ColumnID: "col-1", Position: 1},
		{ID: "X", ColumnID: "col-2", Position: 1},
		{ID: "B", ColumnID: "col-1", Position: 2},
	})

	assertItemOrder(t, board.ColumnItems("col-1"), "A", "B", "C")
	assertItemOrder(t, board.ColumnItems("col-2"), "X")
	if items := board.ColumnItems("col-3"); len(items) != 0 {
		t.Errorf("unknown column should be empty, got %d items", len(items))
	}
}

func TestBoardColumnItemsReturnsCopy(t *testing.T) {
	board := NewBoard([]store.RoadmapItem{
		{ID: "A", ColumnID: "col-1", Position: 1},
	})
	items := board.ColumnItems("col-1")
	items[0].Position = 99

	fresh := board.ColumnItems("col-1")
	if fresh[0].Position != 1 {
		t.Error("mutating the returned slice must not affect the cache")
	}
}

func TestBoardMoveItemRelocatesAcrossColumns(t *testing.T) {
	board := NewBoard([]store.RoadmapItem{
		{ID: "A", ColumnID: "col-1", Position: 1},
		{ID: "B", ColumnID: "col-1", Position: 2},
		{ID: "X", ColumnID: "col-2", Position: 1},
	})

	board.MoveItem("A", "col-2", 2)

	assertItemOrder(t, board.ColumnItems("col-1"), "B")
	assertItemOrder(t, board.ColumnItems("col-2"), "X", "A")
	moved, ok := board.Item("A")
	if !ok || moved.ColumnID != "col-2" || moved.Position != 2 {
		t.Errorf("expected A in col-2 at position 2, got %+v", moved)
	}
}

func TestBoardReplaceClearsStaleFlag(t *testing.T) {
	board := NewBoard(nil)
	board.MarkStale()
	if !board.Stale() {
		t.Fatal("MarkStale must set the stale flag")
	}

	board.Replace([]store.RoadmapItem{{ID: "A", ColumnID: "col-1", Position: 1}})
	if board.Stale() {
		t.Error("Replace must clear the stale flag")
	}
}

func TestBoardRevisionAdvancesOnMutation(t *testing.T) {
	board := NewBoard(nil)
	before := board.Revision()

	board.ApplyPositions("col-1", nil)
	if board.Revision() == before {
		t.Error("ApplyPositions must bump the revision")
	}
}
