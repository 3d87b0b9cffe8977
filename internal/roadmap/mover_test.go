package roadmap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"changespage/api/internal/store"
)

type positionWrite struct {
	ItemID   string
	Position int
	ColumnID *string
}

// constraintStore mimics the backing table: it applies every write
// immediately and rejects any write that would leave two items in one
// column with the same position, the way the unique index would.
type constraintStore struct {
	mu     sync.Mutex
	items  map[string]*store.RoadmapItem
	writes []positionWrite
	failOn string
}

func newConstraintStore(items ...store.RoadmapItem) *constraintStore {
	s := &constraintStore{items: make(map[string]*store.RoadmapItem)}
	for _, item := range items {
		copied := item
		s.items[item.ID] = &copied
	}
	return s
}

func (s *constraintStore) UpdateItemPosition(_ context.Context, itemID string, position int, columnID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if itemID == s.failOn {
		return errors.New("store rejected write")
	}
	item, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("unknown item %s", itemID)
	}
	newColumn := item.ColumnID
	if columnID != nil {
		newColumn = *columnID
	}
	for _, other := range s.items {
		if other.ID != itemID && other.ColumnID == newColumn && other.Position == position {
			return fmt.Errorf("unique violation: column %s position %d held by %s", newColumn, position, other.ID)
		}
	}
	item.ColumnID = newColumn
	item.Position = position
	s.writes = append(s.writes, positionWrite{ItemID: itemID, Position: position, ColumnID: columnID})
	return nil
}

func (s *constraintStore) columnPositions(columnID string) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int)
	for _, item := range s.items {
		if item.ColumnID == columnID {
			out[item.ID] = item.Position
		}
	}
	return out
}

func assertPositions(t *testing.T, got map[string]int, want map[string]int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d: %v", len(want), len(got), got)
	}
	for id, position := range want {
		if got[id] != position {
			t.Errorf("item %s: expected position %d, got %d", id, position, got[id])
		}
	}
}

func boardItems(columns map[string][]string) []store.RoadmapItem {
	var items []store.RoadmapItem
	for columnID, ids := range columns {
		for i, id := range ids {
			items = append(items, store.RoadmapItem{
				ID:       id,
				ColumnID: columnID,
				Position: i + 1,
			})
		}
	}
	return items
}

func dropSameColumn(t *testing.T, mover *Mover, draggedID, columnID, targetID string, placement Placement) error {
	t.Helper()
	dragged, ok := mover.Board().Item(draggedID)
	if !ok {
		t.Fatalf("item %s not on board", draggedID)
	}
	session := &DragSession{}
	session.BeginDrag(dragged)
	session.HoverItem(columnID, targetID, placement)
	return mover.Drop(context.Background(), session)
}

func TestSameColumnReorderPersistsThroughUniqueConstraint(t *testing.T) {
	items := boardItems(map[string][]string{"col-1": {"A", "B", "C"}})
	backing := newConstraintStore(items...)
	mover := NewMover(backing, NewBoard(items))

	if err := dropSameColumn(t, mover, "C", "col-1", "B", Before); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	assertPositions(t, backing.columnPositions("col-1"), map[string]int{"A": 1, "C": 2, "B": 3})

	// Two phases: one temp write then one final write per affected item.
	if len(backing.writes) != 6 {
		t.Fatalf("expected 6 writes (3 temp + 3 final), got %d", len(backing.writes))
	}
	for _, write := range backing.writes[:3] {
		if write.Position < tempPositionBase {
			t.Errorf("phase 1 write %+v not in temporary range", write)
		}
	}
	for _, write := range backing.writes[3:] {
		if write.Position >= tempPositionBase {
			t.Errorf("phase 2 write %+v still in temporary range", write)
		}
	}
}

func TestSameColumnReorderUpdatesCacheOptimistically(t *testing.T) {
	items := boardItems(map[string][]string{"col-1": {"A", "B", "C"}})
	backing := newConstraintStore(items...)
	mover := NewMover(backing, NewBoard(items))

	if err := dropSameColumn(t, mover, "A", "col-1", "B", After); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	cached := mover.Board().ColumnItems("col-1")
	for i, want := range []string{"B", "A", "C"} {
		if cached[i].ID != want || cached[i].Position != i+1 {
			t.Errorf("cache slot %d: expected %s at position %d, got %s at %d", i, want, i+1, cached[i].ID, cached[i].Position)
		}
	}
}

func TestSameColumnNoopKeepsPositions(t *testing.T) {
	items := boardItems(map[string][]string{"col-1": {"A", "B", "C"}})
	backing := newConstraintStore(items...)
	mover := NewMover(backing, NewBoard(items))

	// Drop on itself.
	if err := dropSameColumn(t, mover, "B", "col-1", "B", Before); err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	// Drop with no resolved hover.
	dragged, _ := mover.Board().Item("A")
	session := &DragSession{}
	session.BeginDrag(dragged)
	session.HoverColumn("col-1")
	if err := mover.Drop(context.Background(), session); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	if len(backing.writes) != 0 {
		t.Fatalf("no-op drops must not write, got %v", backing.writes)
	}
	assertPositions(t, backing.columnPositions("col-1"), map[string]int{"A": 1, "B": 2, "C": 3})
}

func TestCrossColumnMoveIntoEmptyColumnCompactsSource(t *testing.T) {
	// Board: column X = [A:1 B:2 C:3], column Y empty. Drag A into Y with
	// no hover target: A lands at position 1, X compacts to B:1 C:2.
	items := boardItems(map[string][]string{"col-x": {"A", "B", "C"}})
	backing := newConstraintStore(items...)
	mover := NewMover(backing, NewBoard(items))

	dragged, _ := mover.Board().Item("A")
	session := &DragSession{}
	session.BeginDrag(dragged)
	session.HoverColumn("col-y")
	if err := mover.Drop(context.Background(), session); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	assertPositions(t, backing.columnPositions("col-y"), map[string]int{"A": 1})
	assertPositions(t, backing.columnPositions("col-x"), map[string]int{"B": 1, "C": 2})
}

func TestCrossColumnMoveBeforeShiftsSequentiallyDescending(t *testing.T) {
	items := boardItems(map[string][]string{
		"col-x": {"A"},
		"col-y": {"X", "Y", "Z"},
	})
	backing := newConstraintStore(items...)
	mover := NewMover(backing, NewBoard(items))

	dragged, _ := mover.Board().Item("A")
	session := &DragSession{}
	session.BeginDrag(dragged)
	session.HoverItem("col-y", "Y", Before)
	if err := mover.Drop(context.Background(), session); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	assertPositions(t, backing.columnPositions("col-y"), map[string]int{"X": 1, "A": 2, "Y": 3, "Z": 4})

	// Shift writes must come highest-position-first, then the placement.
	if backing.writes[0].ItemID != "Z" || backing.writes[0].Position != 4 {
		t.Errorf("first write should shift Z->4, got %+v", backing.writes[0])
	}
	if backing.writes[1].ItemID != "Y" || backing.writes[1].Position != 3 {
		t.Errorf("second write should shift Y->3, got %+v", backing.writes[1])
	}
	placed := backing.writes[2]
	if placed.ItemID != "A" || placed.Position != 2 || placed.ColumnID == nil || *placed.ColumnID != "col-y" {
		t.Errorf("third write should place A at col-y position 2, got %+v", placed)
	}
}

func TestCrossColumnMoveAfterLastAppends(t *testing.T) {
	items := boardItems(map[string][]string{
		"col-x": {"A", "B"},
		"col-y": {"X", "Y"},
	})
	backing := newConstraintStore(items...)
	mover := NewMover(backing, NewBoard(items))

	dragged, _ := mover.Board().Item("B")
	session := &DragSession{}
	session.BeginDrag(dragged)
	session.HoverItem("col-y", "Y", After)
	if err := mover.Drop(context.Background(), session); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	assertPositions(t, backing.columnPositions("col-y"), map[string]int{"X": 1, "Y": 2, "B": 3})
	assertPositions(t, backing.columnPositions("col-x"), map[string]int{"A": 1})
}

func TestCrossColumnMoveIntoGappedColumn(t *testing.T) {
	// Target column with a position gap (X:1, Z:4). Inserting before Z
	// shifts only Z and takes its slot; no write may collide with the gap.
	items := []store.RoadmapItem{
		{ID: "A", ColumnID: "col-x", Position: 1},
		{ID: "X", ColumnID: "col-y", Position: 1},
		{ID: "Z", ColumnID: "col-y", Position: 4},
	}
	backing := newConstraintStore(items...)
	mover := NewMover(backing, NewBoard(items))

	dragged, _ := mover.Board().Item("A")
	session := &DragSession{}
	session.BeginDrag(dragged)
	session.HoverItem("col-y", "Z", Before)
	if err := mover.Drop(context.Background(), session); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	assertPositions(t, backing.columnPositions("col-y"), map[string]int{"X": 1, "A": 4, "Z": 5})
}

func TestFailedPersistenceSurfacesGenericErrorAndMarksStale(t *testing.T) {
	items := boardItems(map[string][]string{
		"col-x": {"A"},
		"col-y": {"X", "Y"},
	})
	backing := newConstraintStore(items...)
	backing.failOn = "Y"
	mover := NewMover(backing, NewBoard(items))

	dragged, _ := mover.Board().Item("A")
	session := &DragSession{}
	session.BeginDrag(dragged)
	session.HoverItem("col-y", "X", Before)
	err := mover.Drop(context.Background(), session)
	if !errors.Is(err, ErrMoveFailed) {
		t.Fatalf("expected ErrMoveFailed, got %v", err)
	}

	if !mover.Board().Stale() {
		t.Error("board should be marked stale after a failed persistence")
	}

	// The optimistic cache update stays in place: the UI already animated.
	cached := mover.Board().ColumnItems("col-y")
	if len(cached) != 3 || cached[0].ID != "A" {
		t.Errorf("cache should keep the optimistic ordering, got %v", cached)
	}
}

func TestDropWithoutTargetColumnIsCancelled(t *testing.T) {
	items := boardItems(map[string][]string{"col-x": {"A", "B"}})
	backing := newConstraintStore(items...)
	mover := NewMover(backing, NewBoard(items))

	dragged, _ := mover.Board().Item("A")
	session := &DragSession{}
	session.BeginDrag(dragged)
	session.HoverColumn("col-x")
	session.LeaveColumn(false)
	if err := mover.Drop(context.Background(), session); err != nil {
		t.Fatalf("cancelled drop must not fail: %v", err)
	}
	if len(backing.writes) != 0 {
		t.Fatalf("cancelled drop must not write, got %v", backing.writes)
	}
	if _, ok := session.Dragged(); ok {
		t.Error("session must be cleared after drop")
	}
}

func TestRepeatedMovesKeepOrderingInvariant(t *testing.T) {
	items := boardItems(map[string][]string{
		"col-x": {"A", "B", "C", "D"},
		"col-y": {"X", "Y"},
	})
	backing := newConstraintStore(items...)
	mover := NewMover(backing, NewBoard(items))

	moves := []struct {
		dragged   string
		column    string
		target    string
		placement Placement
	}{
		{"D", "col-x", "A", Before},
		{"B", "col-y", "X", After},
		{"A", "col-x", "C", After},
		{"Y", "col-x", "D", Before},
	}
	for _, move := range moves {
		dragged, ok := mover.Board().Item(move.dragged)
		if !ok {
			t.Fatalf("item %s not found", move.dragged)
		}
		session := &DragSession{}
		session.BeginDrag(dragged)
		session.HoverItem(move.column, move.target, move.placement)
		if err := mover.Drop(context.Background(), session); err != nil {
			t.Fatalf("move %+v failed: %v", move, err)
		}
	}

	// After any sequence of successful moves, each column's positions are
	// strictly increasing with no duplicates.
	for _, columnID := range []string{"col-x", "col-y"} {
		positions := backing.columnPositions(columnID)
		seen := make(map[int]string)
		for id, position := range positions {
			if position < 1 {
				t.Errorf("column %s: item %s has position %d < 1", columnID, id, position)
			}
			if other, dup := seen[position]; dup {
				t.Errorf("column %s: duplicate position %d (%s, %s)", columnID, position, id, other)
			}
			seen[position] = id
		}
	}
}
