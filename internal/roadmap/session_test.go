package roadmap

import (
	"testing"

	"changespage/api/internal/store"
)

func TestDragSessionLifecycle(t *testing.T) {
	session := &DragSession{}

	if _, ok := session.Dragged(); ok {
		t.Fatal("fresh session must have no dragged item")
	}

	session.BeginDrag(store.RoadmapItem{ID: "A", ColumnID: "col-1"})
	dragged, ok := session.Dragged()
	if !ok || dragged.ID != "A" {
		t.Fatalf("expected dragged item A, got %v ok=%v", dragged, ok)
	}

	session.HoverItem("col-2", "X", After)
	columnID, hover := session.DropTarget()
	if columnID != "col-2" {
		t.Errorf("expected hovered column col-2, got %q", columnID)
	}
	if hover == nil || hover.ItemID != "X" || hover.Placement != After {
		t.Errorf("expected hover after X, got %+v", hover)
	}

	session.EndDrag()
	if _, ok := session.Dragged(); ok {
		t.Error("EndDrag must clear the dragged item")
	}
	columnID, hover = session.DropTarget()
	if columnID != "" || hover != nil {
		t.Error("EndDrag must clear hover state")
	}
}

func TestHoverItemTakesPrecedenceOverColumnHover(t *testing.T) {
	session := &DragSession{}
	session.HoverColumn("col-1")
	session.HoverItem("col-2", "X", Before)

	columnID, hover := session.DropTarget()
	if columnID != "col-2" || hover == nil {
		t.Fatalf("item hover should win, got column %q hover %+v", columnID, hover)
	}
}

func TestLeaveColumnDistinguishesChildFromRegion(t *testing.T) {
	session := &DragSession{}
	session.HoverItem("col-1", "A", Before)

	// Pointer moved onto a child element inside the column: keep state.
	session.LeaveColumn(true)
	if columnID, hover := session.DropTarget(); columnID != "col-1" || hover == nil {
		t.Error("leaving to a child element must not clear hover state")
	}

	// Pointer actually left the column's bounding region: clear.
	session.LeaveColumn(false)
	if columnID, hover := session.DropTarget(); columnID != "" || hover != nil {
		t.Error("leaving the region must clear hover state")
	}
}

func TestEndDragIsIdempotent(t *testing.T) {
	session := &DragSession{}
	session.BeginDrag(store.RoadmapItem{ID: "A"})
	session.EndDrag()
	session.EndDrag()
	if _, ok := session.Dragged(); ok {
		t.Error("repeated EndDrag must stay cleared")
	}
}
