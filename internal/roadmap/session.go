package roadmap

import "changespage/api/internal/store"

// Placement says which side of a hovered item a drop lands on.
type Placement string

const (
	Before Placement = "before"
	After  Placement = "after"
)

// Hover is a resolved insertion point: drop before/after a specific item.
type Hover struct {
	ItemID    string
	Placement Placement
}

// DragSession tracks transient drag/hover state for one in-progress drag.
// It carries no persistence guarantees; every exit path must end in
// EndDrag so no state leaks into the next interaction.
type DragSession struct {
	dragged    *store.RoadmapItem
	overColumn string
	overHover  *Hover
}

// BeginDrag records item as the dragged entity.
func (d *DragSession) BeginDrag(item store.RoadmapItem) {
	d.dragged = &item
}

// EndDrag clears dragged item, hovered column and hovered position
// unconditionally. Called on successful drop and on cancellation alike.
func (d *DragSession) EndDrag() {
	d.dragged = nil
	d.overColumn = ""
	d.overHover = nil
}

// HoverColumn records which column is currently a drop target.
func (d *DragSession) HoverColumn(columnID string) {
	d.overColumn = columnID
}

// HoverItem records a specific insertion point within a column. It takes
// precedence over plain column-level hover for positioning.
func (d *DragSession) HoverItem(columnID, itemID string, placement Placement) {
	d.overColumn = columnID
	d.overHover = &Hover{ItemID: itemID, Placement: placement}
}

// LeaveColumn clears hover state when the pointer left the column's
// region. leftToChild distinguishes "moved onto a child element" (no-op)
// from actually leaving.
func (d *DragSession) LeaveColumn(leftToChild bool) {
	if leftToChild {
		return
	}
	d.overColumn = ""
	d.overHover = nil
}

// Dragged returns the item being dragged, if any.
func (d *DragSession) Dragged() (store.RoadmapItem, bool) {
	if d.dragged == nil {
		return store.RoadmapItem{}, false
	}
	return *d.dragged, true
}

// DropTarget returns the hovered column and, when a specific item was
// hovered, the insertion point. hover is nil for "append at end".
func (d *DragSession) DropTarget() (columnID string, hover *Hover) {
	if d.overHover != nil {
		h := *d.overHover
		return d.overColumn, &h
	}
	return d.overColumn, nil
}
