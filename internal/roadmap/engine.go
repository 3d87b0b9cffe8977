package roadmap

import "changespage/api/internal/store"

// PositionChange assigns a final position to one item.
type PositionChange struct {
	ItemID   string
	Position int
}

// MovePlan is the computed outcome of a cross-column move: the position
// the dragged item lands on, plus the shifts the target column needs to
// make room. Shifts are ordered by descending position; that order is
// load-bearing for the persistence protocol.
type MovePlan struct {
	NewPosition int
	Shifts      []PositionChange
}

// PlanSameColumn computes the renumbered 1..N positions for a column
// after splicing the dragged item before/after the hovered item. items
// must be the column's items sorted by position. A nil result means the
// drop is a no-op: no hover target resolved, dragged or target missing,
// or an item dropped on itself.
func PlanSameColumn(items []store.RoadmapItem, draggedID string, hover *Hover) []PositionChange {
	if hover == nil {
		return nil
	}
	fromIdx := indexOf(items, draggedID)
	targetIdx := indexOf(items, hover.ItemID)
	if fromIdx < 0 || targetIdx < 0 || fromIdx == targetIdx {
		return nil
	}

	reordered := make([]store.RoadmapItem, 0, len(items))
	reordered = append(reordered, items[:fromIdx]...)
	reordered = append(reordered, items[fromIdx+1:]...)

	// Removing the dragged item shifts everything after it down by one,
	// so resolve the target's index against the spliced slice.
	insertIdx := indexOf(reordered, hover.ItemID)
	if hover.Placement == After {
		insertIdx++
	}

	dragged := items[fromIdx]
	reordered = append(reordered, store.RoadmapItem{})
	copy(reordered[insertIdx+1:], reordered[insertIdx:])
	reordered[insertIdx] = dragged

	changes := make([]PositionChange, len(reordered))
	for i, item := range reordered {
		changes[i] = PositionChange{ItemID: item.ID, Position: i + 1}
	}
	return changes
}

// PlanCrossColumn computes where the dragged item lands in another
// column. targetItems must be the target column's items sorted by
// position. With no hover (or a stale hover target) the item appends at
// max position + 1; an empty column yields position 1. A before/after
// hover inserts at the target's position and shifts everything at or
// beyond it up by one.
func PlanCrossColumn(targetItems []store.RoadmapItem, hover *Hover) MovePlan {
	appendPlan := MovePlan{NewPosition: maxPosition(targetItems) + 1}
	if hover == nil {
		return appendPlan
	}
	targetIdx := indexOf(targetItems, hover.ItemID)
	if targetIdx < 0 {
		// Stale reference: degrade to append rather than failing.
		return appendPlan
	}

	target := targetItems[targetIdx]
	plan := MovePlan{}
	var threshold int
	switch hover.Placement {
	case After:
		plan.NewPosition = target.Position + 1
		threshold = target.Position + 1
	default:
		plan.NewPosition = target.Position
		threshold = target.Position
	}

	// Highest position first, so each shift write lands in a slot the
	// previous one just vacated.
	for i := len(targetItems) - 1; i >= 0; i-- {
		if targetItems[i].Position >= threshold {
			plan.Shifts = append(plan.Shifts, PositionChange{
				ItemID:   targetItems[i].ID,
				Position: targetItems[i].Position + 1,
			})
		}
	}
	return plan
}

// PlanCompaction renumbers a column's remaining items to 1..N, preserving
// relative order. Returns nil when positions are already dense.
func PlanCompaction(items []store.RoadmapItem) []PositionChange {
	changes := make([]PositionChange, 0, len(items))
	dense := true
	for i, item := range items {
		if item.Position != i+1 {
			dense = false
		}
		changes = append(changes, PositionChange{ItemID: item.ID, Position: i + 1})
	}
	if dense {
		return nil
	}
	return changes
}

func indexOf(items []store.RoadmapItem, itemID string) int {
	for i, item := range items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

func maxPosition(items []store.RoadmapItem) int {
	max := 0
	for _, item := range items {
		if item.Position > max {
			max = item.Position
		}
	}
	return max
}
