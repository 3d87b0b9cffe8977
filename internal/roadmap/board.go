package roadmap

import (
	"sort"
	"sync"

	"changespage/api/internal/store"
)

// Board is the in-memory cache of a board's items, grouped by column and
// kept sorted by position. Updates are applied optimistically before
// persistence confirms; a failed persistence marks the cache stale so the
// caller reloads from the store instead of trusting it.
type Board struct {
	mu       sync.RWMutex
	byColumn map[string][]store.RoadmapItem
	revision uint64
	stale    bool
}

func NewBoard(items []store.RoadmapItem) *Board {
	b := &Board{}
	b.Replace(items)
	return b
}

// Replace resets the cache from an authoritative item list and clears the
// stale flag.
func (b *Board) Replace(items []store.RoadmapItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byColumn = make(map[string][]store.RoadmapItem)
	for _, item := range items {
		b.byColumn[item.ColumnID] = append(b.byColumn[item.ColumnID], item)
	}
	for columnID := range b.byColumn {
		sortByPosition(b.byColumn[columnID])
	}
	b.revision++
	b.stale = false
}

// ColumnItems returns a copy of the column's items sorted by position.
func (b *Board) ColumnItems(columnID string) []store.RoadmapItem {
	b.mu.RLock()
	defer b.mu.RUnlock()
	items := b.byColumn[columnID]
	out := make([]store.RoadmapItem, len(items))
	copy(out, items)
	return out
}

// Item looks up an item anywhere on the board.
func (b *Board) Item(itemID string) (store.RoadmapItem, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, items := range b.byColumn {
		for _, item := range items {
			if item.ID == itemID {
				return item, true
			}
		}
	}
	return store.RoadmapItem{}, false
}

// ApplyPositions applies new position values to items within a column and
// re-sorts it.
func (b *Board) ApplyPositions(columnID string, changes []PositionChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.byColumn[columnID]
	for i := range items {
		for _, change := range changes {
			if items[i].ID == change.ItemID {
				items[i].Position = change.Position
			}
		}
	}
	sortByPosition(items)
	b.revision++
}

// MoveItem relocates an item to another column at the given position.
func (b *Board) MoveItem(itemID, toColumnID string, position int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var moved *store.RoadmapItem
	for columnID, items := range b.byColumn {
		for i, item := range items {
			if item.ID == itemID {
				found := item
				moved = &found
				b.byColumn[columnID] = append(items[:i], items[i+1:]...)
				break
			}
		}
		if moved != nil {
			break
		}
	}
	if moved == nil {
		return
	}
	moved.ColumnID = toColumnID
	moved.Position = position
	b.byColumn[toColumnID] = append(b.byColumn[toColumnID], *moved)
	sortByPosition(b.byColumn[toColumnID])
	b.revision++
}

// MarkStale flags the cache as diverged from the backing store.
func (b *Board) MarkStale() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stale = true
}

// Stale reports whether the cache may disagree with the backing store.
func (b *Board) Stale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stale
}

// Revision increments on every mutation; callers can use it to detect
// concurrent changes between a read and a write.
func (b *Board) Revision() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.revision
}

func sortByPosition(items []store.RoadmapItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Position < items[j].Position
	})
}
