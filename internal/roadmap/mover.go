package roadmap

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"changespage/api/internal/store"
)

// ErrMoveFailed is the generic failure surfaced to the user when any
// persistence write of a move fails. Diagnostic detail goes to the log;
// the optimistic cache update is not rolled back, the board is only
// marked stale.
var ErrMoveFailed = errors.New("failed to move item")

// Same-column renumbering writes through this disjoint range first so no
// temporary value collides with a final value or another item's current
// value under the (column_id, position) unique index.
const tempPositionBase = 1000

// PositionStore is the single store operation the persistence protocol is
// built from: one row's position, optionally together with its column.
type PositionStore interface {
	UpdateItemPosition(ctx context.Context, itemID string, position int, columnID *string) error
}

// Mover translates a completed drag into an ordering change and makes it
// durable. The board cache is updated optimistically before any write is
// issued.
type Mover struct {
	store PositionStore
	board *Board
}

func NewMover(store PositionStore, board *Board) *Mover {
	return &Mover{store: store, board: board}
}

// Board exposes the cache the mover mutates.
func (m *Mover) Board() *Board {
	return m.board
}

// Drop consumes the drag session: it resolves the drop target, plans the
// reorder or move, applies it optimistically and persists it. The session
// is cleared on every path, mirroring a native drag-end handler.
func (m *Mover) Drop(ctx context.Context, session *DragSession) error {
	defer session.EndDrag()

	dragged, ok := session.Dragged()
	if !ok {
		return nil
	}
	targetColumnID, hover := session.DropTarget()
	if targetColumnID == "" {
		// Cancelled outside any drop target.
		return nil
	}
	if targetColumnID == dragged.ColumnID {
		return m.reorderWithinColumn(ctx, dragged, hover)
	}
	return m.moveAcrossColumns(ctx, dragged, targetColumnID, hover)
}

func (m *Mover) reorderWithinColumn(ctx context.Context, dragged store.RoadmapItem, hover *Hover) error {
	changes := PlanSameColumn(m.board.ColumnItems(dragged.ColumnID), dragged.ID, hover)
	if changes == nil {
		return nil
	}

	m.board.ApplyPositions(dragged.ColumnID, changes)

	if err := m.renumberColumn(ctx, changes); err != nil {
		m.board.MarkStale()
		log.Printf("roadmap: reorder item %s in column %s: %v", dragged.ID, dragged.ColumnID, err)
		return ErrMoveFailed
	}
	return nil
}

func (m *Mover) moveAcrossColumns(ctx context.Context, dragged store.RoadmapItem, targetColumnID string, hover *Hover) error {
	sourceColumnID := dragged.ColumnID
	plan := PlanCrossColumn(m.board.ColumnItems(targetColumnID), hover)

	m.board.ApplyPositions(targetColumnID, plan.Shifts)
	m.board.MoveItem(dragged.ID, targetColumnID, plan.NewPosition)
	compaction := PlanCompaction(m.board.ColumnItems(sourceColumnID))
	if compaction != nil {
		m.board.ApplyPositions(sourceColumnID, compaction)
	}

	if err := m.persistMove(ctx, dragged.ID, targetColumnID, plan, compaction); err != nil {
		m.board.MarkStale()
		log.Printf("roadmap: move item %s from column %s to %s: %v", dragged.ID, sourceColumnID, targetColumnID, err)
		return ErrMoveFailed
	}
	return nil
}

// renumberColumn makes a same-column renumbering durable in two phases:
// every affected item is first parked in the temporary range, and only
// once all of those writes settle are the final 1..N positions written.
// Writes within a phase are issued together and awaited together.
func (m *Mover) renumberColumn(ctx context.Context, changes []PositionChange) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for i, change := range changes {
		group.Go(func() error {
			return m.store.UpdateItemPosition(groupCtx, change.ItemID, tempPositionBase+i, nil)
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("temp positions: %w", err)
	}

	group, groupCtx = errgroup.WithContext(ctx)
	for _, change := range changes {
		group.Go(func() error {
			return m.store.UpdateItemPosition(groupCtx, change.ItemID, change.Position, nil)
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("final positions: %w", err)
	}
	return nil
}

// persistMove writes a cross-column move: first the target column's
// shifts, one at a time in descending position order so no write ever
// collides with the item directly above it, then the moved item's column
// and position in a single update, then the vacated column's compaction.
func (m *Mover) persistMove(ctx context.Context, itemID, targetColumnID string, plan MovePlan, compaction []PositionChange) error {
	for _, shift := range plan.Shifts {
		if err := m.store.UpdateItemPosition(ctx, shift.ItemID, shift.Position, nil); err != nil {
			return fmt.Errorf("shift item %s: %w", shift.ItemID, err)
		}
	}
	if err := m.store.UpdateItemPosition(ctx, itemID, plan.NewPosition, &targetColumnID); err != nil {
		return fmt.Errorf("place item: %w", err)
	}
	if compaction != nil {
		if err := m.renumberColumn(ctx, compaction); err != nil {
			return fmt.Errorf("compact source column: %w", err)
		}
	}
	return nil
}
