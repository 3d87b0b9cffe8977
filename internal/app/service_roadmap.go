package app

import (
	"context"
	"net/http"
	"strings"

	"changespage/api/internal/roadmap"
	"changespage/api/internal/search"
	"changespage/api/internal/store"
	"changespage/api/internal/util"
)

var defaultColumnNames = []string{"Planned", "In Progress", "Done"}

// --- Boards ---

func (s *Service) ListBoards(ctx context.Context, session Session, pageID string) ([]map[string]any, error) {
	if _, err := s.ownedPage(ctx, session, pageID); err != nil {
		return nil, err
	}
	boards, err := s.store.ListBoardsByPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(boards))
	for _, board := range boards {
		payload = append(payload, boardPayload(board))
	}
	return payload, nil
}

// CreateBoard seeds the standard three-stage layout so a new board is
// usable without further setup.
func (s *Service) CreateBoard(ctx context.Context, session Session, pageID, title string, isPublic bool) (map[string]any, error) {
	if _, err := s.ownedPage(ctx, session, pageID); err != nil {
		return nil, err
	}
	if title = strings.TrimSpace(title); title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	board := store.Board{
		ID:       util.NewID("brd"),
		PageID:   pageID,
		Title:    title,
		IsPublic: isPublic,
	}
	if err := s.store.InsertBoard(ctx, board); err != nil {
		return nil, err
	}
	for i, name := range defaultColumnNames {
		column := store.BoardColumn{
			ID:        util.NewID("col"),
			BoardID:   board.ID,
			Name:      name,
			SortOrder: i + 1,
		}
		if err := s.store.InsertColumn(ctx, column); err != nil {
			return nil, err
		}
	}
	return boardPayload(board), nil
}

func (s *Service) GetBoardForOwner(ctx context.Context, session Session, boardID string) (map[string]any, error) {
	board, err := s.ownedBoard(ctx, session, boardID)
	if err != nil {
		return nil, err
	}
	return s.boardView(ctx, board)
}

func (s *Service) UpdateBoard(ctx context.Context, session Session, boardID, title string, isPublic bool) (map[string]any, error) {
	board, err := s.ownedBoard(ctx, session, boardID)
	if err != nil {
		return nil, err
	}
	if title = strings.TrimSpace(title); title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if err := s.store.UpdateBoard(ctx, boardID, title, isPublic); err != nil {
		return nil, err
	}
	board.Title = title
	board.IsPublic = isPublic
	return boardPayload(board), nil
}

func (s *Service) DeleteBoard(ctx context.Context, session Session, boardID string) error {
	if _, err := s.ownedBoard(ctx, session, boardID); err != nil {
		return err
	}
	if err := s.store.DeleteBoard(ctx, boardID); err != nil {
		return err
	}
	s.boardMu.Lock()
	delete(s.movers, boardID)
	s.boardMu.Unlock()
	return nil
}

func (s *Service) ownedBoard(ctx context.Context, session Session, boardID string) (store.Board, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return store.Board{}, domainError(http.StatusNotFound, "NOT_FOUND", "Board not found", nil)
	}
	if _, err := s.ownedPage(ctx, session, board.PageID); err != nil {
		return store.Board{}, domainError(http.StatusNotFound, "NOT_FOUND", "Board not found", nil)
	}
	return board, nil
}

// boardView assembles the full board: columns in order, items grouped
// per column sorted by position, categories for the filter bar.
func (s *Service) boardView(ctx context.Context, board store.Board) (map[string]any, error) {
	columns, err := s.store.ListColumns(ctx, board.ID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListItems(ctx, board.ID)
	if err != nil {
		return nil, err
	}
	categories, err := s.store.ListCategories(ctx, board.ID)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]map[string]any, len(columns))
	for _, item := range items {
		grouped[item.ColumnID] = append(grouped[item.ColumnID], itemPayload(item))
	}
	columnsPayload := make([]map[string]any, 0, len(columns))
	for _, column := range columns {
		entry := columnPayload(column)
		cards := grouped[column.ID]
		if cards == nil {
			cards = []map[string]any{}
		}
		entry["items"] = cards
		columnsPayload = append(columnsPayload, entry)
	}
	categoriesPayload := make([]map[string]any, 0, len(categories))
	for _, category := range categories {
		categoriesPayload = append(categoriesPayload, categoryPayload(category))
	}

	payload := boardPayload(board)
	payload["columns"] = columnsPayload
	payload["categories"] = categoriesPayload
	return payload, nil
}

// --- Columns ---

func (s *Service) CreateColumn(ctx context.Context, session Session, boardID, name string) (map[string]any, error) {
	if _, err := s.ownedBoard(ctx, session, boardID); err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	existing, err := s.store.ListColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}
	column := store.BoardColumn{
		ID:        util.NewID("col"),
		BoardID:   boardID,
		Name:      name,
		SortOrder: len(existing) + 1,
	}
	if err := s.store.InsertColumn(ctx, column); err != nil {
		return nil, err
	}
	return columnPayload(column), nil
}

func (s *Service) RenameColumn(ctx context.Context, session Session, columnID, name string) (map[string]any, error) {
	column, err := s.ownedColumn(ctx, session, columnID)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if err := s.store.UpdateColumn(ctx, columnID, name); err != nil {
		return nil, err
	}
	column.Name = name
	return columnPayload(column), nil
}

func (s *Service) DeleteColumn(ctx context.Context, session Session, columnID string) error {
	column, err := s.ownedColumn(ctx, session, columnID)
	if err != nil {
		return err
	}
	items, err := s.store.ListItems(ctx, column.BoardID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.ColumnID == columnID {
			return domainError(http.StatusConflict, "COLUMN_NOT_EMPTY", "Move or delete the column's items first", nil)
		}
	}
	if err := s.store.DeleteColumn(ctx, columnID); err != nil {
		return err
	}
	s.invalidateBoard(column.BoardID)
	return nil
}

func (s *Service) ownedColumn(ctx context.Context, session Session, columnID string) (store.BoardColumn, error) {
	column, err := s.store.GetColumn(ctx, columnID)
	if err != nil {
		return store.BoardColumn{}, domainError(http.StatusNotFound, "NOT_FOUND", "Column not found", nil)
	}
	if _, err := s.ownedBoard(ctx, session, column.BoardID); err != nil {
		return store.BoardColumn{}, domainError(http.StatusNotFound, "NOT_FOUND", "Column not found", nil)
	}
	return column, nil
}

// --- Items ---

func (s *Service) CreateItem(ctx context.Context, session Session, boardID, columnID, title, description string, categoryID *string) (map[string]any, error) {
	board, err := s.ownedBoard(ctx, session, boardID)
	if err != nil {
		return nil, err
	}
	column, err := s.store.GetColumn(ctx, columnID)
	if err != nil || column.BoardID != boardID {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Column not found", nil)
	}
	if title = strings.TrimSpace(title); title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	item := store.RoadmapItem{
		ID:          util.NewID("itm"),
		BoardID:     boardID,
		ColumnID:    columnID,
		Title:       title,
		Description: description,
		CategoryID:  categoryID,
	}
	position, err := s.store.InsertItem(ctx, item)
	if err != nil {
		return nil, err
	}
	item.Position = position
	s.invalidateBoard(boardID)
	s.indexItem(board, item)
	return itemPayload(item), nil
}

func (s *Service) UpdateItem(ctx context.Context, session Session, itemID, title, description string, categoryID *string) (map[string]any, error) {
	item, board, err := s.ownedItem(ctx, session, itemID)
	if err != nil {
		return nil, err
	}
	if title = strings.TrimSpace(title); title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if err := s.store.UpdateItem(ctx, itemID, title, description, categoryID); err != nil {
		return nil, err
	}
	item.Title = title
	item.Description = description
	item.CategoryID = categoryID
	s.invalidateBoard(item.BoardID)
	s.indexItem(board, item)
	return itemPayload(item), nil
}

func (s *Service) DeleteItem(ctx context.Context, session Session, itemID string) error {
	item, _, err := s.ownedItem(ctx, session, itemID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	s.invalidateBoard(item.BoardID)
	if s.search != nil {
		s.search.DeleteItem(itemID)
	}
	return nil
}

func (s *Service) ownedItem(ctx context.Context, session Session, itemID string) (store.RoadmapItem, store.Board, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return store.RoadmapItem{}, store.Board{}, domainError(http.StatusNotFound, "NOT_FOUND", "Item not found", nil)
	}
	board, err := s.ownedBoard(ctx, session, item.BoardID)
	if err != nil {
		return store.RoadmapItem{}, store.Board{}, domainError(http.StatusNotFound, "NOT_FOUND", "Item not found", nil)
	}
	return item, board, nil
}

func (s *Service) indexItem(board store.Board, item store.RoadmapItem) {
	if s.search == nil {
		return
	}
	s.search.IndexItem(search.ItemRecord{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		PageID:      board.PageID,
		BoardID:     board.ID,
		Category:    item.CategoryName,
	})
}

// --- Move ---

// MoveInput mirrors the drop event a board UI reports: the column the
// card was released over and, when it was released over another card,
// that card and which side of it.
type MoveInput struct {
	ToColumnID string `json:"toColumnId"`
	OverItemID string `json:"overItemId"`
	Placement  string `json:"placement"`
}

// MoveItem runs a full drag round trip against the board's mover: begin
// drag, replay the reported hover, drop. The mutex serializes moves per
// process, matching the last-write-wins policy on board ordering.
func (s *Service) MoveItem(ctx context.Context, session Session, itemID string, input MoveInput) (map[string]any, error) {
	item, _, err := s.ownedItem(ctx, session, itemID)
	if err != nil {
		return nil, err
	}

	targetColumnID := input.ToColumnID
	if targetColumnID == "" {
		targetColumnID = item.ColumnID
	}
	if targetColumnID != item.ColumnID {
		column, err := s.store.GetColumn(ctx, targetColumnID)
		if err != nil || column.BoardID != item.BoardID {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Column not found", nil)
		}
	}

	s.boardMu.Lock()
	defer s.boardMu.Unlock()

	mover, err := s.loadMoverLocked(ctx, item.BoardID)
	if err != nil {
		return nil, err
	}
	cached, ok := mover.Board().Item(itemID)
	if !ok {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Item not found", nil)
	}
	sourceColumnID := cached.ColumnID

	drag := &roadmap.DragSession{}
	drag.BeginDrag(cached)
	if input.OverItemID != "" {
		placement := roadmap.After
		if input.Placement == string(roadmap.Before) {
			placement = roadmap.Before
		}
		drag.HoverItem(targetColumnID, input.OverItemID, placement)
	} else {
		drag.HoverColumn(targetColumnID)
	}

	if err := mover.Drop(ctx, drag); err != nil {
		return nil, domainError(http.StatusConflict, "MOVE_FAILED", "Failed to move item", nil)
	}

	columns := map[string][]map[string]any{
		targetColumnID: columnItemsPayload(mover.Board(), targetColumnID),
	}
	if sourceColumnID != targetColumnID {
		columns[sourceColumnID] = columnItemsPayload(mover.Board(), sourceColumnID)
	}
	return map[string]any{
		"itemId":   itemID,
		"columns":  columns,
		"revision": mover.Board().Revision(),
	}, nil
}

// loadMoverLocked returns the cached mover for a board, reloading the
// item snapshot from Postgres when there is no cache yet or a failed
// write marked it stale. Caller holds boardMu.
func (s *Service) loadMoverLocked(ctx context.Context, boardID string) (*roadmap.Mover, error) {
	if mover, ok := s.movers[boardID]; ok && !mover.Board().Stale() {
		return mover, nil
	}
	items, err := s.store.ListItems(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if mover, ok := s.movers[boardID]; ok {
		mover.Board().Replace(items)
		return mover, nil
	}
	mover := roadmap.NewMover(s.store, roadmap.NewBoard(items))
	s.movers[boardID] = mover
	return mover, nil
}

func (s *Service) invalidateBoard(boardID string) {
	s.boardMu.Lock()
	defer s.boardMu.Unlock()
	if mover, ok := s.movers[boardID]; ok {
		mover.Board().MarkStale()
	}
}

func columnItemsPayload(board *roadmap.Board, columnID string) []map[string]any {
	items := board.ColumnItems(columnID)
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, itemPayload(item))
	}
	return payload
}

// --- Categories ---

func (s *Service) CreateCategory(ctx context.Context, session Session, boardID, name, color string) (map[string]any, error) {
	if _, err := s.ownedBoard(ctx, session, boardID); err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	category := store.Category{
		ID:      util.NewID("cat"),
		BoardID: boardID,
		Name:    name,
		Color:   strings.TrimSpace(color),
	}
	if err := s.store.InsertCategory(ctx, category); err != nil {
		return nil, err
	}
	return categoryPayload(category), nil
}

func (s *Service) DeleteCategory(ctx context.Context, session Session, boardID, categoryID string) error {
	if _, err := s.ownedBoard(ctx, session, boardID); err != nil {
		return err
	}
	if err := s.store.DeleteCategory(ctx, categoryID); err != nil {
		return err
	}
	s.invalidateBoard(boardID)
	return nil
}

// --- Triage ---

func (s *Service) ListTriage(ctx context.Context, session Session, boardID, status string) ([]map[string]any, error) {
	if _, err := s.ownedBoard(ctx, session, boardID); err != nil {
		return nil, err
	}
	items, err := s.store.ListTriageItems(ctx, boardID, status)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, triagePayload(item))
	}
	return payload, nil
}

// PromoteTriage turns a pending idea into a card appended to the board's
// first column. Promotion is one-shot; a second promote answers 409.
func (s *Service) PromoteTriage(ctx context.Context, session Session, triageID string) (map[string]any, error) {
	triage, err := s.store.GetTriageItem(ctx, triageID)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Triage item not found", nil)
	}
	board, err := s.ownedBoard(ctx, session, triage.BoardID)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Triage item not found", nil)
	}

	changed, err := s.store.UpdateTriageStatus(ctx, triageID, "promoted")
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusConflict, "ALREADY_RESOLVED", "Triage item was already reviewed", nil)
	}

	column, err := s.store.FirstColumn(ctx, triage.BoardID)
	if err != nil {
		return nil, err
	}
	item := store.RoadmapItem{
		ID:          util.NewID("itm"),
		BoardID:     triage.BoardID,
		ColumnID:    column.ID,
		Title:       triage.Title,
		Description: triage.Description,
	}
	position, err := s.store.InsertItem(ctx, item)
	if err != nil {
		return nil, err
	}
	item.Position = position
	s.invalidateBoard(triage.BoardID)
	s.indexItem(board, item)
	return itemPayload(item), nil
}

func (s *Service) DismissTriage(ctx context.Context, session Session, triageID string) error {
	triage, err := s.store.GetTriageItem(ctx, triageID)
	if err != nil {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Triage item not found", nil)
	}
	if _, err := s.ownedBoard(ctx, session, triage.BoardID); err != nil {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Triage item not found", nil)
	}
	changed, err := s.store.UpdateTriageStatus(ctx, triageID, "dismissed")
	if err != nil {
		return err
	}
	if !changed {
		return domainError(http.StatusConflict, "ALREADY_RESOLVED", "Triage item was already reviewed", nil)
	}
	return nil
}

// --- Payload mapping ---

func boardPayload(board store.Board) map[string]any {
	return map[string]any{
		"id":        board.ID,
		"pageId":    board.PageID,
		"title":     board.Title,
		"isPublic":  board.IsPublic,
		"createdAt": board.CreatedAt,
		"updatedAt": board.UpdatedAt,
	}
}

func columnPayload(column store.BoardColumn) map[string]any {
	return map[string]any{
		"id":        column.ID,
		"boardId":   column.BoardID,
		"name":      column.Name,
		"sortOrder": column.SortOrder,
	}
}

func itemPayload(item store.RoadmapItem) map[string]any {
	return map[string]any{
		"id":            item.ID,
		"boardId":       item.BoardID,
		"columnId":      item.ColumnID,
		"position":      item.Position,
		"title":         item.Title,
		"description":   item.Description,
		"categoryId":    item.CategoryID,
		"categoryName":  item.CategoryName,
		"categoryColor": item.CategoryColor,
		"voteCount":     item.VoteCount,
	}
}

func categoryPayload(category store.Category) map[string]any {
	return map[string]any{
		"id":      category.ID,
		"boardId": category.BoardID,
		"name":    category.Name,
		"color":   category.Color,
	}
}

func triagePayload(item store.TriageItem) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"boardId":     item.BoardID,
		"title":       item.Title,
		"description": item.Description,
		"status":      item.Status,
		"createdAt":   item.CreatedAt,
	}
}
