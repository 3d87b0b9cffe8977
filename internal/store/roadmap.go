package store

import (
	"context"
	"fmt"
)

// --- Boards ---

func (s *PostgresStore) ListBoardsByPage(ctx context.Context, pageID string) ([]Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, page_id, title, is_public, created_at, updated_at
		FROM boards
		WHERE page_id=$1
		ORDER BY created_at ASC
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	items := make([]Board, 0)
	for rows.Next() {
		var item Board
		if err := rows.Scan(&item.ID, &item.PageID, &item.Title, &item.IsPublic, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, boardID string) (Board, error) {
	var item Board
	err := s.db.QueryRowContext(ctx, `
		SELECT id, page_id, title, is_public, created_at, updated_at
		FROM boards
		WHERE id=$1
	`, boardID).Scan(&item.ID, &item.PageID, &item.Title, &item.IsPublic, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Board{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertBoard(ctx context.Context, item Board) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO boards (id, page_id, title, is_public)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.PageID, item.Title, item.IsPublic)
	if err != nil {
		return fmt.Errorf("insert board: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateBoard(ctx context.Context, boardID, title string, isPublic bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE boards SET title=$2, is_public=$3, updated_at=NOW()
		WHERE id=$1
	`, boardID, title, isPublic)
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteBoard(ctx context.Context, boardID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM boards WHERE id=$1`, boardID)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	return nil
}

// --- Columns ---

func (s *PostgresStore) ListColumns(ctx context.Context, boardID string) ([]BoardColumn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, name, sort_order, created_at
		FROM board_columns
		WHERE board_id=$1
		ORDER BY sort_order ASC, created_at ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	items := make([]BoardColumn, 0)
	for rows.Next() {
		var item BoardColumn
		if err := rows.Scan(&item.ID, &item.BoardID, &item.Name, &item.SortOrder, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetColumn(ctx context.Context, columnID string) (BoardColumn, error) {
	var item BoardColumn
	err := s.db.QueryRowContext(ctx, `
		SELECT id, board_id, name, sort_order, created_at
		FROM board_columns
		WHERE id=$1
	`, columnID).Scan(&item.ID, &item.BoardID, &item.Name, &item.SortOrder, &item.CreatedAt)
	if err != nil {
		return BoardColumn{}, err
	}
	return item, nil
}

// FirstColumn returns the board's lowest-ordered column. Triage promotion
// appends into this column.
func (s *PostgresStore) FirstColumn(ctx context.Context, boardID string) (BoardColumn, error) {
	var item BoardColumn
	err := s.db.QueryRowContext(ctx, `
		SELECT id, board_id, name, sort_order, created_at
		FROM board_columns
		WHERE board_id=$1
		ORDER BY sort_order ASC, created_at ASC
		LIMIT 1
	`, boardID).Scan(&item.ID, &item.BoardID, &item.Name, &item.SortOrder, &item.CreatedAt)
	if err != nil {
		return BoardColumn{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertColumn(ctx context.Context, item BoardColumn) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO board_columns (id, board_id, name, sort_order)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.BoardID, item.Name, item.SortOrder)
	if err != nil {
		return fmt.Errorf("insert column: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateColumn(ctx context.Context, columnID, name string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE board_columns SET name=$2 WHERE id=$1`, columnID, name)
	if err != nil {
		return fmt.Errorf("update column: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteColumn(ctx context.Context, columnID string) error {
	var itemCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM roadmap_items WHERE column_id=$1`, columnID).Scan(&itemCount); err != nil {
		return fmt.Errorf("count column items: %w", err)
	}
	if itemCount > 0 {
		return fmt.Errorf("column contains %d items", itemCount)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM board_columns WHERE id=$1`, columnID)
	if err != nil {
		return fmt.Errorf("delete column: %w", err)
	}
	return nil
}

// --- Roadmap items ---

const itemColumns = `
	i.id, i.board_id, i.column_id, i.position, i.title, i.description, i.category_id,
	i.created_at, i.updated_at,
	COALESCE(v.vote_count, 0),
	COALESCE(c.name, ''), COALESCE(c.color, '')
`

const itemJoins = `
	LEFT JOIN (
		SELECT item_id, COUNT(*)::int AS vote_count FROM item_votes GROUP BY item_id
	) v ON v.item_id = i.id
	LEFT JOIN categories c ON c.id = i.category_id
`

func scanItem(scanner interface{ Scan(...any) error }) (RoadmapItem, error) {
	var item RoadmapItem
	err := scanner.Scan(
		&item.ID,
		&item.BoardID,
		&item.ColumnID,
		&item.Position,
		&item.Title,
		&item.Description,
		&item.CategoryID,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.VoteCount,
		&item.CategoryName,
		&item.CategoryColor,
	)
	return item, err
}

// ListItems returns all items on a board with display aggregates attached,
// ordered by (column, position).
func (s *PostgresStore) ListItems(ctx context.Context, boardID string) ([]RoadmapItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM roadmap_items i
		`+itemJoins+`
		WHERE i.board_id=$1
		ORDER BY i.column_id ASC, i.position ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]RoadmapItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetItem(ctx context.Context, itemID string) (RoadmapItem, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM roadmap_items i
		`+itemJoins+`
		WHERE i.id=$1
	`, itemID))
	if err != nil {
		return RoadmapItem{}, err
	}
	return item, nil
}

// InsertItem creates an item at the end of its column (max position + 1,
// or 1 for an empty column).
func (s *PostgresStore) InsertItem(ctx context.Context, item RoadmapItem) (int, error) {
	var position int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO roadmap_items (id, board_id, column_id, position, title, description, category_id)
		VALUES ($1, $2, $3,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM roadmap_items WHERE column_id=$3),
			$4, $5, $6)
		RETURNING position
	`, item.ID, item.BoardID, item.ColumnID, item.Title, item.Description, item.CategoryID).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("insert item: %w", err)
	}
	return position, nil
}

func (s *PostgresStore) UpdateItem(ctx context.Context, itemID, title, description string, categoryID *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE roadmap_items SET title=$2, description=$3, category_id=$4, updated_at=NOW()
		WHERE id=$1
	`, itemID, title, description, categoryID)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteItem(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM roadmap_items WHERE id=$1`, itemID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// UpdateItemPosition is the single-row write the position persistence
// protocol is built from. columnID is optional; when set the item also
// changes columns in the same update.
func (s *PostgresStore) UpdateItemPosition(ctx context.Context, itemID string, position int, columnID *string) error {
	var err error
	if columnID != nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE roadmap_items SET position=$2, column_id=$3, updated_at=NOW()
			WHERE id=$1
		`, itemID, position, *columnID)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE roadmap_items SET position=$2, updated_at=NOW()
			WHERE id=$1
		`, itemID, position)
	}
	if err != nil {
		return fmt.Errorf("update item position: %w", err)
	}
	return nil
}

// --- Categories ---

func (s *PostgresStore) ListCategories(ctx context.Context, boardID string) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, name, color
		FROM categories
		WHERE board_id=$1
		ORDER BY name ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	items := make([]Category, 0)
	for rows.Next() {
		var item Category
		if err := rows.Scan(&item.ID, &item.BoardID, &item.Name, &item.Color); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertCategory(ctx context.Context, item Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, board_id, name, color)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.BoardID, item.Name, item.Color)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, categoryID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id=$1`, categoryID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// --- Votes ---

// ToggleItemVote adds a vote for (item, fingerprint), or removes it if it
// already exists.
func (s *PostgresStore) ToggleItemVote(ctx context.Context, itemID, fingerprint string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM item_votes WHERE item_id=$1 AND fingerprint=$2
	`, itemID, fingerprint)
	if err != nil {
		return false, fmt.Errorf("delete item vote: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete item vote rows: %w", err)
	}
	if affected > 0 {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO item_votes (item_id, fingerprint)
		VALUES ($1, $2)
	`, itemID, fingerprint); err != nil {
		return false, fmt.Errorf("insert item vote: %w", err)
	}
	return true, nil
}

// DeleteDanglingVotes removes vote rows whose item no longer exists.
func (s *PostgresStore) DeleteDanglingVotes(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM item_votes v
		WHERE NOT EXISTS (SELECT 1 FROM roadmap_items i WHERE i.id = v.item_id)
	`)
	if err != nil {
		return 0, fmt.Errorf("delete dangling votes: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("dangling votes rows: %w", err)
	}
	return affected, nil
}

// --- Triage ---

func (s *PostgresStore) InsertTriageItem(ctx context.Context, item TriageItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO triage_items (id, board_id, title, description, submitter_ip, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
	`, item.ID, item.BoardID, item.Title, item.Description, item.SubmitterIP)
	if err != nil {
		return fmt.Errorf("insert triage item: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTriageItem(ctx context.Context, triageID string) (TriageItem, error) {
	var item TriageItem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, board_id, title, description, COALESCE(submitter_ip, ''), status, created_at
		FROM triage_items
		WHERE id=$1
	`, triageID).Scan(&item.ID, &item.BoardID, &item.Title, &item.Description, &item.SubmitterIP, &item.Status, &item.CreatedAt)
	if err != nil {
		return TriageItem{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListTriageItems(ctx context.Context, boardID, status string) ([]TriageItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, title, description, COALESCE(submitter_ip, ''), status, created_at
		FROM triage_items
		WHERE board_id=$1 AND ($2='' OR status=$2)
		ORDER BY created_at ASC
	`, boardID, status)
	if err != nil {
		return nil, fmt.Errorf("list triage items: %w", err)
	}
	defer rows.Close()

	items := make([]TriageItem, 0)
	for rows.Next() {
		var item TriageItem
		if err := rows.Scan(&item.ID, &item.BoardID, &item.Title, &item.Description, &item.SubmitterIP, &item.Status, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan triage item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triage items: %w", err)
	}
	return items, nil
}

// UpdateTriageStatus transitions a pending triage item; returns false if it
// was already handled.
func (s *PostgresStore) UpdateTriageStatus(ctx context.Context, triageID, status string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE triage_items SET status=$2 WHERE id=$1 AND status='pending'
	`, triageID, status)
	if err != nil {
		return false, fmt.Errorf("update triage status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update triage status rows: %w", err)
	}
	return affected > 0, nil
}
