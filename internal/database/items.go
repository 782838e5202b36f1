package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zczy-k/ai-nav-item/internal/models"
)

const navItemColumns = `id, category_id, title, url, description, tags, icon, sort_order, created_at, updated_at`

func scanNavItem(row interface{ Scan(...any) error }) (*models.NavItem, error) {
	var it models.NavItem
	err := row.Scan(&it.ID, &it.CategoryID, &it.Title, &it.URL, &it.Description,
		&it.Tags, &it.Icon, &it.SortOrder, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// CreateItem inserts a nav item and returns it with its assigned ID.
func (s *Store) CreateItem(ctx context.Context, it *models.NavItem) (*models.NavItem, error) {
	res, err := s.exec(ctx,
		`INSERT INTO nav_items (category_id, title, url, description, tags, icon, sort_order)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		it.CategoryID, it.Title, it.URL, it.Description, it.Tags, it.Icon, it.SortOrder)
	if err != nil {
		return nil, fmt.Errorf("insert nav item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert nav item id: %w", err)
	}
	return s.GetItem(ctx, id)
}

// GetItem fetches one nav item by ID.
func (s *Store) GetItem(ctx context.Context, id int64) (*models.NavItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+navItemColumns+` FROM nav_items WHERE id = ?`, id)

	it, err := scanNavItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get nav item %d: %w", id, err)
	}
	return it, nil
}

// ListItems returns all nav items ordered for display. categoryID 0 lists
// every category.
func (s *Store) ListItems(ctx context.Context, categoryID int64) ([]*models.NavItem, error) {
	query := `SELECT ` + navItemColumns + ` FROM nav_items ORDER BY category_id, sort_order, id`
	args := []any{}
	if categoryID != 0 {
		query = `SELECT ` + navItemColumns + ` FROM nav_items WHERE category_id = ? ORDER BY sort_order, id`
		args = append(args, categoryID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list nav items: %w", err)
	}
	defer rows.Close()

	var out []*models.NavItem
	for rows.Next() {
		it, err := scanNavItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan nav item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListItemsNeedingEnrichment returns the items still lacking a generated
// description, in stable order. This is the work list fed to the batch
// engine.
func (s *Store) ListItemsNeedingEnrichment(ctx context.Context) ([]*models.NavItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+navItemColumns+` FROM nav_items WHERE description = '' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list items needing enrichment: %w", err)
	}
	defer rows.Close()

	var out []*models.NavItem
	for rows.Next() {
		it, err := scanNavItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan nav item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateItem updates the editable fields of a nav item.
func (s *Store) UpdateItem(ctx context.Context, it *models.NavItem) error {
	res, err := s.exec(ctx,
		`UPDATE nav_items
		 SET category_id = ?, title = ?, url = ?, description = ?, tags = ?, icon = ?, sort_order = ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		it.CategoryID, it.Title, it.URL, it.Description, it.Tags, it.Icon, it.SortOrder, it.ID)
	if err != nil {
		return fmt.Errorf("update nav item %d: %w", it.ID, err)
	}
	return requireRow(res, it.ID)
}

// UpdateItemMetadata stores generated metadata for one item. Empty tags are
// allowed: a partial enrichment writes the description alone.
func (s *Store) UpdateItemMetadata(ctx context.Context, id int64, description, tags string) error {
	res, err := s.exec(ctx,
		`UPDATE nav_items SET description = ?, tags = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		description, tags, id)
	if err != nil {
		return fmt.Errorf("update nav item %d metadata: %w", id, err)
	}
	return requireRow(res, id)
}

// UpdateItemIcon stores the resolved icon reference for one item.
func (s *Store) UpdateItemIcon(ctx context.Context, id int64, icon string) error {
	res, err := s.exec(ctx,
		`UPDATE nav_items SET icon = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		icon, id)
	if err != nil {
		return fmt.Errorf("update nav item %d icon: %w", id, err)
	}
	return requireRow(res, id)
}

// DeleteItem removes a nav item.
func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, `DELETE FROM nav_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete nav item %d: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}
