package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zczy-k/ai-nav-item/internal/models"
)

const categoryColumns = `id, parent_id, name, sort_order, created_at, updated_at`

func scanCategory(row interface{ Scan(...any) error }) (*models.Category, error) {
	var c models.Category
	err := row.Scan(&c.ID, &c.ParentID, &c.Name, &c.SortOrder, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCategory inserts a category under parentID (0 for a root category).
func (s *Store) CreateCategory(ctx context.Context, parentID int64, name string, sortOrder int) (*models.Category, error) {
	if parentID != 0 {
		if _, err := s.GetCategory(ctx, parentID); err != nil {
			return nil, err
		}
	}

	res, err := s.exec(ctx,
		`INSERT INTO categories (parent_id, name, sort_order) VALUES (?, ?, ?)`,
		parentID, name, sortOrder)
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert category id: %w", err)
	}
	return s.GetCategory(ctx, id)
}

// GetCategory fetches one category by ID.
func (s *Store) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)

	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category %d: %w", id, err)
	}
	return c, nil
}

// ListCategories returns all categories ordered for display.
func (s *Store) ListCategories(ctx context.Context) ([]*models.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories ORDER BY parent_id, sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []*models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RenameCategory updates a category's name.
func (s *Store) RenameCategory(ctx context.Context, id int64, name string) error {
	res, err := s.exec(ctx,
		`UPDATE categories SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("rename category %d: %w", id, err)
	}
	return requireRow(res, id)
}

// ReparentCategory moves a category under a new parent. Moving a category
// under itself or its own descendant is rejected.
func (s *Store) ReparentCategory(ctx context.Context, id, newParentID int64) error {
	if id == newParentID {
		return fmt.Errorf("category %d cannot be its own parent", id)
	}
	if newParentID != 0 {
		if _, err := s.GetCategory(ctx, newParentID); err != nil {
			return err
		}
		descendant, err := s.isDescendant(ctx, newParentID, id)
		if err != nil {
			return err
		}
		if descendant {
			return fmt.Errorf("category %d cannot move under its descendant %d", id, newParentID)
		}
	}

	res, err := s.exec(ctx,
		`UPDATE categories SET parent_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		newParentID, id)
	if err != nil {
		return fmt.Errorf("reparent category %d: %w", id, err)
	}
	return requireRow(res, id)
}

// isDescendant reports whether candidate sits in the subtree rooted at root.
func (s *Store) isDescendant(ctx context.Context, candidate, root int64) (bool, error) {
	cur := candidate
	// Parent chains are short; a walk beats recursive SQL here.
	for depth := 0; depth < 64 && cur != 0; depth++ {
		if cur == root {
			return true, nil
		}
		row := s.db.QueryRowContext(ctx, `SELECT parent_id FROM categories WHERE id = ?`, cur)
		if err := row.Scan(&cur); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}
			return false, err
		}
	}
	return false, nil
}

// DeleteCategory removes a category. Child categories block the delete;
// items in the category are reassigned to uncategorized (category 0).
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	var children int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE parent_id = ?`, id)
	if err := row.Scan(&children); err != nil {
		return fmt.Errorf("count children of %d: %w", id, err)
	}
	if children > 0 {
		return fmt.Errorf("%w: category %d", ErrCategoryNotEmpty, id)
	}

	if _, err := s.exec(ctx,
		`UPDATE nav_items SET category_id = 0, updated_at = CURRENT_TIMESTAMP WHERE category_id = ?`, id); err != nil {
		return fmt.Errorf("orphan items of category %d: %w", id, err)
	}

	res, err := s.exec(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	return requireRow(res, id)
}
