package database

import (
	"context"
	"errors"
	"testing"

	"github.com/zczy-k/ai-nav-item/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestItemCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateItem(ctx, &models.NavItem{
		Title: "Go Blog",
		URL:   "https://go.dev/blog",
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("CreateItem assigned no ID")
	}
	if created.Description != "" {
		t.Errorf("Description = %q, want empty", created.Description)
	}

	created.Description = "The official Go blog"
	created.Tags = "go, blog"
	if err := s.UpdateItem(ctx, created); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	got, err := s.GetItem(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Description != "The official Go blog" {
		t.Errorf("Description = %q", got.Description)
	}
	if tags := got.TagList(); len(tags) != 2 || tags[0] != "go" || tags[1] != "blog" {
		t.Errorf("TagList = %v, want [go blog]", tags)
	}

	if err := s.DeleteItem(ctx, created.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if _, err := s.GetItem(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetItem after delete = %v, want ErrNotFound", err)
	}
}

func TestItemNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetItem(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetItem = %v, want ErrNotFound", err)
	}
	if err := s.DeleteItem(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteItem = %v, want ErrNotFound", err)
	}
	if err := s.UpdateItemMetadata(ctx, 9999, "x", "y"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateItemMetadata = %v, want ErrNotFound", err)
	}
}

func TestListItemsNeedingEnrichment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, it := range []*models.NavItem{
		{Title: "A", URL: "https://a.test"},
		{Title: "B", URL: "https://b.test", Description: "already described"},
		{Title: "C", URL: "https://c.test"},
	} {
		if _, err := s.CreateItem(ctx, it); err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
	}

	missing, err := s.ListItemsNeedingEnrichment(ctx)
	if err != nil {
		t.Fatalf("ListItemsNeedingEnrichment: %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("got %d items, want 2", len(missing))
	}
	if missing[0].Title != "A" || missing[1].Title != "C" {
		t.Errorf("items = %s, %s; want A, C (stable order)", missing[0].Title, missing[1].Title)
	}

	// Filling in metadata removes the item from the work list.
	if err := s.UpdateItemMetadata(ctx, missing[0].ID, "generated", "tag1, tag2"); err != nil {
		t.Fatalf("UpdateItemMetadata: %v", err)
	}
	missing, err = s.ListItemsNeedingEnrichment(ctx)
	if err != nil {
		t.Fatalf("ListItemsNeedingEnrichment: %v", err)
	}
	if len(missing) != 1 || missing[0].Title != "C" {
		t.Errorf("after enrichment: %d items, want just C", len(missing))
	}
}

func TestListItemsByCategory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cat, err := s.CreateCategory(ctx, 0, "Dev", 0)
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	if _, err := s.CreateItem(ctx, &models.NavItem{Title: "In", URL: "https://in.test", CategoryID: cat.ID}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if _, err := s.CreateItem(ctx, &models.NavItem{Title: "Out", URL: "https://out.test"}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	got, err := s.ListItems(ctx, cat.ID)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(got) != 1 || got[0].Title != "In" {
		t.Errorf("ListItems(category) = %v, want just In", got)
	}

	all, err := s.ListItems(ctx, 0)
	if err != nil {
		t.Fatalf("ListItems(all): %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListItems(all) = %d items, want 2", len(all))
	}
}

func TestCategoryHierarchy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root, err := s.CreateCategory(ctx, 0, "Tools", 0)
	if err != nil {
		t.Fatalf("CreateCategory root: %v", err)
	}
	child, err := s.CreateCategory(ctx, root.ID, "Editors", 1)
	if err != nil {
		t.Fatalf("CreateCategory child: %v", err)
	}

	if err := s.RenameCategory(ctx, child.ID, "IDEs"); err != nil {
		t.Fatalf("RenameCategory: %v", err)
	}
	got, err := s.GetCategory(ctx, child.ID)
	if err != nil {
		t.Fatalf("GetCategory: %v", err)
	}
	if got.Name != "IDEs" {
		t.Errorf("Name = %q, want IDEs", got.Name)
	}

	// Cycles are rejected.
	if err := s.ReparentCategory(ctx, root.ID, child.ID); err == nil {
		t.Error("ReparentCategory under own descendant succeeded, want error")
	}
	if err := s.ReparentCategory(ctx, root.ID, root.ID); err == nil {
		t.Error("ReparentCategory under itself succeeded, want error")
	}

	other, err := s.CreateCategory(ctx, 0, "Misc", 2)
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if err := s.ReparentCategory(ctx, child.ID, other.ID); err != nil {
		t.Fatalf("ReparentCategory: %v", err)
	}
	got, _ = s.GetCategory(ctx, child.ID)
	if got.ParentID != other.ID {
		t.Errorf("ParentID = %d, want %d", got.ParentID, other.ID)
	}
}

func TestDeleteCategory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root, _ := s.CreateCategory(ctx, 0, "Root", 0)
	child, _ := s.CreateCategory(ctx, root.ID, "Child", 0)

	// A category with children cannot be deleted.
	if err := s.DeleteCategory(ctx, root.ID); !errors.Is(err, ErrCategoryNotEmpty) {
		t.Errorf("DeleteCategory(root) = %v, want ErrCategoryNotEmpty", err)
	}

	it, _ := s.CreateItem(ctx, &models.NavItem{Title: "X", URL: "https://x.test", CategoryID: child.ID})
	if err := s.DeleteCategory(ctx, child.ID); err != nil {
		t.Fatalf("DeleteCategory(child): %v", err)
	}

	// Items of the deleted category fall back to uncategorized.
	got, err := s.GetItem(ctx, it.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.CategoryID != 0 {
		t.Errorf("CategoryID = %d, want 0 after category delete", got.CategoryID)
	}
}
