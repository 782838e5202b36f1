// Package models defines the core data structures of ai-nav-item.
package models

import (
	"strings"
	"time"
)

// Category is one node of the navigation hierarchy. ParentID 0 marks a root
// category.
type Category struct {
	ID        int64     `json:"id" db:"id"`
	ParentID  int64     `json:"parent_id" db:"parent_id"`
	Name      string    `json:"name" db:"name"`
	SortOrder int       `json:"sort_order" db:"sort_order"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NavItem is one navigation entry. Description and Tags are the
// AI-generated metadata the enrichment engine fills in.
type NavItem struct {
	ID          int64     `json:"id" db:"id"`
	CategoryID  int64     `json:"category_id" db:"category_id"`
	Title       string    `json:"title" db:"title"`
	URL         string    `json:"url" db:"url"`
	Description string    `json:"description" db:"description"`
	Tags        string    `json:"tags" db:"tags"` // comma-separated
	Icon        string    `json:"icon" db:"icon"`
	SortOrder   int       `json:"sort_order" db:"sort_order"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// TagList splits the comma-separated Tags field into trimmed tags.
func (n *NavItem) TagList() []string {
	if n.Tags == "" {
		return nil
	}
	parts := strings.Split(n.Tags, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// NeedsEnrichment reports whether the item still lacks generated metadata.
func (n *NavItem) NeedsEnrichment() bool {
	return strings.TrimSpace(n.Description) == ""
}
