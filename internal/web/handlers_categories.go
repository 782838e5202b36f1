package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zczy-k/ai-nav-item/internal/database"
)

type categoryRequest struct {
	Name      string `json:"name" binding:"required"`
	ParentID  int64  `json:"parent_id"`
	SortOrder int    `json:"sort_order"`
}

type categoryUpdateRequest struct {
	Name     *string `json:"name"`
	ParentID *int64  `json:"parent_id"`
}

func (s *Server) listCategories(c *gin.Context) {
	categories, err := s.store.ListCategories(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list categories")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list categories"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (s *Server) createCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cat, err := s.store.CreateCategory(c.Request.Context(), req.ParentID, req.Name, req.SortOrder)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "parent category not found"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to create category")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create category"})
		return
	}

	s.notifyChange()
	c.JSON(http.StatusCreated, cat)
}

// updateCategory renames and/or reparents a category. Both fields are
// optional; absent fields are left unchanged.
func (s *Server) updateCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req categoryUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == nil && req.ParentID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	ctx := c.Request.Context()
	if req.Name != nil {
		if *req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return
		}
		if err := s.store.RenameCategory(ctx, id, *req.Name); err != nil {
			s.categoryError(c, id, err, "rename")
			return
		}
	}
	if req.ParentID != nil {
		if err := s.store.ReparentCategory(ctx, id, *req.ParentID); err != nil {
			s.categoryError(c, id, err, "reparent")
			return
		}
	}

	s.notifyChange()
	cat, err := s.store.GetCategory(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reload category"})
		return
	}
	c.JSON(http.StatusOK, cat)
}

func (s *Server) deleteCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.store.DeleteCategory(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		case errors.Is(err, database.ErrCategoryNotEmpty):
			c.JSON(http.StatusConflict, gin.H{"error": "category has child categories"})
		default:
			s.logger.Error().Err(err).Int64("category_id", id).Msg("Failed to delete category")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete category"})
		}
		return
	}

	s.notifyChange()
	c.Status(http.StatusNoContent)
}

func (s *Server) categoryError(c *gin.Context, id int64, err error, op string) {
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}
	s.logger.Error().Err(err).Int64("category_id", id).Str("op", op).Msg("Category update failed")
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
