package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zczy-k/ai-nav-item/internal/database"
	"github.com/zczy-k/ai-nav-item/internal/models"
)

type itemRequest struct {
	CategoryID  int64  `json:"category_id"`
	Title       string `json:"title" binding:"required"`
	URL         string `json:"url" binding:"required"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
	Icon        string `json:"icon"`
	SortOrder   int    `json:"sort_order"`
}

func (s *Server) listItems(c *gin.Context) {
	var categoryID int64
	if raw := c.Query("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category_id"})
			return
		}
		categoryID = id
	}

	items, err := s.store.ListItems(c.Request.Context(), categoryID)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list items")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list items"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) getItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	item, err := s.store.GetItem(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
			return
		}
		s.logger.Error().Err(err).Int64("item_id", id).Msg("Failed to get item")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get item"})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) createItem(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := s.store.CreateItem(c.Request.Context(), &models.NavItem{
		CategoryID:  req.CategoryID,
		Title:       req.Title,
		URL:         req.URL,
		Description: req.Description,
		Tags:        req.Tags,
		Icon:        req.Icon,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create item")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create item"})
		return
	}

	s.notifyChange()
	c.JSON(http.StatusCreated, item)
}

func (s *Server) updateItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.store.UpdateItem(c.Request.Context(), &models.NavItem{
		ID:          id,
		CategoryID:  req.CategoryID,
		Title:       req.Title,
		URL:         req.URL,
		Description: req.Description,
		Tags:        req.Tags,
		Icon:        req.Icon,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
			return
		}
		s.logger.Error().Err(err).Int64("item_id", id).Msg("Failed to update item")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update item"})
		return
	}

	s.notifyChange()
	item, err := s.store.GetItem(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reload item"})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) deleteItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.store.DeleteItem(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
			return
		}
		s.logger.Error().Err(err).Int64("item_id", id).Msg("Failed to delete item")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete item"})
		return
	}

	s.notifyChange()
	c.Status(http.StatusNoContent)
}

// getIcon streams the favicon for the host of the given url parameter.
func (s *Server) getIcon(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url parameter is required"})
		return
	}

	data, contentType, err := s.icons.Resolve(c.Request.Context(), rawURL)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", rawURL).Msg("Icon resolution failed")
		c.JSON(http.StatusNotFound, gin.H{"error": "icon not found"})
		return
	}

	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, contentType, data)
}
