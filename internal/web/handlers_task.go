package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zczy-k/ai-nav-item/internal/enrich"
	"github.com/zczy-k/ai-nav-item/pkg/batch"
)

// startTask launches enrichment over every item that still lacks a
// description. A task already in flight yields 409.
func (s *Server) startTask(c *gin.Context) {
	rows, err := s.store.ListItemsNeedingEnrichment(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list items needing enrichment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list items"})
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "no items need enrichment", "total": 0})
		return
	}

	res, err := s.ctrl.Start(enrich.WorkItems(rows), s.enricher, batch.StartOptions{
		BaseDelay:  s.baseDelay,
		Classifier: s.classify,
		Notifier:   s.notifyChange,
	})
	if err != nil {
		if errors.Is(err, batch.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "a task is already running"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to start task")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start task"})
		return
	}

	s.logger.Info().Str("task_id", res.TaskID.String()).Int("total", res.Total).Msg("Enrichment task started")
	c.JSON(http.StatusAccepted, res)
}

func (s *Server) stopTask(c *gin.Context) {
	res := s.ctrl.Stop()
	if res.Stopped {
		s.logger.Info().Msg("Enrichment task stop requested")
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) taskStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Status())
}
