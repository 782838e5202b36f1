// Package web exposes the navigation store and the batch enrichment
// engine over an HTTP API.
package web

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zczy-k/ai-nav-item/internal/database"
	"github.com/zczy-k/ai-nav-item/internal/enrich"
	"github.com/zczy-k/ai-nav-item/internal/icon"
	"github.com/zczy-k/ai-nav-item/pkg/batch"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ainav_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ainav_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Notifier receives data-change signals from mutating handlers.
type Notifier interface {
	NotifyChange()
}

// Server wires the HTTP API to the store, the enrichment engine and
// the icon fetcher.
type Server struct {
	store    *database.Store
	ctrl     *batch.Controller
	enricher *enrich.Enricher
	icons    *icon.Fetcher
	notifier Notifier
	logger   zerolog.Logger
	router   *gin.Engine

	// baseDelay and classifier are fixed at construction and passed to
	// every task start.
	baseDelay time.Duration
	classify  batch.Classifier
}

// Options configures a Server.
type Options struct {
	Store      *database.Store
	Controller *batch.Controller
	Enricher   *enrich.Enricher
	Icons      *icon.Fetcher
	Notifier   Notifier
	Logger     zerolog.Logger
	BaseDelay  time.Duration
}

// NewServer builds the router and all route handlers.
func NewServer(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:     opts.Store,
		ctrl:      opts.Controller,
		enricher:  opts.Enricher,
		icons:     opts.Icons,
		notifier:  opts.Notifier,
		logger:    opts.Logger.With().Str("component", "web").Logger(),
		baseDelay: opts.BaseDelay,
		classify:  enrich.Classify,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestMetrics())

	router.GET("/healthz", s.healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/items", s.listItems)
		api.POST("/items", s.createItem)
		api.GET("/items/:id", s.getItem)
		api.PUT("/items/:id", s.updateItem)
		api.DELETE("/items/:id", s.deleteItem)

		api.GET("/categories", s.listCategories)
		api.POST("/categories", s.createCategory)
		api.PUT("/categories/:id", s.updateCategory)
		api.DELETE("/categories/:id", s.deleteCategory)

		api.POST("/task/start", s.startTask)
		api.POST("/task/stop", s.stopTask)
		api.GET("/task/status", s.taskStatus)

		api.GET("/icon", s.getIcon)
	}

	s.router = router
	return s
}

// Router returns the configured gin engine for use as an http.Handler.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(c.Writer.Status()),
		).Inc()
		httpDuration.Observe(time.Since(start).Seconds())
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// notifyChange fans a data mutation out to the backup manager.
func (s *Server) notifyChange() {
	if s.notifier != nil {
		s.notifier.NotifyChange()
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(400, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
