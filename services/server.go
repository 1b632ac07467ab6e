package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pubmed-graph/config"
	"pubmed-graph/filter"
)

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

// Server bündelt die Abhängigkeiten der Betriebs-API. Scheduler und Queries sind optional.
type Server struct {
	Config    *config.Config
	Manager   *Manager
	Scheduler *Scheduler
	Queries   *QueryService
	Logger    *zap.Logger
}

// Router liefert die gin-Engine; /health ist ohne API-Key erreichbar.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/")
	api.Use(apiKeyAuthMiddleware(s.Config))
	api.GET("/metrics", gin.WrapH(promhttp.Handler()))
	api.GET("/status", s.status)
	api.GET("/status/history", s.history)
	api.GET("/pipeline", s.pipeline)
	api.POST("/run", s.trigger)
	api.POST("/query", s.query)
	return router
}

func (s *Server) status(c *gin.Context) {
	if meta := s.Manager.Status(); meta != nil {
		c.JSON(http.StatusOK, meta)
		return
	}
	meta, err := s.Manager.Metadata.FetchLatest(c.Request.Context())
	if err != nil {
		s.Logger.Error("Metadaten nicht lesbar", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "metadata unavailable"})
		return
	}
	if meta == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no ingestion has run yet"})
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (s *Server) history(c *gin.Context) {
	list, err := s.Manager.Metadata.History(c.Request.Context())
	if err != nil {
		s.Logger.Error("Metadaten-Historie nicht lesbar", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "metadata unavailable"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) pipeline(c *gin.Context) {
	running := s.Scheduler != nil && s.Scheduler.Running()
	c.JSON(http.StatusOK, gin.H{
		"running":     running,
		"utilisation": s.Manager.Utilisation(),
	})
}

func (s *Server) trigger(c *gin.Context) {
	if s.Scheduler == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "scheduler disabled"})
		return
	}
	if s.Scheduler.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": ErrRunInProgress.Error()})
		return
	}
	go func() {
		if err := s.Scheduler.Trigger(context.Background()); err != nil && !errors.Is(err, ErrRunInProgress) {
			s.Logger.Error("Manueller Lauf fehlgeschlagen", zap.Error(err))
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

type queryRequest struct {
	Filters  filter.Filters  `json:"filters"`
	Settings filter.Settings `json:"settings"`
}

func (s *Server) query(c *gin.Context) {
	if s.Queries == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "queries disabled"})
		return
	}
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	res, err := s.Queries.Query(c.Request.Context(), req.Filters, req.Settings)
	var limitErr *filter.LimitError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, filter.ErrValidation), errors.Is(err, filter.ErrNothingToQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &limitErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "limit": limitErr.Limit, "rows": limitErr.Rows})
	default:
		s.Logger.Error("Filterabfrage fehlgeschlagen", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
	}
}
