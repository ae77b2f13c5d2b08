// Package api is the HTTP surface: one POST route per operation plus the
// health, config, catalog and status endpoints.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/rmitchellscott/nixpdf/internal/config"
	"github.com/rmitchellscott/nixpdf/internal/dispatch"
	"github.com/rmitchellscott/nixpdf/internal/jobs"
	"github.com/rmitchellscott/nixpdf/internal/upload"
)

// jobRetention is how long a finished request stays visible at
// /api/status/:id.
const jobRetention = 10 * time.Minute

type Server struct {
	cfg        config.Config
	receiver   *upload.Receiver
	dispatcher *dispatch.Dispatcher
	jobs       *jobs.Store
	slots      chan struct{}
	limiters   *clientLimiters
}

func NewServer(cfg config.Config, d *dispatch.Dispatcher) *Server {
	s := &Server{
		cfg: cfg,
		receiver: upload.NewReceiver(cfg.UploadDir, upload.Limits{
			MaxFileSize: cfg.MaxFileSize,
			MaxFiles:    cfg.MaxFiles,
		}),
		dispatcher: d,
		jobs:       jobs.NewStore(jobRetention),
		slots:      make(chan struct{}, max(cfg.MaxConcurrent, 1)),
	}
	if cfg.RateLimitPerMinute > 0 {
		s.limiters = newClientLimiters(cfg.RateLimitPerMinute)
	}
	return s
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(corsConfig(s.cfg.CORSOrigins)))

	api := router.Group("/api")
	api.GET("/health", s.HealthHandler)
	api.GET("/config", s.ConfigHandler)
	api.GET("/tools", s.ToolsHandler)
	api.GET("/status/:id", s.StatusHandler)

	ops := api.Group("")
	if s.limiters != nil {
		ops.Use(s.limiters.middleware())
	}
	for _, op := range s.dispatcher.Operations() {
		ops.POST("/"+op.Name, s.OperationHandler(op.Name))
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") || c.Request.URL.Path == "/api" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		c.AbortWithStatus(http.StatusNotFound)
	})
	return router
}

func corsConfig(origins []string) cors.Config {
	conf := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			conf.AllowAllOrigins = true
			return conf
		}
	}
	if len(origins) == 0 {
		origins = config.DefaultCORSOrigins
	}
	conf.AllowOrigins = origins
	return conf
}
