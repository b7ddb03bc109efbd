// Package api implements the REST surface over a Gateway: the chat
// endpoint, catalog and usage queries, and tenant settings management.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wayfarelabs/faregate/internal/config"
	"github.com/wayfarelabs/faregate/internal/gateway"
	. "github.com/wayfarelabs/faregate/internal/logging"
)

// Server wraps the HTTP listener around the REST routes.
type Server struct {
	cfg config.APIConfig
	srv *http.Server
}

// New builds the router and listener. Call Start to begin serving.
func New(gw *gateway.Gateway, cfg config.APIConfig, version string) *Server {
	return &Server{
		cfg: cfg,
		srv: &http.Server{
			Addr:         cfg.Listen,
			Handler:      NewRouter(gw, cfg, version),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start serves in the background and returns immediately. Listener
// failures other than a clean shutdown are fatal.
func (s *Server) Start() {
	go func() {
		L_info("api: listening", "addr", s.cfg.Listen)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			L_fatal("api: server error", "error", err)
		}
	}()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// NewRouter wires every route. Split from New so tests can drive the
// handlers without a listener.
func NewRouter(gw *gateway.Gateway, cfg config.APIConfig, version string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLog())

	h := NewHandlers(gw, version)

	r.GET("/healthz", h.Health)

	v1 := r.Group("/v1")
	if cfg.AuthToken != "" {
		v1.Use(bearerAuth(cfg.AuthToken))
		L_info("api: bearer authentication enabled")
	} else {
		L_warn("api: no auth token configured, endpoints are unauthenticated")
	}
	{
		v1.POST("/chat", h.Chat)

		v1.GET("/models", h.ListModels)
		v1.GET("/models/cheapest", h.CheapestModel)

		v1.GET("/usage/summary", h.UsageSummary)
		v1.GET("/usage/entries", h.UsageEntries)

		v1.GET("/tenants/:id/settings", h.GetTenantSettings)
		v1.PUT("/tenants/:id/settings", h.PutTenantSettings)
		v1.DELETE("/tenants/:id/settings", h.DeleteTenantSettings)

		v1.GET("/fallback/estimate", h.FallbackEstimate)
	}

	return r
}

// bearerAuth validates the Authorization header against the configured
// token. A bare token is accepted alongside the Bearer form.
func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Authorization")
		key = strings.TrimPrefix(key, "Bearer ")
		if key != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: invalid or missing API token"})
			return
		}
		c.Next()
	}
}

// requestLog funnels request traffic through the service logger instead
// of gin's own writer.
func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		L_debug("api: request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
