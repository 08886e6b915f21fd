// Package server exposes the control surface over HTTP: lifecycle and
// update operations as JSON endpoints, auxiliary config/toggle/model
// endpoints, and the dashboard asset at the root.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imrosyd/cliproxyctl/internal/history"
	"github.com/imrosyd/cliproxyctl/internal/metrics"
	"github.com/imrosyd/cliproxyctl/internal/paths"
	"github.com/imrosyd/cliproxyctl/internal/provider"
	"github.com/imrosyd/cliproxyctl/internal/supervisor"
	"github.com/imrosyd/cliproxyctl/internal/updater"
)

// Supervisor is the lifecycle surface the router drives.
type Supervisor interface {
	Status() supervisor.Status
	Start() (int, error)
	Stop() error
	Restart() (int, error)
	Login(providerID string) error
}

// Updater is the self-update surface.
type Updater interface {
	Check(ctx context.Context) (updater.Info, error)
	Install(ctx context.Context) (updater.Result, error)
}

// Router wires the control API. The audit sink is optional; a nil sink
// disables history recording and the /api/history endpoint returns empty.
type Router struct {
	sup     Supervisor
	upd     Updater
	layout  paths.Layout
	toggles *provider.Toggles
	hist    history.Sink
	api     *http.Client
}

func NewRouter(layout paths.Layout, sup Supervisor, upd Updater, toggles *provider.Toggles, hist history.Sink) *Router {
	return &Router{
		sup:     sup,
		upd:     upd,
		layout:  layout,
		toggles: toggles,
		hist:    hist,
		api:     &http.Client{Timeout: 5 * time.Second},
	}
}

// Handler returns the gin-powered http.Handler for the control surface.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), corsMiddleware(), countRequests())

	g.GET("/", r.handleGUI)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := g.Group("/api")
	api.GET("/status", r.handleStatus)
	api.POST("/start", r.handleStart)
	api.POST("/stop", r.handleStop)
	api.POST("/restart", r.handleRestart)
	api.GET("/update-info", r.handleUpdateInfo)
	api.POST("/update", r.handleUpdate)
	api.POST("/oauth/:provider", r.handleOAuth)
	api.GET("/auth-status", r.handleAuthStatus)
	api.GET("/models", r.handleModels)
	api.GET("/stats", r.handleStats)
	api.GET("/config", r.handleConfigGet)
	api.POST("/config", r.handleConfigSet)
	api.GET("/factory-config", r.handleFactoryGet)
	api.POST("/factory-config/add", r.handleFactoryAdd)
	api.POST("/factory-config/remove", r.handleFactoryRemove)
	api.POST("/provider-toggle", r.handleProviderToggle)
	api.GET("/history", r.handleHistory)

	g.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	return g
}

// NewServer builds a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// corsMiddleware applies the permissive cross-origin headers the dashboard
// relies on and short-circuits OPTIONS preflights with 204.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		metrics.IncRequest(c.FullPath(), strconv.Itoa(c.Writer.Status()))
	}
}
