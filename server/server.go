package server

import (
	"context"
	"net/http"
	"time"

	"github.com/ahmadzakiakmal/scrumchain/repository"
	"github.com/ahmadzakiakmal/scrumchain/repository/models"
	"github.com/ahmadzakiakmal/scrumchain/synchronizer"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services are the components the HTTP API exposes
type Services struct {
	Repository   *repository.Repository
	Teams        *synchronizer.Synchronizer[*models.Team]
	BacklogItems *synchronizer.Synchronizer[*models.BacklogItem]
	Sprints      *synchronizer.Synchronizer[*models.Sprint]
	Tasks        *synchronizer.Synchronizer[*models.Task]
}

// WebServer handles HTTP requests
type WebServer struct {
	svc       Services
	httpAddr  string
	router    *gin.Engine
	server    *http.Server
	logger    cmtlog.Logger
	startTime time.Time
}

// NewWebServer creates a new web server
func NewWebServer(httpPort string, svc Services, logger cmtlog.Logger) *WebServer {
	logger = logger.With("module", "server")
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	ws := &WebServer{
		svc:      svc,
		httpAddr: ":" + httpPort,
		router:   router,
		server: &http.Server{
			Addr:              ":" + httpPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger:    logger,
		startTime: time.Now(),
	}
	ws.routes()
	return ws
}

func (ws *WebServer) routes() {
	r := ws.router
	r.GET("/health", ws.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/teams", createHandler(ws.svc.Teams, bindTeam))
	r.PATCH("/teams/:id", updateHandler(ws.svc.Teams, teamPatch))
	r.GET("/teams/:id", getHandler(ws.svc.Teams))
	r.GET("/teams/:id/integrity", integrityHandler(ws.svc.Teams))

	r.POST("/backlog-items", createHandler(ws.svc.BacklogItems, bindBacklogItem))
	r.PATCH("/backlog-items/:id", updateHandler(ws.svc.BacklogItems, backlogItemPatch))
	r.GET("/backlog-items/:id", getHandler(ws.svc.BacklogItems))
	r.GET("/backlog-items/:id/integrity", integrityHandler(ws.svc.BacklogItems))

	r.POST("/sprints", createHandler(ws.svc.Sprints, bindSprint))
	r.PATCH("/sprints/:id", updateHandler(ws.svc.Sprints, sprintPatch))
	r.GET("/sprints/:id", getHandler(ws.svc.Sprints))
	r.PUT("/sprints/:id/status", statusHandler(ws.svc.Sprints))
	r.DELETE("/sprints/:id", removeHandler(ws.svc.Sprints))
	r.GET("/sprints/:id/integrity", integrityHandler(ws.svc.Sprints))

	r.POST("/tasks", createHandler(ws.svc.Tasks, bindTask))
	r.PATCH("/tasks/:id", updateHandler(ws.svc.Tasks, taskPatch))
	r.GET("/tasks/:id", getHandler(ws.svc.Tasks))
	r.PUT("/tasks/:id/status", statusHandler(ws.svc.Tasks))
	r.PUT("/tasks/:id/assignee", ws.handleAssign)
	r.DELETE("/tasks/:id", removeHandler(ws.svc.Tasks))
	r.GET("/tasks/:id/integrity", integrityHandler(ws.svc.Tasks))

	r.GET("/transactions", ws.handleQueryTransactions)
	r.GET("/transactions/stats", ws.handleTransactionStats)
	r.GET("/transactions/:hash", ws.handleGetTransaction)
}

// Handler exposes the router, mainly for tests
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Info("Starting web server", "addr", ws.httpAddr)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("web server error", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

func (ws *WebServer) handleHealth(c *gin.Context) {
	if err := ws.svc.Repository.Ping(c.Request.Context()); err != nil {
		ws.logger.Error("Health check failed", "err", err)
		JSONError(c, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(ws.startTime).Round(time.Second).String(),
	})
}

func requestLogger(logger cmtlog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		started := time.Now()
		c.Next()
		kv := []any{
			"id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(started),
		}
		if len(c.Errors) > 0 {
			logger.Info("Request finished with errors", append(kv, "err", c.Errors.String())...)
			return
		}
		logger.Debug("Request", kv...)
	}
}

// requester identifies who asked for the change in the transaction record
func requester(c *gin.Context) string {
	if r := c.GetHeader("X-Requester"); r != "" {
		return r
	}
	return c.ClientIP()
}

// JSONError sends a JSON formatted error response with the given status code and message
func JSONError(c *gin.Context, message string, statusCode int) {
	c.AbortWithStatusJSON(statusCode, gin.H{"error": message})
}
