package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/agent-squad/internal/common"
	"github.com/suPer8Hu/agent-squad/internal/config"
	"github.com/suPer8Hu/agent-squad/internal/httpapi/handlers"
	"github.com/suPer8Hu/agent-squad/internal/httpapi/middleware"
	"go.uber.org/zap"
)

func NewRouter(cfg config.Config, h *handlers.Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(logger))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(logger.Named("access")))

	r.GET("/ping", h.Ping)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthRequired(cfg.JWTSecret))
	v1.POST("/messages", h.SendMessage)
	v1.POST("/messages/async", h.SendMessageAsync)
	v1.GET("/jobs/:job_id", h.GetJob)
	v1.GET("/sessions/:session_id/context", h.GetSessionContext)
	v1.POST("/sessions/:session_id/close", h.CloseSession)

	admin := r.Group("/admin")
	admin.Use(middleware.AuthRequired(cfg.JWTSecret), middleware.RequireSubject(cfg.AdminSubject))
	admin.GET("/cache/stats", h.CacheStats)
	admin.POST("/cache/clear", h.ClearCache)
	admin.GET("/metrics", h.Metrics)
	admin.POST("/sessions/cleanup", h.CleanupSessions)
	admin.GET("/agents", h.ListAgents)
	return r
}
