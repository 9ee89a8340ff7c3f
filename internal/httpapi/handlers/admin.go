package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/agent-squad/internal/common"
	"go.uber.org/zap"
)

func (h *Handler) CacheStats(c *gin.Context) {
	common.OK(c, gin.H{
		"local":  h.classifier.Cache().Stats(),
		"shared": h.shared != nil,
	})
}

func (h *Handler) ClearCache(c *gin.Context) {
	h.classifier.Cache().Clear()

	var sharedCleared int64
	if h.shared != nil {
		n, err := h.shared.ClearClassifications(c.Request.Context())
		if err != nil {
			h.log.Warn("clear shared cache failed", zap.Error(err))
			common.Fail(c, http.StatusBadGateway, 50201, "shared cache unavailable")
			return
		}
		sharedCleared = n
	}
	common.OK(c, gin.H{"cleared": true, "sharedCleared": sharedCleared})
}

func (h *Handler) Metrics(c *gin.Context) {
	common.OK(c, gin.H{
		"sessions":       h.sessions.Metrics(),
		"classification": h.classifier.Metrics(),
		"cache":          h.classifier.Cache().Stats(),
	})
}

func (h *Handler) CleanupSessions(c *gin.Context) {
	n, err := h.sessions.CleanupOldSessions(c.Request.Context())
	if err != nil {
		h.log.Error("session cleanup failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"closed": n})
}

func (h *Handler) ListAgents(c *gin.Context) {
	common.OK(c, gin.H{"agents": h.agents.Descriptors()})
}
