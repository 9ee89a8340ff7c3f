package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/agent-squad/internal/common"
	"github.com/suPer8Hu/agent-squad/internal/session"
	"go.uber.org/zap"
)

// ownedSession loads the session and checks it belongs to the acting user.
// Sessions of other users look missing.
func (h *Handler) ownedSession(c *gin.Context) (string, bool) {
	user, ok := h.requireUser(c)
	if !ok {
		return "", false
	}
	sessionID := c.Param("session_id")
	sess, err := h.sessions.Session(c.Request.Context(), sessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
	case err != nil:
		h.log.Error("load session failed", zap.String("session_id", sessionID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return "", false
	case sess.UserID == user:
		return sessionID, true
	}
	common.Fail(c, http.StatusNotFound, 40401, "session not found")
	return "", false
}

func (h *Handler) GetSessionContext(c *gin.Context) {
	sessionID, ok := h.ownedSession(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 || limit > 100 {
		limit = h.window
	}
	common.OK(c, h.sessions.GetConversationContext(c.Request.Context(), sessionID, limit))
}

func (h *Handler) CloseSession(c *gin.Context) {
	sessionID, ok := h.ownedSession(c)
	if !ok {
		return
	}
	if err := h.sessions.CloseSession(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "session not found")
			return
		}
		h.log.Error("close session failed", zap.String("session_id", sessionID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"session_id": sessionID, "closed": true})
}
