package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/agent-squad/internal/common"
	"github.com/suPer8Hu/agent-squad/internal/httpapi/middleware"
	"github.com/suPer8Hu/agent-squad/internal/orchestrator"
	"github.com/suPer8Hu/agent-squad/internal/session"
	"go.uber.org/zap"
)

type messageReq struct {
	UserID              string                   `json:"userId"`
	ChatID              string                   `json:"chatId"`
	Text                string                   `json:"text"`
	ConversationHistory []session.ContextMessage `json:"conversationHistory"`
}

func (r messageReq) event() orchestrator.Event {
	return orchestrator.Event{
		UserID:              strings.TrimSpace(r.UserID),
		ChatID:              strings.TrimSpace(r.ChatID),
		Text:                r.Text,
		ConversationHistory: r.ConversationHistory,
	}
}

// SendMessage runs one turn synchronously. The orchestrator never fails, so
// the body is always a Response; success=false marks a degraded turn.
func (h *Handler) SendMessage(c *gin.Context) {
	var req messageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	ev := req.event()
	user, err := h.actingUser(c, ev.UserID)
	if err != nil {
		common.Fail(c, http.StatusForbidden, 40301, "forbidden")
		return
	}
	ev.UserID = user
	resp := h.orch.HandleMessage(c.Request.Context(), ev)
	common.OK(c, resp)
}

func (h *Handler) SendMessageAsync(c *gin.Context) {
	if h.jobs == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async processing disabled")
		return
	}

	var req messageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	ev := req.event()
	user, err := h.actingUser(c, ev.UserID)
	if err != nil {
		common.Fail(c, http.StatusForbidden, 40301, "forbidden")
		return
	}
	ev.UserID = user
	if ev.UserID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "userId required")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}

	j, created, err := h.jobs.Enqueue(c.Request.Context(), ev, idempoKey)
	if err != nil {
		h.log.Error("enqueue failed",
			zap.String("user_id", ev.UserID),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
		return
	}

	common.OK(c, gin.H{"job_id": j.ID, "created": created, "status": j.Status})
}
