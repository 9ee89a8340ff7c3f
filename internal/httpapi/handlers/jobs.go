package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/agent-squad/internal/common"
	"github.com/suPer8Hu/agent-squad/internal/jobs"
	"go.uber.org/zap"
)

// GetJob returns a job owned by the acting user. Jobs of other users look
// missing.
func (h *Handler) GetJob(c *gin.Context) {
	if h.jobs == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async processing disabled")
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	user, ok := h.requireUser(c)
	if !ok {
		return
	}

	j, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		h.log.Error("load job failed", zap.String("job_id", jobID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if j.UserID != user {
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.OK(c, gin.H{"job": j})
}
