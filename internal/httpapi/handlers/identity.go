package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/agent-squad/internal/common"
	"github.com/suPer8Hu/agent-squad/internal/httpapi/middleware"
)

var errUserMismatch = errors.New("userId does not match token")

// actingUser resolves who the request acts for. A user token acts for its
// own subject; the service token and unauthenticated setups act for the
// claimed userId.
func (h *Handler) actingUser(c *gin.Context, claimed string) (string, error) {
	claimed = strings.TrimSpace(claimed)
	sub := c.GetString(middleware.SubjectKey)
	if sub == "" || (h.service != "" && sub == h.service) {
		return claimed, nil
	}
	if claimed != "" && claimed != sub {
		return "", errUserMismatch
	}
	return sub, nil
}

// requireUser is actingUser for reads, where an owner must be known. It
// writes the failure and reports false.
func (h *Handler) requireUser(c *gin.Context) (string, bool) {
	user, err := h.actingUser(c, c.Query("userId"))
	if err != nil {
		common.Fail(c, http.StatusForbidden, 40301, "forbidden")
		return "", false
	}
	if user == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "userId required")
		return "", false
	}
	return user, true
}
