package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	mongorepo "github.com/yoockh/yoscreen/internal/repositories/mongo"
	"github.com/yoockh/yoscreen/internal/utils"
)

type AdminHandler struct {
	events mongorepo.PaymentEventRepository
}

func NewAdminHandler(events mongorepo.PaymentEventRepository) *AdminHandler {
	return &AdminHandler{events: events}
}

// PaymentEvents lists the checkout audit trail for one session or test.
func (h *AdminHandler) PaymentEvents(c *gin.Context) {
	const op = "AdminHandler.PaymentEvents"

	sessionID, testID := c.Query("session_id"), c.Query("test_id")
	if sessionID == "" && testID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "session_id or test_id is required", nil))
		return
	}
	if h.events == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "payment audit log is not configured", nil))
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	events, err := h.events.ListBySubject(c.Request.Context(), sessionID, testID, limit)
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to list payment events", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
