package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoscreen/internal/models"
	"github.com/yoockh/yoscreen/internal/services"
	"github.com/yoockh/yoscreen/internal/utils"
)

type SessionHandler struct {
	store services.SessionStore
}

func NewSessionHandler(store services.SessionStore) *SessionHandler {
	return &SessionHandler{store: store}
}

type SessionSummary struct {
	ID          string                 `json:"id"`
	Status      models.ScreeningStatus `json:"status"`
	Paid        bool                   `json:"paid"`
	Profile     models.Profile         `json:"profile"`
	Hypothesis  string                 `json:"hypothesis,omitempty"`
	CreatedAt   string                 `json:"created_at"`
	CompletedAt string                 `json:"completed_at,omitempty"`
}

func (h *SessionHandler) List(c *gin.Context) {
	acct, ok := requireAccount(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rows, err := h.store.ListByOwner(c.Request.Context(), acct.ID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]SessionSummary, 0, len(rows))
	for i := range rows {
		s := &rows[i]
		sum := SessionSummary{
			ID:        s.ID,
			Status:    s.Status,
			Paid:      s.Paid,
			Profile:   s.Profile(),
			CreatedAt: s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if r := s.FinalReport.Data(); r != nil {
			sum.Hypothesis = r.Hypothesis
		}
		if s.CompletedAt != nil {
			sum.CompletedAt = s.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		out = append(out, sum)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (h *SessionHandler) Get(c *gin.Context) {
	acct, ok := requireAccount(c)
	if !ok {
		return
	}

	sess, err := h.store.Read(c.Request.Context(), c.Param("session_id"), acct.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Patch merges the body into the session. Fields left out are kept as they are.
func (h *SessionHandler) Patch(c *gin.Context) {
	acct, ok := requireAccount(c)
	if !ok {
		return
	}

	var req models.SessionPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Patch", "invalid request body", err))
		return
	}

	sess, err := h.store.Update(c.Request.Context(), c.Param("session_id"), acct.ID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}
