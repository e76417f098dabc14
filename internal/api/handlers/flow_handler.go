package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoscreen/internal/flow"
	"github.com/yoockh/yoscreen/internal/models"
	"github.com/yoockh/yoscreen/internal/utils"
)

const guestTokenHeader = "X-Guest-Token"

type FlowHandler struct {
	m     *flow.Machine
	flows flow.Store
	log   *logrus.Logger
}

func NewFlowHandler(m *flow.Machine, flows flow.Store, log *logrus.Logger) *FlowHandler {
	return &FlowHandler{m: m, flows: flows, log: log}
}

type FlowResponse struct {
	Flow        *flow.Flow `json:"flow"`
	GuestToken  string     `json:"guest_token,omitempty"`
	RedirectURL string     `json:"redirect_url,omitempty"`
}

// flowErrorResponse is APIError plus the flow as it stands after the failure.
type flowErrorResponse struct {
	APIError
	Flow *flow.Flow `json:"flow,omitempty"`
}

type AnswersRequest struct {
	Answers []string `json:"answers" binding:"required"`
}

func (h *FlowHandler) Create(c *gin.Context) {
	f := h.m.New(c.GetHeader(guestTokenHeader))
	if err := h.flows.Put(c.Request.Context(), f); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, FlowResponse{Flow: f, GuestToken: f.GuestToken})
}

func (h *FlowHandler) Get(c *gin.Context) {
	f, _, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, FlowResponse{Flow: f})
}

func (h *FlowHandler) Start(c *gin.Context) {
	h.step(c, func(_ context.Context, f *flow.Flow, _ *models.Account) error {
		return h.m.Start(f)
	})
}

func (h *FlowHandler) SubmitProfile(c *gin.Context) {
	var req models.Profile
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "FlowHandler.SubmitProfile", "invalid request body", err))
		return
	}
	h.step(c, func(ctx context.Context, f *flow.Flow, _ *models.Account) error {
		return h.m.SubmitProfile(ctx, f, req)
	})
}

func (h *FlowHandler) SubmitPhase1(c *gin.Context) {
	var req AnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "FlowHandler.SubmitPhase1", "invalid request body", err))
		return
	}
	h.step(c, func(ctx context.Context, f *flow.Flow, acct *models.Account) error {
		return h.m.SubmitPhase1(ctx, f, acct, req.Answers)
	})
}

func (h *FlowHandler) ContinueFromTeaser(c *gin.Context) {
	h.step(c, func(_ context.Context, f *flow.Flow, _ *models.Account) error {
		return h.m.ContinueFromTeaser(f)
	})
}

func (h *FlowHandler) Register(c *gin.Context) {
	h.step(c, func(ctx context.Context, f *flow.Flow, acct *models.Account) error {
		return h.m.Register(ctx, f, acct)
	})
}

func (h *FlowHandler) OptOut(c *gin.Context) {
	h.step(c, func(ctx context.Context, f *flow.Flow, _ *models.Account) error {
		return h.m.OptOut(ctx, f)
	})
}

func (h *FlowHandler) Restart(c *gin.Context) {
	h.step(c, func(ctx context.Context, f *flow.Flow, _ *models.Account) error {
		h.m.Restart(ctx, f)
		return nil
	})
}

func (h *FlowHandler) BeginPhase2(c *gin.Context) {
	h.step(c, func(_ context.Context, f *flow.Flow, _ *models.Account) error {
		return h.m.BeginPhase2Questions(f)
	})
}

func (h *FlowHandler) SubmitPhase2(c *gin.Context) {
	var req AnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "FlowHandler.SubmitPhase2", "invalid request body", err))
		return
	}
	h.step(c, func(ctx context.Context, f *flow.Flow, acct *models.Account) error {
		return h.m.SubmitPhase2(ctx, f, acct, req.Answers)
	})
}

// Checkout hands back the processor URL and drops the snapshot: after the
// redirect the flow is rebuilt from the persisted session only.
func (h *FlowHandler) Checkout(c *gin.Context) {
	acct, ok := requireAccount(c)
	if !ok {
		return
	}
	f, _, ok := h.load(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	redirect, err := h.m.Checkout(ctx, f, acct)
	if err != nil {
		h.respondFailure(c, f, err)
		return
	}
	if err := h.flows.Delete(ctx, f.ID); err != nil {
		h.log.WithError(err).WithField("flow_id", f.ID).Warn("failed to drop flow before checkout")
	}
	c.JSON(http.StatusOK, FlowResponse{RedirectURL: redirect})
}

// Resume is the checkout return edge: GET /flow/resume?session_id=...&continue=1
func (h *FlowHandler) Resume(c *gin.Context) {
	acct, ok := requireAccount(c)
	if !ok {
		return
	}
	sessionID := c.Query("session_id")
	if c.Query("continue") != "1" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "FlowHandler.Resume", "continue marker is missing", nil))
		return
	}

	f, err := h.m.Resume(c.Request.Context(), acct, sessionID)
	h.finish(c, f, err)
}

// ResumeGuest migrates the guest progress parked under X-Guest-Token into the caller's account.
func (h *FlowHandler) ResumeGuest(c *gin.Context) {
	acct, ok := requireAccount(c)
	if !ok {
		return
	}
	token := c.GetHeader(guestTokenHeader)
	if token == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "FlowHandler.ResumeGuest", "X-Guest-Token header is required", nil))
		return
	}

	f, err := h.m.ResumeGuest(c.Request.Context(), acct, token)
	h.finish(c, f, err)
}

// step loads the flow, applies op and stores the result whether or not op failed.
func (h *FlowHandler) step(c *gin.Context, op func(context.Context, *flow.Flow, *models.Account) error) {
	f, acct, ok := h.load(c)
	if !ok {
		return
	}
	h.finish(c, f, op(c.Request.Context(), f, acct))
}

func (h *FlowHandler) finish(c *gin.Context, f *flow.Flow, opErr error) {
	if f == nil {
		writeError(c, opErr)
		return
	}
	if err := h.flows.Put(c.Request.Context(), f); err != nil {
		writeError(c, err)
		return
	}
	if opErr != nil {
		h.respondFailure(c, f, opErr)
		return
	}
	c.JSON(http.StatusOK, FlowResponse{Flow: f})
}

func (h *FlowHandler) respondFailure(c *gin.Context, f *flow.Flow, err error) {
	resp := flowErrorResponse{APIError: APIError{Code: utils.CodeInternal, Message: http.StatusText(http.StatusInternalServerError)}, Flow: f}
	var ae *utils.AppError
	if errors.As(err, &ae) {
		resp.Code, resp.Message = ae.Code, ae.Message
	}
	c.JSON(utils.HTTPStatus(err), resp)
}

// load fetches the flow and checks the caller may drive it: an owned flow needs
// the owner's token, an anonymous one needs its guest token.
func (h *FlowHandler) load(c *gin.Context) (*flow.Flow, *models.Account, bool) {
	const op = "FlowHandler.load"

	f, err := h.flows.Get(c.Request.Context(), c.Param("flow_id"))
	if err != nil {
		writeError(c, err)
		return nil, nil, false
	}

	acct := optionalAccount(c)
	switch {
	case f.OwnerID != "":
		if acct == nil || acct.ID != f.OwnerID {
			writeError(c, utils.E(utils.CodeForbidden, op, "flow belongs to another account", nil))
			return nil, nil, false
		}
	case c.GetHeader(guestTokenHeader) != f.GuestToken:
		writeError(c, utils.E(utils.CodeForbidden, op, "guest token does not match", nil))
		return nil, nil, false
	}
	return f, acct, true
}
