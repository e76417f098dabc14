package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoscreen/internal/models"
	"github.com/yoockh/yoscreen/internal/services"
	"github.com/yoockh/yoscreen/internal/utils"
)

type CheckoutHandler struct {
	payments services.PaymentGateway
}

func NewCheckoutHandler(payments services.PaymentGateway) *CheckoutHandler {
	return &CheckoutHandler{payments: payments}
}

type TestPremiumCheckoutRequest struct {
	TestID string `json:"test_id" binding:"required"`
}

func (h *CheckoutHandler) CreateTestPremium(c *gin.Context) {
	acct, ok := requireAccount(c)
	if !ok {
		return
	}

	var req TestPremiumCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "CheckoutHandler.CreateTestPremium", "invalid request body", err))
		return
	}

	redirect, err := h.payments.CreateCheckout(c.Request.Context(), *acct, models.ProductTestPremium, req.TestID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect_url": redirect})
}

func (h *CheckoutHandler) VerifyTestPremium(c *gin.Context) {
	acct, ok := requireAccount(c)
	if !ok {
		return
	}

	paid, err := h.payments.VerifyTestPremium(c.Request.Context(), *acct, c.Query("test_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paid": paid})
}

func (h *CheckoutHandler) VerifyScreening(c *gin.Context) {
	acct, ok := requireAccount(c)
	if !ok {
		return
	}

	paid, err := h.payments.Verify(c.Request.Context(), *acct, c.Query("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paid": paid})
}
