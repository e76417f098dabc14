package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoscreen/internal/models"
	"github.com/yoockh/yoscreen/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		c.JSON(status, APIError{
			Code:    ae.Code,
			Message: ae.Message,
		})
		return
	}

	c.JSON(status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	})
}

// optionalAccount returns the caller resolved by the JWT middleware, or nil for a guest.
func optionalAccount(c *gin.Context) *models.Account {
	id := c.GetString("user_id")
	if id == "" {
		return nil
	}
	return &models.Account{
		ID:    id,
		Email: c.GetString("email"),
		Role:  models.UserRole(c.GetString("role")),
	}
}

func requireAccount(c *gin.Context) (*models.Account, bool) {
	if acct := optionalAccount(c); acct != nil {
		return acct, true
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return nil, false
}
