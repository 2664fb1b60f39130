// Package handlers implements the review API endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// APIError is the body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ErrorEnvelope wraps APIError as {"error": {...}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError maps err to the status of its code.  Messages of 5xx errors
// are masked.
func RespondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := code.HTTPStatus()
	body := APIError{Code: code.String(), Message: err.Error()}

	var ae *errors.AppError
	if errors.As(err, &ae) {
		body.Message, body.Detail = ae.Message, ae.Detail
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		body.Message, body.Detail = "internal server error", ""
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: body})
}

// RespondOK writes payload with 200.
func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
