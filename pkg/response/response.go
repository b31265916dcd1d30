// Package response is the uniform HTTP envelope and error dispatcher.
// Generalized from the teacher's pkg/response/response.go: Handle
// dispatches on the internal/coreerr taxonomy instead of gorm sentinel
// errors, since this system has no database-backed order store.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ksred/tradecore/internal/coreerr"
)

// Response is the envelope returned by every handler.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error carries a machine-readable code alongside the message.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeRiskRejected = "RISK_REJECTED"
	CodeDuplicate    = "DUPLICATE"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeInternal     = "INTERNAL_ERROR"
)

// Handle inspects err's concrete type and writes the matching status
// and envelope; if err is nil it writes data as a success envelope.
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	var validation *coreerr.ValidationError
	var riskViolation *coreerr.RiskViolation
	var duplicate *coreerr.Duplicate
	var cfg *coreerr.ConfigError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, Response{Error: &Error{Code: CodeValidation, Message: err.Error()}})
	case errors.As(err, &riskViolation):
		c.JSON(http.StatusUnprocessableEntity, Response{Error: &Error{Code: CodeRiskRejected, Message: err.Error()}})
	case errors.As(err, &duplicate):
		c.JSON(http.StatusConflict, Response{Error: &Error{Code: CodeDuplicate, Message: err.Error()}})
	case errors.As(err, &cfg):
		c.JSON(http.StatusBadRequest, Response{Error: &Error{Code: CodeValidation, Message: err.Error()}})
	default:
		InternalError(c, err)
	}
}

// Success writes a 200 envelope wrapping data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// NotFound writes a 404 envelope.
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{Error: &Error{Code: CodeNotFound, Message: message}})
}

// BadRequest writes a 400 envelope.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Error: &Error{Code: CodeValidation, Message: message}})
}

// Unauthorized writes a 401 envelope.
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{Error: &Error{Code: CodeUnauthorized, Message: message}})
}

// Forbidden writes a 403 envelope.
func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, Response{Error: &Error{Code: CodeForbidden, Message: message}})
}

// InternalError writes a 500 envelope without leaking err's detail.
func InternalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, Response{Error: &Error{Code: CodeInternal, Message: "internal error"}})
}
