package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lensseoyhshi/crypto-trading/internal/exchange"
	"github.com/lensseoyhshi/crypto-trading/internal/types"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
	ErrCodeOrderRejected     = "ORDER_REJECTED"
	ErrCodeOrderTerminal     = "ORDER_TERMINAL"
	ErrCodeExchangeDown      = "EXCHANGE_UNAVAILABLE"
	ErrCodeExchangeAuth      = "EXCHANGE_AUTH_FAILED"
	ErrCodeOrphanedExecution = "ORPHANED_EXECUTION"
)

// Handle processes the error and returns appropriate response
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "Resource already exists")
	case errors.Is(err, exchange.ErrNoSuchPosition):
		NotFound(c, "No open position matches the request")
	default:
		handleError(c, err)
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeNotFound,
			Message: message,
		},
	})
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeBadRequest,
			Message: message,
		},
	})
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeUnauthorized,
			Message: message,
		},
	})
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeForbidden,
			Message: message,
		},
	})
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeInternalError,
			Message: message,
		},
	})
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeDuplicateResource,
			Message: message,
		},
	})
}

// handleError determines the appropriate error response
func handleError(c *gin.Context, err error) {
	var rejected *exchange.RejectedError
	var orphaned *types.OrphanedExecutionError

	switch {
	case errors.Is(err, types.ErrInvalidRequest):
		BadRequest(c, err.Error())
	case errors.Is(err, exchange.ErrUnsupportedExchange):
		BadRequest(c, err.Error())
	case errors.As(err, &rejected):
		c.JSON(http.StatusUnprocessableEntity, Response{
			Success: false,
			Error:   &Error{Code: ErrCodeOrderRejected, Message: rejected.Reason},
		})
	case errors.Is(err, types.ErrOrderTerminal):
		c.JSON(http.StatusConflict, Response{
			Success: false,
			Error:   &Error{Code: ErrCodeOrderTerminal, Message: err.Error()},
		})
	case errors.Is(err, exchange.ErrAuthFailed):
		c.JSON(http.StatusBadGateway, Response{
			Success: false,
			Error:   &Error{Code: ErrCodeExchangeAuth, Message: "Exchange rejected the account credentials"},
		})
	case errors.Is(err, exchange.ErrExchangeUnavailable):
		c.JSON(http.StatusBadGateway, Response{
			Success: false,
			Error:   &Error{Code: ErrCodeExchangeDown, Message: "Exchange is unreachable or degraded"},
		})
	case errors.As(err, &orphaned):
		// The venue-side order exists without a ledger record; the caller
		// must not retry blindly.
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   &Error{Code: ErrCodeOrphanedExecution, Message: orphaned.Error()},
		})
	default:
		InternalError(c, "An unexpected error occurred")
	}
}
