package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lelangid/lelang-api/internal/types"
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
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeAuctionClosed    = "AUCTION_CLOSED"
	ErrCodeBidTooLow        = "BID_TOO_LOW"
	ErrCodeInvalidIncrement = "INVALID_INCREMENT"
	ErrCodeStorageConflict  = "STORAGE_CONFLICT"
)

// Handle maps a service error to the appropriate envelope response. Domain
// sentinels from internal/types carry the machine-checkable error kind.
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, types.ErrAuctionNotFound),
		errors.Is(err, types.ErrBidNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, types.ErrAuctionClosed):
		Fail(c, http.StatusBadRequest, ErrCodeAuctionClosed, err.Error())
	case errors.Is(err, types.ErrBidTooLow):
		Fail(c, http.StatusBadRequest, ErrCodeBidTooLow, err.Error())
	case errors.Is(err, types.ErrInvalidIncrement):
		Fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidIncrement, err.Error())
	case errors.Is(err, types.ErrUnauthenticated):
		Unauthorized(c, err.Error())
	case errors.Is(err, types.ErrStorageConflict):
		Fail(c, http.StatusConflict, ErrCodeStorageConflict, err.Error())
	case errors.Is(err, types.ErrInvalidTransition),
		errors.Is(err, types.ErrInvalidWindow):
		Fail(c, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
	default:
		InternalError(c, "An unexpected error occurred")
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

// Fail sends an error response with an explicit status and error code
func Fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	Fail(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	Fail(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	Fail(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}
