package xresponse

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Response represents standard API response format
type Response struct {
	Code      int         `json:"code"`
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ErrorResponse represents error response format
type ErrorResponse struct {
	Code      int         `json:"code"`
	Status    string      `json:"status"`
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Common error codes
const (
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeShopNotFound       = "SHOP_NOT_FOUND"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeAlreadyQueued      = "ALREADY_QUEUED"
	ErrCodeQueueFull          = "QUEUE_FULL"
	ErrCodeNotAccepting       = "NOT_ACCEPTING"
	ErrCodeNoCustomersWaiting = "NO_CUSTOMERS_WAITING"
	ErrCodePreconditionFailed = "PRECONDITION_FAILED"
	ErrCodeContention         = "CONTENTION"
)

// Success sends success response
func Success(c *gin.Context, message string, data interface{}) {
	response := Response{
		Code:      http.StatusOK,
		Status:    "success",
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	c.JSON(http.StatusOK, response)
}

// Created sends created response (201)
func Created(c *gin.Context, message string, data interface{}) {
	response := Response{
		Code:      http.StatusCreated,
		Status:    "success",
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	c.JSON(http.StatusCreated, response)
}

// Error sends error response
func Error(c *gin.Context, statusCode int, errorCode, message string) {
	response := ErrorResponse{
		Code:      statusCode,
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		Timestamp: time.Now().Unix(),
	}
	c.JSON(statusCode, response)
}

// ErrorWithDetails sends error response with details
func ErrorWithDetails(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	response := ErrorResponse{
		Code:      statusCode,
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Unix(),
	}
	c.JSON(statusCode, response)
}

// BadRequest sends 400 Bad Request response
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, ErrCodeValidationFailed, message)
}

// BadRequestWithCode sends 400 Bad Request response with custom error code
func BadRequestWithCode(c *gin.Context, errorCode, message string) {
	Error(c, http.StatusBadRequest, errorCode, message)
}

// Unauthorized sends 401 Unauthorized response
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden sends 403 Forbidden response
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// NotFound sends 404 Not Found response
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// NotFoundWithCode sends 404 Not Found response with custom error code
func NotFoundWithCode(c *gin.Context, errorCode, message string) {
	Error(c, http.StatusNotFound, errorCode, message)
}

// Conflict sends 409 Conflict response
func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, ErrCodeConflict, message)
}

// ConflictWithCode sends 409 Conflict response with custom error code
func ConflictWithCode(c *gin.Context, errorCode, message string) {
	Error(c, http.StatusConflict, errorCode, message)
}

// PreconditionFailed sends 409 for business-rule violations on the
// entry's current state.
func PreconditionFailed(c *gin.Context, message string) {
	Error(c, http.StatusConflict, ErrCodePreconditionFailed, message)
}

// Contention sends 503 after bounded retries were exhausted; the whole
// operation is safe to retry.
func Contention(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, ErrCodeContention, message)
}

// InternalServerError sends 500 Internal Server Error response
func InternalServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// ValidationError sends validation error response with field details
func ValidationError(c *gin.Context, details interface{}) {
	ErrorWithDetails(c, http.StatusBadRequest, ErrCodeValidationFailed, "Validation failed", details)
}
