package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorDetail is the structured error payload carried in Response.Error, per
// spec.md §6.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the standard API envelope, per spec.md §6:
// {success, data?, error?:{code,message}, message?, timestamp, requestId?}.
type Response struct {
	Success   bool         `json:"success"`
	Data      interface{}  `json:"data,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
	Message   string       `json:"message,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	RequestID string       `json:"requestId,omitempty"`
}

// Pagination represents pagination metadata for list responses.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	TotalPages  int `json:"total_pages"`
}

func requestID(c *gin.Context) string {
	if id, ok := c.Get("requestId"); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// SendSuccess sends a success response with data (200 OK).
func SendSuccess(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
		RequestID: requestID(c),
	})
}

// SendCreated sends a created response with data (201 Created).
func SendCreated(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
		RequestID: requestID(c),
	})
}

// SendAccepted sends a 202 Accepted response, used when a sync run has been
// started but has not finished (spec.md §6 POST /sync/feishu).
func SendAccepted(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusAccepted, Response{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
		RequestID: requestID(c),
	})
}

// SendPaginated sends a success response with pagination metadata (200 OK).
func SendPaginated(c *gin.Context, message string, data interface{}, page, limit, total int) {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   message,
		"data":      data,
		"timestamp": time.Now().UTC(),
		"requestId": requestID(c),
		"meta": Pagination{
			CurrentPage: page,
			PerPage:     limit,
			Total:       total,
			TotalPages:  totalPages,
		},
	})
}

// SendErrorCode sends an error response carrying the structured
// {code,message} shape spec.md §6 requires, at the given HTTP status.
func SendErrorCode(c *gin.Context, status int, code, message string, err error) {
	if err != nil {
		c.Error(err)
	}
	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
		RequestID: requestID(c),
	})
}

// SendError sends an error response with a generic "internal" code, kept for
// call sites that have not been given a specific taxonomy code yet.
func SendError(c *gin.Context, status int, message string, err error) {
	SendErrorCode(c, status, "INTERNAL_ERROR", message, err)
}

// SendValidationError sends a 400 Bad Request with a validation_error code.
func SendValidationError(c *gin.Context, err error) {
	msg := "Validation failed"
	if err != nil {
		msg = err.Error()
	}
	SendErrorCode(c, http.StatusBadRequest, "validation_error", msg, err)
}

// SendConflict sends a 409 Conflict, used when a sync run is already active
// (spec.md §4.F single-active-sync-per-process guard).
func SendConflict(c *gin.Context, message string, err error) {
	SendErrorCode(c, http.StatusConflict, "CONFLICT", message, err)
}

// SendNotFound sends a 404 Not Found.
func SendNotFound(c *gin.Context, message string) {
	SendErrorCode(c, http.StatusNotFound, "not_found", message, nil)
}

// SendInternalError sends a 500 Internal Server Error.
func SendInternalError(c *gin.Context, err error) {
	SendErrorCode(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", err)
}
