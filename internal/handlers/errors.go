package handlers

import (
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the envelope every non-2xx response carries.
type ErrorResponse struct {
	Status    string                 `json:"status"`
	ErrorCode string                 `json:"error_code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{
		Status:    "error",
		ErrorCode: code,
		Message:   message,
	})
}

func respondErrorDetails(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, ErrorResponse{
		Status:    "error",
		ErrorCode: code,
		Message:   message,
		Details:   details,
	})
}
