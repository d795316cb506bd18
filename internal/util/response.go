package util

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/errors"
	"github.com/orkutrevival/backend/internal/logger"
	"go.uber.org/zap"
)

// RespondWithAPIError logs apiErr and writes it as the JSON error body
func RespondWithAPIError(c *gin.Context, apiErr *errors.APIError) {
	fields := []zap.Field{
		zap.String("code", string(apiErr.Code)),
		zap.String("message", apiErr.Message),
		zap.String("path", c.FullPath()),
		logger.WithStatus(apiErr.Status),
	}
	if apiErr.Field != "" {
		fields = append(fields, zap.String("field", apiErr.Field))
	}
	if requestID := c.GetString("request_id"); requestID != "" {
		fields = append(fields, logger.WithRequestID(requestID))
	}

	if apiErr.Status >= http.StatusInternalServerError {
		logger.Log.Error("API error", fields...)
	} else if apiErr.Status >= http.StatusBadRequest {
		logger.Log.Warn("API error", fields...)
	}

	body := gin.H{
		"success": false,
		"error":   apiErr.Code,
		"message": apiErr.Message,
	}
	if apiErr.Field != "" {
		body["field"] = apiErr.Field
	}
	if apiErr.Details != "" {
		body["details"] = apiErr.Details
	}
	for k, v := range apiErr.Extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(apiErr.Status, body)
}

// RespondUnauthorized sends a 401 Unauthorized response
func RespondUnauthorized(c *gin.Context, message ...string) {
	msg := "user not authenticated"
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	RespondWithAPIError(c, errors.Unauthorized(msg))
}

// RespondNotFound sends a 404 Not Found response
func RespondNotFound(c *gin.Context, resource string) {
	RespondWithAPIError(c, errors.NotFound(resource))
}

// RespondBadRequest sends a 400 Bad Request response
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithAPIError(c, errors.BadRequest(message))
}

// RespondForbidden sends a 403 Forbidden response
func RespondForbidden(c *gin.Context, message ...string) {
	msg := "forbidden"
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	RespondWithAPIError(c, errors.Forbidden(msg))
}

// RespondInternalError sends a 500 response. details is logged and echoed
// as the details field.
func RespondInternalError(c *gin.Context, message string, details ...error) {
	apiErr := errors.InternalError(message)
	if len(details) > 0 && details[0] != nil {
		apiErr = apiErr.WithDetails(details[0].Error())
	}
	RespondWithAPIError(c, apiErr)
}

// RespondConflict sends a 409 Conflict response
func RespondConflict(c *gin.Context, message string) {
	RespondWithAPIError(c, errors.Conflict(message))
}

// RespondValidationError sends a 400 response naming the offending field
func RespondValidationError(c *gin.Context, field, message string) {
	RespondWithAPIError(c, errors.ValidationError(field, message))
}
