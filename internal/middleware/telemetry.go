package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/util"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware returns otelgin followed by a handler that tags the
// request span with the caller and the resource the route works on.
// The annotation runs inside otelgin's span, before it ends.
func TracingMiddleware(serviceName string) gin.HandlersChain {
	return gin.HandlersChain{otelgin.Middleware(serviceName), annotateSpan}
}

func annotateSpan(c *gin.Context) {
	c.Next()

	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}
	if userID := c.GetString(util.ContextUserID); userID != "" {
		span.SetAttributes(attribute.String("user.id", userID))
	}
	if id := c.Param("id"); id != "" {
		span.SetAttributes(attribute.String("resource.id", id))
	}
	if requestID := c.GetString("request_id"); requestID != "" {
		span.SetAttributes(attribute.String("request.id", requestID))
	}
	for _, ginErr := range c.Errors {
		if ginErr.Err != nil {
			span.RecordError(ginErr.Err)
			span.SetStatus(codes.Error, ginErr.Error())
		}
	}
}
