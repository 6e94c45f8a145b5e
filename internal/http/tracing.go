package http

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/ext"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// Trace opens a Datadog span per request so store and broker spans started
// from the request context nest under it. A no-op when the tracer is not
// started.
func Trace(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		resource := c.FullPath()
		if resource == "" {
			resource = "unmatched"
		}
		span, ctx := tracer.StartSpanFromContext(c.Request.Context(), "http.request",
			tracer.ServiceName(service),
			tracer.SpanType(ext.SpanTypeWeb),
			tracer.ResourceName(c.Request.Method+" "+resource),
			tracer.Tag(ext.HTTPMethod, c.Request.Method),
			tracer.Tag(ext.HTTPURL, c.Request.URL.Path),
		)
		defer span.Finish()
		c.Request = c.Request.WithContext(ctx)
		if id := c.GetString(requestIDKey); id != "" {
			span.SetTag("request_id", id)
		}

		c.Next()

		status := c.Writer.Status()
		span.SetTag(ext.HTTPCode, strconv.Itoa(status))
		if status >= 500 {
			span.SetTag(ext.Error, fmt.Errorf("%d: %s", status, c.Errors.String()))
		}
	}
}
