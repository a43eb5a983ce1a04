package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/utils"
)

// TraceID accepts the caller's X-Trace-Id or mints one, and makes it available to the gin
// context, the request context and the response headers.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.Request.Header.Get(pkg.HeaderTraceId)
		if utils.IsEmpty(traceID) {
			traceID = uuid.New().String()
		}
		c.Set(pkg.TraceId, traceID)
		c.Request = c.Request.WithContext(pkg.WithTraceID(c.Request.Context(), traceID))
		c.Writer.Header().Set(pkg.HeaderTraceId, traceID)
		c.Next()
	}
}
