package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/utils"
	"go.uber.org/zap"
)

// Principal requires the X-Principal-Id header set by the identity gateway in front of the API.
func Principal(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		principalID := c.Request.Header.Get(pkg.HeaderPrincipalId)
		if utils.IsEmpty(principalID) {
			resp := pkg.ToErrorResponse(logger, c.GetString(pkg.TraceId),
				pkg.NewAppError(pkg.ErrUnauthorizedCode, "missing "+pkg.HeaderPrincipalId+" header", nil))
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}
		c.Set(pkg.PrincipalId, principalID)
		c.Next()
	}
}
