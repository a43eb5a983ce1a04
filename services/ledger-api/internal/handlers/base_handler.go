package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/utils"
	"go.uber.org/zap"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type BaseHandler struct {
	logger *zap.Logger
	db     Pinger // nil when the ledger runs in memory
}

func NewBaseHandler(logger *zap.Logger, db Pinger) *BaseHandler {
	return &BaseHandler{logger: logger, db: db}
}

func (b *BaseHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", b.GetHealth)
}

func (b *BaseHandler) GetHealth(c *gin.Context) {
	if b.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := b.db.Ping(ctx); err != nil {
			b.logger.Error("health_check_failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// respondError renders err as the standard error body.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	resp := pkg.ToErrorResponse(logger, c.GetString(pkg.TraceId), err)
	c.AbortWithStatusJSON(resp.Status, resp)
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, pkg.APIResponse{TraceID: c.GetString(pkg.TraceId), Data: data})
}

func principalID(c *gin.Context) string {
	return c.GetString(pkg.PrincipalId)
}

func invalidInput(msg string, cause error) error {
	if utils.IsEmpty(msg) {
		msg = pkg.ErrInvalidInputCode.Message
	}
	return pkg.NewAppError(pkg.ErrInvalidInputCode, msg, cause)
}
