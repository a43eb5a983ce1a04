package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(TraceID(), Metrics())
	r.GET("/whoami", Principal(zap.NewNop()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"principal": c.GetString(pkg.PrincipalId),
			"trace":     pkg.TraceIDFromContext(c.Request.Context()),
		})
	})
	return r
}

func TestTraceID(t *testing.T) {
	r := newEngine()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(pkg.HeaderTraceId, "trace-123")
	req.Header.Set(pkg.HeaderPrincipalId, "ana")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "trace-123", w.Header().Get(pkg.HeaderTraceId))
	assert.JSONEq(t, `{"principal":"ana","trace":"trace-123"}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(pkg.HeaderPrincipalId, "ana")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Len(t, w.Header().Get(pkg.HeaderTraceId), 36, "a uuid is minted when none is sent")
}

func TestPrincipal_Missing(t *testing.T) {
	r := newEngine()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(pkg.HeaderPrincipalId, "   ")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), pkg.ErrUnauthorizedCode.Code)
}
