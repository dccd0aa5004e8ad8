package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Recovery(log), GinMiddleware(log, "/health"))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/ready", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	router.GET("/echo", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c.Request.Context()))
	})
	router.GET("/panic", func(c *gin.Context) { panic("boom") })
	return router
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGinMiddleware_RequestID(t *testing.T) {
	router := newTestRouter(zap.NewNop())

	t.Run("propagates the inbound header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/echo", nil)
		req.Header.Set(RequestIDHeader, "req-42")

		w := serve(router, req)

		assert.Equal(t, "req-42", w.Body.String())
		assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	})

	t.Run("generates one when absent", func(t *testing.T) {
		w := serve(router, httptest.NewRequest(http.MethodGet, "/echo", nil))

		assert.NotEmpty(t, w.Body.String())
		assert.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))
	})
}

func TestGinMiddleware_Levels(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	router := newTestRouter(zap.New(core))

	serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	serve(router, httptest.NewRequest(http.MethodGet, "/ready", nil))

	entries := recorded.FilterMessage("http request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.EqualValues(t, http.StatusServiceUnavailable, entries[1].ContextMap()["status"])
}

func TestRecovery(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	router := newTestRouter(zap.New(core))

	w := serve(router, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, recorded.FilterMessage("panic recovered").Len())
}
