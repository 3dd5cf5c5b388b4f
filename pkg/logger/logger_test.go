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

	"github.com/noah-isme/campus-admin-api/pkg/config"
	appErrors "github.com/noah-isme/campus-admin-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGinMiddlewareLogsSessionNotCookies(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(GinMiddleware(zap.New(core)))
	r.GET("/me", func(c *gin.Context) {
		Annotate(c, "user-1", "session-1", true)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: "secret-access-value"})
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, "user-1", fields["user_id"])
	assert.Equal(t, "session-1", fields["session_id"])
	assert.Equal(t, true, fields["rotated"])
	for _, value := range fields {
		assert.NotEqual(t, "secret-access-value", value)
	}
}

func TestGinMiddlewareRaisesLevelForRejections(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(GinMiddleware(zap.New(core)))
	r.GET("/private", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })
	r.GET("/broken", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/private", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/broken", nil))

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)
	_, annotated := logs.All()[0].ContextMap()["user_id"]
	assert.False(t, annotated)
}

func TestNewHonoursFormatAndLevel(t *testing.T) {
	l, err := New(&config.Config{Env: config.EnvProduction, Log: config.LogConfig{Level: "warn", Format: "console"}})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestGinMiddlewareNamesUnderlyingErrorKind(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(GinMiddleware(zap.New(core)))
	r.GET("/refresh", func(c *gin.Context) {
		_ = c.Error(appErrors.ErrRefreshReplayed)
		c.Status(http.StatusUnauthorized)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/refresh", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "REFRESH_REPLAYED", logs.All()[0].ContextMap()["error_code"])
}
