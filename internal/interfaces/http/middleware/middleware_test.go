package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/prometheus"
)

func init() { gin.SetMode(gin.TestMode) }

func observed() (logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logging.NewLoggerFromCore(core), logs
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	return w
}

func TestRequestLogging_Levels(t *testing.T) {
	logger, logs := observed()
	r := gin.New()
	r.Use(RequestID(), RequestLogging(logger, DefaultLoggingConfig()))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/ok?x=1")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	serve(r, http.MethodGet, "/missing")
	serve(r, http.MethodGet, "/boom")
	serve(r, http.MethodGet, "/healthz")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "x=1", entries[0].ContextMap()["query"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}

func TestRequestID_KeepsIncoming(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDHeader)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	logger, logs := observed()
	r := gin.New()
	r.Use(Recovery(logger))
	r.GET("/panic", func(c *gin.Context) { panic("bad table") })

	w := serve(r, http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
	require.Equal(t, 1, logs.FilterMessage("panic while serving request").Len())
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test"}, logging.NewNopLogger())
	require.NoError(t, err)
	m := prometheus.NewPipelineMetrics(collector)

	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/v1/simulants/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	serve(r, http.MethodGet, "/v1/simulants/S001")
	serve(r, http.MethodGet, "/v1/simulants/S002")
	serve(r, http.MethodGet, "/nowhere")

	w := httptest.NewRecorder()
	collector.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `path="/v1/simulants/:id",status_code="200"} 2`)
	assert.Contains(t, body, `path="unmatched"`)
}

func TestKeyedLimiter(t *testing.T) {
	l := NewKeyedLimiter(1, 2, time.Minute)
	ok, _, _ := l.Allow("a")
	assert.True(t, ok)
	ok, _, _ = l.Allow("a")
	assert.True(t, ok)
	ok, remaining, wait := l.Allow("a")
	assert.False(t, ok)
	assert.Zero(t, remaining)
	assert.Greater(t, wait, time.Duration(0))

	ok, _, _ = l.Allow("b")
	assert.True(t, ok, "keys are limited independently")
	assert.Equal(t, 2, l.Len())
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.RequestsPerSecond, cfg.BurstSize = 0.001, 1
	r := gin.New()
	r.Use(RateLimit(cfg))
	r.GET("/v1/simulants", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/v1/simulants").Code)
	w := serve(r, http.MethodGet, "/v1/simulants")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.True(t, strings.Contains(w.Body.String(), "rate limit exceeded"))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/healthz").Code)
	}
}
