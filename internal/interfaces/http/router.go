package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/turtacn/Regolith-Intelligence/internal/config"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/Regolith-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/Regolith-Intelligence/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware dependencies of the
// route tree.  Nil handlers leave their routes unmounted.
type RouterConfig struct {
	Server config.ServerConfig

	SimulantHandler *handlers.SimulantHandler
	ReviewHandler   *handlers.ReviewHandler
	HealthHandler   *handlers.HealthHandler

	Logger           logging.Logger
	MetricsCollector prometheus.MetricsCollector
	Metrics          *prometheus.PipelineMetrics
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.RequestLogging(logger, middleware.DefaultLoggingConfig()),
	)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		r.Use(corsMiddleware(cfg.Server.CORSOrigins))
	}
	if cfg.Server.RateLimit > 0 {
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond, rl.BurstSize = cfg.Server.RateLimit, cfg.Server.RateBurst
		r.Use(middleware.RateLimit(rl))
	}
	if cfg.Server.MaxBodySize > 0 {
		r.Use(bodyLimit(cfg.Server.MaxBodySize))
	}

	// Probes and scrape
	if h := cfg.HealthHandler; h != nil {
		r.GET("/healthz", h.Liveness)
		r.GET("/readyz", h.Readiness)
	}
	if cfg.MetricsCollector != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	v1 := r.Group("/v1")
	if h := cfg.SimulantHandler; h != nil {
		v1.GET("/simulants", h.List)
		v1.GET("/simulants/:id", h.Get)
	}
	if h := cfg.ReviewHandler; h != nil {
		v1.GET("/review", h.List)
		v1.GET("/review/:id", h.Get)
		v1.POST("/review/:id/resolve", h.Resolve)
	}
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			cc.AllowAllOrigins = true
			return cors.New(cc)
		}
	}
	cc.AllowOrigins = origins
	return cors.New(cc)
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
