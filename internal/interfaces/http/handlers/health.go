package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/prometheus"
)

// CheckFunc reports the health of one dependency.
type CheckFunc func(ctx context.Context) error

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checks  map[string]CheckFunc
	version string
	startAt time.Time
	timeout time.Duration
	metrics *prometheus.PipelineMetrics
}

// NewHealthHandler probes checks on /readyz.  metrics may be nil.
func NewHealthHandler(version string, checks map[string]CheckFunc, metrics *prometheus.PipelineMetrics) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		version: version,
		startAt: time.Now(),
		timeout: 5 * time.Second,
		metrics: metrics,
	}
}

// LivenessResponse is the body of /healthz.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ReadinessResponse is the body of /readyz.
type ReadinessResponse struct {
	Status     string                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
}

// ComponentCheck is the state of one dependency.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Liveness handles GET /healthz.  It never touches dependencies.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:  "alive",
		Version: h.version,
		Uptime:  time.Since(h.startAt).Truncate(time.Second).String(),
	})
}

// Readiness handles GET /readyz: 200 when every dependency answers, 503
// otherwise.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	components := h.CheckAll(ctx)
	resp := ReadinessResponse{Status: "ready", Components: components}
	status := http.StatusOK
	for _, cc := range components {
		if cc.Status != "healthy" {
			resp.Status, status = "not_ready", http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(status, resp)
}

// CheckAll runs every check concurrently.
func (h *HealthHandler) CheckAll(ctx context.Context) map[string]ComponentCheck {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]ComponentCheck, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			start := time.Now()
			err := check(ctx)
			cc := ComponentCheck{Status: "healthy", Latency: time.Since(start).Truncate(time.Microsecond).String()}
			if err != nil {
				cc.Status, cc.Error = "unhealthy", err.Error()
			}
			if h.metrics != nil {
				h.metrics.SetHealth(name, err == nil)
			}
			mu.Lock()
			results[name] = cc
			mu.Unlock()
		}(name, h.checks[name])
	}
	wg.Wait()
	return results
}
