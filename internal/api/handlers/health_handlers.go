package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cryptogate/gateway_service/pkg/logger"
)

// Health statuses
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// Check is a named dependency probe. Critical checks make the service
// unhealthy when they fail, the rest only degrade it.
type Check struct {
	Name     string
	Critical bool
	Probe    CheckFunc
}

// CheckResult is the outcome of a single probe
type CheckResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthResponse is returned by /health and /ready
type HealthResponse struct {
	Status        string                 `json:"status"`
	Timestamp     time.Time              `json:"timestamp"`
	Version       string                 `json:"version"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Providers     []string               `json:"providers,omitempty"`
	Checks        map[string]CheckResult `json:"checks,omitempty"`
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks    []Check
	providers []string
	logger    *logger.Logger
	version   string
	startTime time.Time
	timeout   time.Duration
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checks []Check, providers []string, logger *logger.Logger, version string) *HealthHandler {
	sorted := append([]string(nil), providers...)
	sort.Strings(sorted)
	return &HealthHandler{
		checks:    checks,
		providers: sorted,
		logger:    logger,
		version:   version,
		startTime: time.Now(),
		timeout:   3 * time.Second,
	}
}

func (h *HealthHandler) run(ctx context.Context) (string, map[string]CheckResult) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	status := StatusHealthy
	results := make(map[string]CheckResult, len(h.checks))
	for _, check := range h.checks {
		start := time.Now()
		err := check.Probe(ctx)
		res := CheckResult{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
		if err != nil {
			res.Error = err.Error()
			if check.Critical {
				res.Status = StatusUnhealthy
				status = StatusUnhealthy
			} else {
				res.Status = StatusDegraded
				if status == StatusHealthy {
					status = StatusDegraded
				}
			}
		}
		results[check.Name] = res
	}
	return status, results
}

func (h *HealthHandler) respond(c *gin.Context, status string, checks map[string]CheckResult) {
	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{
		Status:        status,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Providers:     h.providers,
		Checks:        checks,
	})
}

// Health handles GET /health
// @Summary General health check
// @Description Returns overall service health with per-dependency status
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	status, checks := h.run(c.Request.Context())
	h.respond(c, status, checks)
}

// Readiness handles GET /ready
// @Summary Readiness check
// @Description Returns 200 if the service is ready to accept traffic
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /ready [get]
func (h *HealthHandler) Readiness(c *gin.Context) {
	status, checks := h.run(c.Request.Context())
	switch status {
	case StatusUnhealthy:
		h.logger.Warn("Readiness check failed", "checks", checks)
	case StatusDegraded:
		// Still 200 for degraded, but log it
		h.logger.Warn("Service degraded", "checks", checks)
	}
	h.respond(c, status, checks)
}

// Liveness handles GET /live
// @Summary Liveness check
// @Description Returns 200 while the process is serving requests
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /live [get]
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"time":    time.Now().Unix(),
		"version": h.version,
	})
}

// Metrics exposes the prometheus registry
func (h *HealthHandler) Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
