package http

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cities"
	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/service"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

//go:embed templates/dashboard.html
var templateFS embed.FS

var dashboardTemplate = template.Must(template.ParseFS(templateFS, "templates/dashboard.html"))

const (
	dashboardTitle   = "Pakistan Weather Dashboard"
	dashboardRefresh = 10 * time.Second
	mapPaddingDeg    = 2.0
)

// WeatherResolver resolves a city to the response envelope and its failure
// kind (empty on success). Implemented by *service.Resolver.
type WeatherResolver interface {
	Lookup(ctx context.Context, city string) (models.Result, service.ErrorKind)
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	Version          string
	// CachePing, when set, is called to check that the cache backend is usable.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	resolver         WeatherResolver
	cities           *cities.Directory
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. A nil directory selects the built-in cities.
func NewHandler(
	resolver WeatherResolver,
	directory *cities.Directory,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if directory == nil {
		directory = cities.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		resolver:     resolver,
		cities:       directory,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

type dashboardData struct {
	Title         string
	DefaultCity   string
	RefreshMillis int64
	Cities        []models.City
	MapBounds     cities.Bounds
}

// GetDashboard handles GET /. A ?city= naming a directory entry preselects it.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	all := h.cities.All()
	data := dashboardData{
		Title:         dashboardTitle,
		RefreshMillis: dashboardRefresh.Milliseconds(),
		Cities:        all,
		MapBounds:     h.cities.Bounds(mapPaddingDeg),
	}
	if c, ok := h.cities.Lookup(r.URL.Query().Get("city")); ok {
		data.DefaultCity = c.Name
	} else if len(all) > 0 {
		data.DefaultCity = all[0].Name
	}

	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, data); err != nil {
		requestLogger(r, h.logger).Error("render dashboard", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "RENDER_FAILED", "Unable to render dashboard")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// GetWeather handles GET /api/weather?city=. Always answers 200; failures are
// reported in the body as {"error": message}.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))

	result, kind := h.resolver.Lookup(r.Context(), city)
	switch kind {
	case "":
		traffic.Record(traffic.Success)
	case service.KindTransport:
		traffic.Record(traffic.ProviderError)
	case service.KindData:
		traffic.Record(traffic.Success)
	}
	if !result.OK() {
		requestLogger(r, h.logger).Debug("weather lookup failed", zap.String("city", city), zap.String("kind", string(kind)), zap.String("error", result.Error))
	}
	writeJSON(w, http.StatusOK, result)
}

// GetCities handles GET /api/cities.
func (h *Handler) GetCities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cities.All())
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	cacheOK    bool
	providerOK bool
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{
		"weatherApi": checkLabel(result.providerOK),
		"cache":      checkLabel(result.cacheOK),
	}
	version := "dev"
	if h.healthConfig != nil && h.healthConfig.Version != "" {
		version = h.healthConfig.Version
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   version,
		"checks":    checks,
		"uptime":    lifecycle.Uptime().Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func checkLabel(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

// computeHealthStatus evaluates, in order: shutting-down > cache unusable > provider error rate > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	res := healthResult{status: "healthy", statusCode: http.StatusOK, cacheOK: true, providerOK: true}
	if h.healthConfig != nil {
		if h.healthConfig.CachePing != nil && h.healthConfig.CachePing() != nil {
			res.cacheOK = false
		}
		if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
			errs, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
			if total > 0 && float64(errs)*100/float64(total) >= float64(h.healthConfig.DegradedErrorPct) {
				res.providerOK = false
			}
		}
	}

	switch {
	case lifecycle.IsShuttingDown():
		res.status, res.statusCode, res.reason = "shutting-down", http.StatusServiceUnavailable, "signal"
	case !res.cacheOK:
		res.status, res.statusCode, res.reason = "degraded", http.StatusServiceUnavailable, "cache_unavailable"
	case !res.providerOK:
		res.status, res.statusCode, res.reason = "degraded", http.StatusServiceUnavailable, "error_rate_breach"
	}
	return res
}

// NotFound answers unknown routes with the standard error body.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "NOT_FOUND", "No route for "+r.URL.Path)
}

func requestLogger(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		return logger
	}
	return fallback
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response with code, message and the request's
// correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID, _ := r.Context().Value("correlation_id").(string)
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
