package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// RouterOptions configures NewRouter. A nil Limiter disables rate limiting and
// a zero RequestTimeout disables the /api deadline.
type RouterOptions struct {
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
}

// NewRouter wires the dashboard, /api, /health and /metrics routes with the
// correlation ID and metrics middleware. Rate limiting and the request
// deadline apply to /api only.
func NewRouter(h *Handler, logger *zap.Logger, opts RouterOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.NotFoundHandler = CorrelationIDMiddleware(logger)(MetricsMiddleware(http.HandlerFunc(NotFound)))

	router.HandleFunc("/", h.GetDashboard).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(opts.Limiter))
	if opts.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	api.HandleFunc("/weather", h.GetWeather).Methods(http.MethodGet)
	api.HandleFunc("/cities", h.GetCities).Methods(http.MethodGet)
	return router
}
