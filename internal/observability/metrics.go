package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate by route template and status class.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency. Watch p95 on /api/weather: cache misses cost a provider round trip.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap call rate by status label (success, client_error, rate_limited, server_error, error).
	WeatherAPICallsTotal *prometheus.CounterVec

	// OpenWeatherMap latency. The provider timeout caps this (default 10s).
	WeatherAPIDuration *prometheus.HistogramVec

	// Provider errors by category (see client.CategorizeError).
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Cache hits, misses (absent or stale) and I/O errors by backend.
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheErrorsTotal *prometheus.CounterVec

	// Resolver outcomes: hit, fetched, validation, transport, data.
	LookupsTotal *prometheus.CounterVec

	// Per-city lookups (allow-list from the city directory; others use city=other).
	WeatherQueriesByCityTotal *prometheus.CounterVec

	// Concurrent cache misses for the same city. Both misses call the provider (last writer wins).
	CacheStampedeDetectedTotal *prometheus.CounterVec

	// Rate limit denials on /api.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState *prometheus.GaugeVec

	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}

	trafficGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "OpenWeatherMap call failures by category",
		},
		[]string{"category"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Fresh cache entries served without a provider call",
		},
		[]string{"backend"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Lookups with no fresh cache entry",
		},
		[]string{"backend"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache read/write failures by backend and operation",
		},
		[]string{"backend", "operation"},
	)
	LookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherLookupsTotal",
			Help: "Weather resolver outcomes",
		},
		[]string{"outcome"},
	)
	WeatherQueriesByCityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesByCityTotal",
			Help: "Weather lookups by city (allow-list; others use city=other)",
		},
		[]string{"city"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Cache misses that overlapped another in-flight miss for the same city",
		},
		[]string{"city"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of /api requests denied by the rate limiter",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Provider circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"component"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal,
		LookupsTotal, WeatherQueriesByCityTotal, CacheStampedeDetectedTotal,
		RateLimitDeniedTotal, CircuitBreakerState,
	)
}

// RegisterTrafficGauges exposes sliding-window request and denial counts.
// Call once from main with the health window.
func RegisterTrafficGauges(window time.Duration) {
	trafficGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "apiRequestsInWindow",
					Help: "API requests (served, failed or denied) in the health window",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "Rate limiter denials in the health window",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// SetTrackedCities sets the allow-list for per-city metrics.
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalizeCityForMetrics(c)] = struct{}{}
	}
}

// MetricCityLabel returns the city label for metrics, or "other" when the
// city is not on the allow-list. Bounds label cardinality.
func MetricCityLabel(city string) string {
	c := normalizeCityForMetrics(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[c]
	trackedCitiesMu.RUnlock()
	if ok {
		return c
	}
	return "other"
}

// RecordWeatherQuery records a lookup for city.
func RecordWeatherQuery(city string) {
	WeatherQueriesByCityTotal.WithLabelValues(MetricCityLabel(city)).Inc()
}

func normalizeCityForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
