package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

// DefaultMaxCityLength applies when Options.MaxCityLength is zero.
const DefaultMaxCityLength = 100

// MsgInvalidCity is returned for unknown cities, provider rate limits and
// responses without measurements. The provider does not let us tell these apart reliably.
const MsgInvalidCity = "Invalid city or API limit reached"

// ErrorKind classifies a ResolveError.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindTransport  ErrorKind = "transport"
	KindData       ErrorKind = "data"
)

// ResolveError is the only error type returned by Resolver.Resolve.
// Message is safe to show to the caller.
type ResolveError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ResolveError) Error() string { return e.Message }

func (e *ResolveError) Unwrap() error { return e.Err }

// Options configures a Resolver. Zero values select defaults.
type Options struct {
	MaxCityLength int
	Now           func() time.Time
	Logger        *zap.Logger
}

// Resolver turns a city name into a weather reading: validate, read the cache,
// fall back to one provider call, normalize and persist.
// Concurrent misses for one city each call the provider; the last write wins.
type Resolver struct {
	client  client.WeatherClient
	cache   cache.Cache
	maxLen  int
	now     func() time.Time
	logger  *zap.Logger
	tracker *missTracker
}

// NewResolver creates a Resolver with the provided dependencies.
func NewResolver(c client.WeatherClient, store cache.Cache, opts Options) *Resolver {
	r := &Resolver{
		client:  c,
		cache:   store,
		maxLen:  opts.MaxCityLength,
		now:     opts.Now,
		logger:  opts.Logger,
		tracker: newMissTracker(),
	}
	if r.maxLen == 0 {
		r.maxLen = DefaultMaxCityLength
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// loggerFromContext returns the request-scoped logger, or the resolver's own.
func (r *Resolver) loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return r.logger
}

// Lookup resolves city and wraps the outcome in the envelope served over HTTP.
// kind is empty on success and names the failure class otherwise.
func (r *Resolver) Lookup(ctx context.Context, city string) (res models.Result, kind ErrorKind) {
	reading, err := r.Resolve(ctx, city)
	if err != nil {
		var rerr *ResolveError
		if !errors.As(err, &rerr) {
			return models.Failure(err.Error()), KindData
		}
		return models.Failure(rerr.Message), rerr.Kind
	}
	return models.Success(reading), ""
}

// Resolve returns the reading for city. A fresh cache entry is returned verbatim
// without a provider call. Otherwise exactly one provider call is made and a
// successful result overwrites the cache entry. Errors are never cached.
// Every returned error is a *ResolveError.
func (r *Resolver) Resolve(ctx context.Context, city string) (reading models.WeatherReading, err error) {
	logger := r.loggerFromContext(ctx)
	defer func() {
		if p := recover(); p != nil {
			logger.Error("resolver panic", zap.Any("panic", p), zap.String("city", city))
			reading = models.WeatherReading{}
			err = r.fail(KindData, fmt.Sprintf("internal error: %v", p), nil)
		}
	}()

	name, verr := validation.ValidateCity(city, r.maxLen)
	if verr != nil {
		return models.WeatherReading{}, r.fail(KindValidation, verr.Error(), verr)
	}
	key := strings.ToLower(name)
	observability.RecordWeatherQuery(key)
	backend := r.cache.Name()

	cached, ok, cerr := r.cache.Get(ctx, key)
	switch {
	case cerr != nil:
		observability.CacheErrorsTotal.WithLabelValues(backend, "get").Inc()
		logger.Warn("cache read failed, treating as miss", zap.String("city", key), zap.String("backend", backend), zap.Error(cerr))
	case ok:
		observability.CacheHitsTotal.WithLabelValues(backend).Inc()
		observability.LookupsTotal.WithLabelValues("hit").Inc()
		logger.Debug("cache hit", zap.String("city", key))
		return cached, nil
	}
	observability.CacheMissesTotal.WithLabelValues(backend).Inc()

	if n := r.tracker.begin(key); n > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(observability.MetricCityLabel(key)).Inc()
	}
	defer r.tracker.done(key)

	logger.Debug("cache miss, fetching upstream", zap.String("city", key))
	obs, ferr := r.client.FetchCurrent(ctx, name)
	if ferr != nil {
		rerr := classify(ferr)
		observability.LookupsTotal.WithLabelValues(string(rerr.Kind)).Inc()
		logger.Debug("provider lookup failed", zap.String("city", key), zap.String("kind", string(rerr.Kind)), zap.Error(ferr))
		return models.WeatherReading{}, rerr
	}

	reading, nerr := normalize(obs, r.now())
	if nerr != nil {
		observability.LookupsTotal.WithLabelValues(string(KindData)).Inc()
		logger.Debug("provider response incomplete", zap.String("city", key), zap.Error(nerr))
		msg := nerr.Error()
		if errors.Is(nerr, client.ErrMissingMeasurements) {
			msg = MsgInvalidCity
		}
		return models.WeatherReading{}, &ResolveError{Kind: KindData, Message: msg, Err: nerr}
	}

	if serr := r.cache.Set(ctx, key, reading); serr != nil {
		observability.CacheErrorsTotal.WithLabelValues(backend, "set").Inc()
		logger.Warn("cache write failed", zap.String("city", key), zap.String("backend", backend), zap.Error(serr))
	}
	observability.LookupsTotal.WithLabelValues("fetched").Inc()
	return reading, nil
}

func (r *Resolver) fail(kind ErrorKind, msg string, cause error) *ResolveError {
	observability.LookupsTotal.WithLabelValues(string(kind)).Inc()
	return &ResolveError{Kind: kind, Message: msg, Err: cause}
}

// classify maps a provider error to the caller-facing ResolveError.
func classify(err error) *ResolveError {
	switch {
	case errors.Is(err, client.ErrLocationNotFound),
		errors.Is(err, client.ErrRateLimited),
		errors.Is(err, client.ErrMissingMeasurements):
		return &ResolveError{Kind: KindData, Message: MsgInvalidCity, Err: err}
	case errors.Is(err, client.ErrMalformedResponse):
		return &ResolveError{Kind: KindData, Message: err.Error(), Err: err}
	}
	return &ResolveError{Kind: KindTransport, Message: "Network/API Error: " + err.Error(), Err: err}
}

// normalize builds a reading from the provider payload. Every measurement must be present.
func normalize(obs client.Observation, observedAt time.Time) (models.WeatherReading, error) {
	if obs.Main == nil {
		return models.WeatherReading{}, fmt.Errorf("%w: main", client.ErrMissingMeasurements)
	}
	missing := func(field string) error {
		return fmt.Errorf("provider response missing %s", field)
	}
	switch {
	case obs.Main.Temp == nil:
		return models.WeatherReading{}, missing("main.temp")
	case obs.Main.Humidity == nil:
		return models.WeatherReading{}, missing("main.humidity")
	case obs.Main.Pressure == nil:
		return models.WeatherReading{}, missing("main.pressure")
	case obs.Wind == nil || obs.Wind.Speed == nil:
		return models.WeatherReading{}, missing("wind.speed")
	}
	return models.NewWeatherReading(*obs.Main.Temp, *obs.Main.Humidity, *obs.Main.Pressure, *obs.Wind.Speed, observedAt), nil
}
