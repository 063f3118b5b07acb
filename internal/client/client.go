package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// WeatherClient fetches the raw current-weather observation for a city.
// Implementations make exactly one upstream call per invocation.
type WeatherClient interface {
	FetchCurrent(ctx context.Context, city string) (Observation, error)
}

var (
	ErrInvalidAPIKey       = errors.New("invalid API key")
	ErrLocationNotFound    = errors.New("location not found")
	ErrUpstreamFailure     = errors.New("upstream failure")
	ErrRateLimited         = errors.New("rate limited")
	ErrCircuitOpen         = errors.New("circuit breaker open")
	ErrMissingMeasurements = errors.New("response has no measurement data")
	ErrMalformedResponse   = errors.New("malformed response")
)

const userAgent = "weather-dashboard/1.0"

// Observation is the subset of the OpenWeatherMap payload the dashboard uses.
// Pointer fields distinguish an absent value from zero.
type Observation struct {
	Name string     `json:"name"`
	Main *MainBlock `json:"main"`
	Wind *WindBlock `json:"wind"`
}

type MainBlock struct {
	Temp     *float64 `json:"temp"`
	Humidity *float64 `json:"humidity"`
	Pressure *float64 `json:"pressure"`
}

type WindBlock struct {
	Speed *float64 `json:"speed"`
}

type OpenWeatherClient struct {
	apiKey  string
	apiURL  string
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	return &OpenWeatherClient{
		apiKey:  apiKey,
		apiURL:  apiURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker routes calls through cb. Only transport failures count
// against the breaker; unknown-city and rate-limit answers do not trip it.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *gobreaker.CircuitBreaker) {
	c.breaker = cb
}

// breakerResult carries a provider answer that should not count as a breaker failure.
type breakerResult struct {
	obs Observation
	err error
}

// FetchCurrent performs a single GET for city. No retries.
func (c *OpenWeatherClient) FetchCurrent(ctx context.Context, city string) (Observation, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, city)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		obs, err := c.callAPI(ctx, city)
		if err != nil && !IsTransportError(err) {
			return breakerResult{err: err}, nil
		}
		return breakerResult{obs: obs}, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.WeatherAPIErrorsTotal.WithLabelValues(string(ErrorCategoryCircuitOpen)).Inc()
			return Observation{}, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return Observation{}, err
	}
	res := out.(breakerResult)
	return res.obs, res.err
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, city string) (Observation, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, city)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return Observation{}, fmt.Errorf("build request: %w", err)
	}

	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if isTimeout(err) {
			err = fmt.Errorf("request timeout: %w", redactKey(err, c.apiKey))
		} else {
			err = fmt.Errorf("http request failed: %w", redactKey(err, c.apiKey))
		}
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		return Observation{}, err
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	obs, err := c.decode(resp)
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		return Observation{}, err
	}
	return obs, nil
}

func (c *OpenWeatherClient) decode(resp *http.Response) (Observation, error) {
	if err := handleErrorResponse(resp); err != nil {
		return Observation{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Observation{}, fmt.Errorf("read response body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return Observation{}, ErrMissingMeasurements
	}

	var obs Observation
	if err := json.Unmarshal(body, &obs); err != nil {
		return Observation{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if obs.Main == nil {
		return Observation{}, ErrMissingMeasurements
	}
	return obs, nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, city string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := baseURL.Query()
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP 401", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w: HTTP 404", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP 429", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

// IsTransportError reports whether err means the provider could not be reached
// or answered with a failure status. Unknown-city, rate-limit and payload
// problems are data errors instead.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrLocationNotFound),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrMissingMeasurements),
		errors.Is(err, ErrMalformedResponse):
		return false
	}
	return true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// redactKey strips the API key from url.Error messages, which embed the full request URL.
func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &url.Error{Op: uerr.Op, URL: strings.ReplaceAll(uerr.URL, key, "REDACTED"), Err: uerr.Err}
	}
	return errors.New(strings.ReplaceAll(err.Error(), key, "REDACTED"))
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
