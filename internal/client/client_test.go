package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

const testAPIKey = "test-api-key-12345"

func karachiPayload() map[string]interface{} {
	return map[string]interface{}{
		"name": "Karachi",
		"main": map[string]interface{}{
			"temp":     30.5,
			"humidity": 40,
			"pressure": 1008,
		},
		"wind": map[string]interface{}{
			"speed": 3.2,
		},
	}
}

func TestNewOpenWeatherClient_InvalidAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{"empty API key", "", ErrInvalidAPIKey},
		{"too short API key", "short", ErrInvalidAPIKey},
		{"valid API key", testAPIKey, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewOpenWeatherClient(tt.apiKey, "https://api.test.com", 2*time.Second)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewOpenWeatherClient() error = %v, want %v", err, tt.wantErr)
				}
				if client != nil {
					t.Errorf("NewOpenWeatherClient() expected nil client on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() unexpected error: %v", err)
			}
			if client == nil {
				t.Fatalf("NewOpenWeatherClient() expected client, got nil")
			}
		})
	}
}

func TestOpenWeatherClient_FetchCurrent_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("q") != "Karachi" {
			t.Errorf("q = %q, want Karachi", q.Get("q"))
		}
		if q.Get("appid") != testAPIKey {
			t.Errorf("appid = %q, want test key", q.Get("appid"))
		}
		if q.Get("units") != "metric" {
			t.Errorf("units = %q, want metric", q.Get("units"))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(karachiPayload())
	}))
	defer server.Close()

	client, err := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	got, err := client.FetchCurrent(context.Background(), "Karachi")
	if err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}
	if got.Main == nil || got.Wind == nil {
		t.Fatalf("FetchCurrent() = %+v, want main and wind blocks", got)
	}
	if *got.Main.Temp != 30.5 || *got.Main.Humidity != 40 || *got.Main.Pressure != 1008 {
		t.Errorf("Main = %+v", *got.Main)
	}
	if *got.Wind.Speed != 3.2 {
		t.Errorf("Wind.Speed = %v, want 3.2", *got.Wind.Speed)
	}
}

func TestOpenWeatherClient_FetchCurrent_ErrorHandling(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		transport bool
	}{
		{"401 unauthorized", http.StatusUnauthorized, "", ErrInvalidAPIKey, true},
		{"404 not found", http.StatusNotFound, `{"cod":"404","message":"city not found"}`, ErrLocationNotFound, false},
		{"429 rate limited", http.StatusTooManyRequests, "", ErrRateLimited, false},
		{"500 server error", http.StatusInternalServerError, "", ErrUpstreamFailure, true},
		{"502 bad gateway", http.StatusBadGateway, "", ErrUpstreamFailure, true},
		{"418 other client error", http.StatusTeapot, "", ErrUpstreamFailure, true},
		{"200 empty body", http.StatusOK, "", ErrMissingMeasurements, false},
		{"200 without main", http.StatusOK, `{"cod":200,"name":"x"}`, ErrMissingMeasurements, false},
		{"200 malformed", http.StatusOK, `{"main":`, ErrMalformedResponse, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() error = %v", err)
			}

			_, err = client.FetchCurrent(context.Background(), "test")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FetchCurrent() error = %v, want %v", err, tt.wantErr)
			}
			if got := IsTransportError(err); got != tt.transport {
				t.Errorf("IsTransportError() = %v, want %v", got, tt.transport)
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("provider calls = %d, want exactly 1 (no retries)", n)
			}
		})
	}
}

func TestOpenWeatherClient_FetchCurrent_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, err := NewOpenWeatherClient(testAPIKey, server.URL, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	_, err = client.FetchCurrent(context.Background(), "Karachi")
	if err == nil {
		t.Fatal("FetchCurrent() expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("FetchCurrent() error = %v, want timeout", err)
	}
	if strings.Contains(err.Error(), testAPIKey) {
		t.Errorf("FetchCurrent() error leaks API key: %v", err)
	}
	if CategorizeError(err) != ErrorCategoryTimeout {
		t.Errorf("CategorizeError() = %v, want timeout", CategorizeError(err))
	}
}

func TestOpenWeatherClient_FetchCurrent_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewOpenWeatherClient(testAPIKey, url, time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	_, err = client.FetchCurrent(context.Background(), "Karachi")
	if err == nil || !IsTransportError(err) {
		t.Fatalf("FetchCurrent() error = %v, want transport error", err)
	}
	if strings.Contains(err.Error(), testAPIKey) {
		t.Errorf("FetchCurrent() error leaks API key: %v", err)
	}
}

func TestOpenWeatherClient_FetchCurrent_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	client, err := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.FetchCurrent(ctx, "test")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("FetchCurrent() error = %v, want context.Canceled", err)
	}
}

func TestOpenWeatherClient_FetchCurrent_CorrelationID(t *testing.T) {
	var captured string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Get("X-Correlation-ID")
		_ = json.NewEncoder(w).Encode(karachiPayload())
	}))
	defer server.Close()

	client, err := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	ctx := context.WithValue(context.Background(), "correlation_id", "test-correlation-id-123")
	if _, err := client.FetchCurrent(ctx, "Karachi"); err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}
	if captured != "test-correlation-id-123" {
		t.Errorf("X-Correlation-ID header = %q, want %q", captured, "test-correlation-id-123")
	}
}

// TestOpenWeatherClient_CircuitBreaker verifies that consecutive transport
// failures open the breaker, that an open breaker short-circuits without
// calling the provider, and that data errors never trip it.
func TestOpenWeatherClient_CircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	client, err := NewOpenWeatherClient(testAPIKey, server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	var transitions []gobreaker.State
	client.SetCircuitBreaker(NewCircuitBreaker(BreakerConfig{
		FailureThreshold: 2,
		Timeout:          time.Hour,
		OnStateChange: func(_ string, _, to gobreaker.State) {
			transitions = append(transitions, to)
		},
	}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := client.FetchCurrent(ctx, "nowhere"); !errors.Is(err, ErrLocationNotFound) {
			t.Fatalf("FetchCurrent() error = %v, want ErrLocationNotFound", err)
		}
	}
	if len(transitions) != 0 {
		t.Fatalf("breaker transitioned on data errors: %v", transitions)
	}

	status.Store(http.StatusServiceUnavailable)
	for i := 0; i < 2; i++ {
		if _, err := client.FetchCurrent(ctx, "Karachi"); !errors.Is(err, ErrUpstreamFailure) {
			t.Fatalf("FetchCurrent() error = %v, want ErrUpstreamFailure", err)
		}
	}
	before := calls.Load()
	_, err = client.FetchCurrent(ctx, "Karachi")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("FetchCurrent() error = %v, want ErrCircuitOpen", err)
	}
	if calls.Load() != before {
		t.Error("open breaker still called the provider")
	}
	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Errorf("transitions = %v, want [open]", transitions)
	}
}

func TestStateValue(t *testing.T) {
	if StateValue(gobreaker.StateClosed) != 0 || StateValue(gobreaker.StateHalfOpen) != 1 || StateValue(gobreaker.StateOpen) != 2 {
		t.Error("StateValue() mapping mismatch")
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{200: "success", 429: "rate_limited", 404: "client_error", 503: "server_error", 302: "error"}
	for code, want := range tests {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
