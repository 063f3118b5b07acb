package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// Cache backends accepted by cache.backend / CACHE_BACKEND.
const (
	CacheBackendFile      = "file"
	CacheBackendInMemory  = "in_memory"
	CacheBackendMemcached = "memcached"
)

const defaultWeatherAPIURL = "https://api.openweathermap.org/data/2.5/weather"

// Config holds service configuration loaded from .env, YAML and env.
type Config struct {
	ServerPort string
	Version    string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	RequestTimeout time.Duration

	CacheBackend   string
	CacheDir       string
	CacheFreshness time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitEnabled bool
	RateLimitRPS     int
	RateLimitBurst   int

	CircuitBreakerEnabled          bool
	CircuitBreakerMaxRequests      uint32
	CircuitBreakerInterval         time.Duration
	CircuitBreakerTimeout          time.Duration
	CircuitBreakerFailureThreshold uint32

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	CityMaxLength int

	// Cities replaces the built-in directory when non-empty.
	Cities []models.City
}

type fileConfig struct {
	Server struct {
		Port    string `yaml:"port"`
		Version string `yaml:"version"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Dir       string `yaml:"dir"`
		Freshness string `yaml:"freshness"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitEnabled *bool `yaml:"rate_limit_enabled"`
		RateLimitRPS     int   `yaml:"rate_limit_rps"`
		RateLimitBurst   int   `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			MaxRequests      uint32 `yaml:"max_requests"`
			Interval         string `yaml:"interval"`
			Timeout          string `yaml:"timeout"`
			FailureThreshold uint32 `yaml:"failure_threshold"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Validation struct {
		CityMaxLength int `yaml:"city_max_length"`
	} `yaml:"validation"`

	Cities []models.City `yaml:"cities"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads .env (if present), then config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. The API key comes from WEATHER_API_KEY or the secrets
// file. Call from project root.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = strings.TrimSpace(fc.Server.Port)
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.Version = strings.TrimSpace(fc.Server.Version)
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	cfg.WeatherAPIKey, err = loadAPIKey(cwd)
	if err != nil {
		return nil, err
	}

	cfg.WeatherAPIURL = strings.TrimSpace(fc.WeatherAPI.URL)
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = defaultWeatherAPIURL
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 11*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = CacheBackendFile
	}
	cfg.CacheDir = strings.TrimSpace(os.Getenv("CACHE_DIR"))
	if cfg.CacheDir == "" {
		cfg.CacheDir = strings.TrimSpace(fc.Cache.Dir)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "cache"
	}
	cfg.CacheFreshness = parseDurationOrZero(fc.Cache.Freshness, 300*time.Second)

	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RateLimitEnabled = true
	if fc.Reliability.RateLimitEnabled != nil {
		cfg.RateLimitEnabled = *fc.Reliability.RateLimitEnabled
	}
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = true
	if cb.Enabled != nil {
		cfg.CircuitBreakerEnabled = *cb.Enabled
	}
	cfg.CircuitBreakerMaxRequests = cb.MaxRequests
	if cfg.CircuitBreakerMaxRequests == 0 {
		cfg.CircuitBreakerMaxRequests = 1
	}
	cfg.CircuitBreakerInterval = parseDuration(cb.Interval, 60*time.Second)
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold == 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 15*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.CityMaxLength = fc.Validation.CityMaxLength
	if cfg.CityMaxLength <= 0 {
		cfg.CityMaxLength = 100
	}
	cfg.Cities = fc.Cities

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadAPIKey returns WEATHER_API_KEY, falling back to config/secrets.yaml.
func loadAPIKey(cwd string) (string, error) {
	if key := strings.TrimSpace(os.Getenv("WEATHER_API_KEY")); key != "" {
		return key, nil
	}
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	data, err := os.ReadFile(secretsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read secrets file: %w", err)
		}
	} else {
		var sec secretsFile
		if err := yaml.Unmarshal(data, &sec); err != nil {
			return "", fmt.Errorf("parse secrets file: %w", err)
		}
		if key := strings.TrimSpace(sec.WeatherAPIKey); key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("WEATHER_API_KEY required (set env, .env or config/secrets.yaml weather_api_key)")
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is so validate can reject them.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate rejects non-positive provider timeout and freshness, an unknown
// cache backend and malformed city entries. RequestTimeout is raised to
// exceed the provider timeout.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.CacheFreshness <= 0 {
		return fmt.Errorf("cache.freshness must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case CacheBackendFile, CacheBackendInMemory, CacheBackendMemcached:
	default:
		return fmt.Errorf("cache.backend must be file, in_memory or memcached, got %q", cfg.CacheBackend)
	}
	for i, c := range cfg.Cities {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("cities[%d]: name is required", i)
		}
		if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
			return fmt.Errorf("cities[%d] %q: coordinates out of range", i, c.Name)
		}
	}
	return nil
}
