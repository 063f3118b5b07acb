package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/config"
)

// TestBuildCache verifies the backend switch returns the named cache with its probe.
func TestBuildCache(t *testing.T) {
	tests := []struct {
		name     string
		backend  string
		wantName string
		wantPing bool
	}{
		{name: "file", backend: config.CacheBackendFile, wantName: "file", wantPing: true},
		{name: "in_memory", backend: config.CacheBackendInMemory, wantName: "in_memory"},
		{name: "memcached", backend: config.CacheBackendMemcached, wantName: "memcached", wantPing: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			cfg := &config.Config{
				CacheBackend:          tc.backend,
				CacheDir:              filepath.Join(t.TempDir(), "cache"),
				CacheFreshness:        300 * time.Second,
				MemcachedAddrs:        "127.0.0.1:11211",
				MemcachedTimeout:      100 * time.Millisecond,
				MemcachedMaxIdleConns: 2,
			}

			// Act
			store, err := buildCache(cfg)

			// Assert
			if err != nil {
				t.Fatalf("buildCache: %v", err)
			}
			if got := store.cache.Name(); got != tc.wantName {
				t.Errorf("Name() = %q, want %q", got, tc.wantName)
			}
			if (store.ping != nil) != tc.wantPing {
				t.Errorf("ping set = %v, want %v", store.ping != nil, tc.wantPing)
			}
			if tc.backend == config.CacheBackendFile {
				if err := store.ping(); err != nil {
					t.Errorf("file ping: %v", err)
				}
			}
		})
	}
}

// TestBuildCache_FileRequiresDir verifies an empty cache directory is rejected.
func TestBuildCache_FileRequiresDir(t *testing.T) {
	_, err := buildCache(&config.Config{CacheBackend: config.CacheBackendFile, CacheFreshness: time.Minute})
	if err == nil {
		t.Fatal("buildCache with empty dir: want error")
	}
}

// TestBuildLimiter verifies the enabled switch maps to a limiter or to nil.
func TestBuildLimiter(t *testing.T) {
	if l := buildLimiter(&config.Config{RateLimitEnabled: false, RateLimitRPS: 20, RateLimitBurst: 40}); l != nil {
		t.Errorf("disabled: limiter = %v, want nil", l)
	}
	l := buildLimiter(&config.Config{RateLimitEnabled: true, RateLimitRPS: 20, RateLimitBurst: 40})
	if l == nil {
		t.Fatal("enabled: limiter = nil")
	}
	if l.Limit() != 20 || l.Burst() != 40 {
		t.Errorf("limiter = %v/%d, want 20/40", l.Limit(), l.Burst())
	}
}
