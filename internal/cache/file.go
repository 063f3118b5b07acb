package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// ErrInvalidKey is returned for keys that cannot be mapped to a file inside the cache directory.
var ErrInvalidKey = errors.New("invalid cache key")

// FileCache implements Cache with one JSON file per city under dir.
// The file's modification time is the entry timestamp; there is no expiry field.
// Writes go through a temp file and rename, so concurrent writers for the same
// city resolve to last-writer-wins without torn reads.
type FileCache struct {
	dir       string
	freshness time.Duration
	now       func() time.Time
}

// NewFileCache creates dir if needed and returns a cache whose entries stay fresh for freshness.
func NewFileCache(dir string, freshness time.Duration) (*FileCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("file cache: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file cache: create %s: %w", dir, err)
	}
	return &FileCache{dir: dir, freshness: freshness, now: time.Now}, nil
}

// SetClock replaces the time source. Used by tests.
func (c *FileCache) SetClock(now func() time.Time) {
	c.now = now
}

// Dir returns the cache directory.
func (c *FileCache) Dir() string {
	return c.dir
}

// Path returns the file that holds the entry for key.
func (c *FileCache) Path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`+"\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(c.dir, key+".json"), nil
}

// Get returns the stored reading when the file exists and now - mtime < freshness.
// A missing or stale file is a miss; unreadable or corrupt files return an error.
// A file holding an error result or an incomplete reading is corrupt (ErrCorruptEntry).
func (c *FileCache) Get(ctx context.Context, key string) (models.WeatherReading, bool, error) {
	if ctx.Err() != nil {
		return models.WeatherReading{}, false, ctx.Err()
	}
	path, err := c.Path(key)
	if err != nil {
		return models.WeatherReading{}, false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.WeatherReading{}, false, nil
		}
		return models.WeatherReading{}, false, fmt.Errorf("stat cache file: %w", err)
	}
	if c.now().Sub(info.ModTime()) >= c.freshness {
		return models.WeatherReading{}, false, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.WeatherReading{}, false, nil
		}
		return models.WeatherReading{}, false, fmt.Errorf("read cache file: %w", err)
	}
	reading, err := decodeEntry(raw)
	if err != nil {
		return models.WeatherReading{}, false, fmt.Errorf("parse cache file %s: %w", filepath.Base(path), err)
	}
	return reading, true, nil
}

// Set writes value as the entry for key, replacing any prior file.
func (c *FileCache) Set(ctx context.Context, key string, value models.WeatherReading) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	path, err := c.Path(key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Ping checks that the cache directory is writable. Used for health checks.
func (c *FileCache) Ping() error {
	f, err := os.CreateTemp(c.dir, ".ping-*")
	if err != nil {
		return fmt.Errorf("cache dir not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func (c *FileCache) Name() string { return "file" }
