package cache

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// ErrCorruptEntry is returned for stored entries that are not a complete reading,
// including the {"error": msg} shape. Callers treat it as a miss.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// storedReading mirrors models.WeatherReading with pointers so absent keys are detectable.
type storedReading struct {
	Temp     *float64 `json:"Temp"`
	Humidity *float64 `json:"Humidity"`
	Pressure *float64 `json:"Pressure"`
	Wind     *float64 `json:"Wind"`
	Time     *string  `json:"Time"`
}

// decodeEntry parses a stored entry. Error-shaped results and objects missing
// any reading field are rejected with ErrCorruptEntry.
func decodeEntry(raw []byte) (models.WeatherReading, error) {
	var result models.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return models.WeatherReading{}, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if !result.OK() {
		return models.WeatherReading{}, fmt.Errorf("%w: stored error result %q", ErrCorruptEntry, result.Error)
	}
	var s storedReading
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.WeatherReading{}, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if s.Temp == nil || s.Humidity == nil || s.Pressure == nil || s.Wind == nil || s.Time == nil || *s.Time == "" {
		return models.WeatherReading{}, fmt.Errorf("%w: missing reading fields", ErrCorruptEntry)
	}
	return *result.Reading, nil
}
