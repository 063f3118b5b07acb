package models

import "encoding/json"

// Result is the envelope returned by /api/weather. Exactly one of Reading or
// Error is set; it marshals to either the reading fields or {"error": msg}.
type Result struct {
	Reading *WeatherReading
	Error   string
}

// Success wraps a reading.
func Success(r WeatherReading) Result {
	return Result{Reading: &r}
}

// Failure wraps an error message.
func Failure(msg string) Result {
	return Result{Error: msg}
}

// OK reports whether the result carries a reading.
func (r Result) OK() bool {
	return r.Reading != nil
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Reading != nil {
		return json.Marshal(r.Reading)
	}
	return json.Marshal(struct {
		Error string `json:"error"`
	}{Error: r.Error})
}

// UnmarshalJSON decodes either shape; an "error" key wins.
func (r *Result) UnmarshalJSON(data []byte) error {
	var probe struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Error != nil {
		*r = Failure(*probe.Error)
		return nil
	}
	var reading WeatherReading
	if err := json.Unmarshal(data, &reading); err != nil {
		return err
	}
	*r = Success(reading)
	return nil
}
