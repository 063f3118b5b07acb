package models

import "time"

// TimeLayout is the wall-clock format of WeatherReading.Time.
const TimeLayout = "2006-01-02 15:04:05"

// WeatherReading is one normalized observation for a city. The same shape is
// written to the cache file and returned by /api/weather.
type WeatherReading struct {
	Temp     float64 `json:"Temp"`
	Humidity float64 `json:"Humidity"`
	Pressure float64 `json:"Pressure"`
	Wind     float64 `json:"Wind"`
	Time     string  `json:"Time"`
}

// NewWeatherReading stamps the measurements with observedAt in local time.
func NewWeatherReading(temp, humidity, pressure, wind float64, observedAt time.Time) WeatherReading {
	return WeatherReading{
		Temp:     temp,
		Humidity: humidity,
		Pressure: pressure,
		Wind:     wind,
		Time:     observedAt.Local().Format(TimeLayout),
	}
}

// City is a dashboard entry used for the city picker and map marker.
type City struct {
	Name string  `json:"name" yaml:"name"`
	Lat  float64 `json:"lat" yaml:"lat"`
	Lon  float64 `json:"lon" yaml:"lon"`
}
