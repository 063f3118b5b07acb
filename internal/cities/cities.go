// Package cities holds the static directory of dashboard cities used for the
// picker and map markers. It plays no part in weather resolution.
package cities

import (
	"strings"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// defaultCities is the built-in directory used when config does not override it.
var defaultCities = []models.City{
	{Name: "Karachi", Lat: 24.8607, Lon: 67.0011},
	{Name: "Lahore", Lat: 31.5204, Lon: 74.3587},
	{Name: "Islamabad", Lat: 33.6844, Lon: 73.0479},
	{Name: "Quetta", Lat: 30.1798, Lon: 66.9750},
	{Name: "Peshawar", Lat: 34.0151, Lon: 71.5249},
	{Name: "Multan", Lat: 30.1575, Lon: 71.5249},
	{Name: "Faisalabad", Lat: 31.4180, Lon: 73.0790},
	{Name: "Hyderabad", Lat: 25.3960, Lon: 68.3578},
	{Name: "Rawalpindi", Lat: 33.5651, Lon: 73.0169},
	{Name: "Sialkot", Lat: 32.4990, Lon: 74.5229},
	{Name: "Gujranwala", Lat: 32.1877, Lon: 74.1945},
}

// Directory is an immutable, ordered list of cities.
type Directory struct {
	cities []models.City
	byName map[string]models.City
}

// Default returns the built-in directory.
func Default() *Directory {
	return New(defaultCities)
}

// New builds a directory from list. Entries with a blank name are skipped;
// later duplicates (case-insensitive) are dropped.
func New(list []models.City) *Directory {
	d := &Directory{byName: make(map[string]models.City, len(list))}
	for _, c := range list {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		key := strings.ToLower(c.Name)
		if _, dup := d.byName[key]; dup {
			continue
		}
		d.byName[key] = c
		d.cities = append(d.cities, c)
	}
	return d
}

// All returns a copy of the cities in configured order.
func (d *Directory) All() []models.City {
	out := make([]models.City, len(d.cities))
	copy(out, d.cities)
	return out
}

// Names returns the city names in configured order.
func (d *Directory) Names() []string {
	out := make([]string, 0, len(d.cities))
	for _, c := range d.cities {
		out = append(out, c.Name)
	}
	return out
}

// Lookup finds a city by name, ignoring case and surrounding whitespace.
func (d *Directory) Lookup(name string) (models.City, bool) {
	c, ok := d.byName[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Bounds is a lat/lon bounding box.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Bounds returns the box enclosing every city, widened by pad degrees on each
// side. An empty directory yields the whole map.
func (d *Directory) Bounds(pad float64) Bounds {
	if len(d.cities) == 0 {
		return Bounds{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}
	}
	b := Bounds{MinLat: d.cities[0].Lat, MaxLat: d.cities[0].Lat, MinLon: d.cities[0].Lon, MaxLon: d.cities[0].Lon}
	for _, c := range d.cities[1:] {
		b.MinLat = min(b.MinLat, c.Lat)
		b.MaxLat = max(b.MaxLat, c.Lat)
		b.MinLon = min(b.MinLon, c.Lon)
		b.MaxLon = max(b.MaxLon, c.Lon)
	}
	b.MinLat = max(b.MinLat-pad, -90)
	b.MaxLat = min(b.MaxLat+pad, 90)
	b.MinLon = max(b.MinLon-pad, -180)
	b.MaxLon = min(b.MaxLon+pad, 180)
	return b
}
