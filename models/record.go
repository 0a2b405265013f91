package models

import (
	"fmt"
	"math"
	"time"
)

// Record is one captured form submission.
type Record struct {
	ID        int64             `json:"id"`
	Owner     string            `json:"owner,omitempty"`
	Fields    map[string]string `json:"fields"`
	Location  *Coordinates      `json:"location,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

const mapsURL = "https://www.google.com/maps?q=%s,%s"

// Valid reports whether both components are finite and inside the WGS84 ranges.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// MapURL builds the map-viewer link shown next to a record.
func (c Coordinates) MapURL() string {
	return fmt.Sprintf(mapsURL, formatDegrees(c.Latitude), formatDegrees(c.Longitude))
}

func (c Coordinates) String() string {
	return formatDegrees(c.Latitude) + "," + formatDegrees(c.Longitude)
}

// MapURL returns the map link for the record, or "" when it has no coordinates.
func (r Record) MapURL() string {
	if r.Location == nil {
		return ""
	}
	return r.Location.MapURL()
}

// Value returns a field value, "" when the record has no such field.
func (r Record) Value(field string) string {
	return r.Fields[field]
}

func formatDegrees(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
