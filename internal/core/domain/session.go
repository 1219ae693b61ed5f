package domain

import "time"

// Session identifies one sensor run. Every sink call is keyed by its ID.
type Session struct {
	ID       string    `json:"id"`
	Hostname string    `json:"hostname"`
	Kernel   string    `json:"kernel"`
	Start    time.Time `json:"start"`
	Stop     time.Time `json:"stop,omitempty"`
}

// Location is one geolocation fix of the sensor.
type Location struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Altitude  float64   `json:"alt"`
	Source    string    `json:"source"`
	TS        time.Time `json:"ts"`
}
