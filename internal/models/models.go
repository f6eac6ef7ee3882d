package models

import (
	"time"
)

type OwnerKind string

const (
	OwnerStation OwnerKind = "station"
	OwnerGroup   OwnerKind = "group"
)

type Location struct {
	Name      string  `json:"name"`
	Indoor    bool    `json:"indoor"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Measurement is a single reading. The same record is used for station and
// group snapshots and for history rows.
type Measurement struct {
	Time        time.Time `json:"date"`
	Temperature float64   `json:"temperature"`
	Humidity    *float64  `json:"humidity,omitempty"`
	AirPressure float64   `json:"airPressure"`
}

// Reading is a client-supplied measurement before validation.
type Reading struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity,omitempty"`
	AirPressure *float64 `json:"airPressure,omitempty"`
}

type Station struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"createdDate"`
	Location  Location     `json:"location"`
	GroupID   *string      `json:"stationGroupId,omitempty"`
	Current   *Measurement `json:"currentMeasurement,omitempty"`
}

// InGroup reports whether the station currently points at groupID.
func (s Station) InGroup(groupID string) bool {
	return s.GroupID != nil && *s.GroupID == groupID
}

type StationGroup struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"createdDate"`
	Location  Location     `json:"location"`
	Stations  []string     `json:"stations"`
	Current   *Measurement `json:"currentMeasurement,omitempty"`
}

type DeletionResult struct {
	DeletedCount        int64 `json:"deletedCount"`
	MeasurementsDeleted int64 `json:"measurementsDeleted"`
	DetachedStations    int   `json:"detachedStations,omitempty"`
}

// StationDay is a station together with the measurements recorded on one UTC day.
type StationDay struct {
	Station
	Measurements []Measurement `json:"measurements"`
}
