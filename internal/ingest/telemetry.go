package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/lox/stationgroups/internal/models"
)

const DefaultTopic = "stations/+/measurements"

// Telemetry is the MQTT payload published by a station.
type Telemetry struct {
	StationID   string   `json:"station_id"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity,omitempty"`
	AirPressure *float64 `json:"air_pressure,omitempty"`
}

func (t Telemetry) Reading() models.Reading {
	return models.Reading{
		Temperature: t.Temperature,
		Humidity:    t.Humidity,
		AirPressure: t.AirPressure,
	}
}

var ErrMalformed = errors.New("malformed telemetry")

// stationFromTopic returns the second segment of a stations/<id>/... topic.
func stationFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] != "stations" {
		return ""
	}
	return parts[1]
}

// ParseTelemetry decodes payload. The station id falls back to the topic
// when the payload omits it; a payload naming a different station than the
// topic is rejected.
func ParseTelemetry(topic string, payload []byte) (Telemetry, error) {
	var t Telemetry
	if err := json.Unmarshal(payload, &t); err != nil {
		return Telemetry{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	fromTopic := stationFromTopic(topic)
	switch {
	case t.StationID == "":
		t.StationID = fromTopic
	case fromTopic != "" && fromTopic != t.StationID:
		return Telemetry{}, fmt.Errorf("%w: station_id %q does not match topic %q", ErrMalformed, t.StationID, topic)
	}
	if t.StationID == "" {
		return Telemetry{}, fmt.Errorf("%w: station_id is required", ErrMalformed)
	}
	return t, nil
}
