package calc

import (
	"math"
	"time"

	"github.com/lox/stationgroups/internal/models"
)

// Mean returns the arithmetic mean of samples, or 0 when there are none.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

// PositiveOnly drops zero and negative samples.
func PositiveOnly(samples []float64) []float64 {
	out := make([]float64, 0, len(samples))
	for _, v := range samples {
		if v > 0 {
			out = append(out, v)
		}
	}
	return out
}

func TemperatureMean(stations []models.Station) float64 {
	var temps []float64
	for _, st := range stations {
		if st.Current == nil {
			continue
		}
		temps = append(temps, st.Current.Temperature)
	}
	return Mean(PositiveOnly(temps))
}

// HumidityMean averages the humidity of every member that reported one. The
// second result is false when no member did.
func HumidityMean(stations []models.Station) (float64, bool) {
	var values []float64
	for _, st := range stations {
		if st.Current == nil || st.Current.Humidity == nil {
			continue
		}
		values = append(values, *st.Current.Humidity)
	}
	if len(values) == 0 {
		return 0, false
	}
	return Mean(values), true
}

func AirPressureMean(stations []models.Station) float64 {
	var values []float64
	for _, st := range stations {
		if st.Current == nil {
			continue
		}
		values = append(values, st.Current.AirPressure)
	}
	mean := Mean(values)
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return 0
	}
	return mean
}

// GroupSnapshot aggregates member snapshots into a group measurement taken at now.
// Members without a snapshot contribute nothing.
func GroupSnapshot(now time.Time, members []models.Station) models.Measurement {
	m := models.Measurement{
		Time:        now,
		Temperature: TemperatureMean(members),
		AirPressure: AirPressureMean(members),
	}
	if h, ok := HumidityMean(members); ok {
		m.Humidity = &h
	}
	return m
}
