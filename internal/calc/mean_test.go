package calc

import (
	"math"
	"testing"
	"time"

	"github.com/lox/stationgroups/internal/models"
)

func ptr(f float64) *float64 { return &f }

func stationWith(temp float64, humidity *float64, pressure float64) models.Station {
	return models.Station{Current: &models.Measurement{Temperature: temp, Humidity: humidity, AirPressure: pressure}}
}

func TestMean(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{"empty", nil, 0},
		{"empty slice", []float64{}, 0},
		{"single", []float64{21.5}, 21.5},
		{"pair", []float64{22, 18}, 20},
		{"mixed signs", []float64{-4, 4, 3}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Mean(tt.samples)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Mean(%v) = %v, want %v", tt.samples, got, tt.want)
			}
		})
	}
}

func TestMean_SumOverLen(t *testing.T) {
	samples := []float64{1.25, 7.5, 3.75, 12, 0.5}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	if got, want := Mean(samples), sum/float64(len(samples)); got != want {
		t.Errorf("Mean = %v, want %v", got, want)
	}
}

func TestPositiveOnly(t *testing.T) {
	got := PositiveOnly([]float64{0, -1, 2, 3.5, -0.1})
	if len(got) != 2 || got[0] != 2 || got[1] != 3.5 {
		t.Errorf("PositiveOnly = %v, want [2 3.5]", got)
	}
}

func TestTemperatureMean_SkipsNonPositiveAndMissing(t *testing.T) {
	members := []models.Station{
		stationWith(22, nil, 0),
		stationWith(18, nil, 0),
		stationWith(0, nil, 0),
		stationWith(-3, nil, 0),
		{},
	}
	if got := TemperatureMean(members); got != 20 {
		t.Errorf("TemperatureMean = %v, want 20", got)
	}
}

func TestTemperatureMean_NoValidMembers(t *testing.T) {
	members := []models.Station{stationWith(0, nil, 0), {}}
	if got := TemperatureMean(members); got != 0 {
		t.Errorf("TemperatureMean = %v, want 0", got)
	}
}

func TestHumidityMean(t *testing.T) {
	members := []models.Station{
		stationWith(20, ptr(40), 0),
		stationWith(20, ptr(60), 0),
		stationWith(20, nil, 0),
	}
	got, ok := HumidityMean(members)
	if !ok {
		t.Fatal("HumidityMean reported no samples")
	}
	if got != 50 {
		t.Errorf("HumidityMean = %v, want 50", got)
	}

	if _, ok := HumidityMean([]models.Station{stationWith(20, nil, 0)}); ok {
		t.Error("HumidityMean with no humidity should report false")
	}
}

func TestGroupSnapshot(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	members := []models.Station{
		stationWith(22, ptr(40), 1010),
		stationWith(18, nil, 1014),
		{},
	}

	snap := GroupSnapshot(now, members)
	if !snap.Time.Equal(now) {
		t.Errorf("Time = %v, want %v", snap.Time, now)
	}
	if snap.Temperature != 20 {
		t.Errorf("Temperature = %v, want 20", snap.Temperature)
	}
	if snap.AirPressure != 1012 {
		t.Errorf("AirPressure = %v, want 1012", snap.AirPressure)
	}
	if snap.Humidity == nil || *snap.Humidity != 40 {
		t.Errorf("Humidity = %v, want 40", snap.Humidity)
	}
}

func TestGroupSnapshot_NoMembers(t *testing.T) {
	snap := GroupSnapshot(time.Now(), nil)
	if snap.Temperature != 0 || snap.AirPressure != 0 || snap.Humidity != nil {
		t.Errorf("GroupSnapshot(nil) = %+v, want zero values", snap)
	}
}
