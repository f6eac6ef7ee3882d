package ingest

const (
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagHumidityInvalid    = "humidity_invalid"
	FlagPressureOutOfRange = "pressure_out_of_range"
)

// QualityFlags reports values that are physically unlikely. Flagged readings
// are still recorded; temperature acceptance is decided by the station manager.
func QualityFlags(t Telemetry) []string {
	var flags []string

	if t.Temperature != nil && *t.Temperature > 60 {
		flags = append(flags, FlagTempOutOfRange)
	}

	if t.Humidity != nil {
		if *t.Humidity < 0 || *t.Humidity > 100 {
			flags = append(flags, FlagHumidityInvalid)
		}
	}

	if t.AirPressure != nil {
		if *t.AirPressure < 850 || *t.AirPressure > 1100 {
			flags = append(flags, FlagPressureOutOfRange)
		}
	}

	return flags
}
