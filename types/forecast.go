package types

import (
	"time"

	"github.com/icodeforyou/solarforecast-ml/types/maybe"
)

// WeatherEntry is one daily or hourly forecast entry of the weather source.
type WeatherEntry struct {
	Time          time.Time
	Condition     string
	CloudCoverage maybe.Maybe[float64] // 0-100 %
	Precipitation maybe.Maybe[float64]
}

const (
	SensorLux  = "lux"
	SensorTemp = "temp"
	SensorWind = "wind"
	SensorUV   = "uv"
	SensorRain = "rain"
	SensorFS   = "fs"
)

// SensorSnapshot holds the current values of the configured ambient sensors.
// Sensors that were unavailable are absent.
type SensorSnapshot map[string]float64

func (s SensorSnapshot) Value(key string) (float64, bool) {
	v, ok := s[key]
	return v, ok
}

// Bundle is the data published to the host after each forecast cycle.
type Bundle struct {
	Today              float64 `json:"heute"`
	Tomorrow           float64 `json:"morgen"`
	Accuracy           float64 `json:"genauigkeit"`
	AverageYield30Days float64 `json:"average_yield_30_days"`
}
