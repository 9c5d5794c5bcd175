package predict

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/icodeforyou/solarforecast-ml/types"
)

const (
	// Rain sensor readings above this value halve the prediction.
	rainThreshold = 0.1
	rainPenalty   = 0.5
)

type DayInput struct {
	Entry        types.WeatherEntry
	Sensors      types.SensorSnapshot
	Weights      types.Weights
	BaseCapacity float64
	IsToday      bool
	// LateNight is true when it is night and past the late evening cutoff.
	LateNight bool
}

// PredictDay estimates the yield in kWh of the day described by in.Entry.
// It never fails, an unexpected error is logged and yields 0.
func PredictDay(logger *slog.Logger, in DayInput) (kwh float64) {
	if in.IsToday && in.LateNight {
		return 0.0
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("day prediction failed", slog.Any("error", fmt.Errorf("%v", r)))
			kwh = 0.0
		}
	}()

	pred := in.BaseCapacity * DailyWeatherFactor(in.Entry) * in.Weights.Base

	for _, key := range types.SensorWeightKeys {
		if v, ok := in.Sensors.Value(key); ok {
			pred += v * in.Weights.Get(key)
		}
	}

	if rain, ok := in.Sensors.Value(types.SensorRain); ok && rain > rainThreshold {
		pred *= rainPenalty
	}

	if fs, ok := in.Sensors.Value(types.SensorFS); ok && in.IsToday {
		blend := in.Weights.FS
		pred = pred*(1-blend) + fs*blend
	}

	return nonNegative(pred)
}

type HourInput struct {
	Hour     int
	Entry    types.WeatherEntry
	DayTotal float64
	Profile  types.HourlyProfile
	Daylight bool
}

// PredictHour estimates the yield in kWh of a single hour from the day
// total, the learned share of that hour and the hourly weather.
func PredictHour(logger *slog.Logger, in HourInput) (kwh float64) {
	if !in.Daylight || in.DayTotal <= 0 || len(in.Profile) == 0 {
		return 0.0
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("hour prediction failed", slog.Any("error", fmt.Errorf("%v", r)))
			kwh = 0.0
		}
	}()

	ratio, ok := in.Profile[in.Hour]
	if !ok {
		return 0.0
	}

	return nonNegative(in.DayTotal * ratio * HourlyWeatherFactor(in.Entry))
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0.0
	}
	return v
}
