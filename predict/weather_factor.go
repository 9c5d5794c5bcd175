package predict

import (
	"strings"

	"github.com/icodeforyou/solarforecast-ml/types"
)

// DefaultWeatherFactor applies to conditions missing from WeatherFactors.
const DefaultWeatherFactor = 0.4

// WeatherFactors maps Home Assistant weather conditions to the expected
// fraction of a clear-sky yield.
var WeatherFactors = map[string]float64{
	"sunny":           1.0,
	"windy":           0.8,
	"partlycloudy":    0.7,
	"windy-variant":   0.6,
	"cloudy":          0.4,
	"exceptional":     0.3,
	"fog":             0.3,
	"rainy":           0.2,
	"lightning":       0.2,
	"lightning-rainy": 0.15,
	"pouring":         0.1,
	"snowy":           0.1,
	"snowy-rainy":     0.1,
	"hail":            0.1,
	"clear-night":     0.0,
}

func conditionFactor(condition string) float64 {
	if f, ok := WeatherFactors[strings.ToLower(strings.TrimSpace(condition))]; ok {
		return f
	}
	return DefaultWeatherFactor
}

// DailyWeatherFactor is the condition factor attenuated by cloud coverage
// (never below half of it) and halved on any precipitation.
func DailyWeatherFactor(e types.WeatherEntry) float64 {
	wf := conditionFactor(e.Condition)
	if e.CloudCoverage.IsValid() {
		wf *= 0.5 + 0.5*(1-cloudFraction(e.CloudCoverage.Value()))
	}
	if e.Precipitation.ValueOrDefault(0) > 0 {
		wf *= 0.5
	}
	return wf
}

// HourlyWeatherFactor attenuates linearly with cloud coverage, down to zero at full cover.
func HourlyWeatherFactor(e types.WeatherEntry) float64 {
	wf := conditionFactor(e.Condition)
	if e.CloudCoverage.IsValid() {
		wf *= 1 - cloudFraction(e.CloudCoverage.Value())
	}
	return wf
}

func cloudFraction(coverage float64) float64 {
	switch {
	case coverage < 0:
		return 0
	case coverage > 100:
		return 1
	}
	return coverage / 100.0
}
