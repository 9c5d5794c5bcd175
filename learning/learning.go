package learning

import (
	"errors"
	"fmt"
	"math"

	"github.com/icodeforyou/solarforecast-ml/convert"
	"github.com/icodeforyou/solarforecast-ml/types"
)

const (
	LearningRate = 0.01
	// Window of recent days with a measured yield used for the statistics.
	StatsWindowDays = 30

	avgSunHours      = 3.5
	systemEfficiency = 0.85
)

// ErrNoLearningData means the day lacks a prediction or a measurement.
// It is an expected gap, e.g. the first day after installation.
var ErrNoLearningData = errors.New("no predicted and actual yield to learn from")

type Update struct {
	Predicted float64
	Actual    float64
	// Error is actual minus predicted in kWh.
	Error  float64
	Before types.Weights
	After  types.Weights
}

// UpdateWeights corrects the base multiplier proportionally to the
// relative prediction error of rec.
func UpdateWeights(w types.Weights, rec *types.DayRecord, baseCapacity float64) (Update, error) {
	if rec == nil {
		return Update{}, ErrNoLearningData
	}
	predicted, actual := rec.Predicted, rec.ActualOrZero()
	if predicted <= 0 || actual <= 0 {
		return Update{}, fmt.Errorf("predicted %.2f, actual %.2f: %w", predicted, actual, ErrNoLearningData)
	}
	if baseCapacity <= 0 {
		return Update{}, fmt.Errorf("invalid base capacity %f", baseCapacity)
	}

	u := Update{
		Predicted: predicted,
		Actual:    actual,
		Error:     actual - predicted,
		Before:    w,
	}
	w.Base += LearningRate * (u.Error / baseCapacity)
	u.After = w.Clamp()
	return u, nil
}

// AdjustSensorWeights nudges the sensor coefficients with a normalized
// least-mean-squares step on the features recorded with the prediction.
func AdjustSensorWeights(w types.Weights, rec *types.DayRecord, errKWh float64) types.Weights {
	if rec == nil || len(rec.Features) == 0 {
		return w
	}
	norm := 0.0
	for _, key := range types.SensorWeightKeys {
		if x, ok := rec.Features[key]; ok {
			norm += x * x
		}
	}
	if norm == 0 {
		return w
	}
	for _, key := range types.SensorWeightKeys {
		if x, ok := rec.Features[key]; ok {
			w.Set(key, w.Get(key)+LearningRate*errKWh*x/norm)
		}
	}
	return w.Clamp()
}

// Accuracy is 100 minus the mean absolute percentage error of the most
// recent days with a measured yield, never below 0.
func Accuracy(h types.History) (float64, bool) {
	recent := h.Recent(StatsWindowDays)
	if len(recent) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, r := range recent {
		actual := r.ActualOrZero()
		sum += math.Abs(actual-r.Predicted) / actual * 100
	}
	return math.Max(0, 100-sum/float64(len(recent))), true
}

// AverageYield is the mean measured yield of the most recent days.
func AverageYield(h types.History) (float64, bool) {
	recent := h.Recent(StatsWindowDays)
	if len(recent) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, r := range recent {
		sum += r.ActualOrZero()
	}
	return convert.TwoDecimals(sum / float64(len(recent))), true
}

// Autarky is the percentage of the consumption covered by the solar yield.
func Autarky(yield, consumption float64) float64 {
	if consumption <= 0 {
		return 100.0
	}
	return math.Min(yield, consumption) / consumption * 100
}

// CalibrateCapacity moves the base capacity to the mean of all measured
// yields, unless that mean is implausibly low.
func CalibrateCapacity(h types.History, current float64) (float64, bool) {
	sum, n := 0.0, 0
	for _, r := range h {
		if r != nil && r.ActualOrZero() > 0 {
			sum += r.ActualOrZero()
			n++
		}
	}
	if n == 0 {
		return current, false
	}
	avg := sum / float64(n)
	if avg <= current*0.5 {
		return current, false
	}
	return avg, avg != current
}

// InitialBaseCapacity estimates the clear weather daily yield of a plant
// of kwp peak power, fallback when the size is unknown.
func InitialBaseCapacity(kwp, fallback float64) float64 {
	if kwp <= 0 || math.IsNaN(kwp) {
		return fallback
	}
	return convert.Clamp(kwp*avgSunHours*systemEfficiency, kwp*2.0, kwp*5.0)
}
