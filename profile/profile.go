package profile

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/icodeforyou/solarforecast-ml/types"
)

// MaxDays is the number of most recent qualifying days a profile is built from.
const MaxDays = 60

var ErrNoQualifyingDays = errors.New("no day with actual yield and hourly data")

// Build derives the hourly production profile from history. Every hour gets
// the median of its share of the day's actual yield, then the medians are
// normalized to sum to 1. It returns the number of days used.
func Build(history types.History) (types.HourlyProfile, int, error) {
	ratios := make([][]float64, types.HoursPerDay)
	days := 0

	for _, date := range history.DatesDesc() {
		if days >= MaxDays {
			break
		}
		rec := history[date]
		if rec == nil || len(rec.HourlyData) == 0 {
			continue
		}
		total := rec.ActualOrZero()
		if total <= 0 {
			continue
		}

		for key, kwh := range rec.HourlyData {
			hour, err := strconv.Atoi(key)
			if err != nil || hour < 0 || hour >= types.HoursPerDay {
				continue
			}
			ratios[hour] = append(ratios[hour], kwh/total)
		}
		days++
	}

	if days == 0 {
		return nil, 0, ErrNoQualifyingDays
	}

	medians := make(types.HourlyProfile, types.HoursPerDay)
	for hour := range types.HoursPerDay {
		medians[hour] = Median(ratios[hour])
	}

	sum := medians.Sum()
	if sum <= 0 {
		return types.UniformProfile(), days, nil
	}

	for hour := range medians {
		medians[hour] /= sum
	}
	return medians, days, nil
}

// Median returns the median of values, 0 for an empty slice.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// PeakWindow formats the hour with the highest expected share, e.g. "12:00 - 13:00".
func PeakWindow(p types.HourlyProfile) (string, bool) {
	hour, ok := p.PeakHour()
	if !ok {
		return "", false
	}
	return FormatWindow(hour, hour), true
}

// ProductionWindow formats the span between the first and the last hour
// with non-zero output in a day's hourly data.
func ProductionWindow(hourlyData map[string]float64) (string, bool) {
	first, last := -1, -1
	for key, kwh := range hourlyData {
		hour, err := strconv.Atoi(key)
		if err != nil || kwh <= 0 {
			continue
		}
		if first < 0 || hour < first {
			first = hour
		}
		if hour > last {
			last = hour
		}
	}
	if first < 0 {
		return "", false
	}
	return FormatWindow(first, last), true
}

// FormatWindow formats the hours from the start of first to the end of last.
func FormatWindow(first, last int) string {
	return fmt.Sprintf("%02d:00 - %02d:00", first, last+1)
}
