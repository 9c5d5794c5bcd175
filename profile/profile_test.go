package profile

import (
	"fmt"
	"testing"

	"github.com/icodeforyou/solarforecast-ml/hours"
	"github.com/icodeforyou/solarforecast-ml/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(actual float64, hourly map[string]float64) *types.DayRecord {
	r := &types.DayRecord{Predicted: actual, HourlyData: hourly}
	if actual > 0 {
		r.SetActual(actual)
	}
	return r
}

func TestBuildNormalizes(t *testing.T) {
	history := types.History{
		"2025-06-01": day(10, map[string]float64{"10": 2, "11": 5, "12": 3}),
		"2025-06-02": day(8, map[string]float64{"10": 2, "11": 4, "12": 2}),
		"2025-06-03": day(12, map[string]float64{"10": 3, "11": 6, "12": 3}),
	}

	p, days, err := Build(history)
	require.NoError(t, err)
	assert.Equal(t, 3, days)
	assert.Len(t, p, 24)
	assert.InDelta(t, 1.0, p.Sum(), 1e-9)

	// medians: h10 = 0.25, h11 = 0.5, h12 = 0.25
	assert.InDelta(t, 0.25, p[10], 1e-9)
	assert.InDelta(t, 0.5, p[11], 1e-9)
	assert.InDelta(t, 0.25, p[12], 1e-9)
	assert.Equal(t, 0.0, p[0])
}

func TestBuildMedianResistsOutliers(t *testing.T) {
	history := types.History{
		"2025-06-01": day(10, map[string]float64{"12": 5, "13": 5}),
		"2025-06-02": day(10, map[string]float64{"12": 5, "13": 5}),
		"2025-06-03": day(10, map[string]float64{"12": 9.5, "13": 0.5}),
	}

	p, _, err := Build(history)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p[12], 1e-9)
	assert.InDelta(t, 0.5, p[13], 1e-9)
}

func TestBuildSkipsUnusableDays(t *testing.T) {
	history := types.History{
		"2025-06-01": day(0, map[string]float64{"12": 5}),
		"2025-06-02": day(10, nil),
		"2025-06-03": {Predicted: 5},
	}

	_, days, err := Build(history)
	assert.ErrorIs(t, err, ErrNoQualifyingDays)
	assert.Equal(t, 0, days)
}

func TestBuildUniformWhenAllZero(t *testing.T) {
	history := types.History{
		"2025-06-01": day(10, map[string]float64{"12": 0}),
	}

	p, days, err := Build(history)
	require.NoError(t, err)
	assert.Equal(t, 1, days)
	for h := range 24 {
		assert.Equal(t, 1.0/24, p[h])
	}
}

func TestBuildCapsDays(t *testing.T) {
	history := types.History{}
	date := "2025-01-01"
	for i := range MaxDays + 20 {
		// the oldest days put everything into hour 6, the newest into hour 12
		hour := "12"
		if i < 20 {
			hour = "6"
		}
		history[date] = day(10, map[string]float64{hour: 10})
		date = hours.AddDays(date, 1)
	}

	p, days, err := Build(history)
	require.NoError(t, err)
	assert.Equal(t, MaxDays, days)
	assert.InDelta(t, 1.0, p[12], 1e-9)
	assert.Equal(t, 0.0, p[6])
}

func TestBuildProfileSumsToOne(t *testing.T) {
	history := types.History{}
	date := "2025-05-01"
	for i := range 30 {
		hourly := map[string]float64{}
		total := 0.0
		for h := 6; h < 20; h++ {
			kwh := float64((h*7+i*3)%11) * 0.3
			hourly[fmt.Sprint(h)] = kwh
			total += kwh
		}
		history[date] = day(total, hourly)
		date = hours.AddDays(date, 1)
	}

	p, _, err := Build(history)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p.Sum(), 1e-9)
	assert.NoError(t, p.Validate())
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
}

func TestWindows(t *testing.T) {
	w, ok := ProductionWindow(map[string]float64{"5": 0, "7": 0.2, "13": 1.1, "19": 0.1, "20": 0})
	assert.True(t, ok)
	assert.Equal(t, "07:00 - 20:00", w)

	_, ok = ProductionWindow(map[string]float64{"5": 0})
	assert.False(t, ok)

	w, ok = PeakWindow(types.HourlyProfile{11: 0.2, 12: 0.3, 13: 0.3})
	assert.True(t, ok)
	assert.Equal(t, "12:00 - 13:00", w)

	_, ok = PeakWindow(types.HourlyProfile{})
	assert.False(t, ok)
}
