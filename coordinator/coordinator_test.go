package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/icodeforyou/solarforecast-ml/store"
	"github.com/icodeforyou/solarforecast-ml/types"
	"github.com/icodeforyou/solarforecast-ml/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func (h *harness) seedHistory(t *testing.T, history types.History) {
	t.Helper()
	require.NoError(t, h.store.SaveHistory(context.Background(), history))
}

func TestFreshCoordinator(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.c.Load(context.Background()))

	p := h.c.Profile()
	require.Len(t, p, types.HoursPerDay)
	for hour := range types.HoursPerDay {
		assert.Equal(t, 1.0/24, p[hour])
	}
	assert.Equal(t, types.Bundle{}, h.c.Data())
	assert.Equal(t, []string{idStart}, h.notifier.ids)

	d := h.c.Diagnostics()
	assert.Equal(t, 10.0, d.BaseCapacity)
	assert.Equal(t, 1.0, d.Weights[types.WeightBase])
	assert.Equal(t, noProfile, d.PeakWindow)
}

func TestLoadRestoresLastData(t *testing.T) {
	h := newHarness(t, false)
	h.seedHistory(t, types.History{
		"2025-05-31": {Predicted: 6.5, PredictedTomorrow: 7.25, Actual: ptr(6)},
	})
	require.NoError(t, h.c.Load(context.Background()))

	d := h.c.Data()
	assert.Equal(t, 6.5, d.Today)
	assert.Equal(t, 7.25, d.Tomorrow)
	assert.Equal(t, 6.0, d.AverageYield30Days)
}

func TestLoadSurvivesCorruptArtifact(t *testing.T) {
	h := newHarness(t, false)
	h.blobs.data[store.ProfileArtifact] = []byte("{broken")
	h.blobs.data[store.WeightsArtifact] = []byte(`{"base": 1.2, "base_capacity": 12}`)

	require.NoError(t, h.c.Load(context.Background()))

	d := h.c.Diagnostics()
	assert.Equal(t, 12.0, d.BaseCapacity)
	assert.Equal(t, 1.2, d.Weights[types.WeightBase])
	assert.Len(t, h.c.Profile(), types.HoursPerDay)
	assert.Equal(t, noProfile, d.PeakWindow)
}

func TestLoadSurvivesCorruptHistory(t *testing.T) {
	h := newHarness(t, false)
	h.blobs.data[store.HistoryArtifact] = []byte("{broken")
	h.blobs.data[store.WeightsArtifact] = []byte("{broken")

	require.NoError(t, h.c.Load(context.Background()))
	assert.Empty(t, h.c.History())
	assert.Equal(t, 10.0, h.c.Diagnostics().BaseCapacity)

	require.NoError(t, h.c.Forecast(context.Background()))
	assert.Len(t, h.c.History(), 1)
}

func TestLoadReportsReadError(t *testing.T) {
	h := newHarness(t, false)
	h.blobs.getErr = errors.New("disk gone")

	err := h.c.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrCorrupt)
	assert.Equal(t, 10.0, h.c.Diagnostics().BaseCapacity)
}

func TestForecast(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.c.Load(context.Background()))

	var published []types.Bundle
	h.c.AddListener(func(b types.Bundle) { published = append(published, b) })

	require.NoError(t, h.c.Forecast(context.Background()))

	d := h.c.Data()
	assert.Equal(t, 10.0, d.Today)
	assert.Equal(t, 1.0, d.Tomorrow)
	require.Len(t, published, 1)
	assert.Equal(t, d, published[0])

	stored, err := h.store.LoadHistory(context.Background())
	require.NoError(t, err)
	require.Contains(t, stored, "2025-06-01")
	assert.Equal(t, 10.0, stored["2025-06-01"].Predicted)
	assert.InDelta(t, 1.0, stored["2025-06-01"].PredictedTomorrow, 1e-9)
	assert.Equal(t, "2025-06-01", h.c.Diagnostics().LastForecastDate)
}

func TestReforecastIsIdempotent(t *testing.T) {
	h := newHarness(t, false)
	h.sensors.snapshot = types.SensorSnapshot{types.SensorTemp: 20}
	require.NoError(t, h.c.Load(context.Background()))

	require.NoError(t, h.c.Forecast(context.Background()))
	first := h.c.Data()
	firstHistory := h.c.History()

	require.NoError(t, h.c.Forecast(context.Background()))
	assert.Equal(t, first, h.c.Data())
	assert.Equal(t, firstHistory, h.c.History())
	assert.Len(t, h.c.History(), 1)
}

func TestPredictionsNotOverwrittenIntraday(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.c.Load(context.Background()))
	require.NoError(t, h.c.Forecast(context.Background()))

	h.weather.daily[0] = entry("rainy", 100, 5)
	require.NoError(t, h.c.Forecast(context.Background()))

	assert.Equal(t, 10.0, h.c.History()["2025-06-01"].Predicted)
	assert.Less(t, h.c.Data().Today, 10.0)
}

func TestForecastNeedsTwoDays(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.c.Load(context.Background()))
	h.weather.daily = h.weather.daily[:1]

	err := h.c.Forecast(context.Background())
	assert.ErrorIs(t, err, ErrTooFewForecasts)
	assert.Empty(t, h.c.History())
	assert.Contains(t, h.c.Diagnostics().LastError, "forecast")
}

func TestLateNightZeroesToday(t *testing.T) {
	h := newHarness(t, true)
	h.now = time.Date(2025, time.June, 1, 22, 0, 0, 0, time.Local)
	require.NoError(t, h.c.Load(context.Background()))
	require.NoError(t, h.c.Forecast(context.Background()))

	assert.Equal(t, 0.0, h.c.Data().Today)
	assert.Greater(t, h.c.Data().Tomorrow, 0.0)
}

func TestNightBeforeCutoffStillForecastsToday(t *testing.T) {
	h := newHarness(t, true)
	h.now = time.Date(2025, time.June, 1, 5, 0, 0, 0, time.Local)
	require.NoError(t, h.c.Load(context.Background()))
	require.NoError(t, h.c.Forecast(context.Background()))

	assert.Equal(t, 10.0, h.c.Data().Today)
}

func TestPanicIsContained(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.c.Load(context.Background()))
	h.weather.panics = true

	err := h.c.Forecast(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	// the lock was released
	h.weather.panics = false
	assert.NoError(t, h.c.Forecast(context.Background()))
}

func TestRefreshForecastsOncePerDay(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.c.Load(context.Background()))

	require.NoError(t, h.c.Refresh(context.Background()))
	require.NoError(t, h.c.Refresh(context.Background()))
	assert.Equal(t, 1, h.weather.dailyCalls)

	h.now = h.now.AddDate(0, 0, 1)
	require.NoError(t, h.c.Refresh(context.Background()))
	assert.Equal(t, 2, h.weather.dailyCalls)
}

func TestFailingRefreshTurnsStatusStale(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.c.Load(context.Background()))
	h.weather.dailyErr = errors.New("weather down")

	for i := 1; i <= 4; i++ {
		h.now = h.now.Add(time.Hour)
		require.Error(t, h.c.Refresh(context.Background()))
		assert.Contains(t, h.c.Status(), fmt.Sprintf("STALE | last update %d.0h ago", i))
	}

	h.weather.dailyErr = nil
	h.now = h.now.Add(time.Hour)
	require.NoError(t, h.c.Refresh(context.Background()))
	assert.Contains(t, h.c.Status(), "OK | last update 0.0h ago")
}

func TestNextHourWithEmptyDailyForecast(t *testing.T) {
	h := newHarness(t, false)
	h.weather.daily = nil
	require.NoError(t, h.c.Load(context.Background()))

	err := h.c.PredictNextHour(context.Background())
	assert.ErrorIs(t, err, weather.ErrNoForecast)
	assert.Zero(t, h.c.Diagnostics().NextHourKWh)
}

func TestNextHourPrediction(t *testing.T) {
	h := newHarness(t, false)
	h.c.opts.Hourly = true
	h.weather.hourly = []types.WeatherEntry{entry("sunny", 50, 0)}
	require.NoError(t, h.c.Load(context.Background()))

	require.NoError(t, h.c.Refresh(context.Background()))

	// 10 kWh * 1/24 * (1 - 0.5)
	assert.InDelta(t, 10.0/24*0.5, h.c.Diagnostics().NextHourKWh, 1e-3)
}

func TestCollectHourly(t *testing.T) {
	h := newHarness(t, false)
	h.sensors.hasPower = true
	h.sensors.power = 1500
	require.NoError(t, h.c.Load(context.Background()))

	require.NoError(t, h.c.CollectHourly(context.Background()))
	h.sensors.power = 1800
	require.NoError(t, h.c.CollectHourly(context.Background()))

	stored, err := h.store.LoadHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"10": 1.8}, stored["2025-06-01"].HourlyData)
	assert.Equal(t, "10:00 - 11:00", h.c.Diagnostics().ProductionWindow)
}

func TestCollectHourlyWithoutPowerSensor(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.c.Load(context.Background()))
	require.NoError(t, h.c.CollectHourly(context.Background()))
	assert.Empty(t, h.c.History())
}

func TestStatus(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.c.Load(context.Background()))

	assert.Equal(t, "OK | last update 0.0h ago | next learning in 13h | accuracy 0%", h.c.Status())

	h.now = h.now.Add(2 * time.Hour)
	assert.Contains(t, h.c.Status(), "STALE | last update 2.0h ago")
}
