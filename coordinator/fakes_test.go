package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/icodeforyou/solarforecast-ml/database"
	"github.com/icodeforyou/solarforecast-ml/sensor"
	"github.com/icodeforyou/solarforecast-ml/store"
	"github.com/icodeforyou/solarforecast-ml/types"
	"github.com/icodeforyou/solarforecast-ml/types/maybe"
	"github.com/icodeforyou/solarforecast-ml/weather"
)

type fakeWeather struct {
	daily      []types.WeatherEntry
	dailyErr   error
	hourly     []types.WeatherEntry
	panics     bool
	dailyCalls int
}

func (f *fakeWeather) Daily(context.Context) ([]types.WeatherEntry, error) {
	f.dailyCalls++
	if f.panics {
		panic("weather exploded")
	}
	return f.daily, f.dailyErr
}

func (f *fakeWeather) Hourly(context.Context) ([]types.WeatherEntry, error) {
	if len(f.hourly) == 0 {
		return nil, weather.ErrNoForecast
	}
	return f.hourly, nil
}

func (f *fakeWeather) Method() weather.Method { return weather.MethodService }
func (f *fakeWeather) Provider() string       { return "generic" }

type fakeSensors struct {
	snapshot    types.SensorSnapshot
	yield       float64
	yieldErr    error
	power       float64
	hasPower    bool
	consumption float64
}

func (f *fakeSensors) Snapshot(context.Context) types.SensorSnapshot { return f.snapshot }
func (f *fakeSensors) Yield(context.Context) (float64, error)        { return f.yield, f.yieldErr }
func (f *fakeSensors) HasPower() bool                                { return f.hasPower }
func (f *fakeSensors) HasConsumption() bool                          { return f.consumption > 0 }

func (f *fakeSensors) Power(context.Context) (float64, error) {
	if !f.hasPower {
		return 0, sensor.ErrUnavailable
	}
	return f.power, nil
}

func (f *fakeSensors) Consumption(context.Context) (float64, error) {
	return f.consumption, nil
}

type fakeSun struct{ night bool }

func (f fakeSun) IsNight(context.Context, time.Time) bool { return f.night }

type memBlobs struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func (m *memBlobs) GetArtifact(_ context.Context, name string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	d, ok := m.data[name]
	return d, ok, nil
}

func (m *memBlobs) SaveArtifact(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = data
	return nil
}

type fakeNotifier struct {
	ids []string
}

func (f *fakeNotifier) Notify(_ context.Context, _, _, id string) error {
	f.ids = append(f.ids, id)
	return nil
}

type fakeLearningLog struct {
	rows []database.LearningLogRow
}

func (f *fakeLearningLog) SaveLearning(_ context.Context, row database.LearningLogRow) error {
	f.rows = append(f.rows, row)
	return nil
}

type harness struct {
	c        *Coordinator
	weather  *fakeWeather
	sensors  *fakeSensors
	blobs    *memBlobs
	store    *store.Store
	notifier *fakeNotifier
	log      *fakeLearningLog
	now      time.Time
}

func entry(condition string, cloud, precip float64) types.WeatherEntry {
	return types.WeatherEntry{
		Condition:     condition,
		CloudCoverage: maybe.Some(cloud),
		Precipitation: maybe.Some(precip),
	}
}

// newHarness builds a coordinator at 10:00 local time on 2025-06-01 with a
// base capacity of 10 kWh.
func newHarness(t *testing.T, night bool) *harness {
	t.Helper()
	h := &harness{
		weather: &fakeWeather{daily: []types.WeatherEntry{
			entry("sunny", 0, 0),
			entry("cloudy", 100, 2),
		}},
		sensors:  &fakeSensors{},
		blobs:    &memBlobs{data: map[string][]byte{}},
		notifier: &fakeNotifier{},
		log:      &fakeLearningLog{},
		now:      time.Date(2025, time.June, 1, 10, 0, 0, 0, time.Local),
	}
	h.store = store.New(slog.Default(), h.blobs, 100*365)
	h.c = New(slog.Default(), h.weather, h.sensors, fakeSun{night: night}, h.store, h.notifier, h.log, Options{
		BaseCapacity: 10,
		LearningHour: 23,
		Notify:       NotifyOptions{Startup: true, SuccessfulLearning: true},
	})
	h.c.now = func() time.Time { return h.now }
	return h
}
