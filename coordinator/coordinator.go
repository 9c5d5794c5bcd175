package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/icodeforyou/solarforecast-ml/database"
	"github.com/icodeforyou/solarforecast-ml/hours"
	"github.com/icodeforyou/solarforecast-ml/profile"
	"github.com/icodeforyou/solarforecast-ml/store"
	"github.com/icodeforyou/solarforecast-ml/types"
	"github.com/icodeforyou/solarforecast-ml/weather"
	"golang.org/x/sync/errgroup"
)

const (
	noProduction = "no production yet"
	noProfile    = "no profile data"
)

var ErrTooFewForecasts = errors.New("weather forecast has less than two days")

type Weather interface {
	Daily(ctx context.Context) ([]types.WeatherEntry, error)
	Hourly(ctx context.Context) ([]types.WeatherEntry, error)
	Method() weather.Method
	Provider() string
}

type Sensors interface {
	Snapshot(ctx context.Context) types.SensorSnapshot
	Yield(ctx context.Context) (float64, error)
	HasPower() bool
	Power(ctx context.Context) (float64, error)
	HasConsumption() bool
	Consumption(ctx context.Context) (float64, error)
}

type Sun interface {
	IsNight(ctx context.Context, now time.Time) bool
}

type Store interface {
	LoadWeights(ctx context.Context, defaults types.ModelState) (types.ModelState, error)
	SaveWeights(ctx context.Context, state types.ModelState) error
	LoadHistory(ctx context.Context) (types.History, error)
	SaveHistory(ctx context.Context, h types.History) error
	LoadProfile(ctx context.Context) (types.HourlyProfile, bool, error)
	SaveProfile(ctx context.Context, p types.HourlyProfile) error
}

type Notifier interface {
	Notify(ctx context.Context, title, message, id string) error
}

type LearningLog interface {
	SaveLearning(ctx context.Context, row database.LearningLogRow) error
}

type NotifyOptions struct {
	Startup            bool
	Forecast           bool
	Learning           bool
	SuccessfulLearning bool
}

type Options struct {
	// Used until a learned base capacity has been stored.
	BaseCapacity   float64
	Hourly         bool
	SensorLearning bool
	LearningHour   int
	LearningMinute int
	Notify         NotifyOptions
	// Recalibrate the base capacity from the measured yields after learning.
	CalibrateCapacity bool
}

// Listener receives the data bundle after every forecast cycle.
type Listener func(types.Bundle)

type Diagnostics struct {
	LastUpdate             time.Time          `json:"last_update"`
	LastForecastDate       string             `json:"last_forecast_date,omitempty"`
	LastSuccessfulLearning *time.Time         `json:"last_successful_learning,omitempty"`
	LastDayErrorKWh        *float64           `json:"last_day_error_kwh,omitempty"`
	BaseCapacity           float64            `json:"base_capacity"`
	Weights                map[string]float64 `json:"weights"`
	ForecastMethod         string             `json:"forecast_method"`
	WeatherProvider        string             `json:"weather_provider"`
	AutarkyToday           *float64           `json:"autarky_today,omitempty"`
	ProductionWindow       string             `json:"production_window"`
	PeakWindow             string             `json:"peak_window"`
	NextHourKWh            float64            `json:"next_hour_kwh"`
	HistoryDays            int                `json:"history_days"`
	LastError              string             `json:"last_error,omitempty"`
}

// Coordinator owns the model state. Every exported operation runs in one
// critical section; the unexported helpers expect the lock to be held.
type Coordinator struct {
	logger      *slog.Logger
	weather     Weather
	sensors     Sensors
	sun         Sun
	store       Store
	notifier    Notifier
	learningLog LearningLog
	opts        Options
	now         func() time.Time

	mu               sync.Mutex
	state            types.ModelState
	history          types.History
	profile          types.HourlyProfile
	lastForecastDate string
	lastUpdate       time.Time
	lastLearning     *time.Time
	lastDayError     *float64
	lastError        string
	accuracy         float64
	averageYield     float64
	autarky          *float64
	productionWindow string
	peakWindow       string
	nextHour         float64
	data             types.Bundle
	changed          bool

	listenersMu sync.Mutex
	listeners   []Listener
}

func New(
	logger *slog.Logger,
	w Weather,
	sensors Sensors,
	sun Sun,
	store Store,
	notifier Notifier,
	learningLog LearningLog,
	opts Options,
) *Coordinator {
	return &Coordinator{
		logger:      logger.With(slog.String("module", "coordinator")),
		weather:     w,
		sensors:     sensors,
		sun:         sun,
		store:       store,
		notifier:    notifier,
		learningLog: learningLog,
		opts:        opts,
		now:         time.Now,
		state: types.ModelState{
			Weights:      types.DefaultWeights(),
			BaseCapacity: opts.BaseCapacity,
		},
		history:          make(types.History),
		profile:          types.UniformProfile(),
		productionWindow: noProduction,
		peakWindow:       noProfile,
	}
}

func (c *Coordinator) AddListener(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Load restores weights, history and profile. The artifacts are loaded
// independently; a corrupt one is replaced by defaults without affecting the
// others. Only storage read errors are returned.
func (c *Coordinator) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	defaults := types.ModelState{Weights: types.DefaultWeights(), BaseCapacity: c.opts.BaseCapacity}
	var (
		state   types.ModelState
		history types.History
		prof    types.HourlyProfile
		hasProf bool
	)

	var g errgroup.Group
	g.Go(func() (err error) {
		state, err = c.store.LoadWeights(ctx, defaults)
		return c.loadFailed(err, "could not load weights, using defaults")
	})
	g.Go(func() (err error) {
		history, err = c.store.LoadHistory(ctx)
		return c.loadFailed(err, "could not load history, starting empty")
	})
	g.Go(func() (err error) {
		prof, hasProf, err = c.store.LoadProfile(ctx)
		return c.loadFailed(err, "could not load hourly profile, using uniform profile")
	})
	err := g.Wait()

	c.state = state
	if c.state.BaseCapacity <= 0 {
		c.state = defaults
	}
	c.history = history
	if c.history == nil {
		c.history = make(types.History)
	}
	if hasProf {
		c.setProfile(prof)
	} else {
		c.profile = types.UniformProfile()
		c.peakWindow = noProfile
	}

	c.refreshStats()
	c.restoreLastData()
	c.lastUpdate = c.now()

	c.logger.Info("state loaded",
		slog.Float64("base_capacity", c.state.BaseCapacity),
		slog.Float64("weight_base", c.state.Weights.Base),
		slog.Int("history_days", len(c.history)),
		slog.Bool("learned_profile", hasProf))

	if c.opts.Notify.Startup {
		c.notify(ctx, "Solar Forecast ML started",
			fmt.Sprintf("Base capacity: %.2f kWh", c.state.BaseCapacity), idStart)
	}

	return err
}

// loadFailed logs err and drops it when the artifact itself is corrupt.
func (c *Coordinator) loadFailed(err error, msg string) error {
	if err == nil {
		return nil
	}
	c.logger.Warn(msg, slog.Any("error", err))
	if errors.Is(err, store.ErrCorrupt) {
		return nil
	}
	return err
}

// restoreLastData shows the most recent prediction until the first forecast.
func (c *Coordinator) restoreLastData() {
	now := c.now()
	rec, ok := c.history[hours.Date(now)]
	if !ok || !rec.HasPrediction() {
		rec, ok = c.history[hours.Yesterday(now)]
	}
	if ok && rec.HasPrediction() {
		c.data.Today = rec.Predicted
		c.data.Tomorrow = rec.PredictedTomorrow
	}
	c.data.Accuracy = roundAccuracy(c.accuracy)
	c.data.AverageYield30Days = c.averageYield
}

// run is the error boundary of every exported operation: it holds the
// lock, turns a panic into an error and publishes changed data after the
// lock is released.
func (c *Coordinator) run(ctx context.Context, op string, fn func(context.Context) error) (err error) {
	c.mu.Lock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", op, r)
			c.logger.Error("unexpected failure", slog.String("operation", op),
				slog.Any("error", err), slog.String("stack", string(debug.Stack())))
		}
		if err != nil {
			c.lastError = fmt.Sprintf("%s: %v", op, err)
		}
		publish, bundle := c.changed, c.data
		c.changed = false
		c.mu.Unlock()

		if publish {
			c.publish(bundle)
		}
	}()

	return fn(ctx)
}

func (c *Coordinator) publish(b types.Bundle) {
	c.listenersMu.Lock()
	listeners := append([]Listener(nil), c.listeners...)
	c.listenersMu.Unlock()

	for _, l := range listeners {
		l(b)
	}
}

// reloadHistory replaces the in-memory history with the stored one, unless
// the stored one cannot be read.
func (c *Coordinator) reloadHistory(ctx context.Context) {
	h, err := c.store.LoadHistory(ctx)
	if err != nil {
		c.logger.Warn("could not reload history, keeping the one in memory", slog.Any("error", err))
		return
	}
	c.history = h
}

func (c *Coordinator) saveHistory(ctx context.Context) error {
	if err := c.store.SaveHistory(ctx, c.history); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}

func (c *Coordinator) setProfile(p types.HourlyProfile) {
	c.profile = p
	if w, ok := profile.PeakWindow(p); ok {
		c.peakWindow = w
	} else {
		c.peakWindow = noProfile
	}
}

// Data returns the latest data bundle.
func (c *Coordinator) Data() types.Bundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

func (c *Coordinator) Profile() types.HourlyProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile.Clone()
}

func (c *Coordinator) History() types.History {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Clone()
}

func (c *Coordinator) Diagnostics() Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := Diagnostics{
		LastUpdate:       c.lastUpdate,
		LastForecastDate: c.lastForecastDate,
		BaseCapacity:     c.state.BaseCapacity,
		Weights:          c.state.Weights.Map(),
		ForecastMethod:   string(c.weather.Method()),
		WeatherProvider:  c.weather.Provider(),
		ProductionWindow: c.productionWindow,
		PeakWindow:       c.peakWindow,
		NextHourKWh:      c.nextHour,
		HistoryDays:      len(c.history),
		LastError:        c.lastError,
	}
	if d.ForecastMethod == "" {
		d.ForecastMethod = "undetected"
	}
	if c.lastLearning != nil {
		t := *c.lastLearning
		d.LastSuccessfulLearning = &t
	}
	if c.lastDayError != nil {
		v := *c.lastDayError
		d.LastDayErrorKWh = &v
	}
	if c.autarky != nil {
		v := *c.autarky
		d.AutarkyToday = &v
	}
	return d
}
