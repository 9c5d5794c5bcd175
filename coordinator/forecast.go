package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/icodeforyou/solarforecast-ml/convert"
	"github.com/icodeforyou/solarforecast-ml/hours"
	"github.com/icodeforyou/solarforecast-ml/predict"
	"github.com/icodeforyou/solarforecast-ml/types"
	"github.com/icodeforyou/solarforecast-ml/weather"
)

// Hour from which "today" is no longer forecast when it is night.
const lateEveningHour = 21

// Forecast predicts today's and tomorrow's yield and records the
// predictions of the day.
func (c *Coordinator) Forecast(ctx context.Context) error {
	return c.run(ctx, "forecast", c.forecast)
}

// TriggerForecast is Forecast on user request.
func (c *Coordinator) TriggerForecast(ctx context.Context) error {
	c.logger.Info("manual forecast requested")
	return c.Forecast(ctx)
}

func (c *Coordinator) forecast(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			c.forecastFailed(ctx, err)
		}
	}()

	c.reloadHistory(ctx)

	entries, err := c.weather.Daily(ctx)
	if err != nil {
		return fmt.Errorf("fetching weather forecast: %w", err)
	}
	if len(entries) < 2 {
		return fmt.Errorf("got %d entries: %w", len(entries), ErrTooFewForecasts)
	}

	snapshot := c.sensors.Snapshot(ctx)
	now := c.now()
	lateNight := c.isLateNight(ctx, now)

	today := predict.PredictDay(c.logger, predict.DayInput{
		Entry:        entries[0],
		Sensors:      snapshot,
		Weights:      c.state.Weights,
		BaseCapacity: c.state.BaseCapacity,
		IsToday:      true,
		LateNight:    lateNight,
	})
	tomorrow := predict.PredictDay(c.logger, predict.DayInput{
		Entry:        entries[1],
		Sensors:      snapshot,
		Weights:      c.state.Weights,
		BaseCapacity: c.state.BaseCapacity,
	})

	date := hours.Date(now)
	rec := c.history.Ensure(date)
	if !rec.HasPrediction() {
		rec.Predicted = today
		rec.PredictedTomorrow = tomorrow
		if len(snapshot) > 0 {
			rec.Features = maps.Clone(map[string]float64(snapshot))
		}
		if err := c.saveHistory(ctx); err != nil {
			return err
		}
	} else {
		c.logger.Debug("predictions of the day already recorded", slog.String("date", date))
	}

	if c.lastForecastDate != date {
		c.productionWindow = noProduction
		c.autarky = nil
	}
	c.lastForecastDate = date
	c.lastUpdate = now
	c.data = types.Bundle{
		Today:              convert.TwoDecimals(today),
		Tomorrow:           convert.TwoDecimals(tomorrow),
		Accuracy:           roundAccuracy(c.accuracy),
		AverageYield30Days: c.averageYield,
	}
	c.changed = true

	c.logger.Info("forecast updated",
		slog.Float64("today", c.data.Today),
		slog.Float64("tomorrow", c.data.Tomorrow),
		slog.String("condition_today", entries[0].Condition),
		slog.Int("sensors", len(snapshot)))

	if c.opts.Notify.Forecast {
		c.notify(ctx, "Solar forecast",
			fmt.Sprintf("Today: %.1f kWh, tomorrow: %.1f kWh", today, tomorrow), idDaily)
	}
	return nil
}

func (c *Coordinator) isLateNight(ctx context.Context, now time.Time) bool {
	return now.In(hours.Location()).Hour() >= lateEveningHour && c.sun.IsNight(ctx, now)
}

func (c *Coordinator) forecastFailed(ctx context.Context, err error) {
	if isExpected(err) {
		c.logger.Warn("no forecast this cycle", slog.Any("error", err))
	} else {
		c.logger.Error("forecast failed", slog.Any("error", err))
	}
	if c.opts.Notify.Forecast {
		c.notify(ctx, "Solar forecast failed", fmt.Sprintf("Prediction failed: %v", err), idError)
	}
}

// isExpected tells a missing forecast, which is retried next cycle, from a fault.
func isExpected(err error) bool {
	return errors.Is(err, ErrTooFewForecasts) ||
		errors.Is(err, weather.ErrNoForecast) ||
		errors.Is(err, weather.ErrMethodUndetected) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Refresh runs the periodic update: a forecast when none was made today
// and, if enabled, the next hour prediction. The last update time only
// advances when the whole cycle succeeded, so repeated failures turn the
// status stale.
func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.run(ctx, "refresh", func(ctx context.Context) error {
		now := c.now()
		var errs []error
		if c.lastForecastDate != hours.Date(now) {
			errs = append(errs, c.forecast(ctx))
		}
		if c.opts.Hourly {
			errs = append(errs, c.predictNextHour(ctx))
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
		c.lastUpdate = now
		c.data.AverageYield30Days = c.averageYield
		c.changed = true
		return nil
	})
}

// PredictNextHour updates the yield expected in the coming hour.
func (c *Coordinator) PredictNextHour(ctx context.Context) error {
	return c.run(ctx, "next hour prediction", c.predictNextHour)
}

func (c *Coordinator) predictNextHour(ctx context.Context) error {
	entry, err := c.nextHourEntry(ctx)
	if err != nil {
		return err
	}

	now := c.now()
	next := now.Add(time.Hour)
	dayTotal := c.data.Today
	if hours.Date(next) != hours.Date(now) {
		dayTotal = c.data.Tomorrow
	}

	c.nextHour = convert.RoundFloat64(predict.PredictHour(c.logger, predict.HourInput{
		Hour:     next.In(hours.Location()).Hour(),
		Entry:    entry,
		DayTotal: dayTotal,
		Profile:  c.profile,
		Daylight: !c.sun.IsNight(ctx, next),
	}), 3)

	c.logger.Debug("next hour predicted", slog.Float64("kwh", c.nextHour))
	return nil
}

// nextHourEntry prefers the hourly forecast and falls back to today's entry.
func (c *Coordinator) nextHourEntry(ctx context.Context) (types.WeatherEntry, error) {
	hourly, err := c.weather.Hourly(ctx)
	if err == nil && len(hourly) > 0 {
		return hourly[0], nil
	}
	c.logger.Debug("no hourly forecast, using daily", slog.Any("error", err))

	daily, err := c.weather.Daily(ctx)
	if err != nil {
		return types.WeatherEntry{}, fmt.Errorf("fetching weather forecast: %w", err)
	}
	if len(daily) == 0 {
		return types.WeatherEntry{}, weather.ErrNoForecast
	}
	return daily[0], nil
}

func roundAccuracy(v float64) float64 {
	return convert.RoundFloat64(v, 1)
}
