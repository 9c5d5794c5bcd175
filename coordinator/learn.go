package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/icodeforyou/solarforecast-ml/convert"
	"github.com/icodeforyou/solarforecast-ml/database"
	"github.com/icodeforyou/solarforecast-ml/hours"
	"github.com/icodeforyou/solarforecast-ml/learning"
	"github.com/icodeforyou/solarforecast-ml/profile"
)

// Learn runs the nightly cycle: it records today's actual yield, corrects
// the weights with yesterday's prediction error and rebuilds the hourly
// profile. Weights and history are saved even when there was nothing to
// learn.
func (c *Coordinator) Learn(ctx context.Context) error {
	return c.run(ctx, "learning", c.learn)
}

// TriggerLearning is Learn on user request.
func (c *Coordinator) TriggerLearning(ctx context.Context) error {
	c.logger.Info("manual learning requested")
	return c.Learn(ctx)
}

func (c *Coordinator) learn(ctx context.Context) error {
	c.logger.Info("starting learning cycle")
	now := c.now()

	c.reloadHistory(ctx)
	c.captureActual(ctx, hours.Date(now))

	yesterday := hours.Yesterday(now)
	learned := c.updateWeights(ctx, yesterday)

	c.refreshStats()
	c.data.Accuracy = roundAccuracy(c.accuracy)
	c.data.AverageYield30Days = c.averageYield
	c.changed = true

	if learned {
		c.rebuildProfile(ctx)
	}

	var errs []error
	if err := c.store.SaveWeights(ctx, c.state); err != nil {
		errs = append(errs, fmt.Errorf("saving weights: %w", err))
	}
	if err := c.saveHistory(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Coordinator) captureActual(ctx context.Context, date string) {
	actual, err := c.sensors.Yield(ctx)
	if err != nil {
		c.logger.Warn("could not read actual yield", slog.Any("error", err))
		return
	}
	if actual <= 0 {
		c.logger.Info("no yield today", slog.Float64("actual", actual))
		return
	}

	c.history.Ensure(date).SetActual(actual)
	c.logger.Info("actual yield recorded", slog.String("date", date), slog.Float64("kwh", actual))

	if !c.sensors.HasConsumption() {
		return
	}
	consumption, err := c.sensors.Consumption(ctx)
	if err != nil {
		c.logger.Warn("could not read consumption", slog.Any("error", err))
		c.autarky = nil
		return
	}
	autarky := convert.RoundFloat64(learning.Autarky(actual, consumption), 1)
	c.autarky = &autarky
}

// updateWeights learns from the record of date and reports whether the
// weights were corrected.
func (c *Coordinator) updateWeights(ctx context.Context, date string) bool {
	rec := c.history[date]
	u, err := learning.UpdateWeights(c.state.Weights, rec, c.state.BaseCapacity)
	if errors.Is(err, learning.ErrNoLearningData) {
		c.logger.Warn("skipping learning", slog.String("date", date), slog.Any("reason", err))
		return false
	}
	if err != nil {
		c.logger.Error("learning failed", slog.String("date", date), slog.Any("error", err))
		return false
	}

	weights := u.After
	if c.opts.SensorLearning {
		weights = learning.AdjustSensorWeights(weights, rec, u.Error)
	}
	c.state.Weights = weights

	if c.opts.CalibrateCapacity {
		if capacity, changed := learning.CalibrateCapacity(c.history, c.state.BaseCapacity); changed {
			c.logger.Info("base capacity calibrated",
				slog.Float64("before", c.state.BaseCapacity),
				slog.Float64("after", capacity))
			c.state.BaseCapacity = capacity
		}
	}

	now := c.now()
	errKWh := u.Error
	c.lastDayError = &errKWh
	c.lastLearning = &now

	c.logger.Info("weights updated",
		slog.String("date", date),
		slog.Float64("predicted", u.Predicted),
		slog.Float64("actual", u.Actual),
		slog.Float64("error", u.Error),
		slog.Float64("base_before", u.Before.Base),
		slog.Float64("base_after", c.state.Weights.Base))

	if c.learningLog != nil {
		err := c.learningLog.SaveLearning(ctx, database.LearningLogRow{
			Date:       date,
			Predicted:  u.Predicted,
			Actual:     u.Actual,
			Error:      u.Error,
			BaseBefore: u.Before.Base,
			BaseAfter:  c.state.Weights.Base,
		})
		if err != nil {
			c.logger.Warn("could not record learning", slog.Any("error", err))
		}
	}

	if c.opts.Notify.Learning {
		deviation := u.Error / u.Actual * 100
		c.notify(ctx, fmt.Sprintf("Learning result %s", date),
			fmt.Sprintf("Forecast: %.2f kWh, actual: %.2f kWh, deviation: %.1f%%", u.Predicted, u.Actual, deviation),
			idLearning)
	}
	if c.opts.Notify.SuccessfulLearning {
		c.notify(ctx, fmt.Sprintf("Model learned from %s", date),
			fmt.Sprintf("The forecast deviated by %+.2f kWh. The weights were adjusted.", u.Error),
			idLearningSuccess)
	}
	return true
}

// rebuildProfile keeps the current profile when no day qualifies.
func (c *Coordinator) rebuildProfile(ctx context.Context) {
	p, days, err := profile.Build(c.history)
	if err != nil {
		c.logger.Warn("hourly profile not updated", slog.Any("reason", err))
		return
	}
	c.setProfile(p)
	c.logger.Info("hourly profile updated", slog.Int("days", days), slog.String("peak", c.peakWindow))

	if err := c.store.SaveProfile(ctx, p); err != nil {
		c.logger.Error("could not save hourly profile", slog.Any("error", err))
	}
}

func (c *Coordinator) refreshStats() {
	if acc, ok := learning.Accuracy(c.history); ok {
		c.accuracy = acc
	}
	if avg, ok := learning.AverageYield(c.history); ok {
		c.averageYield = avg
	}
}
