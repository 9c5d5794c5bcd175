package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/icodeforyou/solarforecast-ml/convert"
	"github.com/icodeforyou/solarforecast-ml/hours"
	"github.com/icodeforyou/solarforecast-ml/profile"
)

// CollectHourly samples the live power and stores it as the production of
// the current hour.
func (c *Coordinator) CollectHourly(ctx context.Context) error {
	if !c.sensors.HasPower() {
		return nil
	}
	return c.run(ctx, "hourly collection", c.collectHourly)
}

func (c *Coordinator) collectHourly(ctx context.Context) error {
	watts, err := c.sensors.Power(ctx)
	if err != nil {
		c.logger.Warn("skipping hourly collection", slog.Any("error", err))
		return nil
	}

	now := hours.FromTime(c.now())
	kwh := convert.RoundFloat64(convert.WattsToKWh(watts), 3)

	c.reloadHistory(ctx)
	rec := c.history.Ensure(now.Date)
	rec.SetHour(int(now.Hour), kwh)
	if err := c.saveHistory(ctx); err != nil {
		return fmt.Errorf("storing hour %s: %w", now, err)
	}

	if w, ok := profile.ProductionWindow(rec.HourlyData); ok {
		c.productionWindow = w
	} else {
		c.productionWindow = noProduction
	}

	c.logger.Debug("hourly production collected", slog.String("hour", now.String()), slog.Float64("kwh", kwh))
	return nil
}
