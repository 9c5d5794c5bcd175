package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/icodeforyou/solarforecast-ml/hours"
)

const (
	idStart           = "solar_forecast_ml_start"
	idDaily           = "solar_forecast_ml_daily"
	idLearning        = "solar_forecast_ml_learning"
	idLearningSuccess = "solar_forecast_ml_learning_success"
	idError           = "solar_forecast_ml_error"

	staleAfter = time.Hour
)

// Status summarizes the age of the forecast, the time left until the next
// learning cycle and the accuracy, e.g.
// "OK | last update 0.2h ago | next learning in 5h | accuracy 87%".
func (c *Coordinator) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	since := now.Sub(c.lastUpdate)
	status := "OK"
	if since >= staleAfter {
		status = "STALE"
	}
	untilLearning := hours.NextAt(now, c.opts.LearningHour, c.opts.LearningMinute).Sub(now)

	return fmt.Sprintf("%s | last update %.1fh ago | next learning in %.0fh | accuracy %.0f%%",
		status, since.Hours(), math.Ceil(untilLearning.Hours()), c.accuracy)
}

func (c *Coordinator) notify(ctx context.Context, title, message, id string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, title, message, id); err != nil {
		c.logger.Warn("could not send notification", slog.String("id", id), slog.Any("error", err))
	}
}
