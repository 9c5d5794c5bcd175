package task

import (
	"context"
	"log/slog"
	"time"
)

const cycleTimeout = 2 * time.Minute

func NewForecastTask(logger *slog.Logger, c Coordinator) func() {
	return func() {
		logger.Debug("running forecast task...")

		ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
		defer cancel()

		if err := c.Forecast(ctx); err != nil {
			logger.Warn("forecast task failed", slog.Any("error", err))
			return
		}
		logger.Info("forecast task done")
	}
}

func NewRefreshTask(logger *slog.Logger, c Coordinator) func() {
	return func() {
		logger.Debug("running refresh task...")

		ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
		defer cancel()

		if err := c.Refresh(ctx); err != nil {
			logger.Warn("refresh task failed", slog.Any("error", err))
		}
	}
}

func NewLearningTask(logger *slog.Logger, c Coordinator) func() {
	return func() {
		logger.Debug("running learning task...")

		ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
		defer cancel()

		if err := c.Learn(ctx); err != nil {
			logger.Error("learning task failed", slog.Any("error", err))
			return
		}
		logger.Info("learning task done")
	}
}

func NewHourlyTask(logger *slog.Logger, c Coordinator) func() {
	return func() {
		logger.Debug("running hourly task...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.CollectHourly(ctx); err != nil {
			logger.Error("hourly task failed", slog.Any("error", err))
		}
	}
}
