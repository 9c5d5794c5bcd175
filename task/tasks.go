package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/icodeforyou/solarforecast-ml/config"
	"github.com/icodeforyou/solarforecast-ml/hours"
	"github.com/robfig/cron/v3"
)

type Coordinator interface {
	Forecast(ctx context.Context) error
	Learn(ctx context.Context) error
	CollectHourly(ctx context.Context) error
	Refresh(ctx context.Context) error
}

type Tasks struct {
	cron                *cron.Cron
	cnfg                *config.AppConfig
	MorningForecastTask func()
	LearningTask        func()
	HourlyTask          func()
	RefreshTask         func()
	MaintenanceTask     func()
}

// NewTasks creates the scheduled tasks. The hourly task is only created
// when a power sensor is configured and the maintenance task only when a
// database is available.
func NewTasks(c Coordinator, db Maintainer, cnfg *config.AppConfig) *Tasks {
	logger := slog.Default().With("module", "tasks")
	t := &Tasks{
		cron:                cron.New(cron.WithLocation(hours.Location())),
		cnfg:                cnfg,
		MorningForecastTask: NewForecastTask(logger.With(slog.String("task", "morning_forecast")), c),
		LearningTask:        NewLearningTask(logger.With(slog.String("task", "learning")), c),
		RefreshTask:         NewRefreshTask(logger.With(slog.String("task", "refresh")), c),
	}
	if cnfg.Entities.Power != "" {
		t.HourlyTask = NewHourlyTask(logger.With(slog.String("task", "hourly")), c)
	}
	if db != nil {
		t.MaintenanceTask = NewMaintenanceTask(logger.With(slog.String("task", "maintenance")), db, cnfg)
	}
	return t
}

// DailySpec turns "HH:MM" into a cron spec running once a day.
func DailySpec(clock string) (string, error) {
	h, m, err := hours.ParseClock(clock)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}

func (t *Tasks) schedule() error {
	morning, err := DailySpec(t.cnfg.Forecast.GetMorningAt())
	if err != nil {
		return fmt.Errorf("morning forecast: %w", err)
	}
	learning, err := DailySpec(t.cnfg.Forecast.GetLearningAt())
	if err != nil {
		return fmt.Errorf("learning: %w", err)
	}

	jobs := []struct {
		spec string
		fn   func()
	}{
		{morning, t.MorningForecastTask},
		{learning, t.LearningTask},
		{"@hourly", t.HourlyTask},
		{fmt.Sprintf("@every %s", t.cnfg.Forecast.GetUpdateInterval()), t.RefreshTask},
		{"30 3 * * *", t.MaintenanceTask},
	}
	for _, job := range jobs {
		if job.fn == nil {
			continue
		}
		if _, err := t.cron.AddFunc(job.spec, job.fn); err != nil {
			return fmt.Errorf("scheduling %q: %w", job.spec, err)
		}
	}
	return nil
}

func (t *Tasks) Run() {
	if err := t.schedule(); err != nil {
		panic(err)
	}
	t.cron.Start()
}

func (t *Tasks) Stop() context.Context {
	return t.cron.Stop()
}
