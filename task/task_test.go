package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/icodeforyou/solarforecast-ml/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoordinator struct {
	calls []string
	err   error
}

func (f *fakeCoordinator) Forecast(ctx context.Context) error {
	f.calls = append(f.calls, "forecast")
	return f.err
}

func (f *fakeCoordinator) Learn(ctx context.Context) error {
	f.calls = append(f.calls, "learn")
	return f.err
}

func (f *fakeCoordinator) CollectHourly(ctx context.Context) error {
	f.calls = append(f.calls, "hourly")
	return f.err
}

func (f *fakeCoordinator) Refresh(ctx context.Context) error {
	f.calls = append(f.calls, "refresh")
	return f.err
}

type fakeMaintainer struct {
	retentionDays int
	maxEntries    int
	before        string
	backupErr     error
}

func (f *fakeMaintainer) Backup(ctx context.Context) error { return f.backupErr }

func (f *fakeMaintainer) PurgeBackups(ctx context.Context, retentionDays int) error {
	f.retentionDays = retentionDays
	return nil
}

func (f *fakeMaintainer) PurgeLog(ctx context.Context, maxLogEntries int) error {
	f.maxEntries = maxLogEntries
	return nil
}

func (f *fakeMaintainer) PurgeLearningLog(ctx context.Context, before string) error {
	f.before = before
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDailySpec(t *testing.T) {
	spec, err := DailySpec("06:00")
	require.NoError(t, err)
	assert.Equal(t, "0 6 * * *", spec)

	spec, err = DailySpec("23:45")
	require.NoError(t, err)
	assert.Equal(t, "45 23 * * *", spec)

	_, err = DailySpec("six")
	assert.Error(t, err)
}

func TestTaskClosures(t *testing.T) {
	c := &fakeCoordinator{err: errors.New("boom")}
	NewForecastTask(discard(), c)()
	NewRefreshTask(discard(), c)()
	NewLearningTask(discard(), c)()
	NewHourlyTask(discard(), c)()
	assert.Equal(t, []string{"forecast", "refresh", "learn", "hourly"}, c.calls)
}

func TestMaintenanceContinuesAfterBackupError(t *testing.T) {
	retention, backups := 10, 7
	cnfg := &config.AppConfig{}
	cnfg.Database.BackupRetentionDays = &backups
	cnfg.Store.RetentionDays = &retention

	db := &fakeMaintainer{backupErr: errors.New("disk full")}
	NewMaintenanceTask(discard(), db, cnfg)()

	assert.Equal(t, 7, db.retentionDays)
	assert.Equal(t, cnfg.Logging.GetDbMaxEntries(), db.maxEntries)
	assert.NotEmpty(t, db.before)
}

func TestNewTasksOptionalTasks(t *testing.T) {
	cnfg := &config.AppConfig{}
	tasks := NewTasks(&fakeCoordinator{}, nil, cnfg)
	assert.Nil(t, tasks.HourlyTask)
	assert.Nil(t, tasks.MaintenanceTask)
	require.NoError(t, tasks.schedule())
	assert.Len(t, tasks.cron.Entries(), 3)

	cnfg.Entities.Power = "sensor.pv_power"
	tasks = NewTasks(&fakeCoordinator{}, &fakeMaintainer{}, cnfg)
	require.NoError(t, tasks.schedule())
	assert.Len(t, tasks.cron.Entries(), 5)
}

func TestScheduleRejectsBadClock(t *testing.T) {
	bad := "25:99"
	cnfg := &config.AppConfig{}
	cnfg.Forecast.MorningAt = &bad
	tasks := NewTasks(&fakeCoordinator{}, nil, cnfg)
	assert.Error(t, tasks.schedule())
}
