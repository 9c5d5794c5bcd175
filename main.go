package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/icodeforyou/solarforecast-ml/config"
	"github.com/icodeforyou/solarforecast-ml/coordinator"
	"github.com/icodeforyou/solarforecast-ml/database"
	"github.com/icodeforyou/solarforecast-ml/hass"
	"github.com/icodeforyou/solarforecast-ml/hours"
	"github.com/icodeforyou/solarforecast-ml/learning"
	"github.com/icodeforyou/solarforecast-ml/logging"
	"github.com/icodeforyou/solarforecast-ml/mqtt"
	"github.com/icodeforyou/solarforecast-ml/sensor"
	"github.com/icodeforyou/solarforecast-ml/store"
	"github.com/icodeforyou/solarforecast-ml/sun"
	"github.com/icodeforyou/solarforecast-ml/task"
	"github.com/icodeforyou/solarforecast-ml/weather"
	"github.com/icodeforyou/solarforecast-ml/www"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/viper"
)

var Version = "?.?.?"

func main() {
	defer func() {
		if err := recover(); err != nil {
			exitWithError(slog.Default(), fmt.Errorf("application panicked: %v", err))
		} else {
			slog.Default().Info("application is shutting down...")
		}
	}()

	startedAt := time.Now()
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(fmt.Sprintf("failed to load .env: %v", err))
	}

	cnfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := hours.SetTimezone(cnfg.Timezone); err != nil {
		panic(fmt.Sprintf("failed to set timezone: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consoleLevel := new(slog.LevelVar)
	consoleLevel.Set(cnfg.Logging.GetConsoleLevel())
	consoleHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      consoleLevel,
		TimeFormat: time.RFC3339,
	})
	logger := slog.New(consoleHandler)
	slog.SetDefault(logger)
	logger.Debug("solarforecast-ml is starting...", slog.String("version", Version))

	var db *database.Database
	if cnfg.DatabaseEnabled() {
		db, err = database.New(ctx, cnfg.Database.GetPath())
		if err != nil {
			panic(fmt.Sprintf("failed to connect to database: %v", err))
		}
		defer db.Close()

		logger = slog.New(logging.NewMultiHandler(
			consoleHandler,
			logging.NewSQLiteHandler(db, cnfg.Logging.GetDbLevel(), cnfg.Logging.GetDbAttrsFormat())))
		slog.SetDefault(logger)

		// Now we can use the logger to log database operations into the database itself
		db.SetLogger(logger.With("module", "database"))
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) {
			return
		}
		consoleLevel.Set(logging.ParseLevel(viper.GetString("logging.console_level"), slog.LevelInfo))
		logger.Info("config file changed, console level applied", slog.String("level", consoleLevel.Level().String()))
	})
	viper.WatchConfig()

	st, location, err := newStore(logger, cnfg, db)
	if err != nil {
		panic(fmt.Sprintf("failed to open store: %v", err))
	}
	logger.Info("store opened", slog.String("backend", cnfg.Store.GetBackend()), slog.String("location", location))

	ha := hass.New(logger, cnfg.HomeAssistant.Url, cnfg.HomeAssistant.Token, cnfg.HomeAssistant.GetTimeout())
	gateway := weather.New(logger, ha, cnfg.Entities.Weather, cnfg.Forecast.GetRedetectAfter(), cnfg.HomeAssistant.GetTimeout())
	sensors := sensor.New(logger, ha, sensor.Entities{
		Yield:       cnfg.Entities.Yield,
		Power:       cnfg.Entities.Power,
		Consumption: cnfg.Entities.Consumption,
		Ambient:     cnfg.Entities.Ambient(),
	})
	sunChecker := sun.New(logger, ha, cnfg.Entities.GetSun())

	learningHour, learningMinute, err := hours.ParseClock(cnfg.Forecast.GetLearningAt())
	if err != nil {
		panic(err)
	}

	var learningLog coordinator.LearningLog
	if db != nil {
		learningLog = db
	}

	coord := coordinator.New(logger, gateway, sensors, sunChecker, st, ha, learningLog, coordinator.Options{
		BaseCapacity:      learning.InitialBaseCapacity(cnfg.Plant.GetKwp(), cnfg.Plant.GetDefaultCapacity()),
		Hourly:            cnfg.Forecast.Hourly,
		SensorLearning:    cnfg.Forecast.SensorLearning,
		CalibrateCapacity: cnfg.Forecast.CalibrateCapacity,
		LearningHour:      learningHour,
		LearningMinute:    learningMinute,
		Notify: coordinator.NotifyOptions{
			Startup:            cnfg.Notify.GetStartup(),
			Forecast:           cnfg.Notify.Forecast,
			Learning:           cnfg.Notify.Learning,
			SuccessfulLearning: cnfg.Notify.GetSuccessfulLearning(),
		},
	})

	loadCtx, loadCancel := context.WithTimeout(ctx, time.Minute)
	err = coord.Load(loadCtx)
	loadCancel()
	if err != nil {
		panic(fmt.Sprintf("failed to load model state: %v", err))
	}

	if cnfg.Mqtt.Host != "" {
		bridge := mqtt.New(cnfg.Mqtt, coord, Version)
		coord.AddListener(bridge.Publish)
		if err := bridge.Connect(); err != nil {
			logger.Error("mqtt connection error", slog.Any("error", err))
		}
		defer bridge.Disconnect()
	}

	var server *www.Server
	if cnfg.Api.Port > 0 {
		var records www.Records
		if db != nil {
			records = db
		}
		server = www.NewServer(cnfg.Api, coord, records, www.SysInfo{
			Version:   Version,
			StartedAt: startedAt,
			Backend:   cnfg.Store.GetBackend(),
			Location:  location,
			Database:  db != nil,
		})
		coord.AddListener(server.Publish)
	}

	var maintainer task.Maintainer
	if db != nil {
		maintainer = db
	}
	tasks := task.NewTasks(coord, maintainer, cnfg)
	if isDevMode() {
		logger.Info("dev mode, skipping task scheduling")
	} else {
		tasks.Run()
		defer tasks.Stop()
	}

	// first forecast right away instead of waiting for the schedule
	go tasks.RefreshTask()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-ctx.Done():
		case sig := <-sigCh:
			logger.Info("received signal", slog.Any("signal", sig))
			cancel()
		}
	}()

	if server != nil {
		server.Run(ctx)
	} else {
		<-ctx.Done()
	}
}

// newStore returns the artifact store and where it keeps its documents.
func newStore(logger *slog.Logger, cnfg *config.AppConfig, db *database.Database) (*store.Store, string, error) {
	if cnfg.Store.GetBackend() == config.StoreBackendSQLite {
		return store.New(logger, db, cnfg.Store.GetRetentionDays()), db.Path(), nil
	}

	dir := cnfg.Store.GetDir()
	if err := store.MigrateLegacy(logger.With("module", "store"), cnfg.Store.LegacyDir, dir, store.Artifacts); err != nil {
		logger.Warn("legacy data migration failed", slog.Any("error", err))
	}
	blobs, err := store.NewFileBlobs(dir)
	if err != nil {
		return nil, "", err
	}
	return store.New(logger, blobs, cnfg.Store.GetRetentionDays()), blobs.Dir(), nil
}

func isDevMode() bool {
	return strings.EqualFold(os.Getenv("APP_ENV"), "development")
}

func exitWithError(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("application shutting down with error", slog.Any("error", err))
	}
	time.Sleep(2 * time.Second)
	os.Exit(1)
}
