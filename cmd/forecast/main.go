// Command forecast fetches the weather forecast once and prints today's and
// tomorrow's prediction with the stored model, without saving anything.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/icodeforyou/solarforecast-ml/config"
	"github.com/icodeforyou/solarforecast-ml/database"
	"github.com/icodeforyou/solarforecast-ml/hass"
	"github.com/icodeforyou/solarforecast-ml/hours"
	"github.com/icodeforyou/solarforecast-ml/learning"
	"github.com/icodeforyou/solarforecast-ml/predict"
	"github.com/icodeforyou/solarforecast-ml/sensor"
	"github.com/icodeforyou/solarforecast-ml/store"
	"github.com/icodeforyou/solarforecast-ml/types"
	"github.com/icodeforyou/solarforecast-ml/weather"
	"github.com/lmittmann/tint"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339Nano,
	}))
	slog.SetDefault(logger)

	cnfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if err := hours.SetTimezone(cnfg.Timezone); err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var blobs store.Blobs
	if cnfg.Store.GetBackend() == config.StoreBackendSQLite {
		db, err := database.New(ctx, cnfg.Database.GetPath())
		if err != nil {
			panic(err)
		}
		defer db.Close()
		blobs = db
	} else {
		fb, err := store.NewFileBlobs(cnfg.Store.GetDir())
		if err != nil {
			panic(err)
		}
		blobs = fb
	}

	defaults := types.ModelState{
		Weights:      types.DefaultWeights(),
		BaseCapacity: learning.InitialBaseCapacity(cnfg.Plant.GetKwp(), cnfg.Plant.GetDefaultCapacity()),
	}
	state, err := store.New(logger, blobs, cnfg.Store.GetRetentionDays()).LoadWeights(ctx, defaults)
	if err != nil {
		panic(err)
	}

	ha := hass.New(logger, cnfg.HomeAssistant.Url, cnfg.HomeAssistant.Token, cnfg.HomeAssistant.GetTimeout())
	gateway := weather.New(logger, ha, cnfg.Entities.Weather, cnfg.Forecast.GetRedetectAfter(), cnfg.HomeAssistant.GetTimeout())
	entries, err := gateway.Daily(ctx)
	if err != nil {
		panic(err)
	}
	if len(entries) < 2 {
		panic(fmt.Sprintf("weather forecast has %d days, need two", len(entries)))
	}

	snapshot := sensor.New(logger, ha, sensor.Entities{Ambient: cnfg.Entities.Ambient()}).Snapshot(ctx)

	fmt.Printf("Provider: %s, method: %s, base capacity: %.2f kWh\n", gateway.Provider(), gateway.Method(), state.BaseCapacity)
	for i, label := range []string{"Today", "Tomorrow"} {
		e := entries[i]
		kwh := predict.PredictDay(logger, predict.DayInput{
			Entry:        e,
			Sensors:      snapshot,
			Weights:      state.Weights,
			BaseCapacity: state.BaseCapacity,
			IsToday:      i == 0,
		})
		fmt.Printf("%-8s %s  %-14s factor %.2f  %6.2f kWh\n",
			label, hours.Date(e.Time), e.Condition, predict.DailyWeatherFactor(e), kwh)
	}
}
