package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/icodeforyou/solarforecast-ml/hours"
	"github.com/icodeforyou/solarforecast-ml/logging"
	"github.com/icodeforyou/solarforecast-ml/types"
	"github.com/spf13/viper"
)

type AppConfigHomeAssistant struct {
	Url   string
	Token string // Long-lived access token
	// Timeout of every REST call, default: 10s
	Timeout *time.Duration
}

func (h AppConfigHomeAssistant) GetTimeout() time.Duration {
	if h.Timeout == nil || *h.Timeout <= 0 {
		return 10 * time.Second
	}
	return *h.Timeout
}

type AppConfigEntities struct {
	Weather       string // weather.* entity, required
	Yield         string // Daily yield sensor in kWh, required
	Power         string // Live power sensor in W, enables hourly collection
	Consumption   string // Daily consumption sensor in kWh, enables autarky
	Lux           string
	Temp          string
	Wind          string
	UV            string `mapstructure:"uv"`
	Rain          string
	ForecastSolar string `mapstructure:"forecast_solar"`
	Sun           *string
}

// Ambient maps the sensor keys of the prediction to the configured entities.
func (e AppConfigEntities) Ambient() map[string]string {
	ambient := map[string]string{
		types.SensorLux:  e.Lux,
		types.SensorTemp: e.Temp,
		types.SensorWind: e.Wind,
		types.SensorUV:   e.UV,
		types.SensorRain: e.Rain,
		types.SensorFS:   e.ForecastSolar,
	}
	for k, v := range ambient {
		if v == "" {
			delete(ambient, k)
		}
	}
	return ambient
}

func (e AppConfigEntities) GetSun() string {
	if e.Sun == nil {
		return "sun.sun"
	}
	return *e.Sun
}

type AppConfigPlant struct {
	Kwp *float64 // Peak power of the plant
	// Clear weather daily yield in kWh when kwp is unknown, default: 10
	DefaultCapacity *float64 `mapstructure:"default_capacity"`
}

func (p AppConfigPlant) GetKwp() float64 {
	if p.Kwp == nil {
		return 0
	}
	return *p.Kwp
}

func (p AppConfigPlant) GetDefaultCapacity() float64 {
	if p.DefaultCapacity == nil || *p.DefaultCapacity <= 0 {
		return 10.0
	}
	return *p.DefaultCapacity
}

type AppConfigForecast struct {
	// Seconds between periodic refreshes, default: 3600
	UpdateInterval *int    `mapstructure:"update_interval"`
	MorningAt      *string `mapstructure:"morning_at"`  // default: "06:00"
	LearningAt     *string `mapstructure:"learning_at"` // default: "23:00"
	Hourly         bool    // Enables the next hour prediction
	// Consecutive failed forecast fetches before the fetch method is detected again, default: 3
	RedetectAfter  *int `mapstructure:"redetect_after"`
	SensorLearning bool `mapstructure:"sensor_learning"`
	// Moves the base capacity to the mean measured yield after learning
	CalibrateCapacity bool `mapstructure:"calibrate_capacity"`
}

func (f AppConfigForecast) GetUpdateInterval() time.Duration {
	if f.UpdateInterval == nil {
		return time.Hour
	}
	return time.Duration(*f.UpdateInterval) * time.Second
}

func (f AppConfigForecast) GetMorningAt() string {
	if f.MorningAt == nil {
		return "06:00"
	}
	return *f.MorningAt
}

func (f AppConfigForecast) GetLearningAt() string {
	if f.LearningAt == nil {
		return "23:00"
	}
	return *f.LearningAt
}

func (f AppConfigForecast) GetRedetectAfter() int {
	if f.RedetectAfter == nil {
		return 3
	}
	return *f.RedetectAfter
}

type AppConfigNotify struct {
	Startup            *bool
	Forecast           bool
	Learning           bool
	SuccessfulLearning *bool `mapstructure:"successful_learning"`
}

func (n AppConfigNotify) GetStartup() bool {
	return n.Startup == nil || *n.Startup
}

func (n AppConfigNotify) GetSuccessfulLearning() bool {
	return n.SuccessfulLearning == nil || *n.SuccessfulLearning
}

const (
	StoreBackendFile   = "file"
	StoreBackendSQLite = "sqlite"
)

type AppConfigStore struct {
	Backend *string // "file" or "sqlite", default: "file"
	Dir     *string // Directory of the JSON files, default: "data"
	// Directory of an earlier installation, files found there are moved to dir
	LegacyDir string `mapstructure:"legacy_dir"`
	// How many days of history are kept, default: 365
	RetentionDays *int `mapstructure:"retention_days"`
}

func (s AppConfigStore) GetBackend() string {
	if s.Backend == nil {
		return StoreBackendFile
	}
	return strings.ToLower(*s.Backend)
}

func (s AppConfigStore) GetDir() string {
	if s.Dir == nil {
		return "data"
	}
	return *s.Dir
}

func (s AppConfigStore) GetRetentionDays() int {
	if s.RetentionDays == nil {
		return 365
	}
	return *s.RetentionDays
}

type AppConfigDatabase struct {
	// Database file, empty disables the database unless the sqlite store is used
	Path string
	// How many days daily backup files should be stored before they gets deleted
	BackupRetentionDays *int `mapstructure:"backup_retention_days"`
}

func (d AppConfigDatabase) GetPath() string {
	if d.Path == "" {
		return "data/solarforecast.db"
	}
	return d.Path
}

func (d AppConfigDatabase) GetBackupRetentionDays() int {
	if d.BackupRetentionDays == nil {
		return 30
	}
	return *d.BackupRetentionDays
}

type AppConfigMqtt struct {
	Host     string // Empty disables MQTT
	Port     *int
	Username string
	Password string
	// Topic prefix Home Assistant listens on for discovery, default: "homeassistant"
	DiscoveryPrefix *string `mapstructure:"discovery_prefix"`
	NodeId          *string `mapstructure:"node_id"`
}

func (m AppConfigMqtt) GetPort() int {
	if m.Port == nil {
		return 1883
	}
	return *m.Port
}

func (m AppConfigMqtt) GetDiscoveryPrefix() string {
	if m.DiscoveryPrefix == nil {
		return "homeassistant"
	}
	return *m.DiscoveryPrefix
}

func (m AppConfigMqtt) GetNodeId() string {
	if m.NodeId == nil {
		return "solar_forecast_ml"
	}
	return *m.NodeId
}

type AppConfigApi struct {
	Address string
	Port    int // 0 disables the HTTP server
}

type AppConfigLogging struct {
	// Min log level for database : "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	DbLevel *string `mapstructure:"db_level"`
	// Log attributes format: "TEXT", "JSON", default: "JSON"
	DbAttrsFormat *string `mapstructure:"db_attrs_format"`
	// Maximum number of log entries in the database, default: 10000
	DbMaxEntries *int `mapstructure:"db_max_entries"`
	// Min log level for database console: "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	ConsoleLevel *string `mapstructure:"console_level"`
}

func (l AppConfigLogging) GetDbLevel() slog.Level {
	return logging.LevelFromString(l.DbLevel)
}

func (l AppConfigLogging) GetDbAttrsFormat() logging.LogAttrFormat {
	if l.DbAttrsFormat != nil && strings.EqualFold(*l.DbAttrsFormat, "text") {
		return logging.LogAttrFormatText
	}
	return logging.LogAttrFormatJSON
}

func (l AppConfigLogging) GetDbMaxEntries() int {
	if l.DbMaxEntries == nil {
		return 10000
	}
	return *l.DbMaxEntries
}

func (l AppConfigLogging) GetConsoleLevel() slog.Level {
	return logging.LevelFromString(l.ConsoleLevel)
}

type AppConfig struct {
	HomeAssistant AppConfigHomeAssistant `mapstructure:"home_assistant"`
	Entities      AppConfigEntities
	Plant         AppConfigPlant
	Forecast      AppConfigForecast
	Notify        AppConfigNotify
	Store         AppConfigStore
	Database      AppConfigDatabase
	Mqtt          AppConfigMqtt
	Api           AppConfigApi
	Logging       AppConfigLogging
	// IANA name of the local timezone, default: "Local"
	Timezone string
}

// DatabaseEnabled reports whether a SQLite database is opened, either as
// store backend or for logs and the learning log.
func (c *AppConfig) DatabaseEnabled() bool {
	return c.Database.Path != "" || c.Store.GetBackend() == StoreBackendSQLite
}

func (c *AppConfig) Validate() error {
	var errs []error
	if c.Entities.Weather == "" {
		errs = append(errs, errors.New("entities.weather is required"))
	}
	if c.Entities.Yield == "" {
		errs = append(errs, errors.New("entities.yield is required"))
	}
	if c.Forecast.GetUpdateInterval() <= 0 {
		errs = append(errs, errors.New("forecast.update_interval must be positive"))
	}
	if c.Plant.GetKwp() < 0 {
		errs = append(errs, errors.New("plant.kwp must not be negative"))
	}
	if _, _, err := hours.ParseClock(c.Forecast.GetMorningAt()); err != nil {
		errs = append(errs, fmt.Errorf("forecast.morning_at: %w", err))
	}
	if _, _, err := hours.ParseClock(c.Forecast.GetLearningAt()); err != nil {
		errs = append(errs, fmt.Errorf("forecast.learning_at: %w", err))
	}
	if b := c.Store.GetBackend(); b != StoreBackendFile && b != StoreBackendSQLite {
		errs = append(errs, fmt.Errorf("unknown store.backend %q", b))
	}
	return errors.Join(errs...)
}

func Load(path string) (*AppConfig, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath("config")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var c AppConfig

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config file: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &c, nil
}
