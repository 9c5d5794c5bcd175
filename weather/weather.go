package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/icodeforyou/solarforecast-ml/hass"
	"github.com/icodeforyou/solarforecast-ml/types"
	"github.com/icodeforyou/solarforecast-ml/types/maybe"
)

type Method string

const (
	MethodUndetected Method = ""
	MethodService    Method = "service"
	MethodAttribute  Method = "attribute"
)

type Kind string

const (
	Daily  Kind = "daily"
	Hourly Kind = "hourly"
)

const maxRetries = 2

var (
	ErrNoForecast       = errors.New("weather forecast is empty")
	ErrMethodUndetected = errors.New("no working forecast method")
)

type HomeAssistant interface {
	GetState(ctx context.Context, entityId string) (*hass.State, error)
	CallServiceWithResponse(ctx context.Context, domain, service string, data any) (json.RawMessage, error)
}

// Gateway fetches forecasts of a weather entity. The first successful fetch
// decides whether the get_forecasts service or the forecast attribute of
// the entity is used; the choice is dropped again after redetectAfter
// consecutive failed fetches.
type Gateway struct {
	logger        *slog.Logger
	ha            HomeAssistant
	entityId      string
	redetectAfter int
	timeout       time.Duration
	newBackOff    func() backoff.BackOff

	mu       sync.Mutex
	method   Method
	failures int
}

func New(logger *slog.Logger, ha HomeAssistant, entityId string, redetectAfter int, timeout time.Duration) *Gateway {
	return &Gateway{
		logger:        logger.With(slog.String("module", "weather")),
		ha:            ha,
		entityId:      entityId,
		redetectAfter: redetectAfter,
		timeout:       timeout,
		newBackOff: func() backoff.BackOff {
			// 2s, 5s
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(2*time.Second),
				backoff.WithMultiplier(2.5),
				backoff.WithRandomizationFactor(0),
				backoff.WithMaxElapsedTime(0),
			)
		},
	}
}

func (g *Gateway) Method() Method {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.method
}

// Provider guesses the integration behind the weather entity from its id.
func (g *Gateway) Provider() string {
	id := strings.ToLower(g.entityId)
	switch {
	case strings.Contains(id, "dwd") || strings.Contains(id, "deutscher_wetterdienst"):
		return "dwd"
	case strings.Contains(id, "met") || strings.Contains(id, "forecast_home"):
		return "met.no"
	case strings.Contains(id, "openweather"):
		return "openweathermap"
	}
	return "generic"
}

// Daily returns the daily forecast, today first. Fetches are retried with
// exponential backoff.
func (g *Gateway) Daily(ctx context.Context) ([]types.WeatherEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	policy := backoff.WithContext(backoff.WithMaxRetries(g.newBackOff(), maxRetries), ctx)
	entries, err := backoff.RetryNotifyWithData(func() ([]types.WeatherEntry, error) {
		return g.fetchDaily(ctx)
	}, policy, func(err error, wait time.Duration) {
		g.logger.Debug("weather fetch failed, retrying", slog.Any("error", err), slog.Duration("wait", wait))
	})
	if err != nil {
		g.failed()
		return nil, err
	}

	g.failures = 0
	return entries, nil
}

func (g *Gateway) failed() {
	g.failures++
	if g.method != MethodUndetected && g.redetectAfter > 0 && g.failures >= g.redetectAfter {
		g.logger.Warn("forecast method keeps failing, detecting again",
			slog.String("method", string(g.method)),
			slog.Int("failures", g.failures))
		g.method = MethodUndetected
		g.failures = 0
	}
}

func (g *Gateway) fetchDaily(ctx context.Context) ([]types.WeatherEntry, error) {
	switch g.method {
	case MethodService:
		return g.viaService(ctx, Daily)
	case MethodAttribute:
		return g.viaAttribute(ctx)
	}

	entries, err := g.viaService(ctx, Daily)
	if err == nil {
		g.detected(MethodService)
		return entries, nil
	}
	g.logger.Debug("forecast service not usable", slog.Any("error", err))

	entries, err = g.viaAttribute(ctx)
	if err == nil {
		g.detected(MethodAttribute)
		return entries, nil
	}
	g.logger.Debug("forecast attribute not usable", slog.Any("error", err))

	return nil, ErrMethodUndetected
}

func (g *Gateway) detected(m Method) {
	g.method = m
	g.logger.Info("forecast method detected", slog.String("method", string(m)), slog.String("entity", g.entityId))
}

// Hourly returns the hourly forecast. Only the get_forecasts service
// provides it, there is no retry.
func (g *Gateway) Hourly(ctx context.Context) ([]types.WeatherEntry, error) {
	return g.viaService(ctx, Hourly)
}

func (g *Gateway) viaService(ctx context.Context, kind Kind) ([]types.WeatherEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.ha.CallServiceWithResponse(ctx, "weather", "get_forecasts", map[string]string{
		"entity_id": g.entityId,
		"type":      string(kind),
	})
	if err != nil {
		return nil, err
	}

	var byEntity map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byEntity); err != nil {
		return nil, fmt.Errorf("decoding forecast response: %w", err)
	}
	var res struct {
		Forecast []rawEntry `json:"forecast"`
	}
	body, ok := byEntity[g.entityId]
	if !ok {
		body = raw
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decoding forecast response: %w", err)
	}
	return toEntries(res.Forecast)
}

func (g *Gateway) viaAttribute(ctx context.Context) ([]types.WeatherEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	state, err := g.ha.GetState(ctx, g.entityId)
	if err != nil {
		return nil, err
	}
	var forecast []rawEntry
	if _, err := state.Attribute("forecast", &forecast); err != nil {
		return nil, err
	}
	return toEntries(forecast)
}

type rawEntry struct {
	Datetime      string   `json:"datetime"`
	Condition     string   `json:"condition"`
	CloudCoverage *float64 `json:"cloud_coverage"`
	Precipitation *float64 `json:"precipitation"`
}

func toEntries(raw []rawEntry) ([]types.WeatherEntry, error) {
	if len(raw) == 0 {
		return nil, ErrNoForecast
	}
	entries := make([]types.WeatherEntry, 0, len(raw))
	for _, r := range raw {
		e := types.WeatherEntry{
			Condition:     r.Condition,
			CloudCoverage: maybe.FromPtr(r.CloudCoverage),
			Precipitation: maybe.FromPtr(r.Precipitation),
		}
		if t, err := time.Parse(time.RFC3339, r.Datetime); err == nil {
			e.Time = t
		}
		entries = append(entries, e)
	}
	return entries, nil
}
