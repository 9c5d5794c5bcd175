package sun

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/icodeforyou/solarforecast-ml/hass"
	"github.com/icodeforyou/solarforecast-ml/hours"
)

const (
	Buffer = 30 * time.Minute

	fallbackSunrise = 6
	fallbackSunset  = 21
)

type StateGetter interface {
	GetState(ctx context.Context, entityId string) (*hass.State, error)
}

// Checker tells night from day using the sun entity of Home Assistant.
type Checker struct {
	logger   *slog.Logger
	ha       StateGetter
	entityId string
}

func New(logger *slog.Logger, ha StateGetter, entityId string) *Checker {
	return &Checker{
		logger:   logger.With(slog.String("module", "sun")),
		ha:       ha,
		entityId: entityId,
	}
}

// IsNight reports whether now is more than Buffer away from daylight. Without
// sun data night is before 06:00 and from 21:00 local time.
func (c *Checker) IsNight(ctx context.Context, now time.Time) bool {
	if c.ha != nil && c.entityId != "" {
		rising, setting, err := c.events(ctx)
		if err == nil {
			return NightFromEvents(now, rising, setting)
		}
		c.logger.Debug("no sun events, using fixed hours", slog.Any("error", err))
	}
	return FallbackNight(now)
}

func (c *Checker) events(ctx context.Context) (rising, setting time.Time, err error) {
	s, err := c.ha.GetState(ctx, c.entityId)
	if err != nil {
		return
	}
	if !s.Available() {
		err = errors.New("sun entity unavailable")
		return
	}
	if _, err = s.Attribute("next_rising", &rising); err != nil {
		return
	}
	if _, err = s.Attribute("next_setting", &setting); err != nil {
		return
	}
	if rising.IsZero() || setting.IsZero() {
		err = errors.New("sun entity lacks next_rising or next_setting")
	}
	return
}

// NightFromEvents decides from the next sunrise and sunset as reported at
// now. The previous sunset is estimated one day before the next one.
func NightFromEvents(now, nextRising, nextSetting time.Time) bool {
	if nextSetting.Before(nextRising) {
		// sun is up
		return false
	}
	if !now.Before(nextRising.Add(-Buffer)) {
		return false
	}
	lastSetting := nextSetting.Add(-24 * time.Hour)
	return now.After(lastSetting.Add(Buffer))
}

func FallbackNight(now time.Time) bool {
	h := now.In(hours.Location()).Hour()
	return h < fallbackSunrise || h >= fallbackSunset
}
