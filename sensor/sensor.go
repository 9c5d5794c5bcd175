package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/icodeforyou/solarforecast-ml/hass"
	"github.com/icodeforyou/solarforecast-ml/types"
)

var ErrUnavailable = errors.New("sensor unavailable")

type StateGetter interface {
	GetState(ctx context.Context, entityId string) (*hass.State, error)
}

type Entities struct {
	Yield       string
	Power       string
	Consumption string
	// Ambient maps a sensor key (types.SensorLux, ...) to its entity.
	Ambient map[string]string
}

type Reader struct {
	logger   *slog.Logger
	ha       StateGetter
	entities Entities
}

func New(logger *slog.Logger, ha StateGetter, entities Entities) *Reader {
	return &Reader{
		logger:   logger.With(slog.String("module", "sensor")),
		ha:       ha,
		entities: entities,
	}
}

// Value reads the numeric state of entityId. Unknown, unavailable and
// non-numeric states are reported as ErrUnavailable.
func (r *Reader) Value(ctx context.Context, entityId string) (float64, error) {
	s, err := r.ha.GetState(ctx, entityId)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", entityId, err)
	}
	if !s.Available() {
		return 0, fmt.Errorf("%s is %q: %w", entityId, s.State, ErrUnavailable)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s.State), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s has non-numeric state %q: %w", entityId, s.State, ErrUnavailable)
	}
	return v, nil
}

// Snapshot reads every configured ambient sensor. Sensors that cannot be
// read are left out.
func (r *Reader) Snapshot(ctx context.Context) types.SensorSnapshot {
	snapshot := make(types.SensorSnapshot, len(r.entities.Ambient))
	for key, entityId := range r.entities.Ambient {
		if entityId == "" {
			continue
		}
		v, err := r.Value(ctx, entityId)
		if err != nil {
			r.logger.Warn("skipping sensor", slog.String("sensor", key), slog.Any("error", err))
			continue
		}
		snapshot[key] = v
	}
	return snapshot
}

// Yield returns today's measured production in kWh.
func (r *Reader) Yield(ctx context.Context) (float64, error) {
	return r.Value(ctx, r.entities.Yield)
}

func (r *Reader) HasPower() bool {
	return r.entities.Power != ""
}

// Power returns the live production in W.
func (r *Reader) Power(ctx context.Context) (float64, error) {
	if !r.HasPower() {
		return 0, fmt.Errorf("no power sensor configured: %w", ErrUnavailable)
	}
	return r.Value(ctx, r.entities.Power)
}

func (r *Reader) HasConsumption() bool {
	return r.entities.Consumption != ""
}

// Consumption returns today's consumption in kWh.
func (r *Reader) Consumption(ctx context.Context) (float64, error) {
	if !r.HasConsumption() {
		return 0, fmt.Errorf("no consumption sensor configured: %w", ErrUnavailable)
	}
	return r.Value(ctx, r.entities.Consumption)
}
