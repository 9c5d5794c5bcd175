package types

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

const (
	WeightBase = "base"
	WeightLux  = "lux"
	WeightTemp = "temp"
	WeightWind = "wind"
	WeightUV   = "uv"
	WeightRain = "rain"
	WeightFS   = "fs"

	// Persisted alongside the weights in the same flat object.
	KeyBaseCapacity = "base_capacity"
)

type Bounds struct {
	Min float64
	Max float64
}

func (b Bounds) Clamp(v float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, v))
}

func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// WeightBounds holds the allowed range of every coefficient. Values outside
// the range are clamped during learning and rejected when loaded from disk.
var WeightBounds = map[string]Bounds{
	WeightBase: {Min: 0.5, Max: 1.5},
	WeightLux:  {Min: -0.001, Max: 0.001},
	WeightTemp: {Min: -1.0, Max: 1.0},
	WeightWind: {Min: -1.0, Max: 1.0},
	WeightUV:   {Min: -1.0, Max: 1.0},
	WeightRain: {Min: -1.0, Max: 1.0},
	WeightFS:   {Min: 0.0, Max: 1.0},
}

// SensorWeightKeys are the optional sensors contributing a linear term to a prediction.
var SensorWeightKeys = []string{WeightLux, WeightTemp, WeightWind, WeightUV, WeightRain}

// Weights are the learned model coefficients.
type Weights struct {
	Base float64
	Lux  float64
	Temp float64
	Wind float64
	UV   float64
	Rain float64
	FS   float64
}

func DefaultWeights() Weights {
	return Weights{
		Base: 1.0,
		FS:   0.5,
	}
}

func (w Weights) Get(key string) float64 {
	switch key {
	case WeightBase:
		return w.Base
	case WeightLux:
		return w.Lux
	case WeightTemp:
		return w.Temp
	case WeightWind:
		return w.Wind
	case WeightUV:
		return w.UV
	case WeightRain:
		return w.Rain
	case WeightFS:
		return w.FS
	}
	return 0
}

func (w *Weights) Set(key string, v float64) {
	switch key {
	case WeightBase:
		w.Base = v
	case WeightLux:
		w.Lux = v
	case WeightTemp:
		w.Temp = v
	case WeightWind:
		w.Wind = v
	case WeightUV:
		w.UV = v
	case WeightRain:
		w.Rain = v
	case WeightFS:
		w.FS = v
	}
}

// Clamp returns a copy with every coefficient inside its bounds.
func (w Weights) Clamp() Weights {
	for key, b := range WeightBounds {
		w.Set(key, b.Clamp(w.Get(key)))
	}
	return w
}

func (w Weights) Map() map[string]float64 {
	m := make(map[string]float64, len(WeightBounds))
	for key := range WeightBounds {
		m[key] = w.Get(key)
	}
	return m
}

// ModelState is the content of the weights artifact.
type ModelState struct {
	Weights      Weights
	BaseCapacity float64
}

func (s ModelState) MarshalJSON() ([]byte, error) {
	m := s.Weights.Map()
	m[KeyBaseCapacity] = s.BaseCapacity
	return json.Marshal(m)
}

// DecodeModelState parses a weights artifact. Keys that are missing, not a
// finite number or out of range keep the value from defaults and are
// reported in rejected. A malformed document is an error.
func DecodeModelState(data []byte, defaults ModelState) (state ModelState, rejected []string, err error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return defaults, nil, fmt.Errorf("decoding weights: %w", err)
	}

	state = defaults
	for key, b := range WeightBounds {
		v, ok := finite(raw[key])
		if !ok || !b.Contains(v) {
			if _, present := raw[key]; present {
				rejected = append(rejected, key)
			}
			continue
		}
		state.Weights.Set(key, v)
	}

	if v, ok := finite(raw[KeyBaseCapacity]); ok && v > 0 {
		state.BaseCapacity = v
	} else if _, present := raw[KeyBaseCapacity]; present {
		rejected = append(rejected, KeyBaseCapacity)
	}

	sort.Strings(rejected)
	return state, rejected, nil
}

func finite(v any) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
