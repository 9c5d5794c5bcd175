package types

import "fmt"

const HoursPerDay = 24

// HourlyProfile maps hour of day (0-23) to the fraction of a day's yield
// produced in that hour. JSON keys are the hour as a string.
type HourlyProfile map[int]float64

func UniformProfile() HourlyProfile {
	p := make(HourlyProfile, HoursPerDay)
	for h := range HoursPerDay {
		p[h] = 1.0 / HoursPerDay
	}
	return p
}

func (p HourlyProfile) Sum() float64 {
	sum := 0.0
	for _, v := range p {
		sum += v
	}
	return sum
}

// PeakHour returns the hour with the highest ratio, the earliest on ties.
func (p HourlyProfile) PeakHour() (int, bool) {
	peak, best := -1, 0.0
	for h := range HoursPerDay {
		if v, ok := p[h]; ok && v > best {
			peak, best = h, v
		}
	}
	return peak, peak >= 0
}

// Validate checks hour range and ratios.
func (p HourlyProfile) Validate() error {
	for h, v := range p {
		if h < 0 || h >= HoursPerDay {
			return fmt.Errorf("hour %d out of range", h)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("ratio %f for hour %d out of range", v, h)
		}
	}
	return nil
}

func (p HourlyProfile) Clone() HourlyProfile {
	c := make(HourlyProfile, len(p))
	for h, v := range p {
		c[h] = v
	}
	return c
}
