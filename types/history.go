package types

import (
	"maps"
	"slices"
	"strconv"
)

// DayRecord is one calendar day of predictions and measurements.
type DayRecord struct {
	Predicted         float64            `json:"predicted"`
	PredictedTomorrow float64            `json:"predicted_morgen"`
	Actual            *float64           `json:"actual,omitempty"`
	Features          map[string]float64 `json:"features,omitempty"`
	HourlyData        map[string]float64 `json:"hourly_data,omitempty"`
}

func (r *DayRecord) HasPrediction() bool {
	return r.Predicted > 0 || r.PredictedTomorrow > 0
}

// ActualOrZero returns the measured yield, 0 if not yet captured.
func (r *DayRecord) ActualOrZero() float64 {
	if r.Actual == nil {
		return 0
	}
	return *r.Actual
}

func (r *DayRecord) SetActual(kwh float64) {
	r.Actual = &kwh
}

// SetHour stores the production of one hour bucket, replacing an earlier sample of the same hour.
func (r *DayRecord) SetHour(hour int, kwh float64) {
	if r.HourlyData == nil {
		r.HourlyData = make(map[string]float64)
	}
	r.HourlyData[strconv.Itoa(hour)] = kwh
}

func (r *DayRecord) Clone() *DayRecord {
	c := *r
	if r.Actual != nil {
		a := *r.Actual
		c.Actual = &a
	}
	c.Features = maps.Clone(r.Features)
	c.HourlyData = maps.Clone(r.HourlyData)
	return &c
}

// History holds the daily records keyed by ISO date (YYYY-MM-DD, local timezone).
type History map[string]*DayRecord

// Ensure returns the record for date, creating it when missing.
func (h History) Ensure(date string) *DayRecord {
	r, ok := h[date]
	if !ok || r == nil {
		r = &DayRecord{}
		h[date] = r
	}
	return r
}

// DatesDesc returns all dates, newest first.
func (h History) DatesDesc() []string {
	dates := slices.Collect(maps.Keys(h))
	slices.Sort(dates)
	slices.Reverse(dates)
	return dates
}

// Recent returns up to n records with a positive actual, newest first.
func (h History) Recent(n int) []*DayRecord {
	result := make([]*DayRecord, 0, n)
	for _, date := range h.DatesDesc() {
		if len(result) >= n {
			break
		}
		r := h[date]
		if r != nil && r.ActualOrZero() > 0 {
			result = append(result, r)
		}
	}
	return result
}

// PruneBefore removes every record dated before cutoff (ISO date) and
// returns the number of removed records.
func (h History) PruneBefore(cutoff string) int {
	removed := 0
	for date := range h {
		if date < cutoff {
			delete(h, date)
			removed++
		}
	}
	return removed
}

func (h History) Clone() History {
	c := make(History, len(h))
	for date, r := range h {
		if r != nil {
			c[date] = r.Clone()
		}
	}
	return c
}
