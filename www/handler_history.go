package www

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/icodeforyou/solarforecast-ml/types"
)

type historyEntry struct {
	Date string `json:"date"`
	*types.DayRecord
}

// NewHistoryHandler returns the newest records first, `days` limits the
// number of records (default 30).
func NewHistoryHandler(logger *slog.Logger, coord Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := intOrDefault(r.URL, "days", 30)
		if days <= 0 {
			days = 30
		}
		h := coord.History()

		entries := make([]historyEntry, 0, min(days, len(h)))
		for _, date := range h.DatesDesc() {
			if len(entries) >= days {
				break
			}
			entries = append(entries, historyEntry{Date: date, DayRecord: h[date]})
		}

		writeJSON(logger, w, http.StatusOK, entries)
	}
}

func NewProfileHandler(logger *slog.Logger, coord Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := coord.Profile()
		out := make(map[string]float64, len(p))
		for h, v := range p {
			out[strconv.Itoa(h)] = v
		}
		writeJSON(logger, w, http.StatusOK, out)
	}
}
