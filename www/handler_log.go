package www

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/icodeforyou/solarforecast-ml/database"
	"github.com/icodeforyou/solarforecast-ml/logging"
)

type logEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Module    string    `json:"module,omitempty"`
	Message   string    `json:"message"`
	Attrs     string    `json:"attrs,omitempty"`
}

type learningEntry struct {
	Date       string  `json:"date"`
	Predicted  float64 `json:"predicted"`
	Actual     float64 `json:"actual"`
	Error      float64 `json:"error"`
	BaseBefore float64 `json:"base_before"`
	BaseAfter  float64 `json:"base_after"`
}

func NewLogHandler(logger *slog.Logger, records Records) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := max(intOrDefault(r.URL, "page", 1), 1)
		pageSize := intOrDefault(r.URL, "pageSize", 25)
		if pageSize <= 0 {
			pageSize = 25
		}
		rows, err := records.GetLogEntries(r.Context(), database.LogQuery{
			MinLevel: logging.ParseLevel(r.URL.Query().Get("level"), slog.LevelDebug),
			Module:   r.URL.Query().Get("module"),
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			logger.Error("handling log request", slog.Any("error", err))
			writeError(logger, w, http.StatusInternalServerError, err)
			return
		}

		entries := make([]logEntry, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, logEntry{
				Timestamp: row.Timestamp,
				Level:     slog.Level(row.Level).String(),
				Module:    row.Module,
				Message:   row.Message,
				Attrs:     row.Attrs,
			})
		}
		writeJSON(logger, w, http.StatusOK, entries)
	}
}

func NewLearningLogHandler(logger *slog.Logger, records Records) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := intOrDefault(r.URL, "limit", 30)
		if limit <= 0 {
			limit = 30
		}

		rows, err := records.GetLearningLog(r.Context(), limit)
		if err != nil {
			logger.Error("handling learning log request", slog.Any("error", err))
			writeError(logger, w, http.StatusInternalServerError, err)
			return
		}

		entries := make([]learningEntry, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, learningEntry(row))
		}
		writeJSON(logger, w, http.StatusOK, entries)
	}
}
