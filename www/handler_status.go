package www

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/icodeforyou/solarforecast-ml/coordinator"
	"github.com/icodeforyou/solarforecast-ml/types"
)

type statusResponse struct {
	Data        types.Bundle            `json:"data"`
	Status      string                  `json:"status"`
	Diagnostics coordinator.Diagnostics `json:"diagnostics"`
}

func NewStatusHandler(logger *slog.Logger, coord Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(logger, w, http.StatusOK, statusResponse{
			Data:        coord.Data(),
			Status:      coord.Status(),
			Diagnostics: coord.Diagnostics(),
		})
	}
}

// NewTriggerHandler runs a coordinator operation on request. The operation
// has its own error boundary, a failure is reported but the state stays valid.
func NewTriggerHandler(logger *slog.Logger, trigger func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := trigger(r.Context()); err != nil {
			logger.Warn("manual trigger failed", slog.Any("error", err))
			writeError(logger, w, http.StatusBadGateway, err)
			return
		}
		writeJSON(logger, w, http.StatusOK, map[string]string{"result": "ok"})
	}
}
