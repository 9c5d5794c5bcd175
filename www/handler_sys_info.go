package www

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

type SysInfo struct {
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
	Backend   string    `json:"store_backend"`
	Location  string    `json:"store_location"`
	Database  bool      `json:"database"`
}

func NewSysInfoHandler(logger *slog.Logger, sysInfo SysInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(logger, w, http.StatusOK, struct {
			SysInfo
			GoVersion string `json:"go_version"`
			Uptime    string `json:"uptime"`
		}{
			SysInfo:   sysInfo,
			GoVersion: runtime.Version(),
			Uptime:    time.Since(sysInfo.StartedAt).Round(time.Second).String(),
		})
	}
}
