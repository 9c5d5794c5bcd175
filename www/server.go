package www

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/icodeforyou/solarforecast-ml/config"
	"github.com/icodeforyou/solarforecast-ml/coordinator"
	"github.com/icodeforyou/solarforecast-ml/database"
	"github.com/icodeforyou/solarforecast-ml/types"
)

type Coordinator interface {
	Data() types.Bundle
	Status() string
	Diagnostics() coordinator.Diagnostics
	History() types.History
	Profile() types.HourlyProfile
	TriggerForecast(ctx context.Context) error
	TriggerLearning(ctx context.Context) error
}

// Records is the optional database backed part of the API.
type Records interface {
	GetLearningLog(ctx context.Context, limit int) ([]database.LearningLogRow, error)
	GetLogEntries(ctx context.Context, q database.LogQuery) ([]database.LogEntryRow, error)
}

type Server struct {
	logger  *slog.Logger
	config  config.AppConfigApi
	coord   Coordinator
	records Records
	hub     *Hub
	mux     *http.ServeMux
}

// NewServer wires the HTTP API. records may be nil when no database is
// configured, the learning log and log endpoints are then not registered.
func NewServer(cnfg config.AppConfigApi, coord Coordinator, records Records, sysInfo SysInfo) *Server {
	logger := slog.Default().With("module", "www")

	s := &Server{
		logger:  logger,
		config:  cnfg,
		coord:   coord,
		records: records,
		hub:     NewHub(logger),
		mux:     http.NewServeMux(),
	}

	logReqMW := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("url", r.URL.String()),
				slog.String("remoteAddr", r.RemoteAddr))
			next.ServeHTTP(w, r)
		})
	}

	s.mux.Handle("GET /api/status", logReqMW(NewStatusHandler(
		logger.With(slog.String("handler", "status")),
		coord)))

	s.mux.Handle("POST /api/forecast", logReqMW(NewTriggerHandler(
		logger.With(slog.String("handler", "forecast")),
		coord.TriggerForecast)))

	s.mux.Handle("POST /api/learning", logReqMW(NewTriggerHandler(
		logger.With(slog.String("handler", "learning")),
		coord.TriggerLearning)))

	s.mux.Handle("GET /api/history", logReqMW(NewHistoryHandler(
		logger.With(slog.String("handler", "history")),
		coord)))

	s.mux.Handle("GET /api/profile", logReqMW(NewProfileHandler(
		logger.With(slog.String("handler", "profile")),
		coord)))

	s.mux.Handle("GET /api/sys_info", logReqMW(NewSysInfoHandler(
		logger.With(slog.String("handler", "sys_info")),
		sysInfo)))

	if records != nil {
		s.mux.Handle("GET /api/learning", logReqMW(NewLearningLogHandler(
			logger.With(slog.String("handler", "learning_log")),
			records)))

		s.mux.Handle("GET /api/log", logReqMW(NewLogHandler(
			logger.With(slog.String("handler", "log")),
			records)))
	}

	s.mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		name := r.Header.Get("User-Agent")
		client, err := NewClient(s.hub, w, r, name)
		if err != nil {
			s.logger.Error("new websocket client failed", slog.Any("error", err))
			return
		}
		if msg, err := json.Marshal(coord.Data()); err == nil {
			client.send <- msg
		}
		if !s.hub.register(client) {
			client.conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Publish is registered as coordinator listener and forwards every bundle
// to the websocket clients.
func (s *Server) Publish(b types.Bundle) {
	msg, err := json.Marshal(b)
	if err != nil {
		s.logger.Error("failed to encode bundle", slog.Any("error", err))
		return
	}
	s.hub.Publish(msg)
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.logger.Info("starting server...", "port", s.config.Port)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.Address, s.config.Port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.hub.Run(ctx)

	srvErrors := make(chan error, 1)
	go func() {
		srvErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-srvErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", slog.Any("error", err))
		}

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown failed", slog.Any("error", err))
		}
	}
}
