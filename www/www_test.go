package www

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/icodeforyou/solarforecast-ml/config"
	"github.com/icodeforyou/solarforecast-ml/coordinator"
	"github.com/icodeforyou/solarforecast-ml/database"
	"github.com/icodeforyou/solarforecast-ml/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoordinator struct {
	triggerErr error
	forecasts  int
	learnings  int
}

func (f *fakeCoordinator) Data() types.Bundle {
	return types.Bundle{Today: 12.5, Tomorrow: 9.25, Accuracy: 88.8, AverageYield30Days: 11}
}

func (f *fakeCoordinator) Status() string { return "OK" }

func (f *fakeCoordinator) Diagnostics() coordinator.Diagnostics {
	return coordinator.Diagnostics{BaseCapacity: 10, ForecastMethod: "service"}
}

func (f *fakeCoordinator) History() types.History {
	actual := 7.5
	return types.History{
		"2025-06-01": {Predicted: 8, Actual: &actual},
		"2025-06-02": {Predicted: 9},
		"2025-06-03": {Predicted: 10},
	}
}

func (f *fakeCoordinator) Profile() types.HourlyProfile {
	return types.HourlyProfile{12: 0.6, 13: 0.4}
}

func (f *fakeCoordinator) TriggerForecast(ctx context.Context) error {
	f.forecasts++
	return f.triggerErr
}

func (f *fakeCoordinator) TriggerLearning(ctx context.Context) error {
	f.learnings++
	return f.triggerErr
}

type fakeRecords struct {
	query database.LogQuery
	limit int
}

func (f *fakeRecords) GetLearningLog(ctx context.Context, limit int) ([]database.LearningLogRow, error) {
	f.limit = limit
	return []database.LearningLogRow{{Date: "2025-06-01", Predicted: 8, Actual: 7.5, Error: 0.5, BaseBefore: 1, BaseAfter: 0.999}}, nil
}

func (f *fakeRecords) GetLogEntries(ctx context.Context, q database.LogQuery) ([]database.LogEntryRow, error) {
	f.query = q
	return []database.LogEntryRow{{Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), Level: int(slog.LevelWarn), Module: "weather", Message: "hello"}}, nil
}

func newTestServer(coord *fakeCoordinator, records Records) *Server {
	return NewServer(config.AppConfigApi{}, coord, records, SysInfo{Version: "test", Location: "data"})
}

func request(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestStatus(t *testing.T) {
	rec := request(t, newTestServer(&fakeCoordinator{}, nil), http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 12.5, body["data"].(map[string]any)["heute"])
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "service", body["diagnostics"].(map[string]any)["forecast_method"])
}

func TestTriggers(t *testing.T) {
	coord := &fakeCoordinator{}
	s := newTestServer(coord, nil)

	assert.Equal(t, http.StatusOK, request(t, s, http.MethodPost, "/api/forecast").Code)
	assert.Equal(t, http.StatusOK, request(t, s, http.MethodPost, "/api/learning").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, request(t, s, http.MethodGet, "/api/forecast").Code)
	assert.Equal(t, 1, coord.forecasts)
	assert.Equal(t, 1, coord.learnings)

	coord.triggerErr = errors.New("weather entity unavailable")
	rec := request(t, s, http.MethodPost, "/api/forecast")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "weather entity unavailable")
}

func TestHistory(t *testing.T) {
	rec := request(t, newTestServer(&fakeCoordinator{}, nil), http.MethodGet, "/api/history?days=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "2025-06-03", entries[0]["date"])
	assert.Equal(t, 10.0, entries[0]["predicted"])
	assert.Equal(t, "2025-06-02", entries[1]["date"])
}

func TestProfile(t *testing.T) {
	rec := request(t, newTestServer(&fakeCoordinator{}, nil), http.MethodGet, "/api/profile")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"12":0.6,"13":0.4}`, rec.Body.String())
}

func TestRecordsRequireDatabase(t *testing.T) {
	s := newTestServer(&fakeCoordinator{}, nil)
	// only the POST trigger is registered on this path
	assert.Equal(t, http.StatusMethodNotAllowed, request(t, s, http.MethodGet, "/api/learning").Code)
	assert.Equal(t, http.StatusNotFound, request(t, s, http.MethodGet, "/api/log").Code)
}

func TestLearningLog(t *testing.T) {
	records := &fakeRecords{}
	rec := request(t, newTestServer(&fakeCoordinator{}, records), http.MethodGet, "/api/learning?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, records.limit)
	assert.JSONEq(t,
		`[{"date":"2025-06-01","predicted":8,"actual":7.5,"error":0.5,"base_before":1,"base_after":0.999}]`,
		rec.Body.String())
}

func TestLog(t *testing.T) {
	records := &fakeRecords{}
	s := newTestServer(&fakeCoordinator{}, records)

	rec := request(t, s, http.MethodGet, "/api/log?level=warn&module=weather&page=2&pageSize=10")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, database.LogQuery{MinLevel: slog.LevelWarn, Module: "weather", Page: 2, PageSize: 10}, records.query)
	assert.Contains(t, rec.Body.String(), `"level":"WARN"`)
	assert.Contains(t, rec.Body.String(), `"module":"weather"`)

	request(t, s, http.MethodGet, "/api/log")
	assert.Equal(t, database.LogQuery{MinLevel: slog.LevelDebug, Page: 1, PageSize: 25}, records.query)
}

func TestSysInfo(t *testing.T) {
	rec := request(t, newTestServer(&fakeCoordinator{}, nil), http.MethodGet, "/api/sys_info")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
	assert.Contains(t, rec.Body.String(), `"store_location":"data"`)
	assert.Contains(t, rec.Body.String(), `"go_version"`)
}

func TestWebsocketFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newTestServer(&fakeCoordinator{}, nil)
	go s.hub.Run(ctx)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var b types.Bundle
	require.NoError(t, conn.ReadJSON(&b))
	assert.Equal(t, 12.5, b.Today)

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	s.Publish(types.Bundle{Today: 3.25, Tomorrow: 4})
	require.NoError(t, conn.ReadJSON(&b))
	assert.Equal(t, 3.25, b.Today)
	assert.Equal(t, 4.0, b.Tomorrow)
}
