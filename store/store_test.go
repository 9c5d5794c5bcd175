package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/icodeforyou/solarforecast-ml/database"
	"github.com/icodeforyou/solarforecast-ml/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	blobs, err := NewFileBlobs(dir)
	require.NoError(t, err)
	return New(slog.Default(), blobs, 365), dir
}

func defaultState() types.ModelState {
	return types.ModelState{Weights: types.DefaultWeights(), BaseCapacity: 10}
}

func ptr(v float64) *float64 { return &v }

func TestWeightsMissingYieldsDefaults(t *testing.T) {
	s, _ := newFileStore(t)
	state, err := s.LoadWeights(context.Background(), defaultState())
	require.NoError(t, err)
	assert.Equal(t, defaultState(), state)
}

func TestWeightsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, dir := newFileStore(t)

	state := defaultState()
	state.Weights.Base = 1.002
	state.Weights.Temp = 0.05
	state.BaseCapacity = 12.5
	require.NoError(t, s.SaveWeights(ctx, state))

	data, err := os.ReadFile(filepath.Join(dir, WeightsArtifact))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"base\": 1.002")

	loaded, err := s.LoadWeights(ctx, defaultState())
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestWeightsInvalidKeysFallBack(t *testing.T) {
	ctx := context.Background()
	s, dir := newFileStore(t)

	doc := `{"base": 7, "fs": "x", "temp": 0.2, "base_capacity": -1}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, WeightsArtifact), []byte(doc), 0644))

	state, err := s.LoadWeights(ctx, defaultState())
	require.NoError(t, err)
	assert.Equal(t, 1.0, state.Weights.Base)
	assert.Equal(t, 0.5, state.Weights.FS)
	assert.Equal(t, 0.2, state.Weights.Temp)
	assert.Equal(t, 10.0, state.BaseCapacity)
}

func TestCorruptArtifactDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	s, dir := newFileStore(t)

	require.NoError(t, s.SaveHistory(ctx, types.History{daysAgo(1): {Predicted: 5}}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProfileArtifact), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, WeightsArtifact), []byte("[]"), 0644))

	_, ok, err := s.LoadProfile(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.False(t, ok)

	state, err := s.LoadWeights(ctx, defaultState())
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Equal(t, defaultState(), state)

	h, err := s.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, h, 1)
}

func daysAgo(days int) string {
	return time.Now().AddDate(0, 0, -days).Format("2006-01-02")
}

func TestHistoryRoundTripAndPrune(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)

	recent := daysAgo(2)
	old := daysAgo(400)
	h := types.History{
		recent: {
			Predicted:         8.5,
			PredictedTomorrow: 9.25,
			Actual:            ptr(10.1),
			Features:          map[string]float64{"temp": 21.5},
			HourlyData:        map[string]float64{"12": 1.5, "13": 1.25},
		},
		daysAgo(1): {Predicted: 7},
		old:        {Predicted: 3, Actual: ptr(2)},
	}
	require.NoError(t, s.SaveHistory(ctx, h))
	assert.NotContains(t, h, old)

	loaded, err := s.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, h, loaded)
}

func TestProfileRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, dir := newFileStore(t)

	_, ok, err := s.LoadProfile(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	p := types.UniformProfile()
	require.NoError(t, s.SaveProfile(ctx, p))

	data, err := os.ReadFile(filepath.Join(dir, ProfileArtifact))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"23":`)

	loaded, ok, err := s.LoadProfile(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDeltaMapValues(t, p, loaded, 1e-12)
}

func TestProfileOutOfRangeRejected(t *testing.T) {
	ctx := context.Background()
	s, dir := newFileStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProfileArtifact), []byte(`{"24": 0.5}`), 0644))

	_, ok, err := s.LoadProfile(ctx)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	db, err := database.New(ctx, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer db.Close()

	s := New(slog.Default(), db, 0)

	state := defaultState()
	state.Weights.Base = 0.9
	require.NoError(t, s.SaveWeights(ctx, state))
	h := types.History{daysAgo(0): {Predicted: 4, HourlyData: map[string]float64{"9": 0.5}}}
	require.NoError(t, s.SaveHistory(ctx, h))

	loaded, err := s.LoadWeights(ctx, defaultState())
	require.NoError(t, err)
	assert.Equal(t, state, loaded)

	history, err := s.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, h, history)
}

func TestMigrateLegacy(t *testing.T) {
	legacy := t.TempDir()
	dir := filepath.Join(t.TempDir(), "data")

	require.NoError(t, os.WriteFile(filepath.Join(legacy, WeightsArtifact), []byte(`{"base":1.1}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(legacy, HistoryArtifact), []byte(`{"old":true}`), 0644))
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, HistoryArtifact), []byte(`{}`), 0644))

	require.NoError(t, MigrateLegacy(slog.Default(), legacy, dir, Artifacts))

	data, err := os.ReadFile(filepath.Join(dir, WeightsArtifact))
	require.NoError(t, err)
	assert.Equal(t, `{"base":1.1}`, string(data))

	data, err = os.ReadFile(filepath.Join(dir, HistoryArtifact))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data), "new location wins")

	entries, err := os.ReadDir(legacy)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMigrateLegacySameDirIsNoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, WeightsArtifact), []byte(`{}`), 0644))
	require.NoError(t, MigrateLegacy(slog.Default(), dir, dir, Artifacts))
	_, err := os.Stat(filepath.Join(dir, WeightsArtifact))
	assert.NoError(t, err)
}
