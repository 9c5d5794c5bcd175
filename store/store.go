package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/icodeforyou/solarforecast-ml/hours"
	"github.com/icodeforyou/solarforecast-ml/types"
)

const (
	WeightsArtifact = "learned_weights.json"
	HistoryArtifact = "prediction_history.json"
	ProfileArtifact = "hourly_profile.json"

	DefaultRetentionDays = 365
)

// ErrCorrupt marks a stored document that could not be decoded or failed
// validation. Read errors of the underlying storage are not wrapped.
var ErrCorrupt = errors.New("corrupt artifact")

// Artifacts lists every document kept by the store.
var Artifacts = []string{WeightsArtifact, HistoryArtifact, ProfileArtifact}

// Blobs is a durable key value store of JSON documents. *database.Database
// and *FileBlobs implement it.
type Blobs interface {
	GetArtifact(ctx context.Context, name string) ([]byte, bool, error)
	SaveArtifact(ctx context.Context, name string, data []byte) error
}

// Store reads and writes the model weights, the prediction history and the
// hourly profile. It holds no lock; callers serialize access.
type Store struct {
	logger        *slog.Logger
	blobs         Blobs
	retentionDays int
	now           func() time.Time
}

func New(logger *slog.Logger, blobs Blobs, retentionDays int) *Store {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Store{
		logger:        logger.With(slog.String("module", "store")),
		blobs:         blobs,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// LoadWeights returns the persisted model state. Missing documents yield
// defaults. Invalid keys fall back to their default value, a malformed
// document yields defaults and an error.
func (s *Store) LoadWeights(ctx context.Context, defaults types.ModelState) (types.ModelState, error) {
	data, ok, err := s.blobs.GetArtifact(ctx, WeightsArtifact)
	if err != nil {
		return defaults, err
	}
	if !ok {
		s.logger.Info("no learned weights found, using defaults")
		return defaults, nil
	}

	state, rejected, err := types.DecodeModelState(data, defaults)
	if err != nil {
		return defaults, fmt.Errorf("%s: %w: %w", WeightsArtifact, ErrCorrupt, err)
	}
	if len(rejected) > 0 {
		s.logger.Warn("invalid weights replaced by defaults", slog.Any("keys", rejected))
	}
	return state, nil
}

func (s *Store) SaveWeights(ctx context.Context, state types.ModelState) error {
	return s.save(ctx, WeightsArtifact, state)
}

// LoadHistory returns the persisted daily records, an empty history when
// nothing was stored or the document is malformed.
func (s *Store) LoadHistory(ctx context.Context) (types.History, error) {
	history := make(types.History)
	data, ok, err := s.blobs.GetArtifact(ctx, HistoryArtifact)
	if err != nil || !ok {
		return history, err
	}
	if err := json.Unmarshal(data, &history); err != nil {
		return make(types.History), fmt.Errorf("decoding %s: %w: %w", HistoryArtifact, ErrCorrupt, err)
	}
	for date, rec := range history {
		if rec == nil {
			delete(history, date)
		}
	}
	return history, nil
}

// SaveHistory prunes records older than the retention period from h and
// persists the remainder.
func (s *Store) SaveHistory(ctx context.Context, h types.History) error {
	cutoff := hours.AddDays(hours.Date(s.now()), -s.retentionDays)
	if n := h.PruneBefore(cutoff); n > 0 {
		s.logger.Debug("pruned history", slog.Int("removed", n), slog.String("cutoff", cutoff))
	}
	return s.save(ctx, HistoryArtifact, h)
}

// LoadProfile returns the persisted hourly profile. The second return value
// is false when there is none or it is invalid.
func (s *Store) LoadProfile(ctx context.Context) (types.HourlyProfile, bool, error) {
	data, ok, err := s.blobs.GetArtifact(ctx, ProfileArtifact)
	if err != nil || !ok {
		return nil, false, err
	}
	var p types.HourlyProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("decoding %s: %w: %w", ProfileArtifact, ErrCorrupt, err)
	}
	if err := p.Validate(); err != nil {
		return nil, false, fmt.Errorf("%s: %w: %w", ProfileArtifact, ErrCorrupt, err)
	}
	return p, len(p) > 0, nil
}

func (s *Store) SaveProfile(ctx context.Context, p types.HourlyProfile) error {
	return s.save(ctx, ProfileArtifact, p)
}

func (s *Store) save(ctx context.Context, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := s.blobs.SaveArtifact(ctx, name, data); err != nil {
		return err
	}
	s.logger.Debug("saved artifact", slog.String("name", name), slog.Int("bytes", len(data)))
	return nil
}
