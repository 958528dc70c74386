package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sentiment-alerts/internal/config"
	"sentiment-alerts/internal/fetcher"
	"sentiment-alerts/internal/market"
	"sentiment-alerts/internal/storage"
)

// ErrNoData indicates no snapshot exists within even the stale window.
// Callers must surface an explicit "unavailable" state, never a zero value.
var ErrNoData = errors.New("cache: no snapshot available")

// Service serves the freshest acceptable snapshot while minimising upstream
// fetches. Two windows govern it: the freshness window on the happy path and
// a wider stale window used only when every source fails.
type Service struct {
	store     storage.SnapshotStore
	source    fetcher.Source
	freshness time.Duration
	stale     time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// New constructs the cache service.
func New(store storage.SnapshotStore, source fetcher.Source, cfg config.CacheConfig, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		source:    source,
		freshness: cfg.FreshnessWindow,
		stale:     cfg.StaleWindow,
		logger:    logger.With().Str("component", "cache").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Current returns the current snapshot. With forceRefresh false a snapshot
// younger than the freshness window is served without touching the upstream;
// otherwise the source chain is consulted, falling back to a stale snapshot
// when it fails, and ErrNoData when nothing acceptable exists.
func (s *Service) Current(ctx context.Context, forceRefresh bool) (market.Snapshot, error) {
	if !forceRefresh {
		snap, ok, err := s.store.LatestSnapshotWithin(ctx, s.freshness)
		if err != nil {
			return market.Snapshot{}, fmt.Errorf("cache lookup: %w", err)
		}
		if ok {
			snap.Cached = true
			s.logger.Debug().
				Int("value", snap.Value).
				Dur("age", snap.Age(s.now())).
				Msg("serving fresh snapshot from cache")
			return snap, nil
		}
	}

	snap, fetchErr := s.source.Fetch(ctx)
	if fetchErr == nil {
		snap.CachedAt = s.now()
		if err := s.store.SaveSnapshot(ctx, snap); err != nil {
			// The fetched value is still good; the next refresh retries
			// the write.
			s.logger.Error().Err(err).Msg("failed to persist snapshot")
		}
		s.logger.Info().
			Int("value", snap.Value).
			Str("source", snap.Source).
			Str("classification", string(snap.Classification)).
			Msg("fetched fresh snapshot")
		return snap, nil
	}

	s.logger.Warn().Err(fetchErr).Msg("fetch failed, checking stale window")

	stale, ok, err := s.store.LatestSnapshotWithin(ctx, s.stale)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("stale cache lookup: %w", err)
	}
	if ok {
		stale.Cached = true
		stale.Stale = true
		s.logger.Warn().
			Int("value", stale.Value).
			Dur("age", stale.Age(s.now())).
			Msg("serving stale snapshot, upstream unavailable")
		return stale, nil
	}

	return market.Snapshot{}, fmt.Errorf("%w (last fetch error: %v)", ErrNoData, fetchErr)
}

// ForceRefresh bypasses the freshness check. Used by the scheduled refresh
// job and operator-triggered refresh so both share one code path.
func (s *Service) ForceRefresh(ctx context.Context) (market.Snapshot, error) {
	return s.Current(ctx, true)
}

// Status is a read-only diagnostic view of the cache.
type Status struct {
	HasCache       bool
	AgeMinutes     int
	IsFresh        bool
	IsStaleUsable  bool
	LastValue      int
	Classification market.Classification
	Source         string
	CachedAt       time.Time
	ObservedAt     time.Time
}

// Status reports cache state without ever triggering a fetch.
func (s *Service) Status(ctx context.Context) (Status, error) {
	snap, ok, err := s.store.LatestSnapshot(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("cache status: %w", err)
	}
	if !ok {
		return Status{}, nil
	}

	age := snap.Age(s.now())
	return Status{
		HasCache:       true,
		AgeMinutes:     int(age.Minutes()),
		IsFresh:        age <= s.freshness,
		IsStaleUsable:  age <= s.stale,
		LastValue:      snap.Value,
		Classification: snap.Classification,
		Source:         snap.Source,
		CachedAt:       snap.CachedAt,
		ObservedAt:     snap.ObservedAt,
	}, nil
}
