package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sentiment-alerts/internal/config"
	"sentiment-alerts/internal/market"
)

// memStore is an in-memory SnapshotStore holding at most one snapshot.
type memStore struct {
	snap    market.Snapshot
	has     bool
	saves   int
	saveErr error
	now     func() time.Time
}

func (m *memStore) SaveSnapshot(ctx context.Context, snap market.Snapshot) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snap = snap
	m.has = true
	return nil
}

func (m *memStore) LatestSnapshotWithin(ctx context.Context, maxAge time.Duration) (market.Snapshot, bool, error) {
	if !m.has {
		return market.Snapshot{}, false, nil
	}
	if m.now().Sub(m.snap.CachedAt) > maxAge {
		return market.Snapshot{}, false, nil
	}
	return m.snap, true, nil
}

func (m *memStore) LatestSnapshot(ctx context.Context) (market.Snapshot, bool, error) {
	return m.snap, m.has, nil
}

func (m *memStore) DeleteSnapshotsOlderThan(ctx context.Context, days int) (int64, error) {
	return 0, nil
}

// stubSource counts fetches and returns a scripted result.
type stubSource struct {
	snap    market.Snapshot
	err     error
	fetches int
}

func (s *stubSource) Fetch(ctx context.Context) (market.Snapshot, error) {
	s.fetches++
	if s.err != nil {
		return market.Snapshot{}, s.err
	}
	return s.snap, nil
}

func testService(store *memStore, source *stubSource) (*Service, *time.Time) {
	clock := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	svc := New(store, source, config.CacheConfig{
		FreshnessWindow: 30 * time.Minute,
		StaleWindow:     180 * time.Minute,
	}, zerolog.Nop())
	svc.now = func() time.Time { return clock }
	return svc, &clock
}

func freshSnapshot(value int, cachedAt time.Time) market.Snapshot {
	return market.Snapshot{
		Value:          value,
		Classification: market.Classify(value),
		ObservedAt:     cachedAt,
		CachedAt:       cachedAt,
		Source:         "cnn",
	}
}

func TestCurrentServesFreshFromCache(t *testing.T) {
	store := &memStore{}
	source := &stubSource{}
	svc, clock := testService(store, source)

	store.snap = freshSnapshot(60, clock.Add(-10*time.Minute))
	store.has = true

	snap, err := svc.Current(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.fetches != 0 {
		t.Fatalf("fresh cache hit must not fetch, got %d fetches", source.fetches)
	}
	if !snap.Cached || snap.Stale {
		t.Fatalf("expected cached=true stale=false, got cached=%v stale=%v", snap.Cached, snap.Stale)
	}
	if snap.Value != 60 {
		t.Fatalf("expected cached value 60, got %d", snap.Value)
	}
}

func TestCurrentFetchesAtMostOncePerWindow(t *testing.T) {
	store := &memStore{}
	source := &stubSource{}
	svc, clock := testService(store, source)
	source.snap = freshSnapshot(45, *clock)

	for i := 0; i < 2; i++ {
		if _, err := svc.Current(context.Background(), false); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}
	if source.fetches != 1 {
		t.Fatalf("two reads within the freshness window should fetch once, got %d", source.fetches)
	}
}

func TestCurrentFallsBackToStale(t *testing.T) {
	store := &memStore{}
	source := &stubSource{err: errors.New("all sources down")}
	svc, clock := testService(store, source)

	// Too old for freshness, inside the stale window.
	store.snap = freshSnapshot(38, clock.Add(-90*time.Minute))
	store.has = true

	snap, err := svc.Current(context.Background(), false)
	if err != nil {
		t.Fatalf("stale fallback should not error: %v", err)
	}
	if !snap.Cached || !snap.Stale {
		t.Fatalf("expected cached=true stale=true, got cached=%v stale=%v", snap.Cached, snap.Stale)
	}
	if snap.Value != 38 {
		t.Fatalf("expected stale value 38, got %d", snap.Value)
	}
}

func TestCurrentReturnsNoDataWhenEverythingFails(t *testing.T) {
	store := &memStore{}
	source := &stubSource{err: errors.New("all sources down")}
	svc, _ := testService(store, source)

	_, err := svc.Current(context.Background(), false)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestCurrentBeyondStaleWindowIsNoData(t *testing.T) {
	store := &memStore{}
	source := &stubSource{err: errors.New("all sources down")}
	svc, clock := testService(store, source)

	store.snap = freshSnapshot(38, clock.Add(-200*time.Minute))
	store.has = true

	_, err := svc.Current(context.Background(), false)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("snapshot older than stale window must not be served, got %v", err)
	}
}

func TestForceRefreshBypassesFreshCache(t *testing.T) {
	store := &memStore{}
	source := &stubSource{}
	svc, clock := testService(store, source)

	store.snap = freshSnapshot(60, clock.Add(-5*time.Minute))
	store.has = true
	source.snap = freshSnapshot(72, *clock)

	snap, err := svc.ForceRefresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.fetches != 1 {
		t.Fatalf("force refresh must hit the source, got %d fetches", source.fetches)
	}
	if snap.Value != 72 {
		t.Fatalf("expected refreshed value 72, got %d", snap.Value)
	}
	if snap.Cached {
		t.Fatal("freshly fetched snapshot must not be marked cached")
	}
}

func TestCurrentReturnsSnapshotWhenSaveFails(t *testing.T) {
	store := &memStore{saveErr: errors.New("db down")}
	source := &stubSource{}
	svc, clock := testService(store, source)
	source.snap = freshSnapshot(55, *clock)

	snap, err := svc.Current(context.Background(), false)
	if err != nil {
		t.Fatalf("persist failure must not discard a good fetch: %v", err)
	}
	if snap.Value != 55 {
		t.Fatalf("expected fetched value 55, got %d", snap.Value)
	}
}

func TestStatusNeverFetches(t *testing.T) {
	store := &memStore{}
	source := &stubSource{}
	svc, clock := testService(store, source)

	store.snap = freshSnapshot(64, clock.Add(-45*time.Minute))
	store.has = true

	st, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.fetches != 0 {
		t.Fatal("status must be read-only")
	}
	if !st.HasCache || st.IsFresh || !st.IsStaleUsable {
		t.Fatalf("expected stale-usable status, got %+v", st)
	}
	if st.AgeMinutes != 45 {
		t.Fatalf("expected age 45 minutes, got %d", st.AgeMinutes)
	}
	if st.LastValue != 64 {
		t.Fatalf("expected last value 64, got %d", st.LastValue)
	}
}

func TestStatusEmptyCache(t *testing.T) {
	store := &memStore{}
	source := &stubSource{}
	svc, _ := testService(store, source)

	st, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.HasCache {
		t.Fatal("empty store must report no cache")
	}
}
