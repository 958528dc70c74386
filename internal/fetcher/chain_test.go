package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"sentiment-alerts/internal/market"
)

// fakeProvider returns scripted results in sequence and counts calls.
type fakeProvider struct {
	name  string
	snaps []market.Snapshot
	errs  []error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Fetch(ctx context.Context) (market.Snapshot, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.errs) {
		idx = len(f.errs) - 1
	}
	if err := f.errs[idx]; err != nil {
		return market.Snapshot{}, err
	}
	return f.snaps[idx], nil
}

func testChainOpts() ChainOptions {
	return ChainOptions{
		MaxRetries: 3,
		BackoffMin: time.Millisecond,
		BackoffMax: 2 * time.Millisecond,
	}
}

func snapWithValue(v int) market.Snapshot {
	return market.Snapshot{Value: v, Classification: market.Classify(v), Source: "fake"}
}

func TestChainPrimarySucceedsFirstTry(t *testing.T) {
	primary := &fakeProvider{
		name:  "primary",
		snaps: []market.Snapshot{snapWithValue(50)},
		errs:  []error{nil},
	}
	fallback := &fakeProvider{name: "fallback", errs: []error{errors.New("unused")}}

	chain := NewChain([]Provider{primary, fallback}, testChainOpts(), noopLogger())
	snap, err := chain.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Value != 50 {
		t.Fatalf("expected value 50, got %d", snap.Value)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback should not be consulted, got %d calls", fallback.calls)
	}
}

func TestChainRetriesPrimaryThenSucceeds(t *testing.T) {
	primary := &fakeProvider{
		name:  "primary",
		snaps: []market.Snapshot{{}, {}, snapWithValue(42)},
		errs: []error{
			unavailable("primary", 418, "rejected", nil),
			unavailable("primary", 418, "rejected", nil),
			nil,
		},
	}

	chain := NewChain([]Provider{primary}, testChainOpts(), noopLogger())
	snap, err := chain.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Value != 42 {
		t.Fatalf("expected value 42, got %d", snap.Value)
	}
	if primary.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", primary.calls)
	}
}

func TestChainSchemaErrorBreaksRetryLoop(t *testing.T) {
	primary := &fakeProvider{
		name: "primary",
		errs: []error{schema("primary", "bad payload", errEmptyPayload)},
	}
	fallback := &fakeProvider{
		name:  "fallback",
		snaps: []market.Snapshot{snapWithValue(33)},
		errs:  []error{nil},
	}

	chain := NewChain([]Provider{primary, fallback}, testChainOpts(), noopLogger())
	snap, err := chain.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.calls != 1 {
		t.Fatalf("schema error must not be retried, got %d attempts", primary.calls)
	}
	if snap.Value != 33 {
		t.Fatalf("expected fallback value 33, got %d", snap.Value)
	}
}

func TestChainFallbackTriedExactlyOnce(t *testing.T) {
	primary := &fakeProvider{
		name: "primary",
		errs: []error{unavailable("primary", 503, "down", nil)},
	}
	fallback := &fakeProvider{
		name: "fallback",
		errs: []error{unavailable("fallback", 502, "also down", nil)},
	}

	chain := NewChain([]Provider{primary, fallback}, testChainOpts(), noopLogger())
	_, err := chain.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error when every source fails")
	}
	if primary.calls != 3 {
		t.Fatalf("primary should exhaust retries, got %d", primary.calls)
	}
	if fallback.calls != 1 {
		t.Fatalf("fallback gets exactly one attempt, got %d", fallback.calls)
	}

	fe, ok := AsFetchError(err)
	if !ok {
		t.Fatalf("expected typed error from last provider, got %T", err)
	}
	if fe.Provider != "fallback" {
		t.Fatalf("error should come from the last source tried, got %s", fe.Provider)
	}
}

func TestChainHonorsContextCancellation(t *testing.T) {
	primary := &fakeProvider{
		name: "primary",
		errs: []error{unavailable("primary", 503, "down", nil)},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := testChainOpts()
	opts.BackoffMin = time.Minute
	opts.BackoffMax = 2 * time.Minute

	chain := NewChain([]Provider{primary}, opts, noopLogger())

	start := time.Now()
	_, err := chain.Fetch(ctx)
	if time.Since(start) > time.Second {
		t.Fatal("cancelled context must interrupt backoff sleep")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
