package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sentiment-alerts/internal/market"
)

func TestAlternativeFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"name": "Fear and Greed Index",
			"data": [
				{"value": "21", "value_classification": "Extreme Fear", "timestamp": "1756166400"}
			]
		}`))
	}))
	defer srv.Close()

	p := NewAlternative(AlternativeOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	snap, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("successful response should not error: %v", err)
	}
	if snap.Value != 21 {
		t.Fatalf("expected value 21, got %d", snap.Value)
	}
	if snap.Classification != market.ExtremeFear {
		t.Fatalf("expected extreme_fear, got %s", snap.Classification)
	}
	if snap.Source != "alternative.me" {
		t.Fatalf("expected source alternative.me, got %s", snap.Source)
	}
	if snap.ObservedAt.Unix() != 1756166400 {
		t.Fatalf("expected unix timestamp from payload, got %s", snap.ObservedAt)
	}
}

func TestAlternativeFetchEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	p := NewAlternative(AlternativeOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := p.Fetch(context.Background())

	fe, ok := AsFetchError(err)
	if !ok || fe.Kind != KindSchema {
		t.Fatalf("expected schema error for empty data, got %v", err)
	}
}

func TestAlternativeFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewAlternative(AlternativeOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := p.Fetch(context.Background())

	fe, ok := AsFetchError(err)
	if !ok || fe.Kind != KindUnavailable {
		t.Fatalf("expected unavailable error for 502, got %v", err)
	}
	if fe.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status code recorded, got %d", fe.StatusCode)
	}
}
