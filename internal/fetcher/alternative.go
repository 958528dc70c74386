package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sentiment-alerts/internal/market"
)

const (
	alternativeProviderName   = "alternative.me"
	defaultAlternativeBaseURL = "https://api.alternative.me/fng/"
)

// AlternativeOptions parameterise the Alternative.me fallback provider.
type AlternativeOptions struct {
	BaseURL string
	Timeout time.Duration
}

// Alternative fetches the Fear & Greed index from the Alternative.me API.
type Alternative struct {
	logger zerolog.Logger
	client *http.Client
	url    string
}

// NewAlternative constructs the Alternative.me provider.
func NewAlternative(opts AlternativeOptions, logger zerolog.Logger) *Alternative {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	url := strings.TrimSpace(opts.BaseURL)
	if url == "" {
		url = defaultAlternativeBaseURL
	}

	return &Alternative{
		logger: logger.With().Str("component", "alternative_provider").Logger(),
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// Name identifies the provider in snapshots and logs.
func (a *Alternative) Name() string { return alternativeProviderName }

// Fetch performs a single request against the Alternative.me API.
func (a *Alternative) Fetch(ctx context.Context) (market.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return market.Snapshot{}, unavailable(alternativeProviderName, 0, "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return market.Snapshot{}, unavailable(alternativeProviderName, 0, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return market.Snapshot{}, unavailable(alternativeProviderName, resp.StatusCode, "unexpected status", nil)
	}

	var payload alternativeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return market.Snapshot{}, schema(alternativeProviderName, "decode payload", err)
	}

	return parseAlternativePayload(payload)
}

type alternativeResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
		Timestamp           string `json:"timestamp"`
	} `json:"data"`
}

func parseAlternativePayload(payload alternativeResponse) (market.Snapshot, error) {
	if len(payload.Data) == 0 {
		return market.Snapshot{}, schema(alternativeProviderName, "missing data entries", errEmptyPayload)
	}
	latest := payload.Data[0]

	score, err := decimal.NewFromString(latest.Value)
	if err != nil {
		return market.Snapshot{}, schema(alternativeProviderName, fmt.Sprintf("parse value %q", latest.Value), err)
	}

	observedAt := time.Now().UTC()
	if latest.Timestamp != "" {
		if unix, err := strconv.ParseInt(latest.Timestamp, 10, 64); err == nil {
			observedAt = time.Unix(unix, 0).UTC()
		}
	}

	snap, err := market.FromScore(score, observedAt, alternativeProviderName)
	if err != nil {
		return market.Snapshot{}, schema(alternativeProviderName, "value outside index domain", err)
	}
	return snap, nil
}

var _ Provider = (*Alternative)(nil)
