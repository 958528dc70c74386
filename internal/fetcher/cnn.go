package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sentiment-alerts/internal/market"
)

const (
	cnnProviderName   = "cnn"
	defaultCNNBaseURL = "https://production.dataviz.cnn.io/index/fearandgreed/graphdata"

	// The endpoint sits behind bot detection and rejects clients that do
	// not look like a browser, typically with 418.
	defaultCNNUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// CNNOptions parameterise the CNN index provider.
type CNNOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// CNN fetches the Fear & Greed index from CNN's dataviz endpoint.
type CNN struct {
	opts   CNNOptions
	logger zerolog.Logger
	client *http.Client
	url    string
}

// NewCNN constructs the CNN provider.
func NewCNN(opts CNNOptions, logger zerolog.Logger) *CNN {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	url := strings.TrimRight(opts.BaseURL, "/")
	if url == "" {
		url = defaultCNNBaseURL
	}

	return &CNN{
		opts:   opts,
		logger: logger.With().Str("component", "cnn_provider").Logger(),
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// Name identifies the provider in snapshots and logs.
func (c *CNN) Name() string { return cnnProviderName }

// Fetch performs a single request against the CNN endpoint.
func (c *CNN) Fetch(ctx context.Context) (market.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return market.Snapshot{}, unavailable(cnnProviderName, 0, "build request", err)
	}

	ua := strings.TrimSpace(c.opts.UserAgent)
	if ua == "" {
		ua = defaultCNNUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.client.Do(req)
	if err != nil {
		return market.Snapshot{}, unavailable(cnnProviderName, 0, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTeapot, resp.StatusCode == http.StatusTooManyRequests:
		return market.Snapshot{}, unavailable(cnnProviderName, resp.StatusCode, "request rejected by rate limiter", nil)
	default:
		return market.Snapshot{}, unavailable(cnnProviderName, resp.StatusCode, "unexpected status", nil)
	}

	var payload cnnResponse
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return market.Snapshot{}, schema(cnnProviderName, "decode payload", err)
	}

	return parseCNNPayload(payload)
}

type cnnResponse struct {
	FearAndGreed struct {
		Score           json.Number `json:"score"`
		Rating          string      `json:"rating"`
		Timestamp       string      `json:"timestamp"`
		PreviousClose   json.Number `json:"previous_close"`
		Previous1Week   json.Number `json:"previous_1_week"`
		Previous1Month  json.Number `json:"previous_1_month"`
		Previous1Year   json.Number `json:"previous_1_year"`
	} `json:"fear_and_greed"`
}

func parseCNNPayload(payload cnnResponse) (market.Snapshot, error) {
	raw := payload.FearAndGreed
	if raw.Score.String() == "" {
		return market.Snapshot{}, schema(cnnProviderName, "missing fear_and_greed.score", errEmptyPayload)
	}

	score, err := decimal.NewFromString(raw.Score.String())
	if err != nil {
		return market.Snapshot{}, schema(cnnProviderName, fmt.Sprintf("parse score %q", raw.Score.String()), err)
	}

	observedAt := time.Now().UTC()
	if raw.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
			observedAt = ts.UTC()
		}
	}

	snap, err := market.FromScore(score, observedAt, cnnProviderName)
	if err != nil {
		return market.Snapshot{}, schema(cnnProviderName, "score outside index domain", err)
	}

	snap.PreviousClose = optionalIndexValue(raw.PreviousClose)
	snap.WeekAgo = optionalIndexValue(raw.Previous1Week)
	snap.MonthAgo = optionalIndexValue(raw.Previous1Month)
	snap.YearAgo = optionalIndexValue(raw.Previous1Year)
	return snap, nil
}

// optionalIndexValue rounds a historical score, treating absent or
// out-of-domain values as missing rather than failing the whole snapshot.
func optionalIndexValue(n json.Number) *int {
	if n.String() == "" {
		return nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return nil
	}
	v := int(d.Round(0).IntPart())
	if v <= market.MinValue || v > market.MaxValue {
		return nil
	}
	return &v
}

var _ Provider = (*CNN)(nil)
