package fetcher

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"sentiment-alerts/internal/market"
)

// Provider retrieves one sentiment snapshot from a single upstream source.
// Implementations perform exactly one attempt; retry policy lives in Chain.
type Provider interface {
	Name() string
	Fetch(ctx context.Context) (market.Snapshot, error)
}

// ChainOptions tune fallback behaviour.
type ChainOptions struct {
	// MaxRetries bounds attempts against the primary provider.
	MaxRetries int
	// BackoffMin/BackoffMax bound the randomized delay between primary
	// attempts. The delay is drawn uniformly so parallel processes do not
	// retry in lockstep against a rate limiter.
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// Chain fetches from an ordered list of providers: the first is primary and
// retried, the rest are fallbacks tried exactly once each.
type Chain struct {
	providers []Provider
	opts      ChainOptions
	logger    zerolog.Logger
}

// NewChain constructs a provider chain.
func NewChain(providers []Provider, opts ChainOptions, logger zerolog.Logger) *Chain {
	if len(providers) == 0 {
		panic("fetcher chain requires at least one provider")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = time.Second
	}
	if opts.BackoffMax < opts.BackoffMin {
		opts.BackoffMax = opts.BackoffMin + 2*time.Second
	}
	return &Chain{
		providers: providers,
		opts:      opts,
		logger:    logger.With().Str("component", "fetcher_chain").Logger(),
	}
}

// Fetch returns one fresh snapshot, or the typed error of the last provider
// tried when every source fails.
func (c *Chain) Fetch(ctx context.Context) (market.Snapshot, error) {
	primary := c.providers[0]
	snap, err := c.fetchPrimary(ctx, primary)
	if err == nil {
		return snap, nil
	}
	lastErr := err

	for _, fallback := range c.providers[1:] {
		c.logger.Warn().
			Str("primary", primary.Name()).
			Str("fallback", fallback.Name()).
			Err(lastErr).
			Msg("primary exhausted, trying fallback source")

		snap, err = fallback.Fetch(ctx)
		if err == nil {
			return snap, nil
		}
		lastErr = err
	}

	c.logger.Error().Err(lastErr).Msg("all sentiment sources failed")
	return market.Snapshot{}, lastErr
}

func (c *Chain) fetchPrimary(ctx context.Context, primary Provider) (market.Snapshot, error) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			if err := c.sleepJittered(ctx); err != nil {
				return market.Snapshot{}, err
			}
		}

		snap, err := primary.Fetch(ctx)
		if err == nil {
			return snap, nil
		}
		lastErr = err

		fe, ok := AsFetchError(err)
		if ok && !fe.Retryable() {
			// Schema failures repeat deterministically.
			break
		}
		c.logger.Warn().
			Str("provider", primary.Name()).
			Int("attempt", attempt).
			Int("max_attempts", c.opts.MaxRetries).
			Err(err).
			Msg("primary fetch attempt failed")
	}
	return market.Snapshot{}, lastErr
}

func (c *Chain) sleepJittered(ctx context.Context) error {
	delay := c.opts.BackoffMin
	if spread := c.opts.BackoffMax - c.opts.BackoffMin; spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread)))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Source is the capability the cache service consumes.
type Source interface {
	Fetch(ctx context.Context) (market.Snapshot, error)
}

var (
	_ Source = (*Chain)(nil)

	errEmptyPayload = errors.New("empty payload")
)
