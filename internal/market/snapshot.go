package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Value bounds of the index scale.
const (
	MinValue = 0
	MaxValue = 100
)

// Classification buckets an index value into a sentiment rating.
type Classification string

const (
	ExtremeFear  Classification = "extreme_fear"
	Fear         Classification = "fear"
	Neutral      Classification = "neutral"
	Greed        Classification = "greed"
	ExtremeGreed Classification = "extreme_greed"
)

// Classify derives the sentiment rating from an index value. Ratings reported
// by providers are discarded so every layer sees one consistent mapping.
func Classify(value int) Classification {
	switch {
	case value < 25:
		return ExtremeFear
	case value < 45:
		return Fear
	case value < 55:
		return Neutral
	case value < 75:
		return Greed
	default:
		return ExtremeGreed
	}
}

// Snapshot is the canonical sentiment observation passed between all layers.
// Providers populate it at the boundary; nothing downstream re-parses raw
// payloads or branches on provider-specific key names.
type Snapshot struct {
	// Value is the index on the 0..100 scale, rounded from Score.
	Value int
	// Score preserves the provider's reported precision.
	Score          decimal.Decimal
	Classification Classification
	// ObservedAt is the timestamp claimed by the provider.
	ObservedAt time.Time
	// CachedAt is when the snapshot was written to the store. Zero for a
	// snapshot that has not been persisted yet.
	CachedAt time.Time
	Source   string

	// Cached and Stale describe how the snapshot was served, not what it is;
	// they are set by the cache service and never persisted.
	Cached bool
	Stale  bool

	// Historical context, present only when the provider supplies it.
	PreviousClose *int
	WeekAgo       *int
	MonthAgo      *int
	YearAgo       *int
}

// FromScore builds a snapshot core from a raw score, rejecting values outside
// the index domain.
func FromScore(score decimal.Decimal, observedAt time.Time, source string) (Snapshot, error) {
	value := int(score.Round(0).IntPart())
	if value < MinValue || value > MaxValue {
		return Snapshot{}, fmt.Errorf("index value %s outside [%d, %d]", score.String(), MinValue, MaxValue)
	}
	return Snapshot{
		Value:          value,
		Score:          score,
		Classification: Classify(value),
		ObservedAt:     observedAt,
		Source:         source,
	}, nil
}

// Age reports how long ago the snapshot was cached.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CachedAt)
}
