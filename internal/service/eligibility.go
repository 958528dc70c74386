package service

import (
	"context"
	"fmt"
	"time"

	"sentiment-alerts/internal/config"
	"sentiment-alerts/internal/storage"
)

// shouldNotify decides whether a subscriber must be notified on this tick.
// All comparisons happen in the subscriber's own zone: the firing condition
// is an exact local HH:MM match (tick resolution is one minute), and the
// dedup check compares local calendar dates, because a UTC-date comparison
// misfires for zones whose local midnight crosses a UTC day boundary.
func (s *Service) shouldNotify(sub storage.Subscriber, nowUTC time.Time) bool {
	pushTime := s.resolvePushTime(sub)
	loc := s.resolveZone(sub)

	local := nowUTC.In(loc)
	if local.Hour() != pushTime.Hour || local.Minute() != pushTime.Minute {
		return false
	}

	if sub.LastNotifiedAt == nil {
		return true
	}

	lastLocal := sub.LastNotifiedAt.In(loc)
	lastDate := time.Date(lastLocal.Year(), lastLocal.Month(), lastLocal.Day(), 0, 0, 0, 0, loc)
	nowDate := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	// Equal or later means already notified today.
	return lastDate.Before(nowDate)
}

func (s *Service) resolvePushTime(sub storage.Subscriber) config.WallClock {
	raw := sub.PushTime
	if raw == "" {
		raw = s.cfg.Notifications.DefaultPushTime
	}

	wc, err := config.ParseWallClock(raw)
	if err != nil {
		s.logger.Warn().
			Int64("subscriber_id", sub.ID).
			Str("push_time", raw).
			Msg("invalid push time, using default")
		wc, err = config.ParseWallClock(s.cfg.Notifications.DefaultPushTime)
		if err != nil {
			// Config validation guarantees the default parses; keep a
			// deterministic value anyway.
			return config.WallClock{Hour: 9, Minute: 0}
		}
	}
	return wc
}

// resolveZone degrades to UTC on an unknown zone name rather than failing
// the whole tick for a single misconfigured subscriber.
func (s *Service) resolveZone(sub storage.Subscriber) *time.Location {
	name := sub.Timezone
	if name == "" {
		name = s.cfg.Notifications.DefaultTimezone
	}

	loc, err := s.zones.Resolve(name)
	if err != nil {
		s.logger.Warn().
			Int64("subscriber_id", sub.ID).
			Str("timezone", name).
			Msg("invalid timezone, falling back to UTC")
		return time.UTC
	}
	return loc
}

// EligibilityTrace explains, for one subscriber, what the predicate sees at
// a given instant. Diagnostic only.
type EligibilityTrace struct {
	SubscriberID    int64
	PushTime        string
	Timezone        string
	LocalTime       time.Time
	LastNotified    *time.Time
	ShouldNotifyNow bool
}

// TraceEligibility evaluates the predicate for every subscribed user without
// sending anything.
func (s *Service) TraceEligibility(ctx context.Context, nowUTC time.Time) ([]EligibilityTrace, error) {
	subs, err := s.subscribers.ListSubscribed(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	traces := make([]EligibilityTrace, 0, len(subs))
	for _, sub := range subs {
		traces = append(traces, EligibilityTrace{
			SubscriberID:    sub.ID,
			PushTime:        sub.PushTime,
			Timezone:        sub.Timezone,
			LocalTime:       nowUTC.In(s.resolveZone(sub)),
			LastNotified:    sub.LastNotifiedAt,
			ShouldNotifyNow: s.shouldNotify(sub, nowUTC),
		})
	}
	return traces, nil
}
