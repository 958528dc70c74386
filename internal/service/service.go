package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"sentiment-alerts/internal/cache"
	"sentiment-alerts/internal/config"
	"sentiment-alerts/internal/fetcher"
	"sentiment-alerts/internal/localtime"
	"sentiment-alerts/internal/market"
	"sentiment-alerts/internal/notify"
	"sentiment-alerts/internal/scheduler"
	"sentiment-alerts/internal/storage"
)

// Job IDs registered by the service.
const (
	JobNotificationCheck = "notification_check"
	JobDataRefresh       = "data_refresh"
	JobHealthCheck       = "health_check"
	JobRetentionCleanup  = "retention_cleanup"
)

// SnapshotProvider is the cache capability the service consumes.
type SnapshotProvider interface {
	Current(ctx context.Context, forceRefresh bool) (market.Snapshot, error)
	ForceRefresh(ctx context.Context) (market.Snapshot, error)
}

// Service owns the periodic jobs and the per-subscriber delivery decision.
type Service struct {
	cfg         *config.Config
	snapshots   SnapshotProvider
	subscribers storage.SubscriberStore
	store       storage.SnapshotStore
	source      fetcher.Source
	sink        notify.Sink
	zones       localtime.Resolver
	limiter     *rate.Limiter
	logger      zerolog.Logger
}

// New constructs the orchestration service.
func New(
	cfg *config.Config,
	snapshots SnapshotProvider,
	subscribers storage.SubscriberStore,
	store storage.SnapshotStore,
	source fetcher.Source,
	sink notify.Sink,
	zones localtime.Resolver,
	logger zerolog.Logger,
) *Service {
	perSecond := cfg.Notifications.BroadcastRate
	if perSecond <= 0 {
		perSecond = 10
	}

	return &Service{
		cfg:         cfg,
		snapshots:   snapshots,
		subscribers: subscribers,
		store:       store,
		source:      source,
		sink:        sink,
		zones:       zones,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:      logger.With().Str("component", "service").Logger(),
	}
}

// RegisterJobs wires the four periodic jobs into the scheduler handle.
func (s *Service) RegisterJobs(sched *scheduler.Scheduler) error {
	cleanupAt, err := config.ParseWallClock(s.cfg.Scheduler.CleanupTimeUTC)
	if err != nil {
		return fmt.Errorf("parse cleanup time: %w", err)
	}

	jobs := []scheduler.Job{
		{
			ID:       JobNotificationCheck,
			Name:     "Notification Check",
			Interval: s.cfg.Scheduler.NotificationCheckInterval,
			Run:      s.CheckNotifications,
		},
		{
			ID:       JobDataRefresh,
			Name:     "Data Refresh",
			Interval: s.cfg.Scheduler.DataRefreshInterval,
			Run:      s.RefreshData,
		},
		{
			ID:       JobHealthCheck,
			Name:     "Health Check",
			Interval: s.cfg.Scheduler.HealthCheckInterval,
			Run:      s.HealthCheck,
		},
		{
			ID:         JobRetentionCleanup,
			Name:       "Retention Cleanup",
			DailyAtUTC: &scheduler.DailyTime{Hour: cleanupAt.Hour, Minute: cleanupAt.Minute},
			Run:        s.CleanupSnapshots,
		},
	}

	for _, job := range jobs {
		if err := sched.Register(job); err != nil {
			return err
		}
	}
	return nil
}

// CheckNotifications evaluates every subscribed user against the current
// tick. Failures for one subscriber never abort the tick for the rest; only
// a store failure fails the run.
func (s *Service) CheckNotifications(ctx context.Context, fired time.Time) error {
	subs, err := s.subscribers.ListSubscribed(ctx)
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}

	nowUTC := fired.UTC()
	for _, sub := range subs {
		if !s.shouldNotify(sub, nowUTC) {
			continue
		}
		if err := s.notifySubscriber(ctx, sub, nowUTC); err != nil {
			s.logger.Error().Err(err).Int64("subscriber_id", sub.ID).Msg("notification failed")
		}
	}
	return nil
}

// notifySubscriber runs the per-subscriber sequence: fetch snapshot, render,
// send, and record the send only after delivery is confirmed.
func (s *Service) notifySubscriber(ctx context.Context, sub storage.Subscriber, nowUTC time.Time) error {
	snap, err := s.snapshots.Current(ctx, false)
	if err != nil {
		if errors.Is(err, cache.ErrNoData) {
			// Skip without recording: the subscriber can still be served
			// later today if data comes back.
			s.logger.Warn().Int64("subscriber_id", sub.ID).Msg("no data available, skipping notification")
			return nil
		}
		return fmt.Errorf("get snapshot: %w", err)
	}

	lang := notify.NormalizeLanguage(sub.Language, s.cfg.Notifications.DefaultLanguage)
	local := nowUTC.In(s.resolveZone(sub))
	message := notify.DailyMessage(snap, lang, local)

	if err := s.sink.Send(ctx, sub.ID, message); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	updated, err := s.subscribers.UpdateLastNotified(ctx, sub.ID, nowUTC)
	if err != nil {
		return fmt.Errorf("record send: %w", err)
	}
	if !updated {
		s.logger.Warn().Int64("subscriber_id", sub.ID).Msg("subscriber vanished before send was recorded")
		return nil
	}

	s.logger.Info().
		Int64("subscriber_id", sub.ID).
		Int("value", snap.Value).
		Bool("stale", snap.Stale).
		Msg("daily notification sent")
	return nil
}

// RefreshData keeps the cache warm independent of subscriber traffic.
func (s *Service) RefreshData(ctx context.Context, fired time.Time) error {
	snap, err := s.snapshots.ForceRefresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if snap.Stale {
		s.logger.Warn().Int("value", snap.Value).Msg("refresh fell back to stale snapshot")
		return nil
	}
	s.logger.Debug().Int("value", snap.Value).Str("source", snap.Source).Msg("cache refreshed")
	return nil
}

// HealthCheck confirms the source chain is reachable. Log-only: the result
// is not persisted.
func (s *Service) HealthCheck(ctx context.Context, fired time.Time) error {
	snap, err := s.source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("health check fetch: %w", err)
	}
	s.logger.Debug().Int("value", snap.Value).Str("source", snap.Source).Msg("health check passed")
	return nil
}

// CleanupSnapshots prunes rows beyond the retention horizon.
func (s *Service) CleanupSnapshots(ctx context.Context, fired time.Time) error {
	deleted, err := s.store.DeleteSnapshotsOlderThan(ctx, s.cfg.Cache.RetentionDays)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	s.logger.Info().Int64("rows_deleted", deleted).Int("retention_days", s.cfg.Cache.RetentionDays).Msg("retention cleanup completed")
	return nil
}

// BroadcastResult summarises one broadcast run.
type BroadcastResult struct {
	Sent   int
	Failed int
}

// Broadcast sends one message to every subscribed user, optionally filtered
// by language. Sends are paced to respect downstream rate limits; failures
// are counted per recipient and never abort the loop.
func (s *Service) Broadcast(ctx context.Context, message, languageFilter string) (BroadcastResult, error) {
	subs, err := s.subscribers.ListSubscribed(ctx)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("list subscribers: %w", err)
	}

	var result BroadcastResult
	for _, sub := range subs {
		if languageFilter != "" && sub.Language != languageFilter {
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return result, err
		}

		if err := s.sink.Send(ctx, sub.ID, message); err != nil {
			result.Failed++
			s.logger.Error().Err(err).Int64("subscriber_id", sub.ID).Msg("broadcast send failed")
			continue
		}
		result.Sent++
	}

	s.logger.Info().Int("sent", result.Sent).Int("failed", result.Failed).Msg("broadcast completed")
	return result, nil
}

// SendTestNotification delivers a test message to one subscriber through the
// production sink path.
func (s *Service) SendTestNotification(ctx context.Context, subscriberID int64) error {
	lang := s.cfg.Notifications.DefaultLanguage
	if sub, ok, err := s.subscribers.GetSubscriber(ctx, subscriberID); err != nil {
		return fmt.Errorf("get subscriber: %w", err)
	} else if ok {
		lang = notify.NormalizeLanguage(sub.Language, lang)
	}

	if err := s.sink.Send(ctx, subscriberID, notify.TestMessage(lang)); err != nil {
		return fmt.Errorf("send test notification: %w", err)
	}
	s.logger.Info().Int64("subscriber_id", subscriberID).Msg("test notification sent")
	return nil
}
