package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"sentiment-alerts/internal/cache"
	"sentiment-alerts/internal/config"
	"sentiment-alerts/internal/fetcher"
	"sentiment-alerts/internal/localtime"
	"sentiment-alerts/internal/notify"
	"sentiment-alerts/internal/scheduler"
	"sentiment-alerts/internal/service"
	"sentiment-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() fetcher.Source {
	cnn := fetcher.NewCNN(fetcher.CNNOptions{
		BaseURL:   a.Config.Sources.CNN.BaseURL,
		UserAgent: a.Config.Sources.CNN.UserAgent,
		Timeout:   a.Config.Sources.CNN.RequestTimeout,
	}, a.Logger)

	alternative := fetcher.NewAlternative(fetcher.AlternativeOptions{
		BaseURL: a.Config.Sources.Alternative.BaseURL,
		Timeout: a.Config.Sources.Alternative.RequestTimeout,
	}, a.Logger)

	return fetcher.NewChain(
		[]fetcher.Provider{cnn, alternative},
		fetcher.ChainOptions{
			MaxRetries: a.Config.Sources.CNN.MaxRetries,
			BackoffMin: a.Config.Sources.CNN.BackoffMin,
			BackoffMax: a.Config.Sources.CNN.BackoffMax,
		},
		a.Logger,
	)
}

func (a *App) newSink() notify.Sink {
	tg := a.Config.Delivery.Telegram
	if tg.Enabled {
		return notify.NewTelegramSink(tg.BotToken, tg.APIBase, tg.RequestTimeout, a.Logger)
	}
	a.Logger.Warn().Msg("no delivery sink configured; messages will only be logged")
	return notify.NewLogSink(a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn is required")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	return store, store.Close, nil
}

func (a *App) newService(store *storage.Store) (*service.Service, *cache.Service) {
	source := a.newSource()
	snapshots := cache.New(store, source, a.Config.Cache, a.Logger)
	svc := service.New(
		a.Config,
		snapshots,
		store,
		store,
		source,
		a.newSink(),
		localtime.NewSystemResolver(),
		a.Logger,
	)
	return svc, snapshots
}

// Run executes the long-running notification service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, _ := a.newService(store)

	sched := scheduler.New(scheduler.Options{
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	if err := svc.RegisterJobs(sched); err != nil {
		return err
	}

	a.Logger.Info().
		Dur("notification_check", a.Config.Scheduler.NotificationCheckInterval).
		Dur("data_refresh", a.Config.Scheduler.DataRefreshInterval).
		Msg("starting notification service")

	err = sched.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("notification service stopped")
	return nil
}

// Refresh forces an immediate cache refresh through the production code path.
func (a *App) Refresh(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	_, snapshots := a.newService(store)
	snap, err := snapshots.ForceRefresh(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "value: %d (%s)\nsource: %s\nstale: %t\nobserved: %s\n",
		snap.Value, snap.Classification, snap.Source, snap.Stale,
		snap.ObservedAt.UTC().Format(time.RFC3339))
	return nil
}

// Status prints the cache state and per-subscriber eligibility traces.
func (a *App) Status(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, snapshots := a.newService(store)

	status, err := snapshots.Status(ctx)
	if err != nil {
		return err
	}

	if !status.HasCache {
		fmt.Fprintln(os.Stdout, "cache: empty")
	} else {
		fmt.Fprintf(os.Stdout, "cache: value=%d (%s) source=%s age=%dm fresh=%t stale_usable=%t\n",
			status.LastValue, status.Classification, status.Source,
			status.AgeMinutes, status.IsFresh, status.IsStaleUsable)
	}

	traces, err := svc.TraceEligibility(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(traces) == 0 {
		fmt.Fprintln(os.Stdout, "no subscribed users")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Subscriber\tPush Time\tTimezone\tLocal Time\tLast Notified\tEligible Now")
	for _, tr := range traces {
		last := "never"
		if tr.LastNotified != nil {
			last = tr.LastNotified.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%t\n",
			tr.SubscriberID, tr.PushTime, tr.Timezone,
			tr.LocalTime.Format("15:04"), last, tr.ShouldNotifyNow)
	}
	return writer.Flush()
}

// TestNotify sends a test message to one subscriber.
func (a *App) TestNotify(ctx context.Context, subscriberID int64) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, _ := a.newService(store)
	return svc.SendTestNotification(ctx, subscriberID)
}

// Broadcast sends one message to all subscribed users.
func (a *App) Broadcast(ctx context.Context, message, languageFilter string) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, _ := a.newService(store)
	result, err := svc.Broadcast(ctx, message, languageFilter)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "broadcast: %d sent, %d failed\n", result.Sent, result.Failed)
	return nil
}

// SubscribeOptions configure the subscriber upsert command.
type SubscribeOptions struct {
	SubscriberID int64
	PushTime     string
	Timezone     string
	Language     string
	Unsubscribe  bool
}

// UpsertSubscriber creates or updates one subscriber's schedule.
func (a *App) UpsertSubscriber(ctx context.Context, opts SubscribeOptions) error {
	if opts.PushTime == "" {
		opts.PushTime = a.Config.Notifications.DefaultPushTime
	}
	if _, err := config.ParseWallClock(opts.PushTime); err != nil {
		return err
	}
	if opts.Timezone == "" {
		opts.Timezone = a.Config.Notifications.DefaultTimezone
	}
	if _, err := localtime.NewSystemResolver().Resolve(opts.Timezone); err != nil {
		return err
	}
	if opts.Language == "" {
		opts.Language = a.Config.Notifications.DefaultLanguage
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	return store.UpsertSubscriber(ctx, storage.Subscriber{
		ID:           opts.SubscriberID,
		IsSubscribed: !opts.Unsubscribe,
		PushTime:     opts.PushTime,
		Timezone:     opts.Timezone,
		Language:     notify.NormalizeLanguage(opts.Language, a.Config.Notifications.DefaultLanguage),
	})
}

// ExportOptions hold parameters for exporting snapshot history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Days int
}
