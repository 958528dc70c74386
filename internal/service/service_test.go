package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sentiment-alerts/internal/cache"
	"sentiment-alerts/internal/market"
	"sentiment-alerts/internal/scheduler"
	"sentiment-alerts/internal/storage"
)

func testSnapshot(value int) market.Snapshot {
	return market.Snapshot{
		Value:          value,
		Classification: market.Classify(value),
		ObservedAt:     time.Date(2026, 8, 25, 8, 55, 0, 0, time.UTC),
		Source:         "cnn",
	}
}

func TestCheckNotificationsIsolatesFailures(t *testing.T) {
	// Three subscribers due on the same tick; delivery to the second fails.
	subs := &fakeSubscriberStore{subs: []storage.Subscriber{
		subscriber(1, "09:00", "UTC", nil),
		subscriber(2, "09:00", "UTC", nil),
		subscriber(3, "09:00", "UTC", nil),
	}}
	sink := &fakeSink{failFor: map[int64]error{2: errors.New("blocked by user")}}
	svc := newTestService(subs, &fakeProvider{snap: testSnapshot(42)}, sink)

	fire := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	if err := svc.CheckNotifications(context.Background(), fire); err != nil {
		t.Fatalf("per-subscriber failures must not fail the run: %v", err)
	}

	if len(sink.sent) != 2 {
		t.Fatalf("expected 2 deliveries, got %v", sink.sent)
	}
	if _, ok := subs.updated[1]; !ok {
		t.Fatal("subscriber 1 send must be recorded")
	}
	if _, ok := subs.updated[2]; ok {
		t.Fatal("failed delivery must not be recorded")
	}
	if _, ok := subs.updated[3]; !ok {
		t.Fatal("subscriber 3 send must be recorded")
	}
}

func TestCheckNotificationsFailsOnStoreError(t *testing.T) {
	subs := &fakeSubscriberStore{listErr: errors.New("db down")}
	svc := newTestService(subs, &fakeProvider{snap: testSnapshot(42)}, &fakeSink{})

	if err := svc.CheckNotifications(context.Background(), time.Now()); err == nil {
		t.Fatal("store failure must fail the run")
	}
}

func TestCheckNotificationsSkipsWhenNoData(t *testing.T) {
	subs := &fakeSubscriberStore{subs: []storage.Subscriber{
		subscriber(1, "09:00", "UTC", nil),
	}}
	sink := &fakeSink{}
	provider := &fakeProvider{err: cache.ErrNoData}
	svc := newTestService(subs, provider, sink)

	fire := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	if err := svc.CheckNotifications(context.Background(), fire); err != nil {
		t.Fatalf("no-data skip must not fail the run: %v", err)
	}
	if len(sink.sent) != 0 {
		t.Fatal("nothing must be delivered without data")
	}
	if _, ok := subs.updated[1]; ok {
		t.Fatal("skip must not be recorded as a send")
	}

	// Data comes back later the same day: the subscriber is still served.
	provider.err = nil
	provider.snap = testSnapshot(42)
	if err := svc.CheckNotifications(context.Background(), fire.Add(30*time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.sent) != 1 {
		t.Fatal("subscriber must be served once data is back")
	}
}

func TestCheckNotificationsDeliversStaleData(t *testing.T) {
	subs := &fakeSubscriberStore{subs: []storage.Subscriber{
		subscriber(1, "09:00", "UTC", nil),
	}}
	sink := &fakeSink{}
	stale := testSnapshot(42)
	stale.Stale = true
	svc := newTestService(subs, &fakeProvider{snap: stale}, sink)

	fire := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	if err := svc.CheckNotifications(context.Background(), fire); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.sent) != 1 {
		t.Fatal("stale data is still deliverable")
	}
	if !strings.Contains(sink.texts[1], "unavailable") {
		t.Fatal("stale delivery must carry the cached-data warning")
	}
}

func TestRefreshData(t *testing.T) {
	provider := &fakeProvider{snap: testSnapshot(51)}
	svc := newTestService(&fakeSubscriberStore{}, provider, &fakeSink{})

	if err := svc.RefreshData(context.Background(), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	provider.err = errors.New("all sources down")
	if err := svc.RefreshData(context.Background(), time.Now()); err == nil {
		t.Fatal("refresh failure must fail the job run")
	}
}

func TestHealthCheckUsesSourceDirectly(t *testing.T) {
	source := &fakeSource{snap: testSnapshot(51)}
	svc := New(
		testConfig(),
		&fakeProvider{},
		&fakeSubscriberStore{},
		&fakeSnapshotStore{},
		source,
		&fakeSink{},
		nil,
		zerolog.Nop(),
	)

	if err := svc.HealthCheck(context.Background(), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.fetches != 1 {
		t.Fatalf("health check must hit the source chain, got %d fetches", source.fetches)
	}

	source.err = errors.New("unreachable")
	if err := svc.HealthCheck(context.Background(), time.Now()); err == nil {
		t.Fatal("unreachable source must fail the health check")
	}
}

func TestCleanupSnapshotsUsesRetention(t *testing.T) {
	store := &fakeSnapshotStore{}
	svc := New(
		testConfig(),
		&fakeProvider{},
		&fakeSubscriberStore{},
		store,
		&fakeSource{},
		&fakeSink{},
		nil,
		zerolog.Nop(),
	)

	if err := svc.CleanupSnapshots(context.Background(), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.deleteCalls != 1 || store.deletedBeforeDays != 30 {
		t.Fatalf("expected one delete with 30-day retention, got calls=%d days=%d",
			store.deleteCalls, store.deletedBeforeDays)
	}
}

func TestBroadcast(t *testing.T) {
	subs := &fakeSubscriberStore{subs: []storage.Subscriber{
		subscriber(1, "09:00", "UTC", nil),
		subscriber(2, "09:00", "UTC", nil),
		subscriber(3, "09:00", "UTC", nil),
	}}
	subs.subs[1].Language = "zh"
	sink := &fakeSink{failFor: map[int64]error{3: errors.New("blocked")}}
	svc := newTestService(subs, &fakeProvider{}, sink)

	result, err := svc.Broadcast(context.Background(), "maintenance tonight", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Sent != 2 || result.Failed != 1 {
		t.Fatalf("expected sent=2 failed=1, got %+v", result)
	}
	if sink.texts[1] != "maintenance tonight" {
		t.Fatalf("unexpected message body: %q", sink.texts[1])
	}
}

func TestBroadcastLanguageFilter(t *testing.T) {
	subs := &fakeSubscriberStore{subs: []storage.Subscriber{
		subscriber(1, "09:00", "UTC", nil),
		subscriber(2, "09:00", "UTC", nil),
	}}
	subs.subs[1].Language = "zh"
	sink := &fakeSink{}
	svc := newTestService(subs, &fakeProvider{}, sink)

	result, err := svc.Broadcast(context.Background(), "公告", "zh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Sent != 1 {
		t.Fatalf("expected 1 send, got %+v", result)
	}
	if len(sink.sent) != 1 || sink.sent[0] != 2 {
		t.Fatalf("only the zh subscriber should receive it, got %v", sink.sent)
	}
}

func TestSendTestNotificationUsesSubscriberLanguage(t *testing.T) {
	subs := &fakeSubscriberStore{subs: []storage.Subscriber{
		subscriber(7, "09:00", "UTC", nil),
	}}
	subs.subs[0].Language = "zh"
	sink := &fakeSink{}
	svc := newTestService(subs, &fakeProvider{}, sink)

	if err := svc.SendTestNotification(context.Background(), 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sink.texts[7], "测试通知") {
		t.Fatalf("expected chinese test message, got %q", sink.texts[7])
	}

	// Unknown recipients still get the default-language message.
	if err := svc.SendTestNotification(context.Background(), 99); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sink.texts[99], "Test Notification") {
		t.Fatalf("expected english test message, got %q", sink.texts[99])
	}
}

func TestRegisterJobsWiresAllFour(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.NotificationCheckInterval = time.Minute
	cfg.Scheduler.DataRefreshInterval = time.Hour
	cfg.Scheduler.HealthCheckInterval = 15 * time.Minute
	cfg.Scheduler.CleanupTimeUTC = "02:00"

	svc := New(
		cfg,
		&fakeProvider{},
		&fakeSubscriberStore{},
		&fakeSnapshotStore{},
		&fakeSource{},
		&fakeSink{},
		nil,
		zerolog.Nop(),
	)

	sched := scheduler.New(scheduler.Options{}, zerolog.Nop())
	if err := svc.RegisterJobs(sched); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := sched.Status()
	if len(st.Jobs) != 4 {
		t.Fatalf("expected 4 jobs, got %d", len(st.Jobs))
	}
	want := map[string]bool{
		JobNotificationCheck: false,
		JobDataRefresh:       false,
		JobHealthCheck:       false,
		JobRetentionCleanup:  false,
	}
	for _, job := range st.Jobs {
		want[job.ID] = true
	}
	for id, seen := range want {
		if !seen {
			t.Errorf("job %s not registered", id)
		}
	}
}
