package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"sentiment-alerts/internal/market"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

// Expected schema (created externally, see deployment docs):
//
//	CREATE TABLE sentiment_snapshots (
//	    day            date PRIMARY KEY,
//	    value          integer NOT NULL,
//	    score          numeric NOT NULL,
//	    classification text NOT NULL,
//	    observed_at    timestamptz NOT NULL,
//	    cached_at      timestamptz NOT NULL,
//	    source         text NOT NULL,
//	    previous_close integer,
//	    week_ago       integer,
//	    month_ago      integer,
//	    year_ago       integer
//	);
//
//	CREATE TABLE subscribers (
//	    subscriber_id    bigint PRIMARY KEY,
//	    is_subscribed    boolean NOT NULL DEFAULT false,
//	    push_time        text NOT NULL DEFAULT '09:00',
//	    timezone         text NOT NULL DEFAULT 'UTC',
//	    language         text NOT NULL DEFAULT 'en',
//	    last_notified_at timestamptz,
//	    created_at       timestamptz NOT NULL DEFAULT now(),
//	    updated_at       timestamptz NOT NULL DEFAULT now()
//	);
const (
	upsertSnapshotSQL = `INSERT INTO sentiment_snapshots (
        day,
        value,
        score,
        classification,
        observed_at,
        cached_at,
        source,
        previous_close,
        week_ago,
        month_ago,
        year_ago
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (day) DO UPDATE
    SET
        value          = EXCLUDED.value,
        score          = EXCLUDED.score,
        classification = EXCLUDED.classification,
        observed_at    = EXCLUDED.observed_at,
        cached_at      = EXCLUDED.cached_at,
        source         = EXCLUDED.source,
        previous_close = EXCLUDED.previous_close,
        week_ago       = EXCLUDED.week_ago,
        month_ago      = EXCLUDED.month_ago,
        year_ago       = EXCLUDED.year_ago;`

	snapshotColumns = `value, score, classification, observed_at, cached_at, source,
        previous_close, week_ago, month_ago, year_ago`

	latestSnapshotWithinSQL = `SELECT ` + snapshotColumns + `
    FROM sentiment_snapshots
    WHERE cached_at >= $1
    ORDER BY cached_at DESC
    LIMIT 1;`

	latestSnapshotSQL = `SELECT ` + snapshotColumns + `
    FROM sentiment_snapshots
    ORDER BY cached_at DESC
    LIMIT 1;`

	listSnapshotsBetweenSQL = `SELECT ` + snapshotColumns + `
    FROM sentiment_snapshots
    WHERE cached_at >= $1
      AND cached_at < $2
    ORDER BY day;`

	deleteSnapshotsBeforeSQL = `DELETE FROM sentiment_snapshots WHERE day < $1;`

	listSubscribedSQL = `SELECT
        subscriber_id, is_subscribed, push_time, timezone, language,
        last_notified_at, created_at, updated_at
    FROM subscribers
    WHERE is_subscribed = true
    ORDER BY subscriber_id;`

	getSubscriberSQL = `SELECT
        subscriber_id, is_subscribed, push_time, timezone, language,
        last_notified_at, created_at, updated_at
    FROM subscribers
    WHERE subscriber_id = $1;`

	upsertSubscriberSQL = `INSERT INTO subscribers (
        subscriber_id, is_subscribed, push_time, timezone, language
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (subscriber_id) DO UPDATE
    SET is_subscribed = EXCLUDED.is_subscribed,
        push_time     = EXCLUDED.push_time,
        timezone      = EXCLUDED.timezone,
        language      = EXCLUDED.language,
        updated_at    = now();`

	updateLastNotifiedSQL = `UPDATE subscribers
    SET last_notified_at = $2, updated_at = now()
    WHERE subscriber_id = $1;`
)

// SnapshotStore defines sentiment snapshot persistence.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap market.Snapshot) error
	LatestSnapshotWithin(ctx context.Context, maxAge time.Duration) (market.Snapshot, bool, error)
	LatestSnapshot(ctx context.Context) (market.Snapshot, bool, error)
	DeleteSnapshotsOlderThan(ctx context.Context, days int) (int64, error)
}

// SubscriberStore defines subscriber schedule persistence.
type SubscriberStore interface {
	ListSubscribed(ctx context.Context) ([]Subscriber, error)
	GetSubscriber(ctx context.Context, id int64) (Subscriber, bool, error)
	UpsertSubscriber(ctx context.Context, sub Subscriber) error
	UpdateLastNotified(ctx context.Context, id int64, ts time.Time) (bool, error)
}

// Store aggregates access to snapshots and subscribers.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// SaveSnapshot persists a snapshot, updating the existing row for the same
// UTC day in place so at most one snapshot exists per calendar day.
func (s *Store) SaveSnapshot(ctx context.Context, snap market.Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	day := snap.CachedAt.UTC().Truncate(24 * time.Hour)

	_, execErr := pool.Exec(ctx, upsertSnapshotSQL,
		day,
		snap.Value,
		snap.Score.String(),
		string(snap.Classification),
		snap.ObservedAt,
		snap.CachedAt,
		snap.Source,
		nullableInt(snap.PreviousClose),
		nullableInt(snap.WeekAgo),
		nullableInt(snap.MonthAgo),
		nullableInt(snap.YearAgo),
	)
	if execErr != nil {
		return fmt.Errorf("upsert snapshot: %w", execErr)
	}
	return nil
}

// LatestSnapshotWithin returns the most recent snapshot cached no earlier than
// maxAge ago, if one exists.
func (s *Store) LatestSnapshotWithin(ctx context.Context, maxAge time.Duration) (market.Snapshot, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return market.Snapshot{}, false, err
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	return scanOneSnapshot(pool.QueryRow(ctx, latestSnapshotWithinSQL, cutoff))
}

// LatestSnapshot returns the most recent snapshot regardless of age.
func (s *Store) LatestSnapshot(ctx context.Context) (market.Snapshot, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return market.Snapshot{}, false, err
	}
	return scanOneSnapshot(pool.QueryRow(ctx, latestSnapshotSQL))
}

// ListSnapshotsBetween lists snapshots cached within [from, to).
func (s *Store) ListSnapshotsBetween(ctx context.Context, from, to time.Time) ([]market.Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	defer rows.Close()

	snaps := make([]market.Snapshot, 0)
	for rows.Next() {
		snap, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snaps = append(snaps, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snaps, nil
}

// DeleteSnapshotsOlderThan prunes snapshots beyond the retention horizon and
// reports the number of rows removed.
func (s *Store) DeleteSnapshotsOlderThan(ctx context.Context, days int) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour)
	cmdTag, execErr := pool.Exec(ctx, deleteSnapshotsBeforeSQL, cutoff)
	if execErr != nil {
		return 0, fmt.Errorf("delete snapshots: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// ListSubscribed lists all currently subscribed users.
func (s *Store) ListSubscribed(ctx context.Context) ([]Subscriber, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSubscribedSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list subscribed: %w", queryErr)
	}
	defer rows.Close()

	subs := make([]Subscriber, 0)
	for rows.Next() {
		sub, scanErr := scanSubscriber(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		subs = append(subs, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subs, nil
}

// GetSubscriber fetches one subscriber by ID.
func (s *Store) GetSubscriber(ctx context.Context, id int64) (Subscriber, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return Subscriber{}, false, err
	}

	rows, queryErr := pool.Query(ctx, getSubscriberSQL, id)
	if queryErr != nil {
		return Subscriber{}, false, fmt.Errorf("get subscriber: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		return Subscriber{}, false, rows.Err()
	}
	sub, scanErr := scanSubscriber(rows)
	if scanErr != nil {
		return Subscriber{}, false, scanErr
	}
	return sub, true, nil
}

// UpsertSubscriber creates or updates a subscriber's schedule.
func (s *Store) UpsertSubscriber(ctx context.Context, sub Subscriber) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertSubscriberSQL,
		sub.ID,
		sub.IsSubscribed,
		sub.PushTime,
		sub.Timezone,
		sub.Language,
	)
	if execErr != nil {
		return fmt.Errorf("upsert subscriber: %w", execErr)
	}
	return nil
}

// UpdateLastNotified records a confirmed send. Returns false when the
// subscriber row no longer exists.
func (s *Store) UpdateLastNotified(ctx context.Context, id int64, ts time.Time) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	cmdTag, execErr := pool.Exec(ctx, updateLastNotifiedSQL, id, ts.UTC())
	if execErr != nil {
		return false, fmt.Errorf("update last notified: %w", execErr)
	}
	return cmdTag.RowsAffected() > 0, nil
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOneSnapshot(row pgx.Row) (market.Snapshot, bool, error) {
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return market.Snapshot{}, false, nil
		}
		return market.Snapshot{}, false, err
	}
	return snap, true, nil
}

func scanSnapshot(row rowScanner) (market.Snapshot, error) {
	var (
		value          int
		scoreStr       string
		classification string
		observedAt     time.Time
		cachedAt       time.Time
		source         string
		previousClose  sql.NullInt64
		weekAgo        sql.NullInt64
		monthAgo       sql.NullInt64
		yearAgo        sql.NullInt64
	)

	if err := row.Scan(
		&value,
		&scoreStr,
		&classification,
		&observedAt,
		&cachedAt,
		&source,
		&previousClose,
		&weekAgo,
		&monthAgo,
		&yearAgo,
	); err != nil {
		return market.Snapshot{}, err
	}

	score, err := decimal.NewFromString(scoreStr)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("parse score: %w", err)
	}

	snap := market.Snapshot{
		Value:          value,
		Score:          score,
		Classification: market.Classification(classification),
		ObservedAt:     observedAt,
		CachedAt:       cachedAt,
		Source:         source,
	}
	snap.PreviousClose = fromNullInt(previousClose)
	snap.WeekAgo = fromNullInt(weekAgo)
	snap.MonthAgo = fromNullInt(monthAgo)
	snap.YearAgo = fromNullInt(yearAgo)
	return snap, nil
}

func scanSubscriber(row rowScanner) (Subscriber, error) {
	var (
		sub          Subscriber
		lastNotified sql.NullTime
	)

	if err := row.Scan(
		&sub.ID,
		&sub.IsSubscribed,
		&sub.PushTime,
		&sub.Timezone,
		&sub.Language,
		&lastNotified,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	); err != nil {
		return Subscriber{}, err
	}

	if lastNotified.Valid {
		ts := lastNotified.Time
		sub.LastNotifiedAt = &ts
	}
	return sub, nil
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	value := int(v.Int64)
	return &value
}

var (
	_ SnapshotStore   = (*Store)(nil)
	_ SubscriberStore = (*Store)(nil)
)
