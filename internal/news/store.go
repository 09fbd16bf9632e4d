package news

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"brokergate/internal/model"
)

const _eventsSchema = `CREATE TABLE IF NOT EXISTS economic_events (
	id            BIGSERIAL PRIMARY KEY,
	event_type_id TEXT NOT NULL,
	source_id     TEXT NOT NULL,
	title         TEXT NOT NULL,
	country       TEXT NOT NULL,
	indicator     TEXT,
	category      TEXT,
	currency      TEXT,
	impact        TEXT NOT NULL,
	event_time    TIMESTAMPTZ NOT NULL,
	actual        TEXT,
	forecast      TEXT,
	previous      TEXT,
	source        TEXT,
	source_url    TEXT,
	UNIQUE (source_id, event_time)
);
CREATE INDEX IF NOT EXISTS economic_events_event_time_idx ON economic_events (event_time);`

// Store is the postgres mirror of the economic calendar. The natural key is
// (source_id, event_time): the calendar reuses source ids across occurrences
// of recurring releases.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, _eventsSchema); err != nil {
		return fmt.Errorf("%w: can't migrate economic_events", err)
	}
	return nil
}

const _upsertEvent = `INSERT INTO economic_events (
							event_type_id,
							source_id,
							title,
							country,
							indicator,
							category,
							currency,
							impact,
							event_time,
							actual,
							forecast,
							previous,
							source,
							source_url
						) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
						ON CONFLICT (source_id, event_time)
						DO UPDATE SET
							title = EXCLUDED.title,
							indicator = EXCLUDED.indicator,
							impact = EXCLUDED.impact,
							actual = EXCLUDED.actual,
							forecast = EXCLUDED.forecast,
							previous = EXCLUDED.previous
						RETURNING (xmax = 0) AS inserted;`

// UpsertBatch writes one fetched batch in a single transaction, so a partial
// failure never leaves a half-applied snapshot. It reports how many rows were
// new and how many were updates of existing rows.
func (s *Store) UpsertBatch(ctx context.Context, events []model.EconomicEvent) (saved, updated int, err error) {
	if len(events) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: can't begin events tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, e := range events {
		var inserted bool
		if err := tx.QueryRowxContext(ctx, _upsertEvent,
			e.EventTypeID,
			e.SourceID,
			e.Title,
			e.Country,
			e.Indicator,
			e.Category,
			e.Currency,
			e.Impact,
			e.EventTime,
			e.Actual,
			e.Forecast,
			e.Previous,
			e.Source,
			e.SourceURL,
		).Scan(&inserted); err != nil {
			return 0, 0, fmt.Errorf("%w: can't upsert event %s@%s", err, e.SourceID, e.EventTime)
		}
		if inserted {
			saved++
		} else {
			updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("%w: can't commit events tx", err)
	}
	return saved, updated, nil
}

// EventFilter narrows ListEvents. Zero values mean no constraint.
type EventFilter struct {
	From    time.Time
	To      time.Time
	Country string
	Impact  model.Impact
	Limit   int
}

const _defaultEventLimit = 200

// ListEvents returns mirror rows matching the filter, ordered by event time.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]model.EconomicEvent, error) {
	query := "SELECT * FROM economic_events WHERE 1=1"
	args := []interface{}{}

	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND event_time >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND event_time <= $%d", len(args))
	}
	if f.Country != "" {
		args = append(args, f.Country)
		query += fmt.Sprintf(" AND country = $%d", len(args))
	}
	if f.Impact != "" {
		args = append(args, f.Impact)
		query += fmt.Sprintf(" AND impact = $%d", len(args))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = _defaultEventLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY event_time LIMIT $%d", len(args))

	var events []model.EconomicEvent
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("%w: can't list events", err)
	}
	return events, nil
}

const (
	_queryUpcomingTimes = `SELECT DISTINCT event_time FROM economic_events
							WHERE event_time >= $1 AND event_time <= $2
							ORDER BY event_time`
	_queryNextTime = `SELECT event_time FROM economic_events
							WHERE event_time >= $1
							ORDER BY event_time LIMIT 1`
	_deleteOld = "DELETE FROM economic_events WHERE event_time < $1"
)

// UpcomingTimes lists the distinct release times inside the horizon.
func (s *Store) UpcomingTimes(ctx context.Context, now time.Time, horizon time.Duration) ([]time.Time, error) {
	var times []time.Time
	if err := s.db.SelectContext(ctx, &times, _queryUpcomingTimes, now, now.Add(horizon)); err != nil {
		return nil, fmt.Errorf("%w: can't query upcoming event times", err)
	}
	return times, nil
}

// NextEventTime returns the very next release time, nil when the mirror has
// nothing ahead.
func (s *Store) NextEventTime(ctx context.Context, now time.Time) (*time.Time, error) {
	var t time.Time
	if err := s.db.GetContext(ctx, &t, _queryNextTime, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: can't query next event time", err)
	}
	return &t, nil
}

// DeleteOlderThan prunes mirror rows past retention.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, _deleteOld, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: can't prune old events", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
