package news

import (
	"context"
	"fmt"
	"sync"
	"time"

	"brokergate/internal/config"
	"brokergate/internal/logger"
)

const (
	_loopTick    = 10 * time.Second
	_chasePause  = 5 * time.Second
	_recentLines = 50
)

// Release data lands with a delay after the scheduled time; these offsets
// catch the typical publication moments.
var _chaseOffsets = []time.Duration{30 * time.Second, 90 * time.Second, 15 * time.Minute}

// Updater keeps the calendar mirror fresh: a periodic full-window sync plus
// short chase re-fetches right after each release time, when actual values
// appear upstream.
type Updater struct {
	client *Client
	store  *Store
	cfg    config.NewsConfig
	logger logger.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.Mutex
	enabled      bool
	running      bool
	lastPeriodic time.Time
	lastFetch    time.Time
	nextEvent    *time.Time
	lastChase    string
	recent       []string
}

func NewUpdater(client *Client, store *Store, cfg config.NewsConfig, logger logger.Logger) *Updater {
	return &Updater{
		client:  client,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		enabled: true,
	}
}

// UpdaterStatus is a snapshot for the status endpoint.
type UpdaterStatus struct {
	Enabled        bool       `json:"enabled"`
	Running        bool       `json:"running"`
	LastPeriodic   *time.Time `json:"last_periodic_update"`
	NextEventChase *time.Time `json:"next_event_chase"`
	LastChaseInfo  string     `json:"last_chase_info,omitempty"`
	RecentLog      []string   `json:"recent_log"`
}

func (u *Updater) Status() UpdaterStatus {
	u.mu.Lock()
	defer u.mu.Unlock()

	st := UpdaterStatus{
		Enabled:       u.enabled,
		Running:       u.running,
		LastChaseInfo: u.lastChase,
	}
	if !u.lastPeriodic.IsZero() {
		t := u.lastPeriodic
		st.LastPeriodic = &t
	}
	if u.nextEvent != nil {
		t := *u.nextEvent
		st.NextEventChase = &t
	}
	tail := u.recent
	if len(tail) > 10 {
		tail = tail[len(tail)-10:]
	}
	st.RecentLog = append([]string(nil), tail...)
	return st
}

// Start launches the background loop. Calling Start on a running updater is
// a no-op.
func (u *Updater) Start(ctx context.Context) {
	u.mu.Lock()
	if u.running {
		u.mu.Unlock()
		return
	}
	u.enabled = true
	u.running = true
	ctx, u.cancel = context.WithCancel(ctx)
	u.done = make(chan struct{})
	u.mu.Unlock()

	u.record("updater started")
	go u.run(ctx)
}

// Stop cancels the loop and waits for it to drain.
func (u *Updater) Stop() {
	u.mu.Lock()
	cancel, done := u.cancel, u.done
	u.enabled = false
	u.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (u *Updater) run(ctx context.Context) {
	defer func() {
		u.mu.Lock()
		u.running = false
		u.mu.Unlock()
		close(u.done)
	}()

	u.periodic(ctx)

	ticker := time.NewTicker(_loopTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			u.record("updater stopped")
			return
		case <-ticker.C:
			u.mu.Lock()
			due := time.Since(u.lastPeriodic) >= u.cfg.UpdateInterval
			u.mu.Unlock()
			if due {
				u.periodic(ctx)
			}
			u.chaseCycle(ctx)
		}
	}
}

// SyncNow runs one full-window sync outside the schedule, for the facade's
// manual trigger.
func (u *Updater) SyncNow(ctx context.Context) (saved, updated, fetched int, err error) {
	return u.refreshWindow(ctx, true)
}

// periodic is the scheduled this-week-plus-next-week sync, with retention
// pruning piggybacked on it.
func (u *Updater) periodic(ctx context.Context) {
	u.record("periodic sync: this week + next week")
	saved, updated, fetched, err := u.refreshWindow(ctx, false)
	if err != nil {
		u.record(fmt.Sprintf("periodic sync failed: %s", err))
		return
	}

	u.mu.Lock()
	u.lastPeriodic = time.Now().UTC()
	u.mu.Unlock()
	u.record(fmt.Sprintf("periodic done: %d new, %d updated (%d fetched)", saved, updated, fetched))

	if pruned, perr := u.store.DeleteOlderThan(ctx, time.Now().UTC().Add(-u.cfg.Retention)); perr != nil {
		u.logger.Errorf("%s: can't prune event mirror", perr)
	} else if pruned > 0 {
		u.record(fmt.Sprintf("pruned %d events past retention", pruned))
	}
}

// refreshWindow fetches the current two-week window and applies it as one
// batch. The min-refresh guard collapses chase bursts for clustered events
// into a single upstream call.
func (u *Updater) refreshWindow(ctx context.Context, force bool) (saved, updated, fetched int, err error) {
	u.mu.Lock()
	if !force && time.Since(u.lastFetch) < u.cfg.MinRefresh {
		u.mu.Unlock()
		return 0, 0, 0, nil
	}
	u.lastFetch = time.Now()
	u.mu.Unlock()

	from, to := weekWindow(time.Now().UTC())
	events, err := u.client.FetchEvents(ctx, from, to)
	if err != nil {
		return 0, 0, 0, err
	}

	saved, updated, err = u.store.UpsertBatch(ctx, events)
	if err != nil {
		return 0, 0, 0, err
	}
	return saved, updated, len(events), nil
}

// chaseCycle fires the post-release re-fetches. Releases clustered at the
// same minute produce sequential chases with a short pause between them.
func (u *Updater) chaseCycle(ctx context.Context) {
	now := time.Now().UTC()

	next, err := u.store.NextEventTime(ctx, now)
	if err != nil {
		u.logger.Errorf("%s: can't read next event time", err)
	} else {
		u.mu.Lock()
		u.nextEvent = next
		u.mu.Unlock()
	}

	upcoming, err := u.store.UpcomingTimes(ctx, now, u.cfg.ChaseHorizon)
	if err != nil {
		u.logger.Errorf("%s: can't read upcoming event times", err)
		return
	}

	for _, eventTime := range upcoming {
		for _, offset := range _chaseOffsets {
			chaseAt := eventTime.Add(offset)

			// The loop ticks every 10s; a chase is due when its moment falls
			// inside the current tick's window.
			diff := chaseAt.Sub(time.Now().UTC())
			if diff < -5*time.Second || diff > 15*time.Second {
				continue
			}
			if diff > 0 && !sleep(ctx, diff) {
				return
			}

			label := chaseLabel(offset)
			u.record(fmt.Sprintf("chase %s for release @ %s", label, eventTime.Format("15:04")))
			if _, _, _, cerr := u.refreshWindow(ctx, false); cerr != nil {
				u.record(fmt.Sprintf("chase fetch failed: %s", cerr))
			} else {
				u.mu.Lock()
				u.lastChase = fmt.Sprintf("%s for %s at %s", label, eventTime.Format("15:04"), time.Now().UTC().Format("15:04:05"))
				u.mu.Unlock()
			}

			if !sleep(ctx, _chasePause) {
				return
			}
		}
	}
}

func chaseLabel(offset time.Duration) string {
	if offset < 2*time.Minute {
		return fmt.Sprintf("+%ds", int(offset.Seconds()))
	}
	return fmt.Sprintf("+%dmin", int(offset.Minutes()))
}

// weekWindow spans Monday 00:00 UTC of the current week through the end of
// the next week.
func weekWindow(now time.Time) (from, to time.Time) {
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := now.AddDate(0, 0, -(weekday - 1))
	from = time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
	to = from.AddDate(0, 0, 14).Add(-time.Second)
	return from, to
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (u *Updater) record(msg string) {
	u.logger.Infof("news updater: %s", msg)

	u.mu.Lock()
	u.recent = append(u.recent, fmt.Sprintf("[%s] %s", time.Now().UTC().Format("15:04:05"), msg))
	if len(u.recent) > _recentLines {
		u.recent = u.recent[len(u.recent)-_recentLines:]
	}
	u.mu.Unlock()
}
