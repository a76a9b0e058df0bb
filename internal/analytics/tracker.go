// Package analytics persists sessions and daily usage aggregates.
//
// The tracker consumes interaction events from a buffered channel so the
// dialogue engine never blocks on persistence: producers enqueue and move
// on, a single worker goroutine writes sessions and daily stats behind
// them. Events are dropped (with a warning) if the buffer is full.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/comunidadegraca/atendebot/internal/dialog"
	"github.com/comunidadegraca/atendebot/internal/models"
	"github.com/comunidadegraca/atendebot/internal/store"
)

// DefaultBufferSize is the event channel capacity.
const DefaultBufferSize = 256

// DefaultSessionTTL is how long an inactive session survives before the
// expiry sweep removes it.
const DefaultSessionTTL = 30 * time.Minute

// event is one recorded interaction.
type event struct {
	Phone  string
	NodeID string
	At     time.Time
}

// Opts holds configuration options for the tracker.
type Opts struct {
	BufferSize int
	SessionTTL time.Duration
}

// Option defines a configuration option for the tracker.
type Option func(*Opts)

// WithBufferSize sets the event channel capacity.
func WithBufferSize(n int) Option {
	return func(o *Opts) { o.BufferSize = n }
}

// WithSessionTTL sets the inactivity window for session expiry.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = ttl }
}

// Tracker records interactions into the session and daily stats tables.
type Tracker struct {
	st         store.Store
	events     chan event
	sessionTTL time.Duration
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// Compile-time check that Tracker satisfies the engine's tracker contract.
var _ dialog.Tracker = (*Tracker)(nil)

// NewTracker creates a tracker writing to the given store.
func NewTracker(st store.Store, opts ...Option) *Tracker {
	cfg := Opts{BufferSize: DefaultBufferSize, SessionTTL: DefaultSessionTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &Tracker{
		st:         st,
		events:     make(chan event, cfg.BufferSize),
		sessionTTL: cfg.SessionTTL,
	}
}

// Start launches the worker goroutine. It drains remaining events after
// Stop is called.
func (t *Tracker) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		slog.Info("Tracker.Start: analytics worker running")
		for {
			select {
			case ev, ok := <-t.events:
				if !ok {
					slog.Info("Tracker: event channel closed, worker exiting")
					return
				}
				t.record(ev)
			case <-ctx.Done():
				// Drain whatever is already buffered before exiting.
				for {
					select {
					case ev, ok := <-t.events:
						if !ok {
							return
						}
						t.record(ev)
					default:
						slog.Info("Tracker: context cancelled, worker exiting")
						return
					}
				}
			}
		}
	}()
}

// Stop closes the event channel and waits for the worker to drain it.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.events) })
	t.wg.Wait()
}

// Track enqueues one interaction. It never blocks: if the buffer is full
// the event is dropped and a warning logged.
func (t *Tracker) Track(phone, nodeID string) {
	select {
	case t.events <- event{Phone: phone, NodeID: nodeID, At: time.Now()}:
	default:
		slog.Warn("Tracker.Track: event buffer full, dropping interaction", "phone", phone)
	}
}

// record persists one event: session upsert with bounded history plus the
// daily aggregate counters.
func (t *Tracker) record(ev event) {
	newSession := t.recordSession(ev)
	t.recordDailyStats(ev, newSession)
}

// recordSession upserts the member's session and reports whether a new
// session was created.
func (t *Tracker) recordSession(ev event) bool {
	sess, err := t.st.GetSessionByPhone(ev.Phone)
	if err != nil {
		slog.Error("Tracker.recordSession: session lookup failed", "error", err, "phone", ev.Phone)
		return false
	}

	created := false
	if sess == nil {
		sess = &models.Session{
			ID:        uuid.NewString(),
			Phone:     ev.Phone,
			StartedAt: ev.At,
		}
		created = true
	}
	sess.LastActiveAt = ev.At
	sess.AppendInteraction(models.Interaction{NodeID: ev.NodeID, Timestamp: ev.At})

	if err := t.st.SaveSession(*sess); err != nil {
		slog.Error("Tracker.recordSession: session save failed", "error", err, "phone", ev.Phone)
		return false
	}
	return created
}

// recordDailyStats increments the per-day counters for the event.
func (t *Tracker) recordDailyStats(ev event, newSession bool) {
	date := ev.At.Format("2006-01-02")
	st, err := t.st.GetDailyStats(date)
	if err != nil {
		slog.Error("Tracker.recordDailyStats: stats lookup failed", "error", err, "date", date)
		return
	}
	if st == nil {
		st = &models.DailyStats{Date: date}
	}

	st.MessageCount++
	if newSession {
		st.SessionCount++
	}
	if ev.NodeID != "" {
		if st.NodeAccess == nil {
			st.NodeAccess = make(map[string]int)
		}
		st.NodeAccess[ev.NodeID]++
	}
	st.HourlyCounts[ev.At.Hour()]++

	seen := false
	for _, p := range st.UniquePhones {
		if p == ev.Phone {
			seen = true
			break
		}
	}
	if !seen {
		st.UniquePhones = append(st.UniquePhones, ev.Phone)
	}

	if err := t.st.SaveDailyStats(*st); err != nil {
		slog.Error("Tracker.recordDailyStats: stats save failed", "error", err, "date", date)
	}
}

// ExpireSessions deletes sessions idle longer than the configured TTL.
// Intended to run from a scheduled job.
func (t *Tracker) ExpireSessions() {
	cutoff := time.Now().Add(-t.sessionTTL)
	n, err := t.st.DeleteSessionsInactiveSince(cutoff)
	if err != nil {
		slog.Error("Tracker.ExpireSessions: sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Tracker.ExpireSessions: expired inactive sessions", "count", n)
	}
}

// LogDailySummary logs the aggregate counters for a date (YYYY-MM-DD).
// Intended to run from the daily rollup job, after midnight, for the
// previous day.
func (t *Tracker) LogDailySummary(date string) {
	st, err := t.st.GetDailyStats(date)
	if err != nil {
		slog.Error("Tracker.LogDailySummary: stats lookup failed", "error", err, "date", date)
		return
	}
	if st == nil {
		slog.Info("Tracker.LogDailySummary: no activity recorded", "date", date)
		return
	}
	slog.Info("Tracker.LogDailySummary: daily rollup",
		"date", date,
		"messages", st.MessageCount,
		"sessions", st.SessionCount,
		"unique_phones", len(st.UniquePhones))
}
