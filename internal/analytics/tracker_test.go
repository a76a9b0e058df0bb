package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/comunidadegraca/atendebot/internal/models"
	"github.com/comunidadegraca/atendebot/internal/store"
)

func TestTrackerRecordsSessionAndStats(t *testing.T) {
	mem := store.NewInMemoryStore()
	tr := NewTracker(mem)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.Start(ctx)

	tr.Track("5511999990001", "cultos")
	tr.Track("5511999990001", "culto-domingo")
	tr.Track("5511999990002", "")
	tr.Stop() // closes the channel and waits for the worker to drain

	sess, err := mem.GetSessionByPhone("5511999990001")
	if err != nil {
		t.Fatalf("GetSessionByPhone: %v", err)
	}
	if sess == nil {
		t.Fatal("session should have been created")
	}
	if sess.ID == "" {
		t.Error("session should carry a generated id")
	}
	if len(sess.Interactions) != 2 {
		t.Errorf("expected 2 interactions, got %d", len(sess.Interactions))
	}

	date := time.Now().Format("2006-01-02")
	st, err := mem.GetDailyStats(date)
	if err != nil {
		t.Fatalf("GetDailyStats: %v", err)
	}
	if st == nil {
		t.Fatal("daily stats should have been created")
	}
	if st.MessageCount != 3 {
		t.Errorf("expected 3 messages counted, got %d", st.MessageCount)
	}
	if st.SessionCount != 2 {
		t.Errorf("expected 2 sessions counted, got %d", st.SessionCount)
	}
	if st.NodeAccess["cultos"] != 1 || st.NodeAccess["culto-domingo"] != 1 {
		t.Errorf("node access counters wrong: %+v", st.NodeAccess)
	}
	if len(st.UniquePhones) != 2 {
		t.Errorf("expected 2 unique phones, got %+v", st.UniquePhones)
	}
	if st.HourlyCounts[time.Now().Hour()] != 3 {
		t.Errorf("hourly bucket wrong: %+v", st.HourlyCounts)
	}
}

func TestTrackerSessionIdentityIsStable(t *testing.T) {
	mem := store.NewInMemoryStore()
	tr := NewTracker(mem)

	tr.record(event{Phone: "5511999990003", NodeID: "cultos", At: time.Now()})
	first, _ := mem.GetSessionByPhone("5511999990003")
	tr.record(event{Phone: "5511999990003", NodeID: "endereco", At: time.Now()})
	second, _ := mem.GetSessionByPhone("5511999990003")

	if first == nil || second == nil {
		t.Fatal("sessions missing")
	}
	if first.ID != second.ID {
		t.Error("subsequent events must reuse the existing session")
	}

	date := time.Now().Format("2006-01-02")
	st, _ := mem.GetDailyStats(date)
	if st.SessionCount != 1 {
		t.Errorf("only the first event starts a session, got count %d", st.SessionCount)
	}
	if st.MessageCount != 2 {
		t.Errorf("every event counts a message, got %d", st.MessageCount)
	}
}

func TestTrackerBoundsSessionHistory(t *testing.T) {
	mem := store.NewInMemoryStore()
	tr := NewTracker(mem)

	base := time.Now()
	for i := 0; i < models.MaxSessionInteractions+5; i++ {
		tr.record(event{Phone: "5511999990004", NodeID: "cultos", At: base.Add(time.Duration(i) * time.Second)})
	}

	sess, _ := mem.GetSessionByPhone("5511999990004")
	if sess == nil {
		t.Fatal("session missing")
	}
	if len(sess.Interactions) != models.MaxSessionInteractions {
		t.Errorf("history should be capped at %d, got %d", models.MaxSessionInteractions, len(sess.Interactions))
	}
	// The oldest entries are the ones dropped.
	oldest := sess.Interactions[0].Timestamp
	if oldest.Before(base.Add(4 * time.Second)) {
		t.Errorf("oldest retained interaction too old: %v", oldest)
	}
}

func TestTrackerExpireSessions(t *testing.T) {
	mem := store.NewInMemoryStore()
	tr := NewTracker(mem, WithSessionTTL(30*time.Minute))

	now := time.Now()
	mem.SaveSession(models.Session{ID: "a", Phone: "fresh", StartedAt: now, LastActiveAt: now})
	mem.SaveSession(models.Session{ID: "b", Phone: "stale", StartedAt: now.Add(-2 * time.Hour), LastActiveAt: now.Add(-2 * time.Hour)})

	tr.ExpireSessions()

	if sess, _ := mem.GetSessionByPhone("stale"); sess != nil {
		t.Error("stale session should be expired")
	}
	if sess, _ := mem.GetSessionByPhone("fresh"); sess == nil {
		t.Error("fresh session should survive")
	}
}

func TestTrackerTrackNeverBlocksWhenFull(t *testing.T) {
	mem := store.NewInMemoryStore()
	tr := NewTracker(mem, WithBufferSize(1))

	// Worker not started: the second event has nowhere to go and must be
	// dropped without blocking.
	done := make(chan struct{})
	go func() {
		tr.Track("5511999990005", "a")
		tr.Track("5511999990005", "b")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Track blocked on a full buffer")
	}
}

func TestTrackerStopIdempotent(t *testing.T) {
	tr := NewTracker(store.NewInMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.Start(ctx)
	tr.Stop()
	tr.Stop()
}
