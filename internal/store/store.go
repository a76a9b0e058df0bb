// Package store provides storage backends for AtendeBot.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL backed stores for the menu tree, sessions and daily analytics.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/comunidadegraca/atendebot/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-style connection strings
// and "sqlite" for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Store defines the persistence operations used by the bot.
type Store interface {
	// Menu tree (source of truth for the in-memory menu cache).
	ListActiveMenuNodes() ([]models.MenuNode, error)
	GetMenuNode(id string) (*models.MenuNode, error)
	SaveMenuNode(n models.MenuNode) error
	DeactivateMenuNode(id string) error

	// Sessions and their bounded interaction history.
	SaveSession(s models.Session) error
	GetSessionByPhone(phone string) (*models.Session, error)
	ListRecentSessions(limit int) ([]models.Session, error)
	DeleteSessionsInactiveSince(cutoff time.Time) (int, error)

	// Daily aggregates keyed by YYYY-MM-DD.
	GetDailyStats(date string) (*models.DailyStats, error)
	SaveDailyStats(st models.DailyStats) error

	Close() error
}

// InMemoryStore is a Store and DedupRepo kept entirely in memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	nodes    map[string]models.MenuNode
	sessions map[string]models.Session // keyed by phone
	stats    map[string]models.DailyStats
	dedup    map[string]DedupRecord

	// FailListNodes forces ListActiveMenuNodes to fail (for cache tests).
	FailListNodes bool
}

// Compile-time checks that InMemoryStore implements the store interfaces.
var (
	_ Store     = (*InMemoryStore)(nil)
	_ DedupRepo = (*InMemoryStore)(nil)
)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nodes:    make(map[string]models.MenuNode),
		sessions: make(map[string]models.Session),
		stats:    make(map[string]models.DailyStats),
		dedup:    make(map[string]DedupRecord),
	}
}

// ErrListNodesFailed is returned when FailListNodes is set.
var errListNodesFailed = &storeError{"menu node listing failed"}

type storeError struct{ msg string }

func (e *storeError) Error() string { return e.msg }

func (s *InMemoryStore) ListActiveMenuNodes() ([]models.MenuNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailListNodes {
		return nil, errListNodesFailed
	}
	nodes := make([]models.MenuNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		if n.IsActive {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].ParentID != nodes[j].ParentID {
			return nodes[i].ParentID < nodes[j].ParentID
		}
		return nodes[i].Order < nodes[j].Order
	})
	return nodes, nil
}

func (s *InMemoryStore) GetMenuNode(id string) (*models.MenuNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (s *InMemoryStore) SaveMenuNode(n models.MenuNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
	return nil
}

func (s *InMemoryStore) DeactivateMenuNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[id]; ok {
		n.IsActive = false
		n.UpdatedAt = time.Now()
		s.nodes[id] = n
	}
	return nil
}

func (s *InMemoryStore) SaveSession(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Phone] = sess
	return nil
}

func (s *InMemoryStore) GetSessionByPhone(phone string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[phone]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *InMemoryStore) ListRecentSessions(limit int) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActiveAt.After(sessions[j].LastActiveAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *InMemoryStore) DeleteSessionsInactiveSince(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for phone, sess := range s.sessions {
		if sess.LastActiveAt.Before(cutoff) {
			delete(s.sessions, phone)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetDailyStats(date string) (*models.DailyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[date]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *InMemoryStore) SaveDailyStats(st models.DailyStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[st.Date] = st
	return nil
}

func (s *InMemoryStore) IsDuplicate(messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dedup[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(messageID, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = DedupRecord{MessageID: messageID, Phone: phone, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[messageID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
		s.dedup[messageID] = rec
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
