// Package dialog implements the menu-navigation dialogue engine.
//
// This file holds the per-phone conversation state container. State is
// keyed by phone number with TTL-based eviction of abandoned
// conversations.
package dialog

import (
	"log/slog"
	"sync"
	"time"

	"github.com/comunidadegraca/atendebot/internal/models"
)

// DefaultStateTTL is how long an idle conversation is kept before the
// janitor evicts it.
const DefaultStateTTL = 30 * time.Minute

// States holds the navigation cursor of every active conversation,
// keyed by phone number.
type States struct {
	mu      sync.RWMutex
	byPhone map[string]models.ConversationState
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

// NewStates creates a state container. A non-positive ttl falls back to
// DefaultStateTTL.
func NewStates(ttl time.Duration) *States {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &States{
		byPhone: make(map[string]models.ConversationState),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
}

// Get returns a copy of the state for phone, and whether one exists.
func (s *States) Get(phone string) (models.ConversationState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byPhone[phone]
	return st, ok
}

// Set stores the state for its phone number, stamping UpdatedAt.
func (s *States) Set(st models.ConversationState) {
	st.UpdatedAt = time.Now()
	s.mu.Lock()
	s.byPhone[st.Phone] = st
	s.mu.Unlock()
}

// Clear removes the state for phone, if any.
func (s *States) Clear(phone string) {
	s.mu.Lock()
	delete(s.byPhone, phone)
	s.mu.Unlock()
}

// Len returns the number of active conversations.
func (s *States) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPhone)
}

// EvictIdle removes conversations idle since before cutoff and returns
// how many were evicted.
func (s *States) EvictIdle(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for phone, st := range s.byPhone {
		if st.UpdatedAt.Before(cutoff) {
			delete(s.byPhone, phone)
			n++
		}
	}
	return n
}

// StartJanitor starts a background goroutine that periodically evicts
// idle conversations. Safe to call once; Stop terminates it.
func (s *States) StartJanitor(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				if n := s.EvictIdle(time.Now().Add(-s.ttl)); n > 0 {
					slog.Debug("States janitor evicted idle conversations", "count", n)
				}
			}
		}
	}()
}

// Stop terminates the janitor goroutine.
func (s *States) Stop() {
	s.once.Do(func() { close(s.done) })
}
