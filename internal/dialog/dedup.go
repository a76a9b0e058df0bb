// Package dialog implements the menu-navigation dialogue engine.
//
// This file holds the short-lived in-memory de-duplication window that
// absorbs upstream webhook retries.
package dialog

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultDedupWindow suppresses identical (phone, body) pairs arriving
// within this interval.
const DefaultDedupWindow = 5 * time.Second

// DedupWindow suppresses repeat processing of an identical (phone,
// message text) pair arriving within a short window. Entries expire and
// are removed after the window elapses.
type DedupWindow struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time // injectable clock for tests
}

// NewDedupWindow creates a dedup window. A non-positive window falls back
// to DefaultDedupWindow.
func NewDedupWindow(window time.Duration) *DedupWindow {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &DedupWindow{
		seen:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

// Allow reports whether the (phone, body) pair should be processed.
// The first arrival inside a window is allowed; repeats are suppressed.
// Expired entries are pruned on each call.
func (d *DedupWindow) Allow(phone, body string) bool {
	key := phone + "\x00" + body
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for k, t := range d.seen {
		if now.Sub(t) > d.window {
			delete(d.seen, k)
		}
	}

	if t, ok := d.seen[key]; ok && now.Sub(t) <= d.window {
		slog.Debug("DedupWindow suppressed repeat message", "phone", phone)
		return false
	}
	d.seen[key] = now
	return true
}
