package dialog

import (
	"testing"
	"time"
)

func TestDedupWindowSuppressesWithinWindow(t *testing.T) {
	now := time.Now()
	d := NewDedupWindow(5 * time.Second)
	d.now = func() time.Time { return now }

	if !d.Allow("5511999990001", "oi") {
		t.Fatal("first arrival should be allowed")
	}
	now = now.Add(2 * time.Second)
	if d.Allow("5511999990001", "oi") {
		t.Error("repeat within window should be suppressed")
	}
}

func TestDedupWindowAllowsAfterExpiry(t *testing.T) {
	now := time.Now()
	d := NewDedupWindow(5 * time.Second)
	d.now = func() time.Time { return now }

	d.Allow("5511999990001", "oi")
	now = now.Add(6 * time.Second)
	if !d.Allow("5511999990001", "oi") {
		t.Error("same message after window should be allowed again")
	}
}

func TestDedupWindowKeyedByPhoneAndBody(t *testing.T) {
	d := NewDedupWindow(5 * time.Second)

	if !d.Allow("5511999990001", "oi") {
		t.Fatal("first arrival should be allowed")
	}
	if !d.Allow("5511999990002", "oi") {
		t.Error("same body from another phone is not a duplicate")
	}
	if !d.Allow("5511999990001", "menu") {
		t.Error("different body from same phone is not a duplicate")
	}
}

func TestDedupWindowPrunesExpiredEntries(t *testing.T) {
	now := time.Now()
	d := NewDedupWindow(5 * time.Second)
	d.now = func() time.Time { return now }

	d.Allow("a", "1")
	d.Allow("b", "2")
	now = now.Add(10 * time.Second)
	d.Allow("c", "3")

	d.mu.Lock()
	size := len(d.seen)
	d.mu.Unlock()
	if size != 1 {
		t.Errorf("expired entries should be pruned, map holds %d", size)
	}
}

func TestDedupWindowDefaultOnNonPositive(t *testing.T) {
	d := NewDedupWindow(0)
	if d.window != DefaultDedupWindow {
		t.Errorf("expected default window, got %v", d.window)
	}
}
