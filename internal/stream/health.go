package stream

import (
	"sync"
	"time"
)

// health tracks connection liveness for the receive loop and the watchdog.
// Staleness is measured from the last successfully handled message, not from
// the last read attempt, so a half-open socket that keeps timing out cleanly
// still ages toward the stale threshold.
type health struct {
	mu sync.Mutex

	lastMessage  time.Time
	lastSuccess  time.Time
	lastRestart  time.Time
	failingSince time.Time
	errStreak    int
	alerted      bool
}

func newHealth(now time.Time) *health {
	return &health{lastMessage: now, lastSuccess: now}
}

// message records a successfully handled stream message and clears any
// failure streak.
func (h *health) message(now time.Time) {
	h.mu.Lock()
	h.lastMessage = now
	h.lastSuccess = now
	h.errStreak = 0
	h.failingSince = time.Time{}
	h.alerted = false
	h.mu.Unlock()
}

// failure records a hard transport error and returns the current streak.
func (h *health) failure(now time.Time) int {
	h.mu.Lock()
	h.errStreak++
	if h.failingSince.IsZero() {
		h.failingSince = now
	}
	streak := h.errStreak
	h.mu.Unlock()
	return streak
}

// resetStreak clears the failure streak without touching message timestamps.
// Watchdog restarts are not transport failures and must not grow the backoff.
func (h *health) resetStreak() {
	h.mu.Lock()
	h.errStreak = 0
	h.mu.Unlock()
}

func (h *health) streak() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errStreak
}

// stale reports whether no message has been handled for longer than limit.
func (h *health) stale(now time.Time, limit time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return now.Sub(h.lastMessage) > limit
}

// restartAllowed applies the cooldown between forced restarts and, when the
// restart may proceed, stamps it.
func (h *health) restartAllowed(now time.Time, cooldown time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.lastRestart.IsZero() && now.Sub(h.lastRestart) < cooldown {
		return false
	}
	h.lastRestart = now
	return true
}

// restarted marks a completed rebuild so a fresh session starts with a clean
// staleness clock.
func (h *health) restarted(now time.Time) {
	h.mu.Lock()
	h.lastMessage = now
	h.mu.Unlock()
}

// shouldAlert returns true exactly once per failure episode, after failures
// have persisted beyond limit.
func (h *health) shouldAlert(now time.Time, limit time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.alerted || h.failingSince.IsZero() {
		return false
	}
	if now.Sub(h.failingSince) < limit {
		return false
	}
	h.alerted = true
	return true
}
