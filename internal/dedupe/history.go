package dedupe

import (
	"context"
	"sync"
	"time"
)

// Entry is one remembered ticket in a customer's window.
type Entry struct {
	TicketID    string      `json:"ticket_id"`
	Fingerprint Fingerprint `json:"fingerprint"`
	At          time.Time   `json:"at"`
}

// History holds the recent-ticket window of every customer.
//
// Observe returns the customer's live window as it was before e, then
// appends e, as one atomic step with respect to concurrent callers.
// Entries older than the TTL or beyond the size bound are evicted, oldest
// first.
type History interface {
	Observe(ctx context.Context, customer string, e Entry) ([]Entry, error)
	Close() error
}

// MemoryHistory is an in-process History.
type MemoryHistory struct {
	mu      sync.Mutex
	windows map[string][]Entry
	size    int
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewMemoryHistory creates a MemoryHistory keeping at most size entries
// younger than ttl per customer.
func NewMemoryHistory(size int, ttl time.Duration) *MemoryHistory {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if ttl <= 0 {
		ttl = DefaultWindowTTL
	}
	return &MemoryHistory{
		windows: make(map[string][]Entry),
		size:    size,
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// Observe implements History.
func (h *MemoryHistory) Observe(_ context.Context, customer string, e Entry) ([]Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.nowFunc().Add(-h.ttl)
	window := h.windows[customer]
	live := window[:0]
	for _, old := range window {
		if old.At.After(cutoff) {
			live = append(live, old)
		}
	}
	prior := make([]Entry, len(live))
	copy(prior, live)

	live = append(live, e)
	if over := len(live) - h.size; over > 0 {
		live = live[over:]
	}
	h.windows[customer] = live
	return prior, nil
}

// Len returns the number of entries held for customer.
func (h *MemoryHistory) Len(customer string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.windows[customer])
}

// Reset forgets every window.
func (h *MemoryHistory) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.windows = make(map[string][]Entry)
}

// Close implements History.
func (h *MemoryHistory) Close() error { return nil }
