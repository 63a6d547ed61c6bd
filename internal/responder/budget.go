package responder

import (
	"sync"
	"time"
)

// Budget caps generative calls per ticket over a sliding window.
type Budget struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	windows map[string]*slidingWindow
}

// NewBudget returns a budget allowing max calls per window. A non-positive
// max disables the limit.
func NewBudget(max int, window time.Duration) *Budget {
	return &Budget{max: max, window: window, windows: make(map[string]*slidingWindow)}
}

// Allow records a call for key if the key still has room in its window.
func (b *Budget) Allow(key string, now time.Time) bool {
	if b == nil || b.max <= 0 || b.window <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.windows[key]
	if !ok {
		w = &slidingWindow{window: b.window}
		b.windows[key] = w
	}
	if w.count(now) >= b.max {
		return false
	}
	w.add(now)
	return true
}

// Forget drops the window for key, e.g. when its ticket closes.
func (b *Budget) Forget(key string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.windows, key)
}

// Prune drops windows with no hits left in range.
func (b *Budget) Prune(now time.Time) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, w := range b.windows {
		if w.count(now) == 0 {
			delete(b.windows, key)
		}
	}
}

type slidingWindow struct {
	window time.Duration
	hits   []time.Time
}

func (w *slidingWindow) add(now time.Time) int {
	w.expire(now)
	w.hits = append(w.hits, now)
	return len(w.hits)
}

func (w *slidingWindow) count(now time.Time) int {
	w.expire(now)
	return len(w.hits)
}

func (w *slidingWindow) expire(now time.Time) {
	cutoff := now.Add(-w.window)
	idx := 0
	for _, hit := range w.hits {
		if hit.After(cutoff) {
			break
		}
		idx++
	}
	w.hits = w.hits[idx:]
}
