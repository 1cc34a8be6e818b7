// Package ringbuf provides a fixed-capacity sliding window of price points.
// When the window is full a push overwrites the oldest point, so the window
// always holds the most recent Cap() observations in arrival order.
package ringbuf

import (
	"sync"

	"coinsignal/internal/model"
)

// Window is a mutex-guarded circular buffer of HistoricalPrice values.
type Window struct {
	mu   sync.RWMutex
	buf  []model.HistoricalPrice
	head int // index of the oldest element
	n    int
}

// New creates a window. Minimum capacity is 2.
func New(capacity int) *Window {
	if capacity < 2 {
		capacity = 2
	}
	return &Window{buf: make([]model.HistoricalPrice, capacity)}
}

// Push appends p, overwriting the oldest point when full. It reports whether
// a point was evicted.
func (w *Window) Push(p model.HistoricalPrice) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = p
		w.n++
		return false
	}
	w.buf[w.head] = p
	w.head = (w.head + 1) % len(w.buf)
	return true
}

// ReplaceLast overwrites the newest point. Returns false if the window is empty.
func (w *Window) ReplaceLast(p model.HistoricalPrice) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.n == 0 {
		return false
	}
	w.buf[(w.head+w.n-1)%len(w.buf)] = p
	return true
}

// Last returns the newest point.
func (w *Window) Last() (model.HistoricalPrice, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.n == 0 {
		return model.HistoricalPrice{}, false
	}
	return w.buf[(w.head+w.n-1)%len(w.buf)], true
}

// Snapshot copies the window contents, oldest first.
func (w *Window) Snapshot() []model.HistoricalPrice {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]model.HistoricalPrice, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Len returns the current number of points in the window.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.n
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}
