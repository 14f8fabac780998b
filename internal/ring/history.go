// Package ring provides a fixed-capacity, time-ordered history buffer.
package ring

// History maintains a sliding window of values. When full, Add overwrites
// the oldest entry.
type History[T any] struct {
	items    []T
	capacity int
	head     int // next write position
	size     int
}

// New creates a history buffer with the specified capacity.
func New[T any](capacity int) *History[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &History[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add stores a value, overwriting the oldest if at capacity. It reports
// whether an entry was evicted to make room.
func (h *History[T]) Add(v T) (evicted bool) {
	evicted = h.size == h.capacity
	h.items[h.head] = v
	h.head = (h.head + 1) % h.capacity
	if !evicted {
		h.size++
	}
	return evicted
}

// Previous returns the value N steps back from the most recent.
// Previous(1) returns the most recently added value.
func (h *History[T]) Previous(n int) (T, bool) {
	var zero T
	if n < 1 || n > h.size {
		return zero, false
	}
	idx := (h.head - n + h.capacity) % h.capacity
	return h.items[idx], true
}

// Oldest returns the oldest stored value.
func (h *History[T]) Oldest() (T, bool) {
	return h.Previous(h.size)
}

// PopOldest removes and returns the oldest stored value.
func (h *History[T]) PopOldest() (T, bool) {
	var zero T
	if h.size == 0 {
		return zero, false
	}
	idx := (h.head - h.size + h.capacity) % h.capacity
	v := h.items[idx]
	h.items[idx] = zero
	h.size--
	return v, true
}

// Len returns the current number of stored values.
func (h *History[T]) Len() int {
	return h.size
}

// Cap returns the maximum number of values that can be stored.
func (h *History[T]) Cap() int {
	return h.capacity
}

// Clear removes all values.
func (h *History[T]) Clear() {
	var zero T
	for i := range h.items {
		h.items[i] = zero
	}
	h.head = 0
	h.size = 0
}

// All returns all values from oldest to newest.
func (h *History[T]) All() []T {
	if h.size == 0 {
		return nil
	}
	result := make([]T, h.size)
	for i := 0; i < h.size; i++ {
		idx := (h.head - h.size + i + h.capacity) % h.capacity
		result[i] = h.items[idx]
	}
	return result
}
