package database

import "sync"

// IDAllocator hands out increasing ids per counter name, starting at 1.
// Ids are never reused.
type IDAllocator struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewIDAllocator() *IDAllocator {
	return &IDAllocator{counters: make(map[string]int64)}
}

// Next increments the named counter and returns the new value.
func (m *IDAllocator) Next(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
	return m.counters[name]
}

// Current returns the last value handed out, 0 before the first Next.
func (m *IDAllocator) Current(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}
