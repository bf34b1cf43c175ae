package boundedcache

import (
	"container/list"
	"sync"
)

// Map is a thread-safe map with a fixed capacity. When full, inserting a new
// key evicts the oldest inserted key. Overwriting an existing key keeps its
// original insertion position.
type Map[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]*list.Element
	order    *list.List
	capacity int
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// NewMap creates a bounded map. A non-positive capacity is treated as 1.
func NewMap[K comparable, V any](capacity int) *Map[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Map[K, V]{
		entries:  make(map[K]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
	}
}

// Put stores value under key and returns the key that was evicted, if any.
func (m *Map[K, V]) Put(key K, value V) (evicted K, didEvict bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		elem.Value.(*entry[K, V]).value = value
		return evicted, false
	}
	m.entries[key] = m.order.PushBack(&entry[K, V]{key: key, value: value})
	if m.order.Len() > m.capacity {
		oldest := m.order.Front()
		m.order.Remove(oldest)
		evicted = oldest.Value.(*entry[K, V]).key
		delete(m.entries, evicted)
		return evicted, true
	}
	return evicted, false
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return elem.Value.(*entry[K, V]).value, true
}

// Has reports whether key is present.
func (m *Map[K, V]) Has(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// Delete removes key if present.
func (m *Map[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if elem, ok := m.entries[key]; ok {
		m.order.Remove(elem)
		delete(m.entries, key)
	}
}

// Len returns the number of stored entries.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Capacity returns the maximum number of entries.
func (m *Map[K, V]) Capacity() int {
	return m.capacity
}

// Clear removes all entries.
func (m *Map[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[K]*list.Element, m.capacity)
	m.order.Init()
}

// Set is a bounded set with the same eviction rules as Map.
type Set[K comparable] struct {
	m *Map[K, struct{}]
}

// NewSet creates a bounded set.
func NewSet[K comparable](capacity int) *Set[K] {
	return &Set[K]{m: NewMap[K, struct{}](capacity)}
}

// Add inserts key. Adding a present key is a no-op.
func (s *Set[K]) Add(key K) {
	s.m.Put(key, struct{}{})
}

// Has reports whether key is present.
func (s *Set[K]) Has(key K) bool {
	return s.m.Has(key)
}

// HasAny reports whether any of keys is present.
func (s *Set[K]) HasAny(keys ...K) bool {
	for _, key := range keys {
		if s.m.Has(key) {
			return true
		}
	}
	return false
}

// Len returns the number of stored keys.
func (s *Set[K]) Len() int {
	return s.m.Len()
}
