package cache

import (
	"container/list"
	"sync"
	"time"
)

// Store is an LRU cache with TTL and size-based eviction, keyed by the
// structured statistics Key. Expired entries are treated as absent on
// access even before CleanExpired removes them. All operations are safe
// for concurrent use; callers never hold a lock.
type Store[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[Key]*list.Element
	lru     *list.List
}

type storeItem[T any] struct {
	key       Key
	data      T
	expiresAt time.Time
}

// NewStore creates a new LRU store with the given capacity and TTL.
func NewStore[T any](maxSize int, ttl time.Duration) *Store[T] {
	return &Store[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[Key]*list.Element),
		lru:     list.New(),
	}
}

// Get retrieves a value. A logical miss (absent or expired) is reported
// through the boolean, never as an error.
func (s *Store[T]) Get(key Key) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	elem, exists := s.items[key]
	if !exists {
		return zero, false
	}

	item := elem.Value.(*storeItem[T])

	// Lazy expiry
	if time.Now().After(item.expiresAt) {
		s.removeElement(elem)
		return zero, false
	}

	s.lru.MoveToFront(elem)
	return item.data, true
}

// Set stores a value with the store's TTL, evicting the least-recently
// used entry when over capacity.
func (s *Store[T]) Set(key Key, data T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := &storeItem[T]{
		key:       key,
		data:      data,
		expiresAt: time.Now().Add(s.ttl),
	}

	if elem, exists := s.items[key]; exists {
		elem.Value = item
		s.lru.MoveToFront(elem)
		return
	}

	elem := s.lru.PushFront(item)
	s.items[key] = elem

	if s.lru.Len() > s.maxSize {
		oldest := s.lru.Back()
		if oldest != nil {
			s.removeElement(oldest)
		}
	}
}

// Delete removes a single key.
func (s *Store[T]) Delete(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.items[key]; exists {
		s.removeElement(elem)
	}
}

// InvalidateUser removes every entry belonging to the user, regardless of
// date range, and returns the number removed. Runs atomically with respect
// to concurrent lookups.
func (s *Store[T]) InvalidateUser(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toRemove []*list.Element
	for elem := s.lru.Front(); elem != nil; elem = elem.Next() {
		if elem.Value.(*storeItem[T]).key.UserID == userID {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		s.removeElement(elem)
	}
	return len(toRemove)
}

func (s *Store[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*storeItem[T])
	delete(s.items, item.key)
	s.lru.Remove(elem)
}

// CleanExpired removes all expired entries and returns the removed count.
func (s *Store[T]) CleanExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element

	for elem := s.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*storeItem[T]).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		s.removeElement(elem)
	}
	return len(toRemove)
}

// Size returns the current number of entries.
func (s *Store[T]) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
