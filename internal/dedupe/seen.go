// ABOUTME: Bounded TTL set of recently seen message ids.
// ABOUTME: The sole suppression point for retransmits and an agent's own echo.

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"
)

// seenEntry stores the timestamp and list element for a marked id.
type seenEntry struct {
	markedAt time.Time
	element  *list.Element
}

// SeenSet tracks recently processed message ids so that duplicates, whether
// retransmits or the agent's own broadcast looping back, can be dropped.
// Bounded two ways: ids expire after the TTL, and when the set reaches
// capacity the oldest id is evicted first. A doubly-linked list keeps
// insertion order for O(1) eviction.
type SeenSet struct {
	mu       sync.RWMutex
	seen     map[uuid.UUID]*seenEntry
	order    *list.List // ids in insertion order, oldest at front
	ttl      time.Duration
	capacity int
	done     chan struct{}
	closed   bool
}

// New creates a seen set with the given TTL and capacity. A background
// goroutine sweeps expired ids once a minute.
func New(ttl time.Duration, capacity int) *SeenSet {
	s := &SeenSet{
		seen:     make(map[uuid.UUID]*seenEntry),
		order:    list.New(),
		ttl:      ttl,
		capacity: capacity,
		done:     make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Check reports whether the id has been seen and is not expired.
func (s *SeenSet) Check(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.seen[id]
	if !ok {
		return false
	}
	return time.Since(entry.markedAt) < s.ttl
}

// CheckAndMark atomically checks an id and marks it if new. Returns true if
// the id was already seen (duplicate), false if it is new and now marked.
// One lock for both steps, so two arrivals of the same id cannot both pass.
func (s *SeenSet) CheckAndMark(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.seen[id]
	if ok && time.Since(entry.markedAt) < s.ttl {
		return true
	}

	s.markLocked(id)
	return false
}

// Mark records an id as seen. Used for the agent's own outbound ids before
// sending, so the echo coming back from the group is dropped as a duplicate.
func (s *SeenSet) Mark(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markLocked(id)
}

// markLocked is the internal mark implementation. Must be called with mu held.
func (s *SeenSet) markLocked(id uuid.UUID) {
	now := time.Now()

	if entry, exists := s.seen[id]; exists {
		entry.markedAt = now
		s.order.MoveToBack(entry.element)
		return
	}

	if len(s.seen) >= s.capacity {
		s.evictOldest()
	}

	elem := s.order.PushBack(id)
	s.seen[id] = &seenEntry{
		markedAt: now,
		element:  elem,
	}
}

// evictOldest removes the oldest id. Must be called with mu held.
func (s *SeenSet) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}

	id, _ := front.Value.(uuid.UUID)
	s.order.Remove(front)
	delete(s.seen, id)
}

// Len returns the number of ids currently tracked, expired or not.
func (s *SeenSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

// sweepLoop periodically removes expired ids in the background.
func (s *SeenSet) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// sweep removes all expired ids.
func (s *SeenSet) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, entry := range s.seen {
		if now.Sub(entry.markedAt) > s.ttl {
			s.order.Remove(entry.element)
			delete(s.seen, id)
		}
	}
}

// Close stops the background sweep. Safe to call multiple times.
func (s *SeenSet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}
