package timeline

import (
	"sync"
	"time"
)

// DefaultRetention is the number of most recent events a Store keeps.
const DefaultRetention = 50

// UpsertOptions controls how a merge stamps events it has never seen.
type UpsertOptions struct {
	// RestampNew stamps newly-appearing ids with the client's current time
	// unless the backend marked their timestamp authoritative. Background
	// polls set this: an id first seen mid-session was just created, and the
	// local clock is a better ordering signal than a backend ingestion time
	// that may lag the true event by a batch cycle. The initial bulk load
	// leaves it false and takes whatever signal each item carries.
	RestampNew bool
}

// Store is the id-keyed reconciliation point for the timeline. Poll results
// and optimistic submissions both land here; merges are field-level, ids are
// unique, and ordering keys are write-once, so the store converges to the
// same state regardless of which network response arrives first.
type Store struct {
	mu       sync.Mutex
	events   map[string]Event
	capacity int
	now      func() time.Time
}

// NewStore creates a store bounded to the given capacity. Zero or negative
// capacity means DefaultRetention.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultRetention
	}
	return &Store{
		events:   make(map[string]Event),
		capacity: capacity,
		now:      time.Now,
	}
}

// Upsert merges a batch into the store and enforces the retention window.
// Calling it twice with the same batch leaves the store unchanged the second
// time.
//
// Existing ids keep their OrderingKey and CausalSeq; Text, the status flags,
// TaskRef, and Progress follow the incoming record. New ids are stamped per
// opts (see UpsertOptions).
func (s *Store) Upsert(events []Event, opts UpsertOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, in := range events {
		existing, ok := s.events[in.ID]
		if ok {
			existing.Text = in.Text
			existing.Optimistic = in.Optimistic
			existing.Error = in.Error
			existing.Pending = in.Pending
			if in.TaskRef != nil {
				ref := *in.TaskRef
				existing.TaskRef = &ref
			}
			if in.Progress != nil {
				p := *in.Progress
				existing.Progress = &p
			}
			s.events[in.ID] = existing
			continue
		}

		ev := in
		switch {
		case ev.Authoritative && ev.OrderingKey != 0:
			// Server recovered the true event time; trust it in both modes.
		case opts.RestampNew:
			ev.OrderingKey = s.now().UnixMilli()
		case ev.OrderingKey != 0:
			// Initial load: ingestion time beats having no reference at all.
		default:
			ev.OrderingKey = s.now().UnixMilli()
		}
		s.events[ev.ID] = ev
	}

	s.evictLocked()
}

// evictLocked drops everything outside the most-recent-capacity window.
// Optimistic and pending events are not pinned.
func (s *Store) evictLocked() {
	if len(s.events) <= s.capacity {
		return
	}
	view := orderEvents(s.events)
	for _, ev := range view[:len(view)-s.capacity] {
		delete(s.events, ev.ID)
	}
}

// OrderedView returns the store's contents in presentation order: causal
// sequence among the events that carry one, wall-clock ordering key
// otherwise, ID as the final tie-break (see orderEvents). The result is a
// copy; the same store state always yields the same sequence.
func (s *Store) OrderedView() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return orderEvents(s.events)
}

// Get returns the event with the given id, if present.
func (s *Store) Get(id string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	return ev, ok
}

// Remove deletes an event by id, returning it when it was present.
func (s *Store) Remove(id string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if ok {
		delete(s.events, id)
	}
	return ev, ok
}

// Len reports how many events the store currently holds.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// MaxOrderingKey returns the highest ordering key currently in the store,
// or 0 when empty. The poller uses it as the next fetch cursor.
func (s *Store) MaxOrderingKey() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for _, ev := range s.events {
		if ev.OrderingKey > max {
			max = ev.OrderingKey
		}
	}
	return max
}

// SetClock replaces the store's time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
