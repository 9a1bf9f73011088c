package timeline

import (
	"fmt"
	"reflect"
	"testing"
	"time"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func ids(events []Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func TestUpsertIdempotent(t *testing.T) {
	s := NewStore(50)
	batch := []Event{
		{ID: "a", Text: "one", OrderingKey: 10},
		{ID: "b", Text: "two", OrderingKey: 12},
	}

	s.Upsert(batch, UpsertOptions{})
	first := s.OrderedView()

	s.Upsert(batch, UpsertOptions{})
	second := s.OrderedView()

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical views after re-upsert, got %v then %v", first, second)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 events, got %d", s.Len())
	}
}

func TestUpsertDedup(t *testing.T) {
	s := NewStore(50)
	s.Upsert([]Event{
		{ID: "a", OrderingKey: 1},
		{ID: "b", OrderingKey: 2},
		{ID: "c", OrderingKey: 3},
	}, UpsertOptions{})
	s.Upsert([]Event{
		{ID: "b", OrderingKey: 2},
		{ID: "c", OrderingKey: 3},
		{ID: "d", OrderingKey: 4},
	}, UpsertOptions{})

	if s.Len() != 4 {
		t.Fatalf("expected union of 4 ids, got %d", s.Len())
	}
}

func TestOrderingKeyImmutable(t *testing.T) {
	s := NewStore(50)
	s.Upsert([]Event{{ID: "a", Text: "old", OrderingKey: 100}}, UpsertOptions{})

	// Re-delivery with a different timestamp must not move the event.
	s.Upsert([]Event{{ID: "a", Text: "new", OrderingKey: 999}}, UpsertOptions{})

	ev, ok := s.Get("a")
	if !ok {
		t.Fatal("event missing after merge")
	}
	if ev.OrderingKey != 100 {
		t.Fatalf("expected ordering key 100, got %d", ev.OrderingKey)
	}
	if ev.Text != "new" {
		t.Fatalf("expected merged text %q, got %q", "new", ev.Text)
	}
}

func TestMergeUpdatesMutableFields(t *testing.T) {
	s := NewStore(50)
	s.Upsert([]Event{{ID: "a", Text: "start", OrderingKey: 5, Optimistic: true}}, UpsertOptions{})

	progress := 40.0
	s.Upsert([]Event{{
		ID:       "a",
		Text:     "done",
		Progress: &progress,
		TaskRef:  &TaskRef{ID: "t1", Title: "build", Status: "completed"},
	}}, UpsertOptions{})

	ev, _ := s.Get("a")
	if ev.Optimistic {
		t.Fatal("expected optimistic flag cleared by merge")
	}
	if ev.Progress == nil || *ev.Progress != 40 {
		t.Fatalf("expected progress 40, got %v", ev.Progress)
	}
	if ev.TaskRef == nil || ev.TaskRef.Status != "completed" {
		t.Fatalf("expected task ref merged, got %+v", ev.TaskRef)
	}
}

func TestRestampNewStampsUnseenIDs(t *testing.T) {
	s := NewStore(50)
	s.SetClock(fixedClock(50))
	s.Upsert([]Event{
		{ID: "1", OrderingKey: 10},
		{ID: "2", OrderingKey: 12},
	}, UpsertOptions{})

	// Incremental poll: id 2 re-delivered, id 3 newly seen with a backend
	// ingestion timestamp that must be ignored in favor of the local clock.
	s.Upsert([]Event{
		{ID: "2", OrderingKey: 12},
		{ID: "3", OrderingKey: 7},
	}, UpsertOptions{RestampNew: true})

	two, _ := s.Get("2")
	if two.OrderingKey != 12 {
		t.Fatalf("expected id 2 to keep key 12, got %d", two.OrderingKey)
	}
	three, _ := s.Get("3")
	if three.OrderingKey != 50 {
		t.Fatalf("expected id 3 stamped with local time 50, got %d", three.OrderingKey)
	}

	got := ids(s.OrderedView())
	want := []string{"1", "2", "3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected view %v, got %v", want, got)
	}
}

func TestRestampTrustsAuthoritativeTimestamps(t *testing.T) {
	s := NewStore(50)
	s.SetClock(fixedClock(5000))

	s.Upsert([]Event{
		{ID: "x", OrderingKey: 42, Authoritative: true},
	}, UpsertOptions{RestampNew: true})

	ev, _ := s.Get("x")
	if ev.OrderingKey != 42 {
		t.Fatalf("expected authoritative key 42 preserved, got %d", ev.OrderingKey)
	}
}

func TestInitialLoadKeepsBackendTimestamps(t *testing.T) {
	s := NewStore(50)
	s.SetClock(fixedClock(5000))

	s.Upsert([]Event{{ID: "x", OrderingKey: 42}}, UpsertOptions{RestampNew: false})

	ev, _ := s.Get("x")
	if ev.OrderingKey != 42 {
		t.Fatalf("expected ingestion-time key 42 on bulk load, got %d", ev.OrderingKey)
	}
}

func TestMissingTimestampStampedEitherMode(t *testing.T) {
	s := NewStore(50)
	s.SetClock(fixedClock(777))

	s.Upsert([]Event{{ID: "a"}}, UpsertOptions{})
	s.Upsert([]Event{{ID: "b"}}, UpsertOptions{RestampNew: true})

	for _, id := range []string{"a", "b"} {
		ev, _ := s.Get(id)
		if ev.OrderingKey != 777 {
			t.Fatalf("expected id %s stamped 777, got %d", id, ev.OrderingKey)
		}
	}
}

func TestRetentionWindow(t *testing.T) {
	s := NewStore(50)

	for i := 1; i <= 60; i++ {
		s.Upsert([]Event{{
			ID:          fmt.Sprintf("ev-%03d", i),
			OrderingKey: int64(i),
		}}, UpsertOptions{})

		if s.Len() > 50 {
			t.Fatalf("store exceeded capacity after merge %d: %d", i, s.Len())
		}
	}

	if s.Len() != 50 {
		t.Fatalf("expected 50 retained events, got %d", s.Len())
	}
	for i := 1; i <= 10; i++ {
		if _, ok := s.Get(fmt.Sprintf("ev-%03d", i)); ok {
			t.Fatalf("expected oldest event ev-%03d evicted", i)
		}
	}
	for i := 11; i <= 60; i++ {
		if _, ok := s.Get(fmt.Sprintf("ev-%03d", i)); !ok {
			t.Fatalf("expected recent event ev-%03d retained", i)
		}
	}
}

func TestMaxOrderingKey(t *testing.T) {
	s := NewStore(50)
	if got := s.MaxOrderingKey(); got != 0 {
		t.Fatalf("expected 0 on empty store, got %d", got)
	}

	s.Upsert([]Event{
		{ID: "a", OrderingKey: 30},
		{ID: "b", OrderingKey: 90},
		{ID: "c", OrderingKey: 60},
	}, UpsertOptions{})

	if got := s.MaxOrderingKey(); got != 90 {
		t.Fatalf("expected max key 90, got %d", got)
	}
}

func TestRemove(t *testing.T) {
	s := NewStore(50)
	s.Upsert([]Event{{ID: "a", OrderingKey: 1}}, UpsertOptions{})

	ev, ok := s.Remove("a")
	if !ok || ev.ID != "a" {
		t.Fatalf("expected removed event a, got %v %v", ev, ok)
	}
	if _, ok := s.Remove("a"); ok {
		t.Fatal("expected second remove to report absent")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
}
