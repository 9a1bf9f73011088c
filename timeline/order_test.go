package timeline

import (
	"reflect"
	"testing"
)

func seq(n int64) *int64 { return &n }

func TestOrderByOrderingKey(t *testing.T) {
	s := NewStore(50)
	s.Upsert([]Event{
		{ID: "b", OrderingKey: 12},
		{ID: "a", OrderingKey: 10},
	}, UpsertOptions{})

	got := ids(s.OrderedView())
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
}

func TestCausalSequenceBeatsWallClock(t *testing.T) {
	// Producer clocks disagree: the later dispatch carries the earlier
	// wall-clock timestamp. The dispatcher ordinal decides.
	events := map[string]Event{
		"a": {ID: "a", OrderingKey: 900, CausalSeq: seq(1)},
		"b": {ID: "b", OrderingKey: 100, CausalSeq: seq(2)},
	}

	got := ids(orderEvents(events))
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected causal order %v, got %v", want, got)
	}
}

func TestCausalSequenceIgnoredWhenOneSided(t *testing.T) {
	events := map[string]Event{
		"a": {ID: "a", OrderingKey: 200, CausalSeq: seq(9)},
		"b": {ID: "b", OrderingKey: 100},
	}

	got := ids(orderEvents(events))
	want := []string{"b", "a"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected wall-clock order %v, got %v", want, got)
	}
}

func TestEqualCausalSequenceFallsBackToKey(t *testing.T) {
	events := map[string]Event{
		"a": {ID: "a", OrderingKey: 300, CausalSeq: seq(5)},
		"b": {ID: "b", OrderingKey: 100, CausalSeq: seq(5)},
	}

	got := ids(orderEvents(events))
	want := []string{"b", "a"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected key order %v, got %v", want, got)
	}
}

func TestIDBreaksTies(t *testing.T) {
	events := map[string]Event{
		"z": {ID: "z", OrderingKey: 7},
		"a": {ID: "a", OrderingKey: 7},
		"m": {ID: "m", OrderingKey: 7},
	}

	got := ids(orderEvents(events))
	want := []string{"a", "m", "z"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected lexicographic tie-break %v, got %v", want, got)
	}
}

func TestMixedCausalAndWallClockTotalOrder(t *testing.T) {
	// Sequenced and unsequenced events interleave in a way where no order
	// can satisfy both axes pairwise: d precedes b by dispatch ordinal, yet
	// b, a, d is the wall-clock order. The sequenced events must stay in
	// dispatch order, the unsequenced ones at their wall-clock position,
	// and repeated calls over the same map must agree exactly.
	events := map[string]Event{
		"c": {ID: "c", OrderingKey: 3},
		"a": {ID: "a", OrderingKey: 3},
		"b": {ID: "b", OrderingKey: 1, CausalSeq: seq(2)},
		"d": {ID: "d", OrderingKey: 9, CausalSeq: seq(1)},
	}

	want := []string{"a", "c", "d", "b"}
	for i := 0; i < 50; i++ {
		if got := ids(orderEvents(events)); !reflect.DeepEqual(got, want) {
			t.Fatalf("run %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestLaggingDispatchPulledUpToPredecessor(t *testing.T) {
	// The second dispatch carries an earlier producer timestamp than an
	// unrelated event between the two dispatches. It is placed beside its
	// causal predecessor rather than sliding back past the unrelated event.
	events := map[string]Event{
		"s1": {ID: "s1", OrderingKey: 100, CausalSeq: seq(1)},
		"x":  {ID: "x", OrderingKey: 150},
		"s2": {ID: "s2", OrderingKey: 50, CausalSeq: seq(2)},
	}

	got := ids(orderEvents(events))
	want := []string{"s1", "s2", "x"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestOrderedViewDeterministic(t *testing.T) {
	s := NewStore(50)
	s.Upsert([]Event{
		{ID: "c", OrderingKey: 3},
		{ID: "a", OrderingKey: 3},
		{ID: "b", OrderingKey: 1, CausalSeq: seq(2)},
		{ID: "d", OrderingKey: 9, CausalSeq: seq(1)},
	}, UpsertOptions{})

	first := ids(s.OrderedView())
	for i := 0; i < 20; i++ {
		if got := ids(s.OrderedView()); !reflect.DeepEqual(got, first) {
			t.Fatalf("view changed between identical calls: %v vs %v", first, got)
		}
	}
}
