package timeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestTracker(t *testing.T, handler http.HandlerFunc, cfg TrackerConfig) (*Tracker, *Store, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client := &Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
	store := NewStore(50)
	return NewTracker(client, store, cfg), store, srv.Close
}

func ackHandler(messageID, taskID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(SubmitReceipt{MessageID: messageID, TaskID: taskID})
	}
}

func TestSubmitReconcilesTempWithCanonical(t *testing.T) {
	tr, store, done := newTestTracker(t, ackHandler("m-500", "task-7"), TrackerConfig{})
	defer done()
	tr.SetClock(fixedClock(100))
	store.SetClock(fixedClock(100))

	receipt, err := tr.Submit(context.Background(), "do the thing")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if receipt.MessageID != "m-500" {
		t.Fatalf("expected canonical id m-500, got %q", receipt.MessageID)
	}

	if store.Len() != 1 {
		t.Fatalf("expected exactly one event after reconciliation, got %d", store.Len())
	}
	ev, ok := store.Get("m-500")
	if !ok {
		t.Fatal("canonical event missing")
	}
	if ev.OrderingKey != 100 {
		t.Fatalf("expected canonical event to keep temp key 100, got %d", ev.OrderingKey)
	}
	if ev.Optimistic {
		t.Fatal("expected optimistic flag cleared")
	}
	if ev.TaskRef == nil || ev.TaskRef.ID != "task-7" {
		t.Fatalf("expected task correlation, got %v", ev.TaskRef)
	}

	// No leftover temp event under any local id.
	for _, e := range store.OrderedView() {
		if strings.HasPrefix(e.ID, "local-") {
			t.Fatalf("temp event %s survived reconciliation", e.ID)
		}
	}
}

func TestSubmitOptimisticEventVisibleBeforeAck(t *testing.T) {
	seen := make(chan int, 1)
	var store *Store

	handler := func(w http.ResponseWriter, r *http.Request) {
		seen <- store.Len()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(SubmitReceipt{MessageID: "m-1"})
	}

	tr, st, done := newTestTracker(t, handler, TrackerConfig{})
	defer done()
	store = st

	if _, err := tr.Submit(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
	if n := <-seen; n != 1 {
		t.Fatalf("expected optimistic event in store before ack, saw %d", n)
	}
}

func TestSubmitPlaceholderLifecycle(t *testing.T) {
	seen := make(chan []Event, 1)
	var store *Store

	handler := func(w http.ResponseWriter, r *http.Request) {
		seen <- store.OrderedView()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(SubmitReceipt{MessageID: "m-1"})
	}

	tr, st, done := newTestTracker(t, handler, TrackerConfig{Placeholder: true})
	defer done()
	store = st

	if _, err := tr.Submit(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}

	during := <-seen
	if len(during) != 2 {
		t.Fatalf("expected temp + placeholder in flight, got %d events", len(during))
	}
	if !during[1].Pending || during[1].Kind != KindSystem {
		t.Fatalf("expected trailing pending system event, got %+v", during[1])
	}

	for _, ev := range store.OrderedView() {
		if ev.Pending {
			t.Fatal("placeholder survived acknowledgement")
		}
	}
}

func TestSubmitFailureInsertsErrorEvent(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "dispatch queue full"})
	}

	tr, store, done := newTestTracker(t, handler, TrackerConfig{Placeholder: true})
	defer done()

	_, err := tr.Submit(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected submission failure")
	}

	view := store.OrderedView()
	if len(view) != 1 {
		t.Fatalf("expected single error event, got %d", len(view))
	}
	ev := view[0]
	if !ev.Error || ev.Kind != KindSystem {
		t.Fatalf("expected system error event, got %+v", ev)
	}
	if !strings.Contains(ev.Text, "dispatch queue full") {
		t.Fatalf("expected failure cause in text, got %q", ev.Text)
	}
	if ev.Optimistic || ev.Pending {
		t.Fatalf("expected rolled-back flags, got %+v", ev)
	}
}

func TestSubmitConvergesWithBackgroundPoll(t *testing.T) {
	// The canonical event arrives via a background poll before the
	// submission's own response resolves. Reconciliation must converge on
	// one record keyed by the canonical id.
	var store *Store
	handler := func(w http.ResponseWriter, r *http.Request) {
		// Simulate the poll landing first.
		store.Upsert([]Event{{
			ID:     "m-500",
			Kind:   KindUser,
			Sender: "user",
			Text:   "do the thing",
		}}, UpsertOptions{RestampNew: true})

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(SubmitReceipt{MessageID: "m-500"})
	}

	tr, st, done := newTestTracker(t, handler, TrackerConfig{})
	defer done()
	store = st

	if _, err := tr.Submit(context.Background(), "do the thing"); err != nil {
		t.Fatal(err)
	}

	if store.Len() != 1 {
		t.Fatalf("expected convergence to one record, got %d", store.Len())
	}
	ev, ok := store.Get("m-500")
	if !ok {
		t.Fatal("canonical event missing")
	}
	// The poll inserted first, so its ordering key wins; what matters is
	// there is exactly one key and it never changes again.
	if ev.OrderingKey == 0 {
		t.Fatal("expected stamped ordering key")
	}
}
