package timeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// feedServer is a scriptable fake of the /events endpoint.
type feedServer struct {
	mu       sync.Mutex
	batches  [][]RawItem
	calls    int
	sinces   []int64
	failNext bool
}

func (f *feedServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
		f.sinces = append(f.sinces, since)

		if f.failNext {
			f.failNext = false
			http.Error(w, `{"error":"backend unavailable"}`, http.StatusBadGateway)
			return
		}

		var batch []RawItem
		if f.calls < len(f.batches) {
			batch = f.batches[f.calls]
		}
		f.calls++

		json.NewEncoder(w).Encode(FeedResponse{Messages: batch, Count: len(batch)})
	}
}

func newTestPoller(t *testing.T, f *feedServer) (*Poller, *Store, func()) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	client := &Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
	store := NewStore(50)
	p := NewPoller(client, store, PollerConfig{})
	return p, store, srv.Close
}

func TestPollBulkLoadThenIncremental(t *testing.T) {
	f := &feedServer{batches: [][]RawItem{
		{
			{ID: "m1", Sender: "agent1", Message: "hello", Timestamp: 10},
			{ID: "m2", Sender: "agent2", Message: "world", Timestamp: 12},
		},
		{
			{ID: "m2", Sender: "agent2", Message: "world", Timestamp: 12},
			{ID: "m3", Sender: "agent1", Message: "more", Timestamp: 14},
		},
	}}
	p, store, done := newTestPoller(t, f)
	defer done()

	if err := p.Poll(context.Background()); err != nil {
		t.Fatalf("bulk load failed: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 events after bulk load, got %d", store.Len())
	}
	if p.Cursor() != 12 {
		t.Fatalf("expected cursor 12, got %d", p.Cursor())
	}

	if err := p.Poll(context.Background()); err != nil {
		t.Fatalf("incremental poll failed: %v", err)
	}
	if store.Len() != 3 {
		t.Fatalf("expected 3 events after incremental poll, got %d", store.Len())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sinces[0] != 0 {
		t.Fatalf("expected bulk load without cursor, got since=%d", f.sinces[0])
	}
	if f.sinces[1] != 12 {
		t.Fatalf("expected incremental cursor 12, got %d", f.sinces[1])
	}
}

func TestPollIncrementalRestampsNewIDs(t *testing.T) {
	f := &feedServer{batches: [][]RawItem{
		{{ID: "m1", Sender: "agent1", Timestamp: 10}},
		// Backend ingestion timestamp lags; the client should restamp.
		{{ID: "m2", Sender: "agent1", Timestamp: 3}},
	}}
	p, store, done := newTestPoller(t, f)
	defer done()

	if err := p.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}

	m1, _ := store.Get("m1")
	m2, _ := store.Get("m2")
	if m1.OrderingKey != 10 {
		t.Fatalf("expected bulk-loaded key 10, got %d", m1.OrderingKey)
	}
	if m2.OrderingKey <= m1.OrderingKey {
		t.Fatalf("expected restamped key > 10, got %d", m2.OrderingKey)
	}
}

func TestPollFailureLeavesStoreAndCursor(t *testing.T) {
	f := &feedServer{batches: [][]RawItem{
		{{ID: "m1", Sender: "agent1", Timestamp: 10}},
		{{ID: "m2", Sender: "agent1", Timestamp: 20}},
	}}
	p, store, done := newTestPoller(t, f)
	defer done()

	if err := p.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.mu.Lock()
	f.failNext = true
	f.mu.Unlock()

	if err := p.Poll(context.Background()); err == nil {
		t.Fatal("expected transient error")
	}
	if p.Err() == nil {
		t.Fatal("expected error state set")
	}
	if store.Len() != 1 {
		t.Fatalf("expected store untouched on failure, got %d events", store.Len())
	}
	if p.Cursor() != 10 {
		t.Fatalf("expected cursor unchanged at 10, got %d", p.Cursor())
	}

	// The retry runs against the same cursor and clears the error.
	if err := p.Poll(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if p.Err() != nil {
		t.Fatalf("expected error cleared, got %v", p.Err())
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 events after retry, got %d", store.Len())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sinces[1] != f.sinces[2] {
		t.Fatalf("expected retry against same cursor, got %d then %d", f.sinces[1], f.sinces[2])
	}
}

func TestPollCancelledContextSuppressesMutation(t *testing.T) {
	f := &feedServer{batches: [][]RawItem{
		{{ID: "m1", Sender: "agent1", Timestamp: 10}},
	}}
	p, store, done := newTestPoller(t, f)
	defer done()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Poll(ctx); err == nil {
		t.Fatal("expected context error")
	}
	if store.Len() != 0 {
		t.Fatalf("expected no mutation after cancel, got %d events", store.Len())
	}
	if p.Cursor() != 0 {
		t.Fatalf("expected cursor untouched, got %d", p.Cursor())
	}
}

func TestPollErrorCallbacks(t *testing.T) {
	f := &feedServer{failNext: true, batches: [][]RawItem{
		{{ID: "m1", Sender: "agent1", Timestamp: 10}},
	}}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	var updates, errors int
	client := &Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
	store := NewStore(50)
	p := NewPoller(client, store, PollerConfig{
		OnUpdate: func([]Event) { updates++ },
		OnError:  func(error) { errors++ },
	})

	p.Poll(context.Background())
	p.Poll(context.Background())

	if errors != 1 {
		t.Fatalf("expected 1 error callback, got %d", errors)
	}
	if updates != 1 {
		t.Fatalf("expected 1 update callback, got %d", updates)
	}
}

func TestPollDropsItemsWithoutID(t *testing.T) {
	f := &feedServer{batches: [][]RawItem{
		{
			{ID: "m1", Sender: "agent1", Timestamp: 10},
			{ID: "", Sender: "agent1", Message: "malformed", Timestamp: 11},
		},
	}}
	p, store, done := newTestPoller(t, f)
	defer done()

	if err := p.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected malformed item dropped, got %d events", store.Len())
	}
}
