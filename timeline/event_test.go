package timeline

import "testing"

func TestNormalizeDropsMissingID(t *testing.T) {
	for _, raw := range []RawItem{
		{ID: "", Message: "no id"},
		{ID: "   ", Message: "blank id"},
	} {
		if _, ok := Normalize(raw); ok {
			t.Fatalf("expected item %+v dropped", raw)
		}
	}
}

func TestNormalizeKindDerivation(t *testing.T) {
	cases := []struct {
		sender string
		want   ProducerKind
	}{
		{"user", KindUser},
		{"system", KindSystem},
		{"", KindSystem},
		{"agent1", KindAgent},
		{"scout", KindAgent},
	}

	for _, tc := range cases {
		ev, ok := Normalize(RawItem{ID: "x", Sender: tc.sender})
		if !ok {
			t.Fatalf("unexpected drop for sender %q", tc.sender)
		}
		if ev.Kind != tc.want {
			t.Fatalf("sender %q: expected kind %s, got %s", tc.sender, tc.want, ev.Kind)
		}
	}
}

func TestNormalizeFallsBackToProducerID(t *testing.T) {
	ev, ok := Normalize(RawItem{ID: "x", ProducerID: "agent2"})
	if !ok {
		t.Fatal("unexpected drop")
	}
	if ev.Sender != "agent2" || ev.Kind != KindAgent {
		t.Fatalf("expected producer_id fallback, got %+v", ev)
	}
}

func TestNormalizeNeverInventsOrderingKey(t *testing.T) {
	ev, ok := Normalize(RawItem{ID: "x", Sender: "agent1"})
	if !ok {
		t.Fatal("unexpected drop")
	}
	if ev.OrderingKey != 0 {
		t.Fatalf("expected unstamped key 0, got %d", ev.OrderingKey)
	}
}

func TestNormalizeAuthoritativeTimestamp(t *testing.T) {
	ev, _ := Normalize(RawItem{ID: "x", Timestamp: 123, TimestampSource: "artifact"})
	if !ev.Authoritative || ev.OrderingKey != 123 {
		t.Fatalf("expected authoritative key 123, got %+v", ev)
	}

	ev, _ = Normalize(RawItem{ID: "y", Timestamp: 123, TimestampSource: "ingest"})
	if ev.Authoritative {
		t.Fatal("expected ingest timestamp not marked authoritative")
	}
}

func TestNormalizeCarriesTaskAndSeq(t *testing.T) {
	n := int64(4)
	p := 75.0
	ev, _ := Normalize(RawItem{
		ID:              "x",
		Sender:          "agent3",
		Seq:             &n,
		ProgressPercent: &p,
		Task:            &TaskRef{ID: "t1", Title: "deploy", Status: "claimed"},
	})

	if ev.CausalSeq == nil || *ev.CausalSeq != 4 {
		t.Fatalf("expected causal seq 4, got %v", ev.CausalSeq)
	}
	if ev.Progress == nil || *ev.Progress != 75 {
		t.Fatalf("expected progress 75, got %v", ev.Progress)
	}
	if ev.TaskRef == nil || ev.TaskRef.Title != "deploy" {
		t.Fatalf("expected task ref, got %v", ev.TaskRef)
	}
}

func TestNormalizeAllDropsOnlyUnusable(t *testing.T) {
	events := NormalizeAll([]RawItem{
		{ID: "a", Sender: "agent1"},
		{ID: "", Sender: "agent1"},
		{ID: "b", Sender: "user"},
	})

	if len(events) != 2 {
		t.Fatalf("expected 2 normalized events, got %d", len(events))
	}
}
