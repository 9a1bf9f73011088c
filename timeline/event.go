// Package timeline implements the client side of the Plaza event feed: an
// id-keyed reconciliation store fed by incremental polling, with stable
// ordering, bounded retention, and optimistic submission tracking.
package timeline

import "strings"

// ProducerKind classifies who emitted an event.
type ProducerKind string

const (
	KindAgent  ProducerKind = "agent"
	KindSystem ProducerKind = "system"
	KindUser   ProducerKind = "user"
)

// TaskRef correlates an event to the work item it relates to.
type TaskRef struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Status string `json:"status,omitempty"`
}

// Event is one canonical entry in the timeline.
type Event struct {
	ID     string
	Kind   ProducerKind
	Sender string
	Text   string

	// OrderingKey places the event relative to others. It is assigned
	// exactly once, when the event is first inserted into a Store, and is
	// never changed by later merges. Zero on an incoming record means the
	// store has not stamped it yet.
	OrderingKey int64

	// Authoritative marks OrderingKey as the producer's true event time
	// (derived server-side from the source artifact) rather than backend
	// ingestion time.
	Authoritative bool

	// CausalSeq is the dispatcher-assigned ordinal of the related task.
	// When two events both carry one, it orders them ahead of OrderingKey.
	CausalSeq *int64

	Optimistic bool
	Error      bool
	Pending    bool

	TaskRef  *TaskRef
	Progress *float64
}

// RawItem is one element of a feed response before normalization.
type RawItem struct {
	ID              string   `json:"id"`
	Sender          string   `json:"sender"`
	ProducerID      string   `json:"producer_id"`
	Message         string   `json:"message"`
	Timestamp       int64    `json:"timestamp"`
	TimestampSource string   `json:"timestamp_source,omitempty"`
	Seq             *int64   `json:"seq,omitempty"`
	ProgressPercent *float64 `json:"progress_percent,omitempty"`
	Task            *TaskRef `json:"task,omitempty"`
	Error           bool     `json:"error,omitempty"`
}

// TimestampSourceArtifact is the wire marker for timestamps the backend
// recovered from the event's source artifact path.
const TimestampSourceArtifact = "artifact"

// Normalize converts a raw feed item into an Event. It reports ok=false when
// the item has no usable id; such items are dropped, not errors. Normalize
// never invents an OrderingKey: an item without a timestamp comes back with
// OrderingKey 0 and the Store stamps it at first insertion.
func Normalize(raw RawItem) (Event, bool) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return Event{}, false
	}

	sender := raw.Sender
	if sender == "" {
		sender = raw.ProducerID
	}

	var kind ProducerKind
	switch sender {
	case "user":
		kind = KindUser
	case "system", "":
		kind = KindSystem
	default:
		kind = KindAgent
	}

	ev := Event{
		ID:            id,
		Kind:          kind,
		Sender:        sender,
		Text:          raw.Message,
		OrderingKey:   raw.Timestamp,
		Authoritative: raw.TimestampSource == TimestampSourceArtifact && raw.Timestamp != 0,
		Error:         raw.Error,
		Progress:      raw.ProgressPercent,
	}

	if raw.Seq != nil {
		seq := *raw.Seq
		ev.CausalSeq = &seq
	}
	if raw.Task != nil {
		ref := *raw.Task
		ev.TaskRef = &ref
	}

	return ev, true
}

// NormalizeAll normalizes a batch, dropping unusable items.
func NormalizeAll(raws []RawItem) []Event {
	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		if ev, ok := Normalize(raw); ok {
			events = append(events, ev)
		}
	}
	return events
}
