package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	// Sender is the producer identity attached to submissions. Defaults to
	// "user".
	Sender string

	// Placeholder inserts a transient system "waiting" event alongside each
	// submission; it is removed when the submission resolves either way.
	Placeholder bool
	// PlaceholderText is the placeholder's display text.
	PlaceholderText string

	// OnUpdate receives the ordered view after every store mutation the
	// tracker performs.
	OnUpdate func([]Event)
}

// Tracker inserts optimistic events for user submissions and reconciles them
// against the server's acknowledgement. Each submission moves through
// pending, then either acknowledged or failed; all three transitions go
// through the same store the poller writes to, so whichever path observes
// the canonical id first wins and the other converges onto the same record.
type Tracker struct {
	client *Client
	store  *Store
	cfg    TrackerConfig
	now    func() time.Time
}

// NewTracker creates a tracker writing into the given store.
func NewTracker(client *Client, store *Store, cfg TrackerConfig) *Tracker {
	if cfg.Sender == "" {
		cfg.Sender = "user"
	}
	if cfg.PlaceholderText == "" {
		cfg.PlaceholderText = "waiting for agents..."
	}
	return &Tracker{client: client, store: store, cfg: cfg, now: time.Now}
}

// Submit posts a message optimistically. The temporary event appears in the
// store before the request is sent; on acknowledgement it is replaced by the
// canonical event at the same ordering key, on failure it is replaced by an
// inline error event. The returned receipt is nil when the submission failed.
func (t *Tracker) Submit(ctx context.Context, text string) (*SubmitReceipt, error) {
	tempID := "local-" + ulid.Make().String()
	key := t.now().UnixMilli()

	temp := Event{
		ID:          tempID,
		Kind:        KindUser,
		Sender:      t.cfg.Sender,
		Text:        text,
		OrderingKey: key,
		Optimistic:  true,
	}

	batch := []Event{temp}
	var placeholderID string
	if t.cfg.Placeholder {
		placeholderID = "local-" + ulid.Make().String()
		batch = append(batch, Event{
			ID:          placeholderID,
			Kind:        KindSystem,
			Sender:      "system",
			Text:        t.cfg.PlaceholderText,
			OrderingKey: key + 1,
			Pending:     true,
		})
	}
	t.store.Upsert(batch, UpsertOptions{})
	t.notify()

	receipt, err := t.client.Submit(ctx, t.cfg.Sender, text, nil)
	if err != nil {
		t.fail(tempID, placeholderID, err)
		return nil, err
	}

	t.acknowledge(tempID, placeholderID, receipt, text)
	return receipt, nil
}

// acknowledge swaps the temporary event for the canonical one. The canonical
// record keeps the temporary event's ordering key so the message does not
// jump position, and the replace is keyed by the canonical id: when a
// background poll has already delivered it, the upsert merges into that
// record instead of duplicating it.
func (t *Tracker) acknowledge(tempID, placeholderID string, receipt *SubmitReceipt, text string) {
	if placeholderID != "" {
		t.store.Remove(placeholderID)
	}

	canonical := Event{
		ID:     receipt.MessageID,
		Kind:   KindUser,
		Sender: t.cfg.Sender,
		Text:   text,
	}
	if receipt.TaskID != "" {
		canonical.TaskRef = &TaskRef{ID: receipt.TaskID}
	}

	if temp, ok := t.store.Remove(tempID); ok {
		canonical.OrderingKey = temp.OrderingKey
	}
	t.store.Upsert([]Event{canonical}, UpsertOptions{})
	t.notify()
}

// fail rolls the submission back and records the failure as a system error
// event in the timeline itself, with a fresh ordering key.
func (t *Tracker) fail(tempID, placeholderID string, cause error) {
	t.store.Remove(tempID)
	if placeholderID != "" {
		t.store.Remove(placeholderID)
	}

	t.store.Upsert([]Event{{
		ID:          "local-" + ulid.Make().String(),
		Kind:        KindSystem,
		Sender:      "system",
		Text:        fmt.Sprintf("message failed to send: %v", cause),
		OrderingKey: t.now().UnixMilli(),
		Error:       true,
	}}, UpsertOptions{})
	t.notify()
}

func (t *Tracker) notify() {
	if t.cfg.OnUpdate != nil {
		t.cfg.OnUpdate(t.store.OrderedView())
	}
}

// SetClock replaces the tracker's time source. Test hook.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}
