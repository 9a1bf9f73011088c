package timeline

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is how often the poller fetches when not configured.
const DefaultPollInterval = 3 * time.Second

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval time.Duration // default DefaultPollInterval
	Limit    int           // per-fetch batch bound, default DefaultRetention

	// OnUpdate receives the ordered view after every successful merge.
	OnUpdate func([]Event)
	// OnError receives transient fetch errors. The store and cursor are
	// untouched when it fires; the next successful poll clears the state.
	OnError func(error)
}

// Poller drives incremental fetching of the feed into a Store. The first
// successful fetch is a bulk load of the recent backlog; afterwards each
// fetch passes the highest ordering key observed so far as the cursor and
// merges with RestampNew set. It never advances the cursor on failure, and a
// cancelled context suppresses any mutation from an in-flight response.
type Poller struct {
	client   *Client
	store    *Store
	interval time.Duration
	limit    int
	onUpdate func([]Event)
	onError  func(error)

	mu       sync.Mutex
	cursor   int64
	primed   bool
	inflight bool
	lastErr  error
}

// NewPoller creates a poller feeding the given store.
func NewPoller(client *Client, store *Store, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultRetention
	}
	return &Poller{
		client:   client,
		store:    store,
		interval: cfg.Interval,
		limit:    cfg.Limit,
		onUpdate: cfg.OnUpdate,
		onError:  cfg.OnError,
	}
}

// Run polls immediately and then on every interval tick until ctx is
// cancelled. Transient fetch failures do not stop the loop; the next tick
// retries against the same cursor, which is safe because the store absorbs
// re-delivered events.
func (p *Poller) Run(ctx context.Context) error {
	p.Poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll performs one fetch-normalize-merge cycle. A call while another poll
// is still in flight is a no-op: the merge is idempotent anyway, so the
// guard only exists to avoid stacking requests.
func (p *Poller) Poll(ctx context.Context) error {
	p.mu.Lock()
	if p.inflight {
		p.mu.Unlock()
		return nil
	}
	p.inflight = true
	cursor, primed := p.cursor, p.primed
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inflight = false
		p.mu.Unlock()
	}()

	raws, err := p.client.FetchEvents(ctx, p.limit, cursor)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		if p.onError != nil {
			p.onError(err)
		}
		return err
	}
	if ctx.Err() != nil {
		// The response landed after teardown; drop it on the floor.
		return ctx.Err()
	}

	p.store.Upsert(NormalizeAll(raws), UpsertOptions{RestampNew: primed})

	p.mu.Lock()
	p.primed = true
	if max := p.store.MaxOrderingKey(); max > p.cursor {
		p.cursor = max
	}
	p.lastErr = nil
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(p.store.OrderedView())
	}
	return nil
}

// Err returns the most recent transient fetch error, or nil after a
// successful poll. Presentation layers surface it as a banner.
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Cursor returns the current fetch cursor (0 before the first successful
// poll that observed an event).
func (p *Poller) Cursor() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}
