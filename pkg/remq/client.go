package remq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	logpkg "github.com/kainosnoema/remq/pkg/log"
	"github.com/kainosnoema/remq/pkg/message"
)

// Client publishes to and subscribes from a Store, using a LiveChannel for
// push delivery. It is safe for concurrent use.
type Client struct {
	id      string
	store   Store
	live    LiveChannel
	opts    Options
	logger  logpkg.Logger
	metrics *metrics
	obs     observerSet

	mu    sync.Mutex
	subs  map[string]*coordinator
	gates map[string]*gate
	// stopping holds patterns whose coordinator is still deregistering. The
	// live channel is keyed by pattern, so a new subscription must wait.
	stopping map[string]*coordinator
	closed   bool
	wg       sync.WaitGroup
}

// gate holds a pattern's cursor. Every emitted message passes through it.
type gate struct {
	mu     sync.Mutex
	cursor uint64
}

func (g *gate) load() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cursor
}

func (g *gate) reset(id uint64) {
	g.mu.Lock()
	g.cursor = id
	g.mu.Unlock()
}

// New returns a Client over store. live may be nil, in which case live-only
// subscriptions fail and catch-up subscriptions poll indefinitely.
func New(store Store, live LiveChannel, opts Options) (*Client, error) {
	if store == nil {
		return nil, errors.New("remq: store is required")
	}
	if live == nil {
		live = noLive{}
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.ConsumeLimit < 0 {
		return nil, fmt.Errorf("%w: negative consume limit", ErrInvalidCursor)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(
			logpkg.WithLevel(logpkg.WarnLevel),
			logpkg.WithFormatter(&logpkg.TextFormatter{}),
		)
	}
	c := &Client{
		id:      opts.ID,
		store:   store,
		live:    live,
		opts:    opts,
		logger:  logger.With(logpkg.Component("remq"), logpkg.Str("client", opts.ID)),
		metrics: newMetrics(opts.Registerer, opts.ID),
		subs:     make(map[string]*coordinator),
		gates:    make(map[string]*gate),
		stopping: make(map[string]*coordinator),
	}
	if src, ok := live.(liveErrorSource); ok {
		src.OnError(c.liveError)
	}
	return c, nil
}

// ID returns the client's identifier.
func (c *Client) ID() string { return c.id }

// Publish appends body to channel and returns the assigned id.
func (c *Client) Publish(ctx context.Context, channel string, body []byte) (uint64, error) {
	if err := message.ValidateChannel(channel); err != nil {
		return 0, err
	}
	if c.isClosed() {
		return 0, ErrClosed
	}
	return c.store.Append(ctx, channel, body)
}

// Subscribe starts delivering messages whose channel matches pattern. It is a
// no-op if pattern is already subscribed. If a previous subscription of
// pattern is still stopping, Subscribe waits for it or for ctx. Without From
// or Resume the registration on the live channel completes before Subscribe
// returns.
func (c *Client) Subscribe(ctx context.Context, pattern string, opts SubscribeOptions) error {
	if err := message.ValidatePattern(pattern); err != nil {
		return err
	}
	cfg, err := resolveSubscribe(opts, c.opts.Subscribe)
	if err != nil {
		return err
	}
	flt, err := compileFilter(cfg.filter)
	if err != nil {
		return err
	}

	c.mu.Lock()
	for {
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		if _, ok := c.subs[pattern]; ok {
			c.mu.Unlock()
			return nil
		}
		prev := c.stopping[pattern]
		if prev == nil {
			break
		}
		c.mu.Unlock()
		select {
		case <-prev.released:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	g, known := c.gates[pattern]
	if !known {
		g = &gate{}
		c.gates[pattern] = g
	}
	catchUp := opts.From != nil || (opts.Resume && known)
	if opts.From != nil {
		g.reset(*opts.From)
	}
	initial := PhaseDirect
	if catchUp {
		initial = PhaseCatchingUp
		c.wg.Add(1)
	}
	co := newCoordinator(c, pattern, g, flt, cfg, initial)
	c.subs[pattern] = co
	c.metrics.subscriptions.Inc()
	c.mu.Unlock()

	if !catchUp {
		if err := co.startDirect(ctx); err != nil {
			_ = c.retire(context.Background(), co)
			return err
		}
		return nil
	}
	co.startCatchUp(g.load())
	return nil
}

// Unsubscribe stops pattern's subscription. No notification for pattern
// starts after it returns. The pattern's cursor is kept for Resume.
// Observers may call it from inside a notification.
func (c *Client) Unsubscribe(ctx context.Context, pattern string) error {
	c.mu.Lock()
	co := c.subs[pattern]
	if co == nil {
		co = c.stopping[pattern]
	}
	c.mu.Unlock()
	if co == nil {
		return nil
	}
	return c.retire(ctx, co)
}

// Consume reads up to opts.Limit stored messages matching pattern after
// opts.After. It does not touch subscriptions or cursors.
func (c *Client) Consume(ctx context.Context, pattern string, opts ConsumeOptions) ([]message.Message, error) {
	if err := message.ValidatePattern(pattern); err != nil {
		return nil, err
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", ErrInvalidCursor, opts.Limit)
	}
	limit := firstPositive(opts.Limit, c.opts.ConsumeLimit, DefaultConsumeLimit)
	if c.isClosed() {
		return nil, ErrClosed
	}
	return c.store.ReadRange(ctx, pattern, opts.After, limit)
}

// Purge removes stored messages matching pattern according to policy and
// returns how many were removed.
func (c *Client) Purge(ctx context.Context, pattern string, policy message.PrunePolicy) (int, error) {
	if err := message.ValidatePattern(pattern); err != nil {
		return 0, err
	}
	if err := policy.Validate(); err != nil {
		return 0, err
	}
	if c.isClosed() {
		return 0, ErrClosed
	}
	return c.store.Prune(ctx, pattern, policy)
}

// Observe registers o for all notifications and returns a function that
// unregisters it.
func (c *Client) Observe(o Observer) (cancel func()) {
	return c.obs.add(o)
}

// Cursor returns the last id accepted for pattern, and whether the pattern
// was ever subscribed on this client.
func (c *Client) Cursor(pattern string) (uint64, bool) {
	c.mu.Lock()
	g, ok := c.gates[pattern]
	c.mu.Unlock()
	if !ok {
		return 0, false
	}
	return g.load(), true
}

// Phase returns the phase of pattern's active subscription.
func (c *Client) Phase(pattern string) (Phase, bool) {
	c.mu.Lock()
	co, ok := c.subs[pattern]
	c.mu.Unlock()
	if !ok {
		return 0, false
	}
	return co.currentPhase(), true
}

// Patterns returns the actively subscribed patterns.
func (c *Client) Patterns() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for p := range c.subs {
		out = append(out, p)
	}
	return out
}

// Close unsubscribes everything and waits for catch-up goroutines to exit
// or ctx to end. The store and live channel are not closed.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = make(map[string]*coordinator)
	c.mu.Unlock()

	var errs []error
	for _, co := range subs {
		if err := c.retire(ctx, co); err != nil {
			errs = append(errs, err)
		}
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// retire removes co from the active set and stops it. The pattern stays
// reserved in stopping until the first retire of co has deregistered, so a
// new subscription cannot be deregistered by a stale stop.
func (c *Client) retire(ctx context.Context, co *coordinator) error {
	c.mu.Lock()
	if c.subs[co.pattern] == co {
		delete(c.subs, co.pattern)
	}
	owner := co.retiring.CompareAndSwap(false, true)
	reserved := false
	if _, ok := c.stopping[co.pattern]; owner && !ok {
		c.stopping[co.pattern] = co
		reserved = true
	}
	c.mu.Unlock()

	err := co.stop(ctx)
	if owner {
		if reserved {
			c.mu.Lock()
			delete(c.stopping, co.pattern)
			c.mu.Unlock()
		}
		close(co.released)
		return err
	}
	// Another caller is stopping co; wait so no notification starts after
	// this call returns.
	select {
	case <-co.released:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// pass applies the dedup gate to m and emits it. Callers hold the
// coordinator's lock, which orders deliveries for the pattern; the gate lock
// is released before observers run so they may read the cursor. Nothing is
// emitted once the coordinator has stopped.
func (c *Client) pass(co *coordinator, m message.Message, path string) {
	if co.stopped.Load() {
		return
	}
	co.delivering.Add(1)
	defer co.delivering.Add(-1)
	g := co.gate
	g.mu.Lock()
	if m.ID <= g.cursor {
		g.mu.Unlock()
		c.metrics.duplicates.Inc()
		return
	}
	g.cursor = m.ID
	g.mu.Unlock()
	if co.filter.match(m) {
		c.metrics.delivered.WithLabelValues(path).Inc()
		c.obs.message(co.pattern, m)
	} else {
		c.metrics.filtered.Inc()
	}
	c.obs.cursor(co.pattern, m.ID)
}

func (c *Client) liveError(pattern string, err error) {
	c.mu.Lock()
	co := c.subs[pattern]
	c.mu.Unlock()
	if co == nil {
		return
	}
	co.reportError(err)
}
