package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	logpkg "github.com/kainosnoema/remq/pkg/log"
	"github.com/kainosnoema/remq/pkg/message"
	"github.com/nats-io/nats.go"
)

// NATSOptions configures a NATS live channel.
type NATSOptions struct {
	// URL of the NATS server. Defaults to nats.DefaultURL.
	URL string
	// Namespace scopes subjects to remq.<namespace>.ch.
	Namespace string
	// Name is the NATS connection name.
	Name string
	// FlushTimeout bounds the round trip that confirms a registration when
	// the caller's context has no deadline. Default 2s.
	FlushTimeout time.Duration
	Logger       logpkg.Logger
	// Extra nats.go options appended after the defaults.
	ConnectOptions []nats.Option
}

// NATS is a live channel over a single NATS connection. It both publishes
// appends (as an eventlog.Notifier) and receives them for registered patterns.
type NATS struct {
	nc           *nats.Conn
	prefix       string
	flushTimeout time.Duration
	logger       logpkg.Logger

	mu      sync.Mutex
	subs    map[string]*nats.Subscription
	onError func(pattern string, err error)
}

// ConnectNATS dials the server and returns a ready live channel.
func ConnectNATS(opts NATSOptions) (*NATS, error) {
	url := opts.URL
	if url == "" {
		url = nats.DefaultURL
	}
	n := &NATS{
		prefix:       subjectPrefix(opts.Namespace),
		flushTimeout: opts.FlushTimeout,
		logger:       opts.Logger,
		subs:         make(map[string]*nats.Subscription),
	}
	if n.flushTimeout <= 0 {
		n.flushTimeout = 2 * time.Second
	}
	if n.logger == nil {
		n.logger = logpkg.NewNopLogger()
	}
	n.logger = n.logger.With(logpkg.Component("live.nats"))

	natsOpts := []nats.Option{
		func(o *nats.Options) error {
			if opts.Name != "" {
				o.Name = opts.Name
			}
			return nil
		},
		nats.ErrorHandler(n.asyncError),
		nats.DisconnectErrHandler(n.disconnected),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.logger.Info("nats reconnected", logpkg.Str("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, append(natsOpts, opts.ConnectOptions...)...)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", message.ErrLiveChannelUnavailable, url, err)
	}
	n.nc = nc
	return n, nil
}

// OnError installs the receiver of asynchronous transport failures, reported
// per affected pattern.
func (n *NATS) OnError(fn func(pattern string, err error)) {
	n.mu.Lock()
	n.onError = fn
	n.mu.Unlock()
}

// Register subscribes pattern and waits for the server to acknowledge it.
func (n *NATS) Register(ctx context.Context, pattern string, fn message.DeliverFunc) error {
	if err := message.ValidatePattern(pattern); err != nil {
		return err
	}
	sub, err := n.nc.Subscribe(patternSubject(n.prefix, pattern), func(msg *nats.Msg) {
		m, err := message.Decode(msg.Data)
		if err != nil {
			n.logger.Warn("dropping undecodable live message", logpkg.Str("subject", msg.Subject), logpkg.Err(err))
			return
		}
		if !message.Match(pattern, m.Channel) {
			return
		}
		fn(pattern, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("%w: subscribe %q: %w", message.ErrLiveChannelUnavailable, pattern, err)
	}
	if err := n.flush(ctx); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("%w: confirm %q: %w", message.ErrLiveChannelUnavailable, pattern, err)
	}

	n.mu.Lock()
	old := n.subs[pattern]
	n.subs[pattern] = sub
	n.mu.Unlock()
	if old != nil {
		_ = old.Unsubscribe()
	}
	return nil
}

// Deregister unsubscribes pattern. Unknown patterns are a no-op.
func (n *NATS) Deregister(_ context.Context, pattern string) error {
	n.mu.Lock()
	sub := n.subs[pattern]
	delete(n.subs, pattern)
	n.mu.Unlock()
	if sub == nil {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
		return fmt.Errorf("%w: unsubscribe %q: %w", message.ErrLiveChannelUnavailable, pattern, err)
	}
	return nil
}

// Notify publishes m for live subscribers. Failures are logged; the persisted
// log remains authoritative.
func (n *NATS) Notify(m message.Message) {
	if err := n.nc.Publish(channelSubject(n.prefix, m.Channel), message.Encode(m)); err != nil {
		n.logger.Warn("live publish failed", logpkg.Str("channel", m.Channel), logpkg.Uint64("id", m.ID), logpkg.Err(err))
	}
}

// Close flushes pending publishes and closes the connection.
func (n *NATS) Close() error {
	if n.nc.IsClosed() {
		return nil
	}
	_ = n.nc.FlushTimeout(n.flushTimeout)
	n.nc.Close()
	return nil
}

// flush round-trips a PING so earlier SUBs are known to be active. It honors
// cancellation of ctx; FlushWithContext needs a deadline, so one is added.
func (n *NATS) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.flushTimeout)
		defer cancel()
	}
	return n.nc.FlushWithContext(ctx)
}

func (n *NATS) asyncError(_ *nats.Conn, sub *nats.Subscription, err error) {
	n.mu.Lock()
	fn := n.onError
	var patterns []string
	for p, s := range n.subs {
		if sub == nil || s == sub {
			patterns = append(patterns, p)
		}
	}
	n.mu.Unlock()
	n.logger.Warn("nats async error", logpkg.Err(err), logpkg.Int("patterns", len(patterns)))
	if fn == nil {
		return
	}
	for _, p := range patterns {
		fn(p, fmt.Errorf("%w: %w", message.ErrLiveChannelUnavailable, err))
	}
}

func (n *NATS) disconnected(nc *nats.Conn, err error) {
	if err == nil || nc.IsClosed() {
		return
	}
	n.asyncError(nc, nil, err)
}
