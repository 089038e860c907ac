package live

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kainosnoema/remq/pkg/message"
)

// ErrClosed is returned by operations on a closed Hub or HubConn.
var ErrClosed = errors.New("live: closed")

// Hub fans committed appends out to every registered HubConn pattern.
type Hub struct {
	mu     sync.RWMutex
	conns  map[*HubConn]struct{}
	closed bool
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*HubConn]struct{})}
}

// Conn opens a connection to the hub. Each client should use its own.
func (h *Hub) Conn() *HubConn {
	c := &HubConn{hub: h, regs: make(map[string]*mailbox)}
	h.mu.Lock()
	if h.closed {
		c.closed = true
	} else {
		h.conns[c] = struct{}{}
	}
	h.mu.Unlock()
	return c
}

// Notify delivers m to every registration whose pattern matches its channel.
// It never blocks on a slow receiver.
func (h *Hub) Notify(m message.Message) {
	raw := message.Encode(m)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		c.dispatch(m.Channel, raw)
	}
}

// Close closes every connection; later Notify calls are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*HubConn]struct{})
	h.closed = true
	h.mu.Unlock()
	for c := range conns {
		c.shutdown()
	}
}

func (h *Hub) remove(c *HubConn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// HubConn is one client's view of a Hub; it satisfies the client's live
// channel contract.
type HubConn struct {
	hub    *Hub
	mu     sync.Mutex
	regs   map[string]*mailbox
	closed bool
}

// Register starts delivering messages matching pattern to fn. A previous
// registration of the same pattern is replaced.
func (c *HubConn) Register(ctx context.Context, pattern string, fn message.DeliverFunc) error {
	if err := message.ValidatePattern(pattern); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	mb := newMailbox(pattern, fn)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", message.ErrLiveChannelUnavailable, ErrClosed)
	}
	old := c.regs[pattern]
	c.regs[pattern] = mb
	c.mu.Unlock()
	if old != nil {
		old.stop()
	}
	go mb.run()
	return nil
}

// Deregister stops delivery for pattern. Unknown patterns are a no-op.
func (c *HubConn) Deregister(_ context.Context, pattern string) error {
	c.mu.Lock()
	mb := c.regs[pattern]
	delete(c.regs, pattern)
	c.mu.Unlock()
	if mb != nil {
		mb.stop()
	}
	return nil
}

// Registered reports whether pattern currently has a registration.
func (c *HubConn) Registered(pattern string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.regs[pattern]
	return ok
}

// Close deregisters everything and detaches from the hub.
func (c *HubConn) Close() error {
	c.hub.remove(c)
	c.shutdown()
	return nil
}

func (c *HubConn) shutdown() {
	c.mu.Lock()
	regs := c.regs
	c.regs = make(map[string]*mailbox)
	c.closed = true
	c.mu.Unlock()
	for _, mb := range regs {
		mb.stop()
	}
}

func (c *HubConn) dispatch(channel string, raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pattern, mb := range c.regs {
		if message.Match(pattern, channel) {
			mb.push(raw)
		}
	}
}

// mailbox is an unbounded ordered queue drained by one goroutine.
type mailbox struct {
	pattern string
	fn      message.DeliverFunc

	mu      sync.Mutex
	queue   [][]byte
	stopped bool
	signal  chan struct{}
	done    chan struct{}
}

func newMailbox(pattern string, fn message.DeliverFunc) *mailbox {
	return &mailbox{pattern: pattern, fn: fn, signal: make(chan struct{}, 1), done: make(chan struct{})}
}

func (mb *mailbox) push(raw []byte) {
	mb.mu.Lock()
	if mb.stopped {
		mb.mu.Unlock()
		return
	}
	mb.queue = append(mb.queue, raw)
	mb.mu.Unlock()
	select {
	case mb.signal <- struct{}{}:
	default:
	}
}

func (mb *mailbox) stop() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.stopped {
		return
	}
	mb.stopped = true
	mb.queue = nil
	close(mb.done)
}

func (mb *mailbox) run() {
	for {
		select {
		case <-mb.done:
			return
		case <-mb.signal:
		}
		for {
			mb.mu.Lock()
			if mb.stopped || len(mb.queue) == 0 {
				mb.mu.Unlock()
				break
			}
			raw := mb.queue[0]
			mb.queue[0] = nil
			mb.queue = mb.queue[1:]
			mb.mu.Unlock()
			mb.fn(mb.pattern, raw)
		}
	}
}
