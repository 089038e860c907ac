package remq

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kainosnoema/remq/internal/eventlog"
	"github.com/kainosnoema/remq/internal/live"
	pebblestore "github.com/kainosnoema/remq/internal/storage/pebble"
	logpkg "github.com/kainosnoema/remq/pkg/log"
	"github.com/kainosnoema/remq/pkg/message"
)

const waitTimeout = 10 * time.Second

func newTestLog(t *testing.T, opts ...eventlog.Option) *eventlog.Log {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	l, err := eventlog.OpenLog(db, "test", opts...)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	return l
}

// newHubClient returns a client over a real log whose appends fan out through
// an in-process hub.
func newHubClient(t *testing.T, opts Options) (*Client, *eventlog.Log) {
	t.Helper()
	hub := live.NewHub()
	t.Cleanup(hub.Close)
	l := newTestLog(t, eventlog.WithNotifier(hub))
	return newTestClient(t, l, hub.Conn(), opts), l
}

func newTestClient(t *testing.T, store Store, lc LiveChannel, opts Options) *Client {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	c, err := New(store, lc, opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

func publishN(t *testing.T, c *Client, channel string, n int) []uint64 {
	t.Helper()
	ids := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		id, err := c.Publish(context.Background(), channel, []byte(fmt.Sprintf("%s-%d", channel, i)))
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

// recorder collects notifications per pattern.
type recorder struct {
	mu      sync.Mutex
	msgs    map[string][]message.Message
	errs    map[string][]error
	cursors map[string][]uint64
}

func newRecorder(c *Client) *recorder {
	r := &recorder{
		msgs:    make(map[string][]message.Message),
		errs:    make(map[string][]error),
		cursors: make(map[string][]uint64),
	}
	c.Observe(r)
	return r
}

func (r *recorder) HandleMessage(pattern string, m message.Message) {
	r.mu.Lock()
	r.msgs[pattern] = append(r.msgs[pattern], m)
	r.mu.Unlock()
}

func (r *recorder) HandleError(pattern string, err error) {
	r.mu.Lock()
	r.errs[pattern] = append(r.errs[pattern], err)
	r.mu.Unlock()
}

func (r *recorder) HandleCursor(pattern string, id uint64) {
	r.mu.Lock()
	r.cursors[pattern] = append(r.cursors[pattern], id)
	r.mu.Unlock()
}

func (r *recorder) messages(pattern string) []message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]message.Message(nil), r.msgs[pattern]...)
}

func (r *recorder) errors(pattern string) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs[pattern]...)
}

func (r *recorder) waitMessages(t *testing.T, pattern string, n int) []message.Message {
	t.Helper()
	waitUntil(t, fmt.Sprintf("%d messages on %q", n, pattern), func() bool {
		return len(r.messages(pattern)) >= n
	})
	return r.messages(pattern)
}

func (r *recorder) waitError(t *testing.T, pattern string) error {
	t.Helper()
	waitUntil(t, "error on "+pattern, func() bool { return len(r.errors(pattern)) > 0 })
	return r.errors(pattern)[0]
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitPhase(t *testing.T, c *Client, pattern string, want Phase) {
	t.Helper()
	waitUntil(t, fmt.Sprintf("%q phase %s", pattern, want), func() bool {
		p, ok := c.Phase(pattern)
		return ok && p == want
	})
}

func assertStrictlyIncreasing(t *testing.T, msgs []message.Message) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Fatalf("delivery %d id %d not after %d", i, msgs[i].ID, msgs[i-1].ID)
		}
	}
}

// fakeLive is a live channel driven by the test. deliver runs the registered
// handler synchronously.
type fakeLive struct {
	mu          sync.Mutex
	handlers    map[string]message.DeliverFunc
	registerErr error
	registers   int
	onError     func(pattern string, err error)
}

func newFakeLive() *fakeLive {
	return &fakeLive{handlers: make(map[string]message.DeliverFunc)}
}

func (f *fakeLive) Register(_ context.Context, pattern string, fn message.DeliverFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers++
	if f.registerErr != nil {
		return f.registerErr
	}
	f.handlers[pattern] = fn
	return nil
}

func (f *fakeLive) Deregister(_ context.Context, pattern string) error {
	f.mu.Lock()
	delete(f.handlers, pattern)
	f.mu.Unlock()
	return nil
}

func (f *fakeLive) OnError(fn func(pattern string, err error)) {
	f.mu.Lock()
	f.onError = fn
	f.mu.Unlock()
}

func (f *fakeLive) setRegisterErr(err error) {
	f.mu.Lock()
	f.registerErr = err
	f.mu.Unlock()
}

func (f *fakeLive) registered(pattern string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[pattern]
	return ok
}

func (f *fakeLive) registerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registers
}

func (f *fakeLive) deliver(pattern string, m message.Message) {
	f.mu.Lock()
	fn := f.handlers[pattern]
	f.mu.Unlock()
	if fn != nil {
		fn(pattern, message.Encode(m))
	}
}

func (f *fakeLive) fail(pattern string, err error) {
	f.mu.Lock()
	fn := f.onError
	f.mu.Unlock()
	if fn != nil {
		fn(pattern, err)
	}
}

// hookStore wraps a Store, optionally failing reads or running a hook before
// each read.
type hookStore struct {
	Store

	mu      sync.Mutex
	readErr error
	before  func(afterID uint64)
	reads   int
}

func (s *hookStore) ReadRange(ctx context.Context, pattern string, afterID uint64, limit int) ([]message.Message, error) {
	s.mu.Lock()
	s.reads++
	err, hook := s.readErr, s.before
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if hook != nil {
		hook(afterID)
	}
	return s.Store.ReadRange(ctx, pattern, afterID, limit)
}

func (s *hookStore) setReadErr(err error) {
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
}

func (s *hookStore) setBefore(fn func(afterID uint64)) {
	s.mu.Lock()
	s.before = fn
	s.mu.Unlock()
}
