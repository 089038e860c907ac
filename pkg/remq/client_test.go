package remq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kainosnoema/remq/internal/eventlog"
	"github.com/kainosnoema/remq/internal/live"
	"github.com/kainosnoema/remq/pkg/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDirectSubscribeSeesOnlyFutureMessages(t *testing.T) {
	c, _ := newHubClient(t, Options{})
	rec := newRecorder(c)
	ctx := context.Background()

	before := publishN(t, c, "foo.1", 3)
	if err := c.Subscribe(ctx, "foo.1", SubscribeOptions{}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if p, _ := c.Phase("foo.1"); p != PhaseDirect {
		t.Fatalf("phase = %s, want direct", p)
	}
	if _, err := c.Publish(ctx, "foo.1", []byte("hello world")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	rec.waitMessages(t, "foo.1", 1)
	time.Sleep(50 * time.Millisecond)
	got := rec.messages("foo.1")
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	if string(got[0].Body) != "hello world" || got[0].Channel != "foo.1" {
		t.Fatalf("unexpected message %v", got[0])
	}
	if got[0].ID <= before[len(before)-1] {
		t.Fatalf("id %d not after pre-subscribe id %d", got[0].ID, before[len(before)-1])
	}
}

func TestSubscribeIsNoopWhenActive(t *testing.T) {
	c, _ := newHubClient(t, Options{})
	ctx := context.Background()
	if err := c.Subscribe(ctx, "foo", SubscribeOptions{}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := c.Subscribe(ctx, "foo", SubscribeOptions{From: FromID(0)}); err != nil {
		t.Fatalf("second subscribe: %v", err)
	}
	if p, _ := c.Phase("foo"); p != PhaseDirect {
		t.Fatalf("second subscribe replaced the first: phase %s", p)
	}
}

func TestUnsubscribeHaltsDelivery(t *testing.T) {
	c, _ := newHubClient(t, Options{})
	rec := newRecorder(c)
	ctx := context.Background()

	if err := c.Subscribe(ctx, "foo.*", SubscribeOptions{}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ids := publishN(t, c, "foo.a", 1)
	rec.waitMessages(t, "foo.*", 1)

	if err := c.Unsubscribe(ctx, "foo.*"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	publishN(t, c, "foo.a", 5)
	time.Sleep(50 * time.Millisecond)
	if n := len(rec.messages("foo.*")); n != 1 {
		t.Fatalf("got %d messages after unsubscribe, want 1", n)
	}
	if _, ok := c.Phase("foo.*"); ok {
		t.Fatalf("pattern still active")
	}
	if cur, ok := c.Cursor("foo.*"); !ok || cur != ids[0] {
		t.Fatalf("cursor = %d,%v, want %d", cur, ok, ids[0])
	}
	if err := c.Unsubscribe(ctx, "foo.*"); err != nil {
		t.Fatalf("repeat unsubscribe: %v", err)
	}
}

func TestPruneKeepThenConsume(t *testing.T) {
	c, _ := newHubClient(t, Options{})
	ctx := context.Background()
	ids := publishN(t, c, "jobs", 3)

	n, err := c.Purge(ctx, "jobs", message.PruneKeep(1))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 2 {
		t.Fatalf("purged %d, want 2", n)
	}
	got, err := c.Consume(ctx, "jobs", ConsumeOptions{After: 0, Limit: 10})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(got) != 1 || got[0].ID != ids[2] {
		t.Fatalf("consume after prune = %v, want only id %d", got, ids[2])
	}
}

func TestConsumeDefaultsAndBounds(t *testing.T) {
	c, _ := newHubClient(t, Options{ConsumeLimit: 2})
	ctx := context.Background()
	ids := publishN(t, c, "a.b", 5)
	publishN(t, c, "other", 2)

	got, err := c.Consume(ctx, "a.*", ConsumeOptions{})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(got) != 2 || got[0].ID != ids[0] {
		t.Fatalf("default-limited consume = %v", got)
	}
	got, err = c.Consume(ctx, "a.*", ConsumeOptions{After: ids[2], Limit: 100})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(got) != 2 || got[0].ID != ids[3] {
		t.Fatalf("consume after %d = %v", ids[2], got)
	}
	if _, err := c.Consume(ctx, "a.*", ConsumeOptions{Limit: -1}); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("negative limit: %v", err)
	}
}

func TestArgumentValidation(t *testing.T) {
	c, _ := newHubClient(t, Options{})
	ctx := context.Background()

	if _, err := c.Publish(ctx, "bad*channel", nil); !errors.Is(err, ErrInvalidChannel) {
		t.Fatalf("publish: %v", err)
	}
	if err := c.Subscribe(ctx, "", SubscribeOptions{}); !errors.Is(err, ErrInvalidPattern) {
		t.Fatalf("empty pattern: %v", err)
	}
	if err := c.Subscribe(ctx, "a[", SubscribeOptions{}); !errors.Is(err, ErrInvalidPattern) {
		t.Fatalf("bad glob: %v", err)
	}
	err := c.Subscribe(ctx, "a", SubscribeOptions{From: FromID(1), Resume: true})
	if !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("from+resume: %v", err)
	}
	if err := c.Subscribe(ctx, "a", SubscribeOptions{Filter: "size >"}); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("filter: %v", err)
	}
	if _, err := c.Purge(ctx, "a", message.PrunePolicy{}); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("purge: %v", err)
	}
	if _, ok := c.Phase("a"); ok {
		t.Fatalf("rejected subscribe left state behind")
	}
}

func TestDirectSubscribeWithoutLiveChannel(t *testing.T) {
	c := newTestClient(t, newTestLog(t), nil, Options{})
	err := c.Subscribe(context.Background(), "foo", SubscribeOptions{})
	if !errors.Is(err, ErrLiveChannelUnavailable) {
		t.Fatalf("want ErrLiveChannelUnavailable, got %v", err)
	}
	if _, ok := c.Phase("foo"); ok {
		t.Fatalf("failed subscribe left an active pattern")
	}
}

func TestLiveErrorsReachObservers(t *testing.T) {
	lc := newFakeLive()
	c := newTestClient(t, newTestLog(t), lc, Options{})
	rec := newRecorder(c)
	if err := c.Subscribe(context.Background(), "foo", SubscribeOptions{}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	lc.fail("foo", ErrLiveChannelUnavailable)
	lc.fail("unknown", ErrLiveChannelUnavailable)
	if err := rec.waitError(t, "foo"); !errors.Is(err, ErrLiveChannelUnavailable) {
		t.Fatalf("error = %v", err)
	}
	if len(rec.errors("unknown")) != 0 {
		t.Fatalf("error reported for an unsubscribed pattern")
	}
}

func TestObserveCancel(t *testing.T) {
	c, _ := newHubClient(t, Options{})
	ctx := context.Background()
	first := newRecorder(c)
	second := &recorder{msgs: map[string][]message.Message{}, errs: map[string][]error{}, cursors: map[string][]uint64{}}
	cancel := c.Observe(second)

	if err := c.Subscribe(ctx, "foo", SubscribeOptions{}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	publishN(t, c, "foo", 1)
	first.waitMessages(t, "foo", 1)
	second.waitMessages(t, "foo", 1)

	cancel()
	cancel()
	publishN(t, c, "foo", 1)
	first.waitMessages(t, "foo", 2)
	if n := len(second.messages("foo")); n != 1 {
		t.Fatalf("cancelled observer got %d messages", n)
	}
}

func TestCloseRejectsFurtherCalls(t *testing.T) {
	c, _ := newHubClient(t, Options{})
	ctx := context.Background()
	if err := c.Subscribe(ctx, "foo", SubscribeOptions{From: FromID(0)}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := c.Publish(ctx, "foo", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("publish after close: %v", err)
	}
	if err := c.Subscribe(ctx, "bar", SubscribeOptions{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("subscribe after close: %v", err)
	}
	if len(c.Patterns()) != 0 {
		t.Fatalf("patterns remain after close: %v", c.Patterns())
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _ := newHubClient(t, Options{ID: "metrics-test", Registerer: reg})
	rec := newRecorder(c)
	ctx := context.Background()
	publishN(t, c, "m", 3)
	if err := c.Subscribe(ctx, "m", SubscribeOptions{From: FromID(0)}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	rec.waitMessages(t, "m", 3)
	if got := testutil.ToFloat64(c.metrics.delivered.WithLabelValues(pathReplay)); got != 3 {
		t.Fatalf("replay deliveries = %v, want 3", got)
	}
	n, err := testutil.GatherAndCount(reg, "remq_client_messages_delivered_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n == 0 {
		t.Fatalf("delivered counter not registered")
	}
}

// slowDeregister holds one Deregister call until release is closed.
type slowDeregister struct {
	*live.HubConn
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (s *slowDeregister) Deregister(ctx context.Context, pattern string) error {
	if s.armed.CompareAndSwap(true, false) {
		close(s.entered)
		<-s.release
	}
	return s.HubConn.Deregister(ctx, pattern)
}

func TestResubscribeWaitsForPendingUnsubscribe(t *testing.T) {
	hub := live.NewHub()
	t.Cleanup(hub.Close)
	l := newTestLog(t, eventlog.WithNotifier(hub))
	lc := &slowDeregister{HubConn: hub.Conn(), entered: make(chan struct{}), release: make(chan struct{})}
	c := newTestClient(t, l, lc, Options{})
	rec := newRecorder(c)
	ctx := context.Background()

	if err := c.Subscribe(ctx, "a", SubscribeOptions{}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	lc.armed.Store(true)
	unsubErr := make(chan error, 1)
	go func() { unsubErr <- c.Unsubscribe(ctx, "a") }()
	<-lc.entered

	subErr := make(chan error, 1)
	go func() { subErr <- c.Subscribe(ctx, "a", SubscribeOptions{}) }()
	select {
	case err := <-subErr:
		t.Fatalf("subscribe returned while the old subscription was deregistering: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(lc.release)
	if err := <-unsubErr; err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := <-subErr; err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if p, ok := c.Phase("a"); !ok || p != PhaseDirect {
		t.Fatalf("phase = %s,%v, want direct", p, ok)
	}
	ids := publishN(t, c, "a", 1)
	got := rec.waitMessages(t, "a", 1)
	if got[0].ID != ids[0] {
		t.Fatalf("got %v, want id %d", got, ids[0])
	}
}

func TestResubscribeHonorsContextWhileWaiting(t *testing.T) {
	hub := live.NewHub()
	t.Cleanup(hub.Close)
	l := newTestLog(t, eventlog.WithNotifier(hub))
	lc := &slowDeregister{HubConn: hub.Conn(), entered: make(chan struct{}), release: make(chan struct{})}
	c := newTestClient(t, l, lc, Options{})

	if err := c.Subscribe(context.Background(), "a", SubscribeOptions{}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	lc.armed.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Unsubscribe(context.Background(), "a")
	}()
	<-lc.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Subscribe(ctx, "a", SubscribeOptions{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	close(lc.release)
	<-done
}

func TestUnsubscribeFromObserver(t *testing.T) {
	c, _ := newHubClient(t, Options{})
	rec := newRecorder(c)
	ctx := context.Background()

	var once sync.Once
	unsubscribed := make(chan error, 1)
	c.Observe(ObserverFuncs{OnMessage: func(pattern string, _ message.Message) {
		once.Do(func() { unsubscribed <- c.Unsubscribe(ctx, pattern) })
	}})

	if err := c.Subscribe(ctx, "once", SubscribeOptions{}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	publishN(t, c, "once", 3)
	select {
	case err := <-unsubscribed:
		if err != nil {
			t.Fatalf("unsubscribe: %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("unsubscribe from inside a notification did not return")
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(rec.messages("once")); n != 1 {
		t.Fatalf("got %d messages, want 1", n)
	}
	if _, ok := c.Phase("once"); ok {
		t.Fatalf("pattern still active")
	}

	// The pattern is free again.
	if err := c.Subscribe(ctx, "once", SubscribeOptions{}); err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if p, _ := c.Phase("once"); p != PhaseDirect {
		t.Fatalf("phase = %s, want direct", p)
	}
}
