package grpcserver

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	cfgpkg "github.com/kainosnoema/remq/internal/config"
	"github.com/kainosnoema/remq/internal/live"
	"github.com/kainosnoema/remq/internal/rpc"
	"github.com/kainosnoema/remq/internal/runtime"
	pebblestore "github.com/kainosnoema/remq/internal/storage/pebble"
	logpkg "github.com/kainosnoema/remq/pkg/log"
	"github.com/kainosnoema/remq/pkg/message"
	"github.com/kainosnoema/remq/pkg/remq"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

func dialer(s *grpc.Server) func(context.Context, string) (net.Conn, error) {
	lis := bufconn.Listen(bufSize)
	go func() { _ = s.Serve(lis) }()
	return func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
}

func openRuntime(t *testing.T, notifier *live.Hub) *runtime.Runtime {
	t.Helper()
	opts := runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()}
	if notifier != nil {
		opts.Notifier = notifier
	}
	rt, err := runtime.Open(opts)
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func newBufClient(t *testing.T, rt *runtime.Runtime, opts ...Option) *rpc.Client {
	t.Helper()
	srv := New(rt, opts...)
	t.Cleanup(srv.Close)
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer(srv.grpc)),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return rpc.NewClient(conn)
}

func TestHealthOverGRPC(t *testing.T) {
	rt := openRuntime(t, nil)
	c := newBufClient(t, rt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rt.Log().Append(ctx, "orders", []byte("x")); err != nil {
		t.Fatalf("append: %v", err)
	}
	res, err := c.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if res.Status != "ok" || res.Namespace != "default" || res.LastID != 1 {
		t.Fatalf("health = %+v", res)
	}
}

func TestAppendReadPruneOverGRPC(t *testing.T) {
	rt := openRuntime(t, nil)
	c := newBufClient(t, rt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var ids []uint64
	for _, ch := range []string{"orders.created", "users.created", "orders.paid"} {
		id, err := c.Append(ctx, ch, []byte("body of "+ch))
		if err != nil {
			t.Fatalf("append %s: %v", ch, err)
		}
		ids = append(ids, id)
	}
	got, err := c.ReadRange(ctx, "orders.*", 0, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].ID != ids[0] || got[1].ID != ids[2] {
		t.Fatalf("read = %v", got)
	}
	if string(got[1].Body) != "body of orders.paid" || got[1].Channel != "orders.paid" {
		t.Fatalf("message = %+v", got[1])
	}
	empty, err := c.ReadRange(ctx, "nothing", 0, 10)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty read = %v, %v", empty, err)
	}

	n, err := c.Prune(ctx, "orders.*", message.PruneBefore(ids[2]))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	got, err = c.ReadRange(ctx, "*", 0, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].ID != ids[1] {
		t.Fatalf("after prune = %v", got)
	}
}

func TestArgumentErrorsRoundTrip(t *testing.T) {
	rt := openRuntime(t, nil)
	c := newBufClient(t, rt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.Append(ctx, "bad*channel", nil); !errors.Is(err, message.ErrInvalidChannel) {
		t.Fatalf("append: %v", err)
	}
	if _, err := c.ReadRange(ctx, "a[", 0, 10); !errors.Is(err, message.ErrInvalidPattern) {
		t.Fatalf("read: %v", err)
	}
	if _, err := c.ReadRange(ctx, "a", 0, 0); !errors.Is(err, message.ErrInvalidCursor) {
		t.Fatalf("limit: %v", err)
	}
	if _, err := c.Prune(ctx, "a", message.PrunePolicy{}); !errors.Is(err, message.ErrInvalidPolicy) {
		t.Fatalf("prune: %v", err)
	}
}

func TestClosedRuntimeIsUnavailable(t *testing.T) {
	rt := openRuntime(t, nil)
	c := newBufClient(t, rt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = rt.Close()

	if _, err := c.Append(ctx, "orders", nil); !errors.Is(err, message.ErrStoreUnavailable) {
		t.Fatalf("append on closed store: %v", err)
	}
	res, err := c.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if res.Status != "not_serving" {
		t.Fatalf("status = %q", res.Status)
	}
}

func TestClientCatchUpOverGRPC(t *testing.T) {
	hub := live.NewHub()
	t.Cleanup(hub.Close)
	rt := openRuntime(t, hub)
	store := newBufClient(t, rt)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := remq.New(store, hub.Conn(), remq.Options{Logger: logpkg.NewNopLogger()})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer client.Close(ctx)

	got := make(chan message.Message, 16)
	client.Observe(remq.ObserverFuncs{OnMessage: func(_ string, m message.Message) { got <- m }})

	for i := 0; i < 3; i++ {
		if _, err := client.Publish(ctx, "jobs.a", []byte("old")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if err := client.Subscribe(ctx, "jobs.*", remq.SubscribeOptions{From: remq.FromID(0), PollInterval: 10 * time.Millisecond}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if p, _ := client.Phase("jobs.*"); p == remq.PhaseLive {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscription never went live")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := client.Publish(ctx, "jobs.b", []byte("new")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var last uint64
	for i := 0; i < 4; i++ {
		select {
		case m := <-got:
			if m.ID <= last {
				t.Fatalf("id %d after %d", m.ID, last)
			}
			last = m.ID
		case <-ctx.Done():
			t.Fatalf("received %d of 4 messages", i)
		}
	}
	if last != 4 {
		t.Fatalf("last id = %d, want 4", last)
	}
}

func TestReadRangeSpansByteBudget(t *testing.T) {
	rt := openRuntime(t, nil)
	c := newBufClient(t, rt, WithPageBytes(10<<10))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	body := bytes.Repeat([]byte("b"), 4<<10)
	for i := 0; i < 20; i++ {
		if _, err := rt.Log().Append(ctx, "big.a", body); err != nil {
			t.Fatalf("append: %v", err)
		}
		if _, err := rt.Log().Append(ctx, "other", []byte("x")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	// Each response holds two bodies; the client keeps asking until the
	// limit is reached.
	page, err := c.ReadRange(ctx, "big.*", 0, 15)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(page) != 15 {
		t.Fatalf("got %d messages, want a full page of 15", len(page))
	}
	rest, err := c.ReadRange(ctx, "big.*", page[14].ID, 100)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rest) != 5 {
		t.Fatalf("got %d messages, want the remaining 5", len(rest))
	}
	for i := 1; i < len(rest); i++ {
		if rest[i].ID <= rest[i-1].ID || !bytes.Equal(rest[i].Body, body) {
			t.Fatalf("message %d out of order or corrupted: %d after %d", i, rest[i].ID, rest[i-1].ID)
		}
	}
}

func TestLargePagesOverGRPC(t *testing.T) {
	hub := live.NewHub()
	t.Cleanup(hub.Close)
	rt := openRuntime(t, hub)
	store := newBufClient(t, rt)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 600 x 8 KiB is past gRPC's default 4 MiB receive limit.
	const n = 600
	body := bytes.Repeat([]byte("p"), 8<<10)
	for i := 0; i < n; i++ {
		if _, err := rt.Log().Append(ctx, "big.a", body); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	client, err := remq.New(store, hub.Conn(), remq.Options{Logger: logpkg.NewNopLogger()})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer client.Close(ctx)

	all, err := client.Consume(ctx, "big.*", remq.ConsumeOptions{})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(all) != n {
		t.Fatalf("consume returned %d messages, want %d", len(all), n)
	}

	got := make(chan message.Message, n)
	errs := make(chan error, 1)
	client.Observe(remq.ObserverFuncs{
		OnMessage: func(_ string, m message.Message) { got <- m },
		OnError: func(_ string, err error) {
			select {
			case errs <- err:
			default:
			}
		},
	})
	if err := client.Subscribe(ctx, "big.*", remq.SubscribeOptions{From: remq.FromID(0)}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var last uint64
	for i := 0; i < n; i++ {
		select {
		case m := <-got:
			if m.ID <= last || len(m.Body) != len(body) {
				t.Fatalf("delivery %d: id %d after %d, %d bytes", i, m.ID, last, len(m.Body))
			}
			last = m.ID
		case err := <-errs:
			t.Fatalf("catch-up failed after %d messages: %v", i, err)
		case <-ctx.Done():
			t.Fatalf("received %d of %d messages", i, n)
		}
	}
}
