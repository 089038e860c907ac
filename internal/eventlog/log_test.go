package eventlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	pebblestore "github.com/kainosnoema/remq/internal/storage/pebble"
	"github.com/kainosnoema/remq/pkg/message"
)

func openTestDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	return db
}

func newTestLog(t *testing.T, opts ...Option) *Log {
	t.Helper()
	db := openTestDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	l, err := OpenLog(db, "ns", opts...)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	return l
}

func appendN(t *testing.T, l *Log, channel string, n int) []uint64 {
	t.Helper()
	ids := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		id, err := l.Append(context.Background(), channel, []byte(fmt.Sprintf("%s-%d", channel, i)))
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestAppendAssignsGlobalSequence(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	a, _ := l.Append(ctx, "foo.1", []byte("a"))
	b, _ := l.Append(ctx, "bar.1", []byte("b"))
	c, _ := l.Append(ctx, "foo.1", []byte("c"))
	if a != 1 || b != 2 || c != 3 {
		t.Fatalf("expected 1,2,3 across channels, got %d,%d,%d", a, b, c)
	}
	if l.LastID() != 3 {
		t.Fatalf("LastID: %d", l.LastID())
	}
}

func TestAppendRejectsInvalidChannel(t *testing.T) {
	l := newTestLog(t)
	if _, err := l.Append(context.Background(), "foo.*", nil); !errors.Is(err, message.ErrInvalidChannel) {
		t.Fatalf("want ErrInvalidChannel, got %v", err)
	}
	if l.LastID() != 0 {
		t.Fatalf("rejected append consumed an id")
	}
}

func TestAppendDurableAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	l, err := OpenLog(db, "ns")
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	appendN(t, l, "foo", 3)
	if _, err := l.Prune(context.Background(), "*", message.PruneKeep(0)); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2 := openTestDB(t, dir)
	t.Cleanup(func() { _ = db2.Close() })
	l2, err := OpenLog(db2, "ns")
	if err != nil {
		t.Fatalf("open log2: %v", err)
	}
	id, err := l2.Append(context.Background(), "foo", []byte("y"))
	if err != nil {
		t.Fatalf("append2: %v", err)
	}
	if id != 4 {
		t.Fatalf("ids must not be reused after prune and reopen; got %d", id)
	}
}

func TestAppendAfterCloseIsUnavailable(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	l, err := OpenLog(db, "ns")
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	_ = db.Close()
	if _, err := l.Append(context.Background(), "foo", nil); !errors.Is(err, message.ErrStoreUnavailable) {
		t.Fatalf("want ErrStoreUnavailable, got %v", err)
	}
	if l.LastID() != 0 {
		t.Fatalf("failed append consumed an id")
	}
	if _, err := l.ReadRange(context.Background(), "*", 0, 10); !errors.Is(err, message.ErrStoreUnavailable) {
		t.Fatalf("read: want ErrStoreUnavailable, got %v", err)
	}
}

func TestNotifierSeesIDOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []uint64
	l := newTestLog(t, WithNotifier(NotifierFunc(func(m message.Message) {
		mu.Lock()
		seen = append(seen, m.ID)
		mu.Unlock()
	})))
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if _, err := l.Append(context.Background(), "foo", []byte("x")); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 100 {
		t.Fatalf("want 100 notifications, got %d", len(seen))
	}
	for i, id := range seen {
		if id != uint64(i+1) {
			t.Fatalf("notification %d carried id %d", i, id)
		}
	}
}
