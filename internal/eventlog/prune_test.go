package eventlog

import (
	"context"
	"errors"
	"testing"

	"github.com/kainosnoema/remq/pkg/message"
)

type recordingHook struct {
	batches int
	total   int
	min     uint64
	max     uint64
}

func (h *recordingHook) EmitPruneRange(_ string, minID, maxID uint64, n int) {
	h.batches++
	h.total += n
	if h.min == 0 || minID < h.min {
		h.min = minID
	}
	if maxID > h.max {
		h.max = maxID
	}
}

func TestPruneKeep(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	appendN(t, l, "foo", 3)
	n, err := l.Prune(ctx, "foo", message.PruneKeep(1))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 pruned, got %d", n)
	}
	msgs, err := l.ReadRange(ctx, "foo", 0, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != 3 {
		t.Fatalf("only the most recent message should survive, got %v", msgs)
	}
}

func TestPruneBeforeOnlyMatching(t *testing.T) {
	hook := &recordingHook{}
	l := newTestLog(t, WithPruneHook(hook))
	ctx := context.Background()
	appendN(t, l, "a", 2) // 1,2
	appendN(t, l, "b", 2) // 3,4
	appendN(t, l, "a", 2) // 5,6
	n, err := l.Prune(ctx, "a", message.PruneBefore(6))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3 pruned (1,2,5), got %d", n)
	}
	if hook.total != 3 || hook.min != 1 || hook.max != 5 {
		t.Fatalf("unexpected hook observations: %+v", hook)
	}
	all, _ := l.ReadRange(ctx, "*", 0, 10)
	if len(all) != 3 || all[0].ID != 3 || all[1].ID != 4 || all[2].ID != 6 {
		t.Fatalf("unexpected survivors: %v", all)
	}
}

func TestPruneBatches(t *testing.T) {
	hook := &recordingHook{}
	l := newTestLog(t, WithPruneHook(hook))
	appendN(t, l, "bulk", pruneBatchLimit+10)
	n, err := l.Prune(context.Background(), "bulk", message.PruneKeep(0))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != pruneBatchLimit+10 || hook.batches != 2 {
		t.Fatalf("want %d deletes in 2 batches, got %d in %d", pruneBatchLimit+10, n, hook.batches)
	}
}

func TestPruneNoop(t *testing.T) {
	l := newTestLog(t)
	appendN(t, l, "foo", 2)
	if n, err := l.Prune(context.Background(), "foo", message.PruneBefore(0)); err != nil || n != 0 {
		t.Fatalf("before=0 should be a no-op, got %d %v", n, err)
	}
	if n, err := l.Prune(context.Background(), "foo", message.PruneKeep(5)); err != nil || n != 0 {
		t.Fatalf("keep beyond size should be a no-op, got %d %v", n, err)
	}
	if _, err := l.Prune(context.Background(), "foo", message.PrunePolicy{}); !errors.Is(err, message.ErrInvalidPolicy) {
		t.Fatalf("want ErrInvalidPolicy, got %v", err)
	}
}
