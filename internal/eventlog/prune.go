package eventlog

import (
	"context"

	"github.com/cockroachdb/pebble"
	"github.com/kainosnoema/remq/pkg/message"
)

const pruneBatchLimit = 1024

// Prune deletes matching entries selected by policy and returns how many
// were removed. Deletes are committed in batches of up to 1024 keys and the
// removed span is then compacted. Ids are not renumbered and the id sequence
// is left untouched.
func (l *Log) Prune(ctx context.Context, pattern string, policy message.PrunePolicy) (int, error) {
	if err := message.ValidatePattern(pattern); err != nil {
		return 0, err
	}
	if err := policy.Validate(); err != nil {
		return 0, err
	}
	if policy.Mode == message.PruneModeBefore && policy.BeforeID <= 1 {
		return 0, nil
	}

	var ids []uint64
	lower, upper := entryBounds(l.namespace)
	if policy.Mode == message.PruneModeBefore {
		upper = KeyLogEntry(l.namespace, policy.BeforeID)
	}
	err := l.db.Scan(lower, upper, func(it *pebble.Iterator) error {
		if policy.Mode == message.PruneModeBefore {
			for ok := it.First(); ok; ok = it.Next() {
				if ch, ok := peekChannel(it.Value()); ok && message.Match(pattern, ch) {
					ids = append(ids, idFromKey(it.Key()))
				}
			}
			return it.Error()
		}
		kept := 0
		for ok := it.Last(); ok; ok = it.Prev() {
			ch, ok := peekChannel(it.Value())
			if !ok || !message.Match(pattern, ch) {
				continue
			}
			if kept < policy.Keep {
				kept++
				continue
			}
			ids = append(ids, idFromKey(it.Key()))
		}
		return it.Error()
	})
	if err != nil {
		return 0, storeErr("prune", err)
	}
	n, err := l.deleteIDs(ctx, ids)
	if n > 0 {
		l.compact(ids[:n])
	}
	return n, err
}

// compact asks pebble to reclaim the tombstoned span. Errors are dropped; the
// deletes are already committed.
func (l *Log) compact(ids []uint64) {
	lo, hi := ids[0], ids[0]
	for _, id := range ids[1:] {
		lo = min(lo, id)
		hi = max(hi, id)
	}
	_ = l.db.CompactRange(KeyLogEntry(l.namespace, lo), KeyLogEntry(l.namespace, hi+1))
}

func (l *Log) deleteIDs(ctx context.Context, ids []uint64) (int, error) {
	deleted := 0
	for len(ids) > 0 {
		n := min(len(ids), pruneBatchLimit)
		chunk := ids[:n]
		ids = ids[n:]

		b := l.db.NewBatch()
		minID, maxID := chunk[0], chunk[0]
		for _, id := range chunk {
			if err := b.Delete(KeyLogEntry(l.namespace, id), nil); err != nil {
				b.Close()
				return deleted, storeErr("prune", err)
			}
			minID = min(minID, id)
			maxID = max(maxID, id)
		}
		if err := l.db.CommitBatch(ctx, b); err != nil {
			b.Close()
			return deleted, storeErr("prune", err)
		}
		b.Close()
		deleted += n
		l.pruned.EmitPruneRange(l.namespace, minID, maxID, n)
	}
	return deleted, nil
}
