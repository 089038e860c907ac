package eventlog

import (
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/kainosnoema/remq/pkg/message"
)

// ctxCheckEvery bounds how many keys a scan visits between context checks.
const ctxCheckEvery = 512

// ReadRange returns up to limit messages with id > afterID whose channel
// matches pattern, ascending by id. The scan only stops early once limit
// matches are collected, so a short page means the log holds no further
// match past the last returned id.
func (l *Log) ReadRange(ctx context.Context, pattern string, afterID uint64, limit int) ([]message.Message, error) {
	out, _, err := l.read(ctx, pattern, afterID, limit, 0)
	return out, err
}

// ReadPage is ReadRange with a soft byte budget over channels and bodies.
// The page always holds at least one match. When the budget cuts it short of
// limit, more is true and another match exists after the last returned id;
// callers must not treat such a page as exhausting the log.
func (l *Log) ReadPage(ctx context.Context, pattern string, afterID uint64, limit, maxBytes int) (msgs []message.Message, more bool, err error) {
	return l.read(ctx, pattern, afterID, limit, maxBytes)
}

func (l *Log) read(ctx context.Context, pattern string, afterID uint64, limit, maxBytes int) ([]message.Message, bool, error) {
	if err := message.ValidatePattern(pattern); err != nil {
		return nil, false, err
	}
	if limit <= 0 {
		return nil, false, fmt.Errorf("%w: limit must be positive, got %d", message.ErrInvalidCursor, limit)
	}
	if afterID == ^uint64(0) {
		return nil, false, nil
	}
	lower, upper := entryBounds(l.namespace)
	start := KeyLogEntry(l.namespace, afterID+1)
	literal := message.IsLiteral(pattern)

	out := make([]message.Message, 0, min(limit, 256))
	more := false
	size := 0
	err := l.db.Scan(lower, upper, func(it *pebble.Iterator) error {
		visited := 0
		for ok := it.SeekGE(start); ok && len(out) < limit; ok = it.Next() {
			visited++
			if visited%ctxCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			ch, ok := peekChannel(it.Value())
			if !ok {
				continue
			}
			if literal && ch != pattern || !literal && !message.Match(pattern, ch) {
				continue
			}
			rec, err := DecodeRecord(it.Value())
			if err != nil {
				continue
			}
			n := len(rec.Channel) + len(rec.Body)
			if maxBytes > 0 && len(out) > 0 && size+n > maxBytes {
				more = true
				break
			}
			size += n
			out = append(out, message.Message{ID: idFromKey(it.Key()), Channel: rec.Channel, Body: rec.Body})
		}
		return it.Error()
	})
	if err != nil {
		return nil, false, storeErr("read", err)
	}
	return out, more, nil
}
