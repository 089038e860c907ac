package eventlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	pebblestore "github.com/kainosnoema/remq/internal/storage/pebble"
	"github.com/kainosnoema/remq/pkg/message"
)

// Log is the persisted log of one namespace. Ids are assigned from a single
// sequence shared by all channels and are never reused, including after prunes.
type Log struct {
	db        *pebblestore.DB
	namespace string

	mu       sync.Mutex
	lastID   uint64
	notifier Notifier
	pruned   PruneHook
}

// Option configures a Log.
type Option func(*Log)

// WithNotifier sets the observer of committed appends.
func WithNotifier(n Notifier) Option {
	return func(l *Log) {
		if n != nil {
			l.notifier = n
		}
	}
}

// WithPruneHook sets the observer of prune batches.
func WithPruneHook(h PruneHook) Option {
	return func(l *Log) {
		if h != nil {
			l.pruned = h
		}
	}
}

// OpenLog initializes a Log and loads the last id from metadata (if any).
func OpenLog(db *pebblestore.DB, namespace string, opts ...Option) (*Log, error) {
	l := &Log{db: db, namespace: namespace, notifier: noopNotifier{}, pruned: noopPruneHook{}}
	for _, o := range opts {
		o(l)
	}
	meta, err := db.Get(KeyLogMeta(namespace))
	switch {
	case err == nil && len(meta) >= 8:
		l.lastID = binary.BigEndian.Uint64(meta[:8])
	case err == nil, errors.Is(err, pebblestore.ErrNotFound):
	default:
		return nil, storeErr("open", err)
	}
	return l, nil
}

// Namespace returns the namespace this log serves.
func (l *Log) Namespace() string { return l.namespace }

// LastID returns the most recently assigned id, or 0 for an empty log.
func (l *Log) LastID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastID
}

// Append stores body on channel and returns its id. The id is consumed only
// if the commit succeeds.
func (l *Log) Append(ctx context.Context, channel string, body []byte) (uint64, error) {
	if err := message.ValidateChannel(channel); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.lastID + 1
	b := l.db.NewBatch()
	defer b.Close()
	if err := b.Set(KeyLogEntry(l.namespace, id), EncodeRecord(channel, body), nil); err != nil {
		return 0, storeErr("append", err)
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], id)
	if err := b.Set(KeyLogMeta(l.namespace), meta[:], nil); err != nil {
		return 0, storeErr("append", err)
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return 0, storeErr("append", err)
	}
	l.lastID = id
	l.notifier.Notify(message.Message{ID: id, Channel: channel, Body: body})
	return id, nil
}

// storeErr maps storage failures to ErrStoreUnavailable, keeping caller
// cancellation and decode errors distinct.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, message.ErrMalformed):
		return fmt.Errorf("eventlog: %s: %w", op, err)
	default:
		return fmt.Errorf("eventlog: %s: %w: %w", op, message.ErrStoreUnavailable, err)
	}
}
