package remq

import (
	"context"
	"fmt"

	"github.com/kainosnoema/remq/pkg/message"
)

// Store is the persisted log a Client reads and writes.
//
// ReadRange must return every matching message with id > afterID in ascending
// order, up to limit. A result shorter than limit means no further matching
// message currently exists; the coordinator relies on that to end catch-up.
type Store interface {
	Append(ctx context.Context, channel string, body []byte) (uint64, error)
	ReadRange(ctx context.Context, pattern string, afterID uint64, limit int) ([]message.Message, error)
	Prune(ctx context.Context, pattern string, policy message.PrunePolicy) (int, error)
}

// LiveChannel pushes newly appended messages to registered patterns.
//
// Register returns once the registration is effective: any message appended
// after it returns is delivered to fn. Deliveries for one pattern arrive in
// order, one at a time. Registering a pattern again replaces the handler.
type LiveChannel interface {
	Register(ctx context.Context, pattern string, fn message.DeliverFunc) error
	Deregister(ctx context.Context, pattern string) error
}

// liveErrorSource is implemented by live channels that report asynchronous
// transport failures per pattern.
type liveErrorSource interface {
	OnError(fn func(pattern string, err error))
}

type noLive struct{}

func (noLive) Register(context.Context, string, message.DeliverFunc) error {
	return fmt.Errorf("%w: no live channel configured", message.ErrLiveChannelUnavailable)
}

func (noLive) Deregister(context.Context, string) error { return nil }
