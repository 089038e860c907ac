package eventlog

import "github.com/kainosnoema/remq/pkg/message"

// Notifier observes committed appends in id order. Implementations must not
// block; they run under the append lock.
type Notifier interface {
	Notify(m message.Message)
}

// PruneHook is invoked once per committed prune batch with the smallest and
// largest id it removed.
type PruneHook interface {
	EmitPruneRange(namespace string, minID, maxID uint64, count int)
}

type noopNotifier struct{}

func (noopNotifier) Notify(message.Message) {}

type noopPruneHook struct{}

func (noopPruneHook) EmitPruneRange(string, uint64, uint64, int) {}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(m message.Message)

func (f NotifierFunc) Notify(m message.Message) { f(m) }
