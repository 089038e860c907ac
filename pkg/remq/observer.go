package remq

import (
	"sync"

	"github.com/kainosnoema/remq/pkg/message"
)

// Observer receives a Client's notifications. For one pattern, calls are
// serialized and message ids strictly increase.
type Observer interface {
	HandleMessage(pattern string, m message.Message)
	HandleError(pattern string, err error)
	// HandleCursor reports the pattern's cursor after each accepted id,
	// including ids skipped by a filter.
	HandleCursor(pattern string, id uint64)
}

// ObserverFuncs adapts optional functions to Observer.
type ObserverFuncs struct {
	OnMessage func(pattern string, m message.Message)
	OnError   func(pattern string, err error)
	OnCursor  func(pattern string, id uint64)
}

func (o ObserverFuncs) HandleMessage(pattern string, m message.Message) {
	if o.OnMessage != nil {
		o.OnMessage(pattern, m)
	}
}

func (o ObserverFuncs) HandleError(pattern string, err error) {
	if o.OnError != nil {
		o.OnError(pattern, err)
	}
}

func (o ObserverFuncs) HandleCursor(pattern string, id uint64) {
	if o.OnCursor != nil {
		o.OnCursor(pattern, id)
	}
}

type observerEntry struct {
	id  uint64
	obs Observer
}

// observerSet is copy-on-write so observers may register or cancel from
// inside a notification.
type observerSet struct {
	mu      sync.Mutex
	next    uint64
	entries []observerEntry
}

func (s *observerSet) add(o Observer) func() {
	s.mu.Lock()
	s.next++
	id := s.next
	entries := make([]observerEntry, 0, len(s.entries)+1)
	entries = append(entries, s.entries...)
	s.entries = append(entries, observerEntry{id: id, obs: o})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *observerSet) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]observerEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.id != id {
			entries = append(entries, e)
		}
	}
	s.entries = entries
}

func (s *observerSet) snapshot() []observerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries
}

func (s *observerSet) message(pattern string, m message.Message) {
	for _, e := range s.snapshot() {
		e.obs.HandleMessage(pattern, m)
	}
}

func (s *observerSet) error(pattern string, err error) {
	for _, e := range s.snapshot() {
		e.obs.HandleError(pattern, err)
	}
}

func (s *observerSet) cursor(pattern string, id uint64) {
	for _, e := range s.snapshot() {
		e.obs.HandleCursor(pattern, id)
	}
}
