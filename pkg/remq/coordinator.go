package remq

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	logpkg "github.com/kainosnoema/remq/pkg/log"
	"github.com/kainosnoema/remq/pkg/message"
)

// Phase is a subscription's position in the catch-up/live state machine.
type Phase int

const (
	// PhaseDirect delivers live messages only; it was subscribed without a
	// cursor.
	PhaseDirect Phase = iota + 1
	// PhaseCatchingUp pages through the store.
	PhaseCatchingUp
	// PhaseBuffering holds live messages while a confirming read checks that
	// history is exhausted.
	PhaseBuffering
	// PhaseLive delivers live messages after a completed handover.
	PhaseLive
	PhaseUnsubscribed
)

func (p Phase) String() string {
	switch p {
	case PhaseDirect:
		return "direct"
	case PhaseCatchingUp:
		return "catching_up"
	case PhaseBuffering:
		return "buffering"
	case PhaseLive:
		return "live"
	case PhaseUnsubscribed:
		return "unsubscribed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// coordinator drives one pattern subscription.
//
// Lock order is liveMu, then mu, then the gate. liveMu serializes calls into
// the live channel so none is issued after stop returns. mu guards the phase
// and buffer and is held for every delivery, which keeps deliveries for the
// pattern ordered and lets stop act as a barrier.
type coordinator struct {
	client  *Client
	pattern string
	gate    *gate
	filter  *filter
	cfg     subscribeConfig
	logger  logpkg.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool

	// delivering counts observer calls in progress under mu.
	delivering atomic.Int32
	retiring   atomic.Bool
	released   chan struct{} // closed when the first retire finishes

	liveMu     sync.Mutex
	registered bool

	mu          sync.Mutex
	phase       Phase
	phaseView   atomic.Int32
	gen         uint64 // bumped on every registration change; stale live handlers drop
	buffer      []message.Message
	bufferSince time.Time
	overflow    bool
}

func newCoordinator(c *Client, pattern string, g *gate, f *filter, cfg subscribeConfig, initial Phase) *coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	co := &coordinator{
		client:   c,
		pattern:  pattern,
		gate:     g,
		filter:   f,
		cfg:      cfg,
		logger:   c.logger.With(logpkg.Str("pattern", pattern)),
		ctx:      ctx,
		cancel:   cancel,
		released: make(chan struct{}),
		phase:    initial,
	}
	co.phaseView.Store(int32(initial))
	return co
}

// currentPhase does not take mu, so observers may call it while a delivery
// is in progress.
func (co *coordinator) currentPhase() Phase {
	return Phase(co.phaseView.Load())
}

func (co *coordinator) setPhaseLocked(p Phase) {
	if co.phase == p || co.stopped.Load() && p != PhaseUnsubscribed {
		return
	}
	co.logger.Debug("remq.phase", logpkg.Str("from", co.phase.String()), logpkg.Str("to", p.String()))
	co.phase = p
	co.phaseView.Store(int32(p))
	co.client.metrics.transitions.WithLabelValues(p.String()).Inc()
}

// startDirect registers for live delivery and returns once it is effective.
func (co *coordinator) startDirect(ctx context.Context) error {
	co.liveMu.Lock()
	defer co.liveMu.Unlock()
	if co.stopped.Load() {
		return nil
	}
	co.mu.Lock()
	co.gen++
	gen := co.gen
	co.mu.Unlock()

	if err := co.client.live.Register(ctx, co.pattern, co.liveHandler(gen)); err != nil {
		return liveErr("register", co.pattern, err)
	}
	co.registered = true
	return nil
}

func (co *coordinator) startCatchUp(after uint64) {
	co.logger.Debug("catch-up started", logpkg.Uint64("after", after))
	go co.run()
}

// run pages the store until a handover to live delivery completes, the
// subscription stops, or a read fails.
func (co *coordinator) run() {
	defer co.client.wg.Done()
	for {
		start := time.Now()
		page, err := co.client.store.ReadRange(co.ctx, co.pattern, co.gate.load(), co.cfg.pageLimit)
		co.client.metrics.observeRead(start, err)
		if co.stopped.Load() {
			return
		}
		if err != nil {
			co.halt(err)
			return
		}

		retry, live := co.apply(page)
		if live {
			return
		}
		if retry != "" {
			co.abandonHandover(retry)
			continue
		}
		if len(page) < co.cfg.pageLimit && co.beginBuffering() {
			// Confirm nothing was appended between the short page and the
			// registration taking effect.
			continue
		}
		if !co.sleep(co.cfg.pollInterval) {
			return
		}
	}
}

// apply delivers a page. In Buffering, an empty page completes the handover;
// a non-empty page or a buffer overflow returns the reason to retry.
func (co *coordinator) apply(page []message.Message) (retry string, done bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.stopped.Load() {
		return "", true
	}
	buffering := co.phase == PhaseBuffering
	overflow := buffering && (co.overflow || co.bufferExpiredLocked())
	if buffering && !overflow && len(page) == 0 {
		for _, m := range co.buffer {
			co.client.pass(co, m, pathBuffer)
		}
		co.buffer = nil
		co.setPhaseLocked(PhaseLive)
		return "", true
	}
	for _, m := range page {
		co.client.pass(co, m, pathReplay)
	}
	switch {
	case overflow:
		return retryOverflow, false
	case buffering:
		return retryRace, false
	}
	return "", false
}

func (co *coordinator) bufferExpiredLocked() bool {
	return co.cfg.bufferTimeout > 0 && time.Since(co.bufferSince) > co.cfg.bufferTimeout
}

// beginBuffering registers on the live channel with buffering enabled. On
// failure the subscription keeps polling and retries on the next short page.
func (co *coordinator) beginBuffering() bool {
	co.liveMu.Lock()
	defer co.liveMu.Unlock()
	if co.stopped.Load() {
		return false
	}
	co.mu.Lock()
	co.gen++
	gen := co.gen
	co.buffer = nil
	co.overflow = false
	co.bufferSince = time.Now()
	co.setPhaseLocked(PhaseBuffering)
	co.mu.Unlock()

	err := co.client.live.Register(co.ctx, co.pattern, co.liveHandler(gen))
	if err == nil {
		co.registered = true
		return true
	}
	co.mu.Lock()
	if co.gen == gen && !co.stopped.Load() {
		co.gen++
		co.buffer = nil
		co.setPhaseLocked(PhaseCatchingUp)
	}
	co.mu.Unlock()
	if !co.stopped.Load() {
		co.client.metrics.registerFailure.Inc()
		co.logger.Warn("live registration failed; continuing by polling", logpkg.Err(err))
	}
	return false
}

// abandonHandover deregisters, discards the buffer and returns to paging
// from the gate's cursor.
func (co *coordinator) abandonHandover(reason string) {
	co.liveMu.Lock()
	defer co.liveMu.Unlock()
	if co.stopped.Load() {
		return
	}
	co.mu.Lock()
	co.gen++
	dropped := len(co.buffer)
	co.buffer = nil
	co.overflow = false
	co.setPhaseLocked(PhaseCatchingUp)
	co.mu.Unlock()

	if co.registered {
		if err := co.client.live.Deregister(co.ctx, co.pattern); err != nil {
			co.logger.Warn("live deregistration failed", logpkg.Err(err))
		}
		co.registered = false
	}
	co.client.metrics.retries.WithLabelValues(reason).Inc()
	co.logger.Info("handover abandoned; resuming catch-up",
		logpkg.Str("reason", reason),
		logpkg.Int("buffered", dropped),
		logpkg.Uint64("cursor", co.gate.load()))
}

func (co *coordinator) liveHandler(gen uint64) message.DeliverFunc {
	return func(_ string, raw []byte) {
		if co.stopped.Load() {
			return
		}
		m, err := message.Decode(raw)
		if err != nil {
			co.logger.Warn("dropping undecodable live message", logpkg.Err(err))
			return
		}
		if !message.Match(co.pattern, m.Channel) {
			return
		}
		// Live payloads may be shared between receivers.
		m.Body = bytes.Clone(m.Body)

		co.mu.Lock()
		defer co.mu.Unlock()
		if co.stopped.Load() || co.gen != gen {
			return
		}
		switch co.phase {
		case PhaseBuffering:
			if co.overflow {
				return
			}
			if len(co.buffer) >= co.cfg.maxBuffer || co.bufferExpiredLocked() {
				co.overflow = true
				co.buffer = nil
				co.logger.Info("live buffer overflow", logpkg.Int("max", co.cfg.maxBuffer))
				return
			}
			co.buffer = append(co.buffer, m)
		case PhaseDirect, PhaseLive:
			co.client.pass(co, m, pathLive)
		}
	}
}

// sleep waits d and reports false if the subscription stopped meanwhile.
func (co *coordinator) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-co.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// halt reports a store failure and ends the subscription. The cursor is
// kept, so a later Subscribe with Resume continues where delivery stopped.
func (co *coordinator) halt(err error) {
	co.logger.Warn("catch-up halted", logpkg.Err(err), logpkg.Uint64("cursor", co.gate.load()))
	co.reportError(err)
	_ = co.client.retire(context.Background(), co)
}

func (co *coordinator) reportError(err error) {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.stopped.Load() {
		return
	}
	co.delivering.Add(1)
	defer co.delivering.Add(-1)
	co.client.obs.error(co.pattern, err)
}

// stop moves the coordinator to Unsubscribed. After it returns no delivery
// starts and no call into the live channel is made.
//
// Taking mu waits out a delivery in progress. When an observer calls stop
// from inside a delivery, mu is held by its own goroutine, so stop returns
// without that barrier; pass sees stopped and emits nothing further.
func (co *coordinator) stop(ctx context.Context) error {
	first := !co.stopped.Swap(true)
	var err error
	if first {
		co.cancel()
		co.client.metrics.subscriptions.Dec()
	}

	co.liveMu.Lock()
	if co.registered {
		if derr := co.client.live.Deregister(ctx, co.pattern); derr != nil {
			err = liveErr("deregister", co.pattern, derr)
		}
		co.registered = false
	}
	co.liveMu.Unlock()

	if !co.mu.TryLock() {
		if co.delivering.Load() > 0 {
			co.phaseView.Store(int32(PhaseUnsubscribed))
			return err
		}
		co.mu.Lock()
	}
	co.buffer = nil
	co.setPhaseLocked(PhaseUnsubscribed)
	co.mu.Unlock()
	return err
}

func liveErr(op, pattern string, err error) error {
	switch {
	case errors.Is(err, message.ErrLiveChannelUnavailable),
		errors.Is(err, message.ErrInvalidPattern),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %s %q: %w", message.ErrLiveChannelUnavailable, op, pattern, err)
}
