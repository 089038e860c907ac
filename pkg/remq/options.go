package remq

import (
	"fmt"
	"time"

	logpkg "github.com/kainosnoema/remq/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Defaults applied when options are left zero.
const (
	DefaultPageLimit     = 1000
	DefaultPollInterval  = time.Second
	DefaultMaxBuffer     = 10000
	DefaultBufferTimeout = 30 * time.Second
	DefaultConsumeLimit  = 4000
)

// Options configures a Client.
type Options struct {
	// ID names the client in logs and metrics. Defaults to a random UUID.
	ID     string
	Logger logpkg.Logger
	// Registerer receives the client's collectors, labelled with the client
	// id. Nil disables registration.
	Registerer prometheus.Registerer
	// Subscribe holds defaults for zero fields of SubscribeOptions.
	Subscribe SubscribeOptions
	// ConsumeLimit is the default Consume limit.
	ConsumeLimit int
}

// SubscribeOptions controls where a subscription starts and how it pages.
type SubscribeOptions struct {
	// From starts catch-up after this id; FromID(0) replays everything. Nil
	// subscribes live only.
	From *uint64
	// Resume starts catch-up from the cursor this client last recorded for
	// the pattern. Exclusive with From.
	Resume bool

	PageLimit    int
	PollInterval time.Duration
	// MaxBuffer and BufferTimeout cap live messages held during handover.
	// Exceeding either abandons the handover and resumes paging.
	MaxBuffer     int
	BufferTimeout time.Duration

	// Filter is an optional CEL expression over channel, id, text, json and
	// size. Messages it rejects are skipped but still advance the cursor.
	Filter string
}

// FromID returns a From value starting after id.
func FromID(id uint64) *uint64 { return &id }

// ConsumeOptions bounds a one-shot historical read.
type ConsumeOptions struct {
	// After is an exclusive lower bound on ids.
	After uint64
	Limit int
}

type subscribeConfig struct {
	pageLimit     int
	pollInterval  time.Duration
	maxBuffer     int
	bufferTimeout time.Duration
	filter        string
}

func resolveSubscribe(o, d SubscribeOptions) (subscribeConfig, error) {
	if o.From != nil && o.Resume {
		return subscribeConfig{}, fmt.Errorf("%w: From and Resume are exclusive", ErrInvalidCursor)
	}
	if o.PageLimit < 0 || o.MaxBuffer < 0 || o.PollInterval < 0 || o.BufferTimeout < 0 {
		return subscribeConfig{}, fmt.Errorf("%w: negative subscribe limit", ErrInvalidCursor)
	}
	cfg := subscribeConfig{
		pageLimit:     firstPositive(o.PageLimit, d.PageLimit, DefaultPageLimit),
		pollInterval:  firstDuration(o.PollInterval, d.PollInterval, DefaultPollInterval),
		maxBuffer:     firstPositive(o.MaxBuffer, d.MaxBuffer, DefaultMaxBuffer),
		bufferTimeout: firstDuration(o.BufferTimeout, d.BufferTimeout, DefaultBufferTimeout),
		filter:        o.Filter,
	}
	if cfg.filter == "" {
		cfg.filter = d.Filter
	}
	return cfg, nil
}

func firstPositive(vs ...int) int {
	for _, v := range vs {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstDuration(vs ...time.Duration) time.Duration {
	for _, v := range vs {
		if v > 0 {
			return v
		}
	}
	return 0
}
