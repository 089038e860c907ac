package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	cfgpkg "github.com/kainosnoema/remq/internal/config"
	"github.com/kainosnoema/remq/internal/eventlog"
	"github.com/kainosnoema/remq/internal/namespace"
	pebblestore "github.com/kainosnoema/remq/internal/storage/pebble"
	logpkg "github.com/kainosnoema/remq/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// Notifier receives every committed append, typically a live channel
	// publisher.
	Notifier eventlog.Notifier
	Logger   logpkg.Logger
	// Registerer receives storage and prune collectors when set.
	Registerer prometheus.Registerer
}

// Runtime wires storage, namespace and the persisted log for a single-node
// instance.
type Runtime struct {
	db     *pebblestore.DB
	config cfgpkg.Config
	meta   namespace.Meta
	log    *eventlog.Log
	logger logpkg.Logger
	pruned prometheus.Counter
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg.Namespace == "" {
		cfg.Namespace = cfgpkg.Default().Namespace
	}
	if cfg.NamespaceNameRegex == "" {
		cfg.NamespaceNameRegex = cfgpkg.Default().NamespaceNameRegex
	}
	v, err := namespace.NewValidator(cfg.NamespaceNameRegex)
	if err != nil {
		return nil, err
	}
	if err := v.Validate(cfg.Namespace); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}

	var metrics pebblestore.MetricsHook
	if opts.Registerer != nil {
		metrics = pebblestore.NewPromMetrics(opts.Registerer)
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		db:     db,
		config: cfg,
		logger: logger.With(logpkg.Component("runtime"), logpkg.Str("namespace", cfg.Namespace)),
		pruned: promauto.With(opts.Registerer).NewCounter(prometheus.CounterOpts{
			Name: "remq_store_pruned_total",
			Help: "Messages removed by prune",
		}),
	}
	rt.meta, err = namespace.EnsureNamespace(db, cfg.Namespace)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("runtime: namespace %s: %w", cfg.Namespace, err)
	}
	rt.log, err = eventlog.OpenLog(db, cfg.Namespace,
		eventlog.WithNotifier(opts.Notifier),
		eventlog.WithPruneHook(rt),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return rt, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth verifies the store still serves reads.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.db == nil || r.db.Closed() {
		return errors.New("db not open")
	}
	_, err := r.db.Get(eventlog.KeyLogMeta(r.meta.Name))
	if err != nil && !errors.Is(err, pebblestore.ErrNotFound) {
		return err
	}
	return nil
}

// EmitPruneRange records a committed prune batch.
func (r *Runtime) EmitPruneRange(ns string, minID, maxID uint64, count int) {
	r.pruned.Add(float64(count))
	r.logger.Info("pruned messages",
		logpkg.Str("ns", ns),
		logpkg.Uint64("min_id", minID),
		logpkg.Uint64("max_id", maxID),
		logpkg.Int("count", count))
}

// Log returns the namespace's persisted log.
func (r *Runtime) Log() *eventlog.Log { return r.log }

// Namespace returns the namespace record.
func (r *Runtime) Namespace() namespace.Meta { return r.meta }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
