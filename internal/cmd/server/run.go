package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	cfgpkg "github.com/kainosnoema/remq/internal/config"
	"github.com/kainosnoema/remq/internal/eventlog"
	"github.com/kainosnoema/remq/internal/live"
	"github.com/kainosnoema/remq/internal/runtime"
	grpcserver "github.com/kainosnoema/remq/internal/server/grpc"
	httpserver "github.com/kainosnoema/remq/internal/server/http"
	pebblestore "github.com/kainosnoema/remq/internal/storage/pebble"
	logpkg "github.com/kainosnoema/remq/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// Options for Run.
type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
	// Registry collects process metrics. A fresh registry is used when nil.
	Registry *prometheus.Registry
}

// Run opens the store, starts the live fan-out and serves gRPC and HTTP
// until ctx is cancelled or SIGINT/SIGTERM arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	fsync, err := pebblestore.ParseFsyncMode(cfg.Fsync)
	if err != nil {
		return err
	}

	logger := opts.Logger
	if logger == nil {
		logger, err = logpkg.ApplyConfig(&logpkg.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		if err != nil {
			return err
		}
		// Pebble logs through the standard library.
		logpkg.RedirectStdLog(logger)
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	notifier, closeLive, err := openLive(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLive()

	rt, err := runtime.Open(runtime.Options{
		DataDir:       filepath.Join(cfg.DataDir, "store"),
		Fsync:         fsync,
		FsyncInterval: cfg.FsyncInterval(),
		Config:        cfg,
		Notifier:      notifier,
		Logger:        logger,
		Registerer:    reg,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("starting remq server",
		logpkg.Str("namespace", cfg.Namespace),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("grpc", cfg.GRPCAddr),
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("nats", cfg.NATSURL),
		logpkg.Str("fsync", cfg.Fsync),
		logpkg.Uint64("last_id", rt.Log().LastID()),
	)

	gsrv := grpcserver.New(rt, grpcserver.WithLogger(logger))
	hsrv := httpserver.New(rt, logger, reg)

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error { return gsrv.ListenAndServe(gctx, cfg.GRPCAddr) })
	g.Go(func() error { return hsrv.ListenAndServe(gctx, cfg.HTTPAddr) })
	err = g.Wait()

	// Stop serving before the runtime closes the DB.
	gsrv.Close()
	hsrv.Close()
	if err != nil {
		logger.Error("server stopped", logpkg.Err(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

// openLive builds the append notifier selected by cfg.NATSURL. The returned
// func releases the connection and any embedded server.
func openLive(cfg cfgpkg.Config, logger logpkg.Logger) (eventlog.Notifier, func(), error) {
	url := cfg.NATSURL
	if url == "" {
		logger.Warn("no live channel configured; subscribers will poll")
		return nil, func() {}, nil
	}
	shutdown := func() {}
	if url == cfgpkg.EmbeddedNATS {
		ns, err := live.RunEmbeddedNATS(live.EmbeddedOptions{Port: cfg.EmbeddedNATSPort})
		if err != nil {
			return nil, nil, fmt.Errorf("embedded nats: %w", err)
		}
		shutdown = ns.Shutdown
		url = ns.ClientURL()
		logger.Info("embedded nats started", logpkg.Str("url", url))
	}
	n, err := live.ConnectNATS(live.NATSOptions{
		URL:       url,
		Namespace: cfg.Namespace,
		Name:      "remq-server",
		Logger:    logger,
	})
	if err != nil {
		shutdown()
		return nil, nil, err
	}
	return n, func() {
		_ = n.Close()
		shutdown()
	}, nil
}
