// Package serverrun exposes the Run entrypoint used by the CLI to start a
// remq store: the Pebble-backed log served over gRPC, ops HTTP endpoints,
// and NATS fan-out of appends, with shutdown on signal or context.
//
// Example:
//
//	cfg := config.Default()
//	cfg.NATSURL = config.EmbeddedNATS
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
