// Package log provides remq's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Internally it is backed by log/slog via
// a bridge handler that routes records through a Formatter and one or more
// Outputs, so slog-aware code and the facade produce identical lines.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("coordinator"), log.Str("pattern", "events.*"))
//	l.Info("phase changed", log.Str("phase", "live"))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config (level and text/json
// format). RedirectStdLog routes the standard library logger, used by Pebble
// and NATS internals, through a facade Logger.
package log
