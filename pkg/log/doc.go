// Package log provides vizsync's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Records are routed through slog via a
// bridge handler that feeds our formatter and outputs, so the slog ecosystem
// stays available while output stays consistent across the codebase.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("streambuffer"))
//	l.Info("timeslices evicted", log.Int("count", 12))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config (level, text or
// JSON format, console/file/null outputs, redacted keys and sampling).
//
// # Interop
//
// RedirectStdLog routes the standard library logger (used by Pebble) through a
// Logger; ToStdLogger wraps a Logger as a *log.Logger.
package log
