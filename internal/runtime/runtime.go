package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	cfgpkg "github.com/rzbill/vizsync/internal/config"
	"github.com/rzbill/vizsync/internal/objects"
	"github.com/rzbill/vizsync/internal/session"
	"github.com/rzbill/vizsync/internal/sessionlog"
	"github.com/rzbill/vizsync/internal/slice"
	pebblestore "github.com/rzbill/vizsync/internal/storage/pebble"
	"github.com/rzbill/vizsync/internal/streambuffer"
	"github.com/rzbill/vizsync/internal/synchronizer"
	"github.com/rzbill/vizsync/pkg/log"
)

// Hooks groups the optional observers handed to every component.
type Hooks struct {
	Storage      pebblestore.MetricsHook
	Buffer       streambuffer.MetricsHook
	Slice        slice.MetricsHook
	Synchronizer synchronizer.MetricsHook
	Trim         sessionlog.TrimHook
}

// Options for building the Runtime. Storage settings come from
// Config.Storage.
type Options struct {
	Config cfgpkg.Config
	Logger log.Logger
	Hooks  Hooks
}

// Runtime wires storage, config, and the replay engine for one data
// directory.
type Runtime struct {
	db     *pebblestore.DB
	config cfgpkg.Config
	logger log.Logger
	hooks  Hooks
}

// Open validates the config, initializes storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	fsync, err := pebblestore.ParseFsyncMode(opts.Config.Storage.Fsync)
	if err != nil {
		return nil, err
	}
	dataDir, err := cfgpkg.ExpandPath(opts.Config.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       dataDir,
		Fsync:         fsync,
		FsyncInterval: time.Duration(opts.Config.Storage.FsyncIntervalMs) * time.Millisecond,
		Metrics:       opts.Hooks.Storage,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("runtime opened", log.Str("data_dir", dataDir), log.Str("fsync", fsync.String()))
	return &Runtime{db: db, config: opts.Config, logger: logger, hooks: opts.Hooks}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// EnsureSession creates a session record if absent.
func (r *Runtime) EnsureSession(name string) (session.Meta, error) {
	return session.Ensure(r.db, name)
}

// Session loads the metadata of an existing session.
func (r *Runtime) Session(name string) (session.Meta, error) {
	return session.Get(r.db, name)
}

// OpenLog opens the timeslice log of an existing session.
func (r *Runtime) OpenLog(name string) (*sessionlog.Log, error) {
	if _, err := session.Get(r.db, name); err != nil {
		return nil, err
	}
	l, err := sessionlog.Open(r.db, name, r.logger)
	if err != nil {
		return nil, err
	}
	if r.hooks.Trim != nil {
		l.SetTrimHook(r.hooks.Trim)
	}
	return l, nil
}

// NewBuffer builds a stream buffer with the configured policy.
func (r *Runtime) NewBuffer(reg *objects.Registry) *streambuffer.Buffer {
	bc := r.config.Buffer
	opts := streambuffer.Options{
		MaxLength: bc.MaxLength,
		Objects:   reg,
		Logger:    r.logger,
		Metrics:   r.hooks.Buffer,
	}
	switch bc.Policy {
	case cfgpkg.PolicyOffset:
		opts.Offset = &streambuffer.OffsetPolicy{StartOffset: bc.StartOffset, EndOffset: bc.EndOffset}
	case cfgpkg.PolicyFixed:
		opts.Fixed = &streambuffer.FixedPolicy{Start: bc.Start, End: bc.End}
	}
	return streambuffer.New(opts)
}

func (r *Runtime) syncOptions(reg *objects.Registry, startTime float64, post slice.PostProcessFunc) synchronizer.Options {
	return synchronizer.Options{
		Config:       r.config,
		StartTime:    startTime,
		Registry:     reg,
		PostProcess:  post,
		Logger:       r.logger,
		Metrics:      r.hooks.Synchronizer,
		SliceMetrics: r.hooks.Slice,
	}
}

// LoadLogSynchronizer reads a whole session into a LogSynchronizer that
// starts at the session's first timeslice. Blacklisted streams are skipped.
func (r *Runtime) LoadLogSynchronizer(ctx context.Context, name string, reg *objects.Registry, post slice.PostProcessFunc) (*synchronizer.LogSynchronizer, error) {
	l, err := r.OpenLog(name)
	if err != nil {
		return nil, err
	}
	logs, err := l.LoadLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("runtime: load session %s: %w", name, err)
	}
	for stream := range logs {
		if r.config.Blacklisted(stream) {
			delete(logs, stream)
		}
	}
	st := l.Stats()
	return synchronizer.NewLogSynchronizer(st.First, logs, r.syncOptions(reg, st.First, post)), nil
}

// NewStreamSynchronizer builds a StreamSynchronizer over buf.
func (r *Runtime) NewStreamSynchronizer(buf *streambuffer.Buffer, reg *objects.Registry, startTime float64, post slice.PostProcessFunc) *synchronizer.StreamSynchronizer {
	return synchronizer.NewStreamSynchronizer(buf, r.syncOptions(reg, startTime, post))
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the runtime logger.
func (r *Runtime) Logger() log.Logger { return r.logger }
