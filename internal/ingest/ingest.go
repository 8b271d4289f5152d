// Package ingest feeds JSON-encoded timeslices into a session.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rzbill/vizsync/internal/session"
	"github.com/rzbill/vizsync/internal/sessionlog"
	pebblestore "github.com/rzbill/vizsync/internal/storage/pebble"
	"github.com/rzbill/vizsync/internal/timeslice"
	"github.com/rzbill/vizsync/pkg/log"
)

// Options configures an Importer.
type Options struct {
	// BatchSize is the number of timeslices per append; defaults to 512.
	BatchSize int
	// Blacklisted reports streams to drop. Nil keeps everything.
	Blacklisted func(stream string) bool
	Logger      log.Logger
}

// Result summarizes an import.
type Result struct {
	Timeslices     int `json:"timeslices"`
	NewRecords     int `json:"newRecords"`
	Batches        int `json:"batches"`
	DroppedStreams int `json:"droppedStreams"`
}

// Importer appends decoded timeslices to one session log and keeps the
// session metadata current.
type Importer struct {
	db     *pebblestore.DB
	log    *sessionlog.Log
	opts   Options
	logger log.Logger
}

// New returns an Importer writing to l. The session must exist.
func New(db *pebblestore.DB, l *sessionlog.Log, opts Options) *Importer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 512
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Importer{
		db:     db,
		log:    l,
		opts:   opts,
		logger: logger.With(log.Component("ingest"), log.Str("session", l.Name())),
	}
}

// Import decodes a stream of JSON timeslices from r until EOF or ctx is
// done. Whatever was decoded before an error or cancellation is still stored.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Result, error) {
	var res Result
	// Batches already decoded are committed even after ctx is done.
	flushCtx := context.WithoutCancel(ctx)
	dec := json.NewDecoder(r)
	batch := make([]*timeslice.Timeslice, 0, im.opts.BatchSize)
	for {
		if err := ctx.Err(); err != nil {
			return res, errors.Join(err, im.flush(flushCtx, batch, &res))
		}
		ts := &timeslice.Timeslice{}
		err := dec.Decode(ts)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			ferr := im.flush(flushCtx, batch, &res)
			return res, errors.Join(fmt.Errorf("ingest: decode at offset %d: %w", dec.InputOffset(), err), ferr)
		}
		res.DroppedStreams += im.dropBlacklisted(ts)
		batch = append(batch, ts)
		if len(batch) == im.opts.BatchSize {
			if err := im.flush(flushCtx, batch, &res); err != nil {
				return res, err
			}
			batch = batch[:0]
		}
	}
	if err := im.flush(flushCtx, batch, &res); err != nil {
		return res, err
	}
	im.logger.Info("import finished",
		log.Int("timeslices", res.Timeslices),
		log.Int("new_records", res.NewRecords),
		log.Int("dropped_streams", res.DroppedStreams))
	return res, nil
}

func (im *Importer) dropBlacklisted(ts *timeslice.Timeslice) int {
	if im.opts.Blacklisted == nil {
		return 0
	}
	n := 0
	for name := range ts.Streams {
		if im.opts.Blacklisted(name) {
			delete(ts.Streams, name)
			n++
		}
	}
	for name := range ts.Links {
		if im.opts.Blacklisted(name) {
			delete(ts.Links, name)
		}
	}
	return n
}

func (im *Importer) flush(ctx context.Context, batch []*timeslice.Timeslice, res *Result) error {
	if len(batch) == 0 {
		return nil
	}
	added, err := im.log.Append(ctx, batch)
	if err != nil {
		return err
	}
	if _, err := session.Update(im.db, im.log.Name(), func(m *session.Meta) error {
		for _, ts := range batch {
			m.Observe(ts)
		}
		st := im.log.Stats()
		m.Timeslices, m.StartTime, m.EndTime = st.Count, st.First, st.Last
		return nil
	}); err != nil {
		return err
	}
	res.Timeslices += len(batch)
	res.NewRecords += added
	res.Batches++
	im.logger.Debug("batch imported", log.Int("timeslices", len(batch)), log.Int("new", added))
	return nil
}
