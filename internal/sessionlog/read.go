package sessionlog

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/vizsync/internal/timeslice"
)

// ReadOptions selects records with Start <= timestamp <= End. Use All for an
// unbounded read.
type ReadOptions struct {
	Start   float64
	End     float64
	Limit   int
	Reverse bool
}

// All reads every record in ascending order.
var All = ReadOptions{Start: math.Inf(-1), End: math.Inf(1)}

func (l *Log) bounds(start, end float64) *pebble.IterOptions {
	upper := KeySlice(l.name, end)
	return &pebble.IterOptions{
		LowerBound: KeySlice(l.name, start),
		UpperBound: append(upper, 0x00),
	}
}

// Read returns up to Limit records in [Start, End], ascending unless Reverse.
func (l *Log) Read(opts ReadOptions) ([]*timeslice.Timeslice, error) {
	if math.IsNaN(opts.Start) || math.IsNaN(opts.End) {
		return nil, fmt.Errorf("sessionlog: NaN read bound")
	}
	if opts.Start > opts.End {
		return nil, nil
	}
	iter, err := l.db.NewIter(l.bounds(opts.Start, opts.End))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]*timeslice.Timeslice, 0, max(1, opts.Limit))
	step := iter.Next
	ok := iter.First()
	if opts.Reverse {
		step = iter.Prev
		ok = iter.Last()
	}
	for ; ok && (opts.Limit <= 0 || len(out) < opts.Limit); ok = step() {
		ts, err := DecodeRecord(iter.Value())
		if err != nil {
			return out, fmt.Errorf("sessionlog: record at %v: %w", timeFromKey(iter.Key()), err)
		}
		out = append(out, ts)
	}
	return out, iter.Error()
}

// LoadLogs reads the whole session from a snapshot and splits it into
// ascending per-stream logs. Explicit no-data entries are kept.
func (l *Log) LoadLogs(ctx context.Context) (map[string][]timeslice.Entry, error) {
	snap := l.db.NewSnapshot()
	defer snap.Close()

	iter, err := snap.NewIter(l.bounds(math.Inf(-1), math.Inf(1)))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	logs := map[string][]timeslice.Entry{}
	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		if n++; n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ts, err := DecodeRecord(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("sessionlog: record at %v: %w", timeFromKey(iter.Key()), err)
		}
		names := make([]string, 0, len(ts.Streams))
		for name := range ts.Streams {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			logs[name] = append(logs[name], timeslice.Entry{Time: ts.Timestamp, Datum: ts.Streams[name]})
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return logs, nil
}
