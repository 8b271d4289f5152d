package sessionlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/vizsync/internal/storage/pebble"
	"github.com/rzbill/vizsync/internal/timeslice"
	"github.com/rzbill/vizsync/pkg/log"
)

// ErrNotFound is returned for missing cursors.
var ErrNotFound = errors.New("sessionlog: not found")

// Stats summarizes the records currently stored for a session.
type Stats struct {
	Count int     `json:"count"`
	First float64 `json:"first"`
	Last  float64 `json:"last"`
}

// Log is the persisted timeslice log of one session. It is safe for
// concurrent use.
type Log struct {
	db     *pebblestore.DB
	name   string
	logger log.Logger

	mu       sync.Mutex
	stats    Stats
	notifyCh chan struct{}
	trimHook TrimHook
}

// Open loads the log of the named session, creating nothing until the first
// append.
func Open(db *pebblestore.DB, name string, logger log.Logger) (*Log, error) {
	if name == "" {
		return nil, errors.New("sessionlog: session name is required")
	}
	if logger == nil {
		logger = log.NewLogger()
	}
	l := &Log{
		db:       db,
		name:     name,
		logger:   logger.With(log.Component("sessionlog"), log.Str("session", name)),
		notifyCh: make(chan struct{}),
		trimHook: noopTrimHook{},
	}
	raw, err := db.Get(KeyLogMeta(name))
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &l.stats); err != nil {
			return nil, fmt.Errorf("sessionlog: decode meta of %q: %w", name, err)
		}
	case errors.Is(err, pebblestore.ErrNotFound):
	default:
		return nil, fmt.Errorf("sessionlog: load meta of %q: %w", name, err)
	}
	return l, nil
}

// Name returns the session name.
func (l *Log) Name() string { return l.name }

// Stats returns the record count and time range.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// SetTrimHook installs h; nil restores the no-op hook.
func (l *Log) SetTrimHook(h TrimHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h == nil {
		h = noopTrimHook{}
	}
	l.trimHook = h
}

// Append stores tss as one atomic batch. A timeslice whose timestamp is
// already stored is merged into the stored record, later entries of tss
// winning over earlier ones. Returns the number of new records.
func (l *Log) Append(ctx context.Context, tss []*timeslice.Timeslice) (int, error) {
	if len(tss) == 0 {
		return 0, nil
	}
	for i, ts := range tss {
		if ts == nil {
			return 0, fmt.Errorf("sessionlog: timeslice %d is nil", i)
		}
		if !timeslice.IsFinite(ts.Timestamp) {
			return 0, fmt.Errorf("sessionlog: timeslice %d has non-finite timestamp %v", i, ts.Timestamp)
		}
	}

	// Fold duplicates within the batch first so each key is written once.
	pending := make(map[float64]*timeslice.Timeslice, len(tss))
	order := make([]float64, 0, len(tss))
	for _, ts := range tss {
		if cur, ok := pending[ts.Timestamp]; ok {
			timeslice.Merge(cur, ts)
			continue
		}
		c := timeslice.Clone(ts)
		if c.Timestamp == 0 {
			c.Timestamp = 0 // -0 is stored as 0
		}
		pending[c.Timestamp] = c
		order = append(order, c.Timestamp)
	}
	sort.Float64s(order)

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	stats := l.stats
	added := 0
	for _, t := range order {
		key := KeySlice(l.name, t)
		rec := pending[t]
		raw, err := l.db.Get(key)
		switch {
		case err == nil:
			existing, err := DecodeRecord(raw)
			if err != nil {
				return 0, fmt.Errorf("sessionlog: merge into %v: %w", t, err)
			}
			timeslice.Merge(existing, rec)
			rec = existing
		case errors.Is(err, pebblestore.ErrNotFound):
			if stats.Count == 0 || t < stats.First {
				stats.First = t
			}
			if stats.Count == 0 || t > stats.Last {
				stats.Last = t
			}
			stats.Count++
			added++
		default:
			return 0, fmt.Errorf("sessionlog: read %v: %w", t, err)
		}
		val, err := EncodeRecord(rec)
		if err != nil {
			return 0, err
		}
		if err := b.Set(key, val, nil); err != nil {
			return 0, err
		}
	}
	if err := l.putStats(b, stats); err != nil {
		return 0, err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return 0, fmt.Errorf("sessionlog: commit append: %w", err)
	}
	l.stats = stats
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	l.logger.Debug("timeslices appended", log.Int("records", len(order)), log.Int("new", added))
	return added, nil
}

func (l *Log) putStats(b *pebble.Batch, stats Stats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return b.Set(KeyLogMeta(l.name), raw, nil)
}
