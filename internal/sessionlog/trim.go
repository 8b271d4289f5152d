package sessionlog

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/vizsync/pkg/log"
)

// TrimBefore deletes records with timestamp < cutoff. Deletes are committed
// in batches of up to batchLimit keys with an optional throttle between
// commits. Returns the number of deleted records.
func (l *Log) TrimBefore(ctx context.Context, cutoff float64, batchLimit int, throttle time.Duration) (int, error) {
	if math.IsNaN(cutoff) {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: KeySlice(l.name, math.Inf(-1)),
		UpperBound: KeySlice(l.name, cutoff),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	return l.trim(ctx, iter, batchLimit, throttle, func([]byte) bool { return true })
}

// TrimToMaxBytes approximates retention by total record bytes, deleting the
// oldest records until the rest fit in maxBytes.
func (l *Log) TrimToMaxBytes(ctx context.Context, maxBytes int64, batchLimit int, throttle time.Duration) (int, error) {
	if maxBytes < 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	iter, err := l.db.NewIter(l.bounds(math.Inf(-1), math.Inf(1)))
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var total int64
	for ok := iter.First(); ok; ok = iter.Next() {
		total += int64(len(iter.Value()))
	}
	if total <= maxBytes {
		return 0, nil
	}
	return l.trim(ctx, iter, batchLimit, throttle, func(val []byte) bool {
		if total <= maxBytes {
			return false
		}
		total -= int64(len(val))
		return true
	})
}

// trim deletes records from the start of iter while more reports true. The
// caller holds l.mu.
func (l *Log) trim(ctx context.Context, iter *pebble.Iterator, batchLimit int, throttle time.Duration, more func(val []byte) bool) (int, error) {
	if batchLimit <= 0 {
		batchLimit = 1024
	}
	deleted := 0
	ok := iter.First() && more(iter.Value())
	for ok {
		b := l.db.NewBatch()
		n := 0
		first, last := math.Inf(1), math.Inf(-1)
		for ok && n < batchLimit {
			t := timeFromKey(iter.Key())
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				return deleted, err
			}
			first, last = math.Min(first, t), math.Max(last, t)
			n++
			ok = iter.Next() && more(iter.Value())
		}

		stats := l.stats
		stats.Count -= n
		if stats.Count <= 0 {
			stats = Stats{}
		} else if ok {
			stats.First = timeFromKey(iter.Key())
		} else if next, err := l.firstAfter(last); err == nil {
			stats.First = next
		}
		if err := l.putStats(b, stats); err != nil {
			b.Close()
			return deleted, err
		}
		if err := l.db.CommitBatch(ctx, b); err != nil {
			b.Close()
			return deleted, err
		}
		b.Close()
		l.stats = stats
		deleted += n
		l.trimHook.TrimmedRange(l.name, first, last, n)
		l.logger.Debug("timeslices trimmed", log.Int("count", n), log.Float64("first", first), log.Float64("last", last))
		if ok && throttle > 0 {
			time.Sleep(throttle)
		}
	}
	return deleted, nil
}

func (l *Log) firstAfter(t float64) (float64, error) {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: append(KeySlice(l.name, t), 0x00),
		UpperBound: append(KeySlice(l.name, math.Inf(1)), 0x00),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.First() {
		return 0, ErrNotFound
	}
	return timeFromKey(iter.Key()), nil
}
