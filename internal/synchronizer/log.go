package synchronizer

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/rzbill/vizsync/internal/timeslice"
)

type cursor struct {
	pos  int
	time float64
}

type streamLog struct {
	name string
	data []timeslice.Entry
	// cur serves window queries, hiRes serves pose lookups so the two do
	// not reset each other.
	cur   cursor
	hiRes cursor
}

// lookup returns the index of the entry with the greatest time in
// (start, end], or -1.
func (l *streamLog) lookup(c *cursor, start, end float64) int {
	if end < c.time {
		c.pos, c.time = 0, l.data[0].Time
	}
	found := -1
	for i := c.pos; i < len(l.data) && l.data[i].Time <= end; i++ {
		if l.data[i].Time > start {
			found = i
		}
	}
	if found >= 0 {
		c.pos, c.time = found, l.data[found].Time
	}
	return found
}

// LogSynchronizer synchronizes fixed, pre-loaded per-stream logs.
type LogSynchronizer struct {
	base
	logs   []*streamLog
	byName map[string]*streamLog
	digest *xxhash.Digest
}

// NewLogSynchronizer returns a synchronizer over logs. Every log must be
// non-empty with finite, ascending times.
func NewLogSynchronizer(startTime float64, logs map[string][]timeslice.Entry, opts Options) *LogSynchronizer {
	s := &LogSynchronizer{byName: make(map[string]*streamLog, len(logs)), digest: xxhash.New()}
	for name, data := range logs {
		if len(data) == 0 {
			panic(fmt.Sprintf("synchronizer: log %q is empty", name))
		}
		for i, e := range data {
			if !timeslice.IsFinite(e.Time) {
				panic(fmt.Sprintf("synchronizer: log %q entry %d has non-finite time", name, i))
			}
			if i > 0 && e.Time < data[i-1].Time {
				panic(fmt.Sprintf("synchronizer: log %q is not sorted at entry %d", name, i))
			}
			if opts.Registry != nil && e.Datum != nil {
				opts.Registry.ObserveTimeslice(&timeslice.Timeslice{
					Timestamp: e.Time,
					Streams:   map[string]*timeslice.Datum{name: e.Datum},
				})
			}
		}
		l := &streamLog{name: name, data: data}
		l.cur.time, l.hiRes.time = data[0].Time, data[0].Time
		s.logs = append(s.logs, l)
		s.byName[name] = l
	}
	sort.Slice(s.logs, func(i, j int) bool { return s.logs[i].name < s.logs[j].name })
	s.base = newBase(startTime, s, opts, "log-synchronizer")
	return s
}

func (s *LogSynchronizer) empty() bool { return len(s.logs) == 0 }

type hit struct {
	log *streamLog
	idx int
}

func (s *LogSynchronizer) recordsInReverse(start, end float64) ([]*timeslice.Timeslice, uint64) {
	var hits []hit
	s.digest.Reset()
	var buf [8]byte
	for _, l := range s.logs {
		idx := l.lookup(&l.cur, start, end)
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(idx)))
		_, _ = s.digest.Write(buf[:])
		if idx >= 0 {
			hits = append(hits, hit{log: l, idx: idx})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].log.data[hits[i].idx].Time > hits[j].log.data[hits[j].idx].Time
	})
	records := make([]*timeslice.Timeslice, len(hits))
	for i, h := range hits {
		e := h.log.data[h.idx]
		records[i] = &timeslice.Timeslice{
			Timestamp: e.Time,
			Streams:   map[string]*timeslice.Datum{h.log.name: e.Datum},
		}
	}
	return records, s.digest.Sum64()
}

// HiResDatum returns the latest datum of stream in
// (hiRes-HiResPoseWindow, hiRes], or nil.
func (s *LogSynchronizer) HiResDatum(stream string) *timeslice.Datum {
	l := s.byName[stream]
	if l == nil {
		return nil
	}
	idx := l.lookup(&l.hiRes, s.hiResTime-s.cfg.HiResPoseWindow, s.hiResTime)
	if idx < 0 {
		return nil
	}
	return l.data[idx].Datum
}

func (s *LogSynchronizer) hiResPose() *timeslice.Pose {
	if d := s.HiResDatum(s.cfg.PrimaryPoseStream); d != nil {
		return d.Pose
	}
	return nil
}
