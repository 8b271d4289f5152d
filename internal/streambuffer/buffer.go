package streambuffer

import (
	"fmt"
	"math"

	"github.com/rzbill/vizsync/internal/objects"
	"github.com/rzbill/vizsync/internal/timeslice"
	"github.com/rzbill/vizsync/pkg/log"
)

type policy int

const (
	policyUnbounded policy = iota
	policyOffset
	policyFixed
)

func (p policy) String() string {
	switch p {
	case policyOffset:
		return "offset"
	case policyFixed:
		return "fixed"
	default:
		return "unbounded"
	}
}

// OffsetPolicy keeps a window relative to the current time.
type OffsetPolicy struct {
	// StartOffset must be <= 0.
	StartOffset float64
	// EndOffset must be >= 0.
	EndOffset float64
}

// FixedPolicy seeds an explicit window; equivalent to calling
// UpdateFixedBuffer(Start, End) after New.
type FixedPolicy struct {
	Start float64
	End   float64
}

// Options configures a Buffer. Offset and Fixed are mutually exclusive.
type Options struct {
	Offset *OffsetPolicy
	Fixed  *FixedPolicy
	// MaxLength caps the fixed window length in seconds; zero means uncapped.
	MaxLength float64
	// Objects, when set, observes the ids of inserted timeslices and is pruned
	// together with the buffer.
	Objects *objects.Registry
	Logger  log.Logger
	Metrics MetricsHook
}

// FixedUpdate reports the window before and after UpdateFixedBuffer.
// HadOld is false when no window was set before the call.
type FixedUpdate struct {
	Start    float64
	End      float64
	OldStart float64
	OldEnd   float64
	HadOld   bool
}

// Buffer is a sorted timeslice store.
type Buffer struct {
	policy    policy
	offset    OffsetPolicy
	maxLength float64

	// Desired window; only meaningful when hasRange is set.
	start    float64
	end      float64
	hasRange bool

	timeslices []*timeslice.Timeslice
	seen       map[string]struct{}
	generation uint64

	objects *objects.Registry
	logger  log.Logger
	metrics MetricsHook
}

// New returns an empty buffer. It panics on an invalid policy combination.
func New(opts Options) *Buffer {
	if opts.Offset != nil && opts.Fixed != nil {
		panic("streambuffer: offset and fixed policies are mutually exclusive")
	}
	if opts.MaxLength < 0 || math.IsNaN(opts.MaxLength) {
		panic(fmt.Sprintf("streambuffer: invalid max length %v", opts.MaxLength))
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	b := &Buffer{
		maxLength: opts.MaxLength,
		seen:      map[string]struct{}{},
		objects:   opts.Objects,
		logger:    logger.With(log.Component("streambuffer")),
		metrics:   metrics,
	}
	if o := opts.Offset; o != nil {
		if !(o.StartOffset <= 0 && o.EndOffset >= 0) {
			panic(fmt.Sprintf("streambuffer: invalid offsets [%v, %v]", o.StartOffset, o.EndOffset))
		}
		b.policy = policyOffset
		b.offset = *o
	}
	if f := opts.Fixed; f != nil {
		b.UpdateFixedBuffer(f.Start, f.End)
	}
	return b
}

// Insert adds ts, merging into an existing timeslice with the same
// timestamp. It returns false, leaving the buffer untouched, when the
// timestamp lies outside the active window. The buffer keeps its own copy of
// the timeslice maps; datum values are shared.
func (b *Buffer) Insert(ts *timeslice.Timeslice) bool {
	if ts == nil {
		panic("streambuffer: nil timeslice")
	}
	if !timeslice.IsFinite(ts.Timestamp) {
		panic(fmt.Sprintf("streambuffer: timestamp must be finite, got %v", ts.Timestamp))
	}
	if !b.IsInBufferRange(ts.Timestamp) {
		b.metrics.ObserveReject()
		return false
	}

	for name := range ts.Streams {
		b.seen[name] = struct{}{}
	}
	if b.objects != nil {
		b.objects.ObserveTimeslice(ts)
	}

	i := timeslice.IndexOf(b.timeslices, ts.Timestamp, timeslice.Left)
	merged := i < len(b.timeslices) && b.timeslices[i].Timestamp == ts.Timestamp
	if merged {
		timeslice.Merge(b.timeslices[i], ts)
	} else {
		b.timeslices = append(b.timeslices, nil)
		copy(b.timeslices[i+1:], b.timeslices[i:])
		b.timeslices[i] = timeslice.Clone(ts)
	}
	b.generation++
	b.metrics.ObserveInsert(merged, len(b.timeslices))
	return true
}

// Timeslices returns every buffered timeslice in ascending order.
func (b *Buffer) Timeslices() []*timeslice.Timeslice {
	return append([]*timeslice.Timeslice(nil), b.timeslices...)
}

// TimeslicesBetween returns the timeslices with start <= timestamp <= end in
// ascending order. Infinite bounds are open.
func (b *Buffer) TimeslicesBetween(start, end float64) []*timeslice.Timeslice {
	if math.IsNaN(start) || math.IsNaN(end) {
		panic("streambuffer: NaN range bound")
	}
	if start > end {
		panic(fmt.Sprintf("streambuffer: inverted range [%v, %v]", start, end))
	}
	lo, hi := b.bounds(start, end)
	if lo >= hi {
		return nil
	}
	return append([]*timeslice.Timeslice(nil), b.timeslices[lo:hi]...)
}

// bounds maps an inclusive time range onto [lo, hi) indexes.
func (b *Buffer) bounds(start, end float64) (int, int) {
	lo, hi := 0, len(b.timeslices)
	if !math.IsInf(start, 0) {
		lo = timeslice.IndexOf(b.timeslices, start, timeslice.Left)
	} else if start > 0 {
		lo = hi
	}
	if !math.IsInf(end, 0) {
		hi = timeslice.IndexOf(b.timeslices, end, timeslice.Right)
	} else if end < 0 {
		hi = 0
	}
	return lo, hi
}

// LoadedTimeRange returns the span over which the buffer holds complete
// content. Timeslices may flag missing content classes; the range starts at
// the first timeslice by which every class has been seen, and ends at the
// last timeslice carrying a vehicle pose for which every class has been seen
// going backwards from the newest timeslice.
func (b *Buffer) LoadedTimeRange() (start, end float64, ok bool) {
	n := len(b.timeslices)
	if n == 0 {
		return 0, 0, false
	}

	first := -1
	acc := timeslice.ContentAll
	for i, ts := range b.timeslices {
		acc &= ts.MissingContentFlags
		if acc == 0 {
			first = i
			break
		}
	}
	if first < 0 {
		return 0, 0, false
	}

	last := -1
	acc = timeslice.ContentAll
	for i := n - 1; i >= 0; i-- {
		ts := b.timeslices[i]
		if last < 0 && ts.MissingContentFlags&timeslice.ContentVehiclePose == 0 {
			last = i
		}
		acc &= ts.MissingContentFlags
		if acc == 0 {
			break
		}
	}
	if acc != 0 || last < first {
		return 0, 0, false
	}
	return b.timeslices[first].Timestamp, b.timeslices[last].Timestamp, true
}

// SetCurrentTime moves the offset window to t and evicts what falls out of
// it. It is a no-op for other policies.
func (b *Buffer) SetCurrentTime(t float64) {
	if b.policy != policyOffset {
		return
	}
	if !timeslice.IsFinite(t) {
		panic(fmt.Sprintf("streambuffer: current time must be finite, got %v", t))
	}
	b.start = t + b.offset.StartOffset
	b.end = t + b.offset.EndOffset
	b.hasRange = true
	b.prune()
}

// UpdateFixedBuffer sets the fixed window to [start, end], capped by
// MaxLength, and evicts what falls out of it. It panics when start >= end or
// when the buffer uses the offset policy.
func (b *Buffer) UpdateFixedBuffer(start, end float64) FixedUpdate {
	if !(start < end) {
		panic(fmt.Sprintf("streambuffer: fixed window start %v must be before end %v", start, end))
	}
	if b.policy == policyOffset {
		panic("streambuffer: fixed window on an offset buffer")
	}
	b.policy = policyFixed

	res := FixedUpdate{OldStart: b.start, OldEnd: b.end, HadOld: b.hasRange}
	oldStart, oldEnd, limit := b.start, b.end, b.maxLength
	switch {
	case limit == 0:
		b.start, b.end = start, end
	case !b.hasRange || start > oldEnd+limit || start < oldStart-limit:
		// No overlap with the previous window.
		b.start, b.end = start, math.Min(end, start+limit)
	case start < oldStart:
		b.start, b.end = start, math.Min(oldEnd, start+limit)
	default:
		b.start = math.Min(oldEnd, end-limit)
		b.end = math.Min(b.start+limit, end)
	}
	b.hasRange = true
	b.prune()

	res.Start, res.End = b.start, b.end
	return res
}

// IsInBufferRange reports whether t falls inside the active window. Before a
// window is set, and under the unbounded policy, every time is in range.
func (b *Buffer) IsInBufferRange(t float64) bool {
	if b.policy != policyUnbounded && b.hasRange {
		return t >= b.start && t <= b.end
	}
	return true
}

// HasBuffer reports whether [from, to] is covered by loaded content. An
// empty buffer always reports true.
func (b *Buffer) HasBuffer(from, to float64) bool {
	if len(b.timeslices) == 0 {
		return true
	}
	start, end, ok := b.LoadedTimeRange()
	if !ok {
		return false
	}
	return from >= start && to <= end
}

// BufferRange returns the active window, if one is set.
func (b *Buffer) BufferRange() (start, end float64, ok bool) {
	if b.policy != policyUnbounded && b.hasRange {
		return b.start, b.end, true
	}
	return 0, 0, false
}

// Size returns the number of buffered timeslices.
func (b *Buffer) Size() int { return len(b.timeslices) }

// Generation returns a counter bumped on every insert and eviction.
func (b *Buffer) Generation() uint64 { return b.generation }

// StreamCount returns the number of distinct stream names ever inserted.
func (b *Buffer) StreamCount() int { return len(b.seen) }

// Streams returns, per stream, the ascending entries currently buffered.
// Explicit no-data entries are included with a nil Datum.
func (b *Buffer) Streams() map[string][]timeslice.Entry {
	out := map[string][]timeslice.Entry{}
	for _, ts := range b.timeslices {
		for name, d := range ts.Streams {
			out[name] = append(out[name], timeslice.Entry{Time: ts.Timestamp, Datum: d})
		}
	}
	return out
}

// VehiclePoses returns the poses recorded on stream, in ascending order.
func (b *Buffer) VehiclePoses(stream string) []*timeslice.Pose {
	var out []*timeslice.Pose
	for _, ts := range b.timeslices {
		if d := ts.Streams[stream]; d != nil && d.Pose != nil {
			out = append(out, d.Pose)
		}
	}
	return out
}

// prune drops timeslices outside the active window and the objects that
// only lived there.
func (b *Buffer) prune() {
	if b.objects != nil {
		if n := b.objects.Prune(b.start, b.end); n > 0 {
			b.logger.Debug("objects pruned", log.Int("count", n))
		}
	}
	if len(b.timeslices) == 0 {
		return
	}
	lo := timeslice.IndexOf(b.timeslices, b.start, timeslice.Left)
	hi := timeslice.IndexOf(b.timeslices, b.end, timeslice.Right)
	if lo == 0 && hi == len(b.timeslices) {
		return
	}
	if hi < lo {
		hi = lo
	}
	evicted := len(b.timeslices) - (hi - lo)
	kept := make([]*timeslice.Timeslice, hi-lo)
	copy(kept, b.timeslices[lo:hi])
	b.timeslices = kept
	b.generation++
	b.metrics.ObserveEvict(evicted, len(kept))
	b.logger.Debug("timeslices evicted",
		log.Int("count", evicted),
		log.Str("policy", b.policy.String()),
		log.Float64("start", b.start),
		log.Float64("end", b.end))
}
