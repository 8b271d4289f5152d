package streambuffer

import (
	"math"
	"testing"

	"github.com/rzbill/vizsync/internal/objects"
	"github.com/rzbill/vizsync/internal/timeslice"
)

func val(v float64) *timeslice.Datum {
	return &timeslice.Datum{Variable: &timeslice.Variable{Values: []float64{v}}}
}

func valueOf(d *timeslice.Datum) float64 {
	if d == nil || d.Variable == nil {
		return math.NaN()
	}
	return d.Variable.Values[0]
}

// testTimeslices mirrors a typical out-of-order feed with one duplicate
// timestamp (1001).
func testTimeslices() []*timeslice.Timeslice {
	mk := func(t float64, streams map[string]float64) *timeslice.Timeslice {
		ts := &timeslice.Timeslice{Timestamp: t, Streams: map[string]*timeslice.Datum{}}
		for k, v := range streams {
			ts.Streams[k] = val(v)
		}
		return ts
	}
	return []*timeslice.Timeslice{
		mk(1002, map[string]float64{"A": 2, "B": 0}),
		mk(1001, map[string]float64{"A": 1, "C": 1}),
		mk(1005, map[string]float64{"A": 5}),
		mk(1003, map[string]float64{"A": 3}),
		mk(1004, map[string]float64{"A": 4, "B": -1}),
		mk(1001, map[string]float64{"A": 1.1}),
	}
}

func fill(t *testing.T, b *Buffer, slices []*timeslice.Timeslice) {
	t.Helper()
	for _, ts := range slices {
		if !b.Insert(ts) {
			t.Fatalf("insert %v rejected", ts.Timestamp)
		}
	}
}

func TestInsertKeepsOrderAndMerges(t *testing.T) {
	b := New(Options{})
	gen := b.Generation()
	for _, ts := range testTimeslices() {
		if !b.Insert(ts) {
			t.Fatalf("insert %v rejected", ts.Timestamp)
		}
		if b.Generation() == gen {
			t.Fatalf("generation unchanged after insert of %v", ts.Timestamp)
		}
		gen = b.Generation()
		all := b.Timeslices()
		for i := 1; i < len(all); i++ {
			if all[i-1].Timestamp >= all[i].Timestamp {
				t.Fatalf("not strictly ascending at %d: %v >= %v", i, all[i-1].Timestamp, all[i].Timestamp)
			}
		}
	}
	if b.Size() != 5 {
		t.Fatalf("size: got %d want 5", b.Size())
	}
	ts := b.TimeslicesBetween(1001, 1001)
	if len(ts) != 1 {
		t.Fatalf("expected one timeslice at 1001, got %d", len(ts))
	}
	if got := valueOf(ts[0].Streams["A"]); got != 1.1 {
		t.Fatalf("A@1001: got %v want 1.1", got)
	}
	if got := valueOf(ts[0].Streams["C"]); got != 1 {
		t.Fatalf("C@1001: got %v want 1", got)
	}
	if b.StreamCount() != 3 {
		t.Fatalf("stream count: got %d", b.StreamCount())
	}

	streams := b.Streams()
	wantA := []float64{1.1, 2, 3, 4, 5}
	if len(streams["A"]) != len(wantA) {
		t.Fatalf("stream A: got %d entries", len(streams["A"]))
	}
	for i, e := range streams["A"] {
		if valueOf(e.Datum) != wantA[i] {
			t.Fatalf("stream A[%d]: got %v want %v", i, valueOf(e.Datum), wantA[i])
		}
	}
	if len(streams["B"]) != 2 || len(streams["C"]) != 1 {
		t.Fatalf("streams B/C: got %d/%d", len(streams["B"]), len(streams["C"]))
	}
}

func TestInsertDoesNotMutateCallerTimeslice(t *testing.T) {
	b := New(Options{})
	first := &timeslice.Timeslice{Timestamp: 1, Streams: map[string]*timeslice.Datum{"A": val(1)}}
	b.Insert(first)
	b.Insert(&timeslice.Timeslice{Timestamp: 1, Streams: map[string]*timeslice.Datum{"B": val(2)}})
	if len(first.Streams) != 1 {
		t.Fatalf("caller timeslice was mutated: %v", first.Streams)
	}
}

func TestMergeANDsMissingFlags(t *testing.T) {
	b := New(Options{})
	b.Insert(&timeslice.Timeslice{Timestamp: 1, MissingContentFlags: timeslice.ContentVehiclePose})
	b.Insert(&timeslice.Timeslice{Timestamp: 1, MissingContentFlags: timeslice.ContentStreams})
	if got := b.Timeslices()[0].MissingContentFlags; got != 0 {
		t.Fatalf("flags: got %v want 0", got)
	}
}

func TestTimeslicesBetween(t *testing.T) {
	b := New(Options{})
	fill(t, b, testTimeslices()[:5])

	cases := []struct {
		start, end float64
		want       int
	}{
		{800, 900, 0},
		{1000, 2000, 5},
		{1000, 1004, 4},
		{1006, 2000, 0},
		{1002, 1002, 1},
		{math.Inf(-1), math.Inf(1), 5},
		{math.Inf(-1), 1002, 2},
		{1004, math.Inf(1), 2},
	}
	for _, c := range cases {
		if got := len(b.TimeslicesBetween(c.start, c.end)); got != c.want {
			t.Fatalf("[%v, %v]: got %d want %d", c.start, c.end, got, c.want)
		}
	}
	if len(b.Timeslices()) != 5 {
		t.Fatalf("Timeslices: got %d", len(b.Timeslices()))
	}
}

func TestSetCurrentTimeEvicts(t *testing.T) {
	unbounded := New(Options{})
	fill(t, unbounded, testTimeslices()[:5])
	gen := unbounded.Generation()
	unbounded.SetCurrentTime(1002)
	if unbounded.Size() != 5 || unbounded.Generation() != gen {
		t.Fatalf("unbounded buffer should ignore SetCurrentTime")
	}

	b := New(Options{Offset: &OffsetPolicy{StartOffset: -2, EndOffset: 2}})
	fill(t, b, testTimeslices()[:5])
	if b.Size() != 5 {
		t.Fatalf("nothing should be dropped before the current time is set")
	}
	gen = b.Generation()
	b.SetCurrentTime(1002)
	if b.Size() != 4 {
		t.Fatalf("size: got %d want 4", b.Size())
	}
	start, end, ok := b.LoadedTimeRange()
	if !ok || start != 1001 || end != 1004 {
		t.Fatalf("loaded range: got (%v, %v, %v)", start, end, ok)
	}
	if b.Generation() == gen {
		t.Fatalf("generation should change on eviction")
	}
	if b.Insert(&timeslice.Timeslice{Timestamp: 1005}) {
		t.Fatalf("insert outside the window should be rejected")
	}
	if b.Size() != 4 {
		t.Fatalf("rejected insert mutated the buffer")
	}
	if s, e, ok := b.BufferRange(); !ok || s != 1000 || e != 1004 {
		t.Fatalf("buffer range: got (%v, %v, %v)", s, e, ok)
	}
}

func TestHasBuffer(t *testing.T) {
	b := New(Options{})
	if !b.HasBuffer(0, 1) {
		t.Fatalf("empty buffer should report true")
	}
	fill(t, b, testTimeslices())
	if !b.HasBuffer(1001, 1005) {
		t.Fatalf("range covered by timeslices should report true")
	}
	if b.HasBuffer(1000, 1005) {
		t.Fatalf("range starting before the loaded data should report false")
	}
}

func TestUpdateFixedBufferContraction(t *testing.T) {
	b := New(Options{})
	b.UpdateFixedBuffer(1000, 1010)
	fill(t, b, testTimeslices())
	res := b.UpdateFixedBuffer(1002, 1003)
	if res.Start != 1002 || res.End != 1003 {
		t.Fatalf("new window: got [%v, %v]", res.Start, res.End)
	}
	if !res.HadOld || res.OldStart != 1000 || res.OldEnd != 1010 {
		t.Fatalf("old window: got %+v", res)
	}
	if !b.HasBuffer(1002, 1003) {
		t.Fatalf("new range should be buffered")
	}
	if b.HasBuffer(1001, 1004) {
		t.Fatalf("evicted range should not be buffered")
	}
	if b.Size() != 2 {
		t.Fatalf("size: got %d want 2", b.Size())
	}
}

func TestUpdateFixedBufferRules(t *testing.T) {
	cases := []struct {
		name      string
		maxLength float64
		first     [2]float64
		second    [2]float64
		want      [2]float64
	}{
		{"uncapped expansion", 0, [2]float64{1002, 1004}, [2]float64{1000, 1010}, [2]float64{1000, 1010}},
		{"small forward slide", 30, [2]float64{990, 1004}, [2]float64{1008, 1030}, [2]float64{1000, 1030}},
		{"large forward jump", 30, [2]float64{1000, 1004}, [2]float64{1050, 1090}, [2]float64{1050, 1080}},
		{"large backward jump", 30, [2]float64{1000, 1010}, [2]float64{900, 920}, [2]float64{900, 920}},
		{"small backward slide", 30, [2]float64{1000, 1020}, [2]float64{990, 1040}, [2]float64{990, 1020}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := New(Options{MaxLength: c.maxLength})
			first := b.UpdateFixedBuffer(c.first[0], c.first[1])
			if first.HadOld {
				t.Fatalf("first update should report no previous window")
			}
			res := b.UpdateFixedBuffer(c.second[0], c.second[1])
			if res.Start != c.want[0] || res.End != c.want[1] {
				t.Fatalf("got [%v, %v] want %v", res.Start, res.End, c.want)
			}
			if res.OldStart != first.Start || res.OldEnd != first.End {
				t.Fatalf("old window: got [%v, %v] want [%v, %v]", res.OldStart, res.OldEnd, first.Start, first.End)
			}
		})
	}
}

func TestFixedPolicyOption(t *testing.T) {
	b := New(Options{Fixed: &FixedPolicy{Start: 10, End: 20}})
	if b.Insert(&timeslice.Timeslice{Timestamp: 9}) {
		t.Fatalf("insert before window should be rejected")
	}
	if !b.Insert(&timeslice.Timeslice{Timestamp: 20}) {
		t.Fatalf("window end is inclusive")
	}
}

func TestLoadedTimeRangePartialTimeslices(t *testing.T) {
	const (
		v = timeslice.ContentVehiclePose
		x = timeslice.ContentStreams
	)
	partial := []*timeslice.Timeslice{
		{Timestamp: 1000.0, MissingContentFlags: v},
		{Timestamp: 1000.04, MissingContentFlags: x},
		{Timestamp: 1000.1, MissingContentFlags: v},
		{Timestamp: 1000.14, MissingContentFlags: x},
		{Timestamp: 1000.2, MissingContentFlags: v},
		{Timestamp: 1000.24, MissingContentFlags: x},
		{Timestamp: 1000.3, MissingContentFlags: v},
		{Timestamp: 1000.34, MissingContentFlags: x},
	}
	want := []struct {
		ok         bool
		start, end float64
	}{
		{false, 0, 0},
		{true, 1000.04, 1000.04},
		{true, 1000.04, 1000.04},
		{true, 1000.04, 1000.14},
		{true, 1000.04, 1000.14},
		{true, 1000.04, 1000.24},
		{true, 1000.04, 1000.24},
		{true, 1000.04, 1000.34},
	}
	for i := range partial {
		b := New(Options{})
		fill(t, b, partial[:i+1])
		start, end, ok := b.LoadedTimeRange()
		if ok != want[i].ok || start != want[i].start || end != want[i].end {
			t.Fatalf("case %d: got (%v, %v, %v) want %+v", i, start, end, ok, want[i])
		}
	}

	empty := New(Options{})
	if _, _, ok := empty.LoadedTimeRange(); ok {
		t.Fatalf("empty buffer has no loaded range")
	}
}

func TestPruneAlsoPrunesObjects(t *testing.T) {
	reg := objects.New()
	b := New(Options{Offset: &OffsetPolicy{StartOffset: -1, EndOffset: 1}, Objects: reg})
	for i, id := range []string{"A", "B", "C"} {
		b.Insert(&timeslice.Timeslice{
			Timestamp: 1000 + float64(i),
			Streams: map[string]*timeslice.Datum{
				"/objects": {Features: []timeslice.Feature{{ID: id, Type: "point"}}},
			},
		})
	}
	if reg.Count() != 3 {
		t.Fatalf("inserts should observe object ids, got %d", reg.Count())
	}
	b.SetCurrentTime(1003)
	if reg.Get("A") != nil || reg.Get("C") == nil {
		t.Fatalf("prune should drop A and keep C: %v", reg.GetAll())
	}
}

func TestVehiclePoses(t *testing.T) {
	b := New(Options{})
	b.Insert(&timeslice.Timeslice{Timestamp: 2, Streams: map[string]*timeslice.Datum{"/vehicle_pose": {Pose: &timeslice.Pose{X: 2}}}})
	b.Insert(&timeslice.Timeslice{Timestamp: 1, Streams: map[string]*timeslice.Datum{"/vehicle_pose": {Pose: &timeslice.Pose{X: 1}}}})
	b.Insert(&timeslice.Timeslice{Timestamp: 3, Streams: map[string]*timeslice.Datum{"/other": val(0)}})
	poses := b.VehiclePoses("/vehicle_pose")
	if len(poses) != 2 || poses[0].X != 1 || poses[1].X != 2 {
		t.Fatalf("poses: got %+v", poses)
	}
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestContractViolationsPanic(t *testing.T) {
	mustPanic(t, "both policies", func() {
		New(Options{Offset: &OffsetPolicy{StartOffset: -1, EndOffset: 1}, Fixed: &FixedPolicy{Start: 0, End: 1}})
	})
	mustPanic(t, "positive start offset", func() {
		New(Options{Offset: &OffsetPolicy{StartOffset: 1, EndOffset: 5}})
	})
	mustPanic(t, "fixed on offset buffer", func() {
		New(Options{Offset: &OffsetPolicy{StartOffset: -1, EndOffset: 1}}).UpdateFixedBuffer(0, 1)
	})
	mustPanic(t, "fixed start >= end", func() {
		New(Options{}).UpdateFixedBuffer(5, 5)
	})
	mustPanic(t, "NaN insert", func() {
		New(Options{}).Insert(&timeslice.Timeslice{Timestamp: math.NaN()})
	})
	mustPanic(t, "infinite insert", func() {
		New(Options{}).Insert(&timeslice.Timeslice{Timestamp: math.Inf(1)})
	})
	mustPanic(t, "inverted range", func() {
		New(Options{}).TimeslicesBetween(2, 1)
	})
	mustPanic(t, "NaN range", func() {
		New(Options{}).TimeslicesBetween(math.NaN(), 1)
	})
}
