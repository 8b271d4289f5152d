package sessionlog

import (
	"context"
	"math"
	"testing"
	"time"

	pebblestore "github.com/rzbill/vizsync/internal/storage/pebble"
	"github.com/rzbill/vizsync/internal/timeslice"
	"github.com/rzbill/vizsync/pkg/log"
)

func openTestDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	return db
}

func newTestLog(t *testing.T) *Log {
	t.Helper()
	db := openTestDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	l, err := Open(db, "drive", log.NewLogger(log.WithOutput(&log.NullOutput{})))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	return l
}

func slice(ts float64, streams ...string) *timeslice.Timeslice {
	out := &timeslice.Timeslice{Timestamp: ts, Streams: map[string]*timeslice.Datum{}}
	for _, s := range streams {
		out.Streams[s] = &timeslice.Datum{Variable: &timeslice.Variable{Values: []float64{ts}}}
	}
	return out
}

func times(tss []*timeslice.Timeslice) []float64 {
	out := make([]float64, len(tss))
	for i, ts := range tss {
		out[i] = ts.Timestamp
	}
	return out
}

func equalTimes(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAppendMergesSameTimestamp(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	n, err := l.Append(ctx, []*timeslice.Timeslice{slice(2, "a"), slice(1, "a"), slice(2, "b")})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 new records, got %d", n)
	}
	n, err = l.Append(ctx, []*timeslice.Timeslice{slice(1, "c")})
	if err != nil || n != 0 {
		t.Fatalf("merge append: n=%d err=%v", n, err)
	}

	got, err := l.Read(All)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !equalTimes(times(got), []float64{1, 2}) {
		t.Fatalf("times: %v", times(got))
	}
	if len(got[0].Streams) != 2 || got[0].Streams["a"] == nil || got[0].Streams["c"] == nil {
		t.Fatalf("record 1 not merged: %+v", got[0].Streams)
	}
	if len(got[1].Streams) != 2 {
		t.Fatalf("in-batch duplicates not merged: %+v", got[1].Streams)
	}
	if st := l.Stats(); st.Count != 2 || st.First != 1 || st.Last != 2 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestAppendMergesSignedZeroAcrossBatches(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	if _, err := l.Append(ctx, []*timeslice.Timeslice{slice(0, "a")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	n, err := l.Append(ctx, []*timeslice.Timeslice{slice(math.Copysign(0, -1), "b")})
	if err != nil {
		t.Fatalf("append -0: %v", err)
	}
	if n != 0 {
		t.Fatalf("-0 should merge into the record at 0, got %d new", n)
	}
	if st := l.Stats(); st.Count != 1 {
		t.Fatalf("stats: %+v", st)
	}
	got, err := l.Read(All)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 || len(got[0].Streams) != 2 {
		t.Fatalf("want one merged record, got %d", len(got))
	}
}

func TestAppendMergeAndsFlags(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	a := slice(1, "a")
	a.MissingContentFlags = timeslice.ContentAll
	b := slice(1, "b")
	b.MissingContentFlags = timeslice.ContentStreams
	if _, err := l.Append(ctx, []*timeslice.Timeslice{a}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.Append(ctx, []*timeslice.Timeslice{b}); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _ := l.Read(All)
	if got[0].MissingContentFlags != timeslice.ContentStreams {
		t.Fatalf("flags: %v", got[0].MissingContentFlags)
	}
}

func TestAppendRejectsNonFinite(t *testing.T) {
	l := newTestLog(t)
	for _, ts := range []float64{math.NaN(), math.Inf(1)} {
		if _, err := l.Append(context.Background(), []*timeslice.Timeslice{slice(1, "a"), slice(ts, "a")}); err == nil {
			t.Fatalf("expected error for %v", ts)
		}
	}
	if st := l.Stats(); st.Count != 0 {
		t.Fatalf("rejected batch must not be partially stored: %+v", st)
	}
}

func TestAppendDoesNotMutateCaller(t *testing.T) {
	l := newTestLog(t)
	a, b := slice(1, "a"), slice(1, "b")
	if _, err := l.Append(context.Background(), []*timeslice.Timeslice{a, b}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(a.Streams) != 1 || len(b.Streams) != 1 {
		t.Fatalf("caller timeslices mutated")
	}
}

func TestAppendDurableAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	l, err := Open(db, "drive", nil)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := l.Append(context.Background(), []*timeslice.Timeslice{slice(5, "a"), slice(7, "a")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db = openTestDB(t, dir)
	t.Cleanup(func() { _ = db.Close() })
	l, err = Open(db, "drive", nil)
	if err != nil {
		t.Fatalf("reopen log: %v", err)
	}
	if st := l.Stats(); st.Count != 2 || st.First != 5 || st.Last != 7 {
		t.Fatalf("stats after reopen: %+v", st)
	}
}

func TestReadRangeReverseLimit(t *testing.T) {
	l := newTestLog(t)
	var in []*timeslice.Timeslice
	for _, ts := range []float64{-2, 0, 1.5, 3, 4.5, 6} {
		in = append(in, slice(ts, "a"))
	}
	if _, err := l.Append(context.Background(), in); err != nil {
		t.Fatalf("append: %v", err)
	}
	cases := []struct {
		name string
		opts ReadOptions
		want []float64
	}{
		{"all", All, []float64{-2, 0, 1.5, 3, 4.5, 6}},
		{"inclusive", ReadOptions{Start: 0, End: 3}, []float64{0, 1.5, 3}},
		{"reverse", ReadOptions{Start: 0, End: 3, Reverse: true}, []float64{3, 1.5, 0}},
		{"limit", ReadOptions{Start: math.Inf(-1), End: 10, Limit: 2}, []float64{-2, 0}},
		{"reverse limit", ReadOptions{Start: math.Inf(-1), End: math.Inf(1), Reverse: true, Limit: 2}, []float64{6, 4.5}},
		{"empty", ReadOptions{Start: 3.1, End: 4.4}, []float64{}},
		{"inverted", ReadOptions{Start: 5, End: 1}, []float64{}},
	}
	for _, tc := range cases {
		got, err := l.Read(tc.opts)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !equalTimes(times(got), tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, times(got), tc.want)
		}
	}
	if _, err := l.Read(ReadOptions{Start: math.NaN(), End: 1}); err == nil {
		t.Fatalf("expected error for NaN bound")
	}
}

func TestLoadLogs(t *testing.T) {
	l := newTestLog(t)
	gap := slice(2, "a")
	gap.Streams["b"] = nil
	if _, err := l.Append(context.Background(), []*timeslice.Timeslice{slice(3, "a", "b"), gap, slice(1, "b")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	logs, err := l.LoadLogs(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("want 2 streams, got %d", len(logs))
	}
	a, b := logs["a"], logs["b"]
	if len(a) != 2 || a[0].Time != 2 || a[1].Time != 3 {
		t.Fatalf("stream a: %+v", a)
	}
	if len(b) != 3 || b[0].Time != 1 || b[1].Time != 2 || b[2].Time != 3 {
		t.Fatalf("stream b: %+v", b)
	}
	if b[1].Datum != nil {
		t.Fatalf("explicit no-data entry must load as nil datum")
	}
}

func TestLoadLogsHonorsCanceledContextOnLargeLogs(t *testing.T) {
	l := newTestLog(t)
	in := make([]*timeslice.Timeslice, 0, 2048)
	for i := 0; i < 2048; i++ {
		in = append(in, slice(float64(i), "a"))
	}
	if _, err := l.Append(context.Background(), in); err != nil {
		t.Fatalf("append: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.LoadLogs(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestWaitForAppend(t *testing.T) {
	l := newTestLog(t)
	if l.WaitForAppend(10 * time.Millisecond) {
		t.Fatalf("expected timeout without appends")
	}
	done := make(chan bool, 1)
	go func() { done <- l.WaitForAppend(5 * time.Second) }()
	time.Sleep(20 * time.Millisecond)
	if _, err := l.Append(context.Background(), []*timeslice.Timeslice{slice(1, "a")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	select {
	case woke := <-done:
		if !woke {
			t.Fatalf("expected wake by append")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("waiter never returned")
	}
}
