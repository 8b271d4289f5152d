package timeslice

import "testing"

func TestMergeUnionsStreamsNewWins(t *testing.T) {
	a1, c1, a2 := &Datum{Time: 1}, &Datum{Time: 2}, &Datum{Time: 3}
	existing := &Timeslice{
		Timestamp:           1001,
		Streams:             map[string]*Datum{"A": a1, "C": c1},
		MissingContentFlags: ContentVehiclePose | ContentStreams,
	}
	incoming := &Timeslice{
		Timestamp:           1001,
		Streams:             map[string]*Datum{"A": a2},
		Links:               map[string]*Link{"/lidar": {TargetPose: "/vehicle_pose"}},
		MissingContentFlags: ContentStreams,
	}
	Merge(existing, incoming)

	if existing.Streams["A"] != a2 || existing.Streams["C"] != c1 {
		t.Fatalf("unexpected streams after merge: %v", existing.Streams)
	}
	if existing.MissingContentFlags != ContentStreams {
		t.Fatalf("flags should AND-combine, got %v", existing.MissingContentFlags)
	}
	if existing.Links["/lidar"] == nil {
		t.Fatalf("links should be unioned")
	}
}

func TestMergeIgnoresUpdateTypeForRule(t *testing.T) {
	existing := &Timeslice{Timestamp: 1, Streams: map[string]*Datum{"A": {}, "B": {}}}
	Merge(existing, &Timeslice{Timestamp: 1, UpdateType: UpdateComplete, Streams: map[string]*Datum{"A": {}}})
	if len(existing.Streams) != 2 {
		t.Fatalf("complete update must still merge, got %d streams", len(existing.Streams))
	}
	if existing.UpdateType != UpdateComplete {
		t.Fatalf("update type not carried: %q", existing.UpdateType)
	}
}

func TestMergeIdempotent(t *testing.T) {
	d := &Datum{Time: 5}
	ts := &Timeslice{Timestamp: 5, Streams: map[string]*Datum{"A": d}}
	Merge(ts, Clone(ts))
	if len(ts.Streams) != 1 || ts.Streams["A"] != d {
		t.Fatalf("merging identical payload changed state: %v", ts.Streams)
	}
}
