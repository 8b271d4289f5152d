package replay

import (
	"sort"

	"github.com/rzbill/vizsync/internal/slice"
	"github.com/rzbill/vizsync/internal/timeslice"
)

// ObjectRecord is the serialized view of one object placed in a frame.
type ObjectRecord struct {
	ID       string                 `json:"id"`
	Label    string                 `json:"label,omitempty"`
	Position *[3]float64            `json:"position,omitempty"`
	Props    map[string]interface{} `json:"props,omitempty"`
	// DistanceToTracked and BearingToTracked are set when a tracked object
	// is placed in the same frame.
	DistanceToTracked *float64 `json:"distanceToTracked,omitempty"`
	BearingToTracked  *float64 `json:"bearingToTracked,omitempty"`
}

// FrameRecord is one JSON line of replay output.
type FrameRecord struct {
	Time             float64                          `json:"time"`
	VehiclePose      *timeslice.Pose                  `json:"vehiclePose"`
	TrackedObjectID  string                           `json:"trackedObjectId,omitempty"`
	Features         map[string][]timeslice.Feature   `json:"features,omitempty"`
	Variables        map[string]*timeslice.Variable   `json:"variables,omitempty"`
	PointCloudStream string                           `json:"pointCloudStream,omitempty"`
	PointCloudPoints int                              `json:"pointCloudPoints,omitempty"`
	LookAheads       map[string][]timeslice.Feature   `json:"lookAheads,omitempty"`
	Components       map[string][]timeslice.Component `json:"components,omitempty"`
	Links            map[string]*timeslice.Link       `json:"links,omitempty"`
	Conflicts        []string                         `json:"conflicts,omitempty"`
	Objects          []ObjectRecord                   `json:"objects,omitempty"`
}

func newFrameRecord(t float64, f *slice.Frame) FrameRecord {
	rec := FrameRecord{
		Time:             t,
		VehiclePose:      f.VehiclePose,
		TrackedObjectID:  f.TrackedObjectID,
		Features:         f.Features,
		Variables:        f.Variables,
		PointCloudStream: f.PointCloudStream,
		PointCloudPoints: f.PointCloud.NumPoints(),
		LookAheads:       f.LookAheads,
		Components:       f.Components,
		Links:            f.Links,
		Conflicts:        f.Conflicts,
	}
	tracked := f.Objects[f.TrackedObjectID]
	ids := make([]string, 0, len(f.Objects))
	for id := range f.Objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		o := f.Objects[id]
		or := ObjectRecord{ID: id, Label: o.Label(), Props: o.Props()}
		if p, ok := o.Position(); ok {
			or.Position = &p
		}
		if tracked != nil && tracked != o {
			if d, ok := o.DistanceTo(tracked); ok {
				or.DistanceToTracked = &d
			}
			if b, ok := tracked.BearingTo(o); ok {
				or.BearingToTracked = &b
			}
		}
		rec.Objects = append(rec.Objects, or)
	}
	return rec
}
