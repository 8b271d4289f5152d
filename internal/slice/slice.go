package slice

import (
	"github.com/rzbill/vizsync/internal/objects"
	"github.com/rzbill/vizsync/internal/timeslice"
)

// Slice is the merged view of every stream within one query window.
type Slice struct {
	Features   map[string][]timeslice.Feature
	Variables  map[string]*timeslice.Variable
	PointCloud *timeslice.PointCloud
	// PointCloudStream names the stream that supplied PointCloud.
	PointCloudStream string
	LookAheads       map[string][]timeslice.Feature
	Components       map[string][]timeslice.Component
	Links            map[string]*timeslice.Link
	// Streams holds the claimed datum of every included stream; nil values
	// are explicit no-data entries.
	Streams map[string]*timeslice.Datum
	// Labels groups the labels of claimed streams by object id, newest first.
	Labels map[string][]timeslice.Label
	// Conflicts lists streams whose point cloud lost to a newer one.
	Conflicts []string
}

func newSlice() *Slice {
	return &Slice{
		Features:   map[string][]timeslice.Feature{},
		Variables:  map[string]*timeslice.Variable{},
		LookAheads: map[string][]timeslice.Feature{},
		Components: map[string][]timeslice.Component{},
		Links:      map[string]*timeslice.Link{},
		Streams:    map[string]*timeslice.Datum{},
		Labels:     map[string][]timeslice.Label{},
	}
}

// Stream returns the claimed datum for name, or nil.
func (s *Slice) Stream(name string) *timeslice.Datum {
	return s.Streams[name]
}

// Frame is a Slice anchored on a vehicle pose, with the tracked objects
// placed in it. Its maps are owned by the frame; feature values shared with
// the source are never mutated.
type Frame struct {
	VehiclePose      *timeslice.Pose
	TrackedObjectID  string
	Features         map[string][]timeslice.Feature
	Variables        map[string]*timeslice.Variable
	PointCloud       *timeslice.PointCloud
	PointCloudStream string
	LookAheads       map[string][]timeslice.Feature
	Components       map[string][]timeslice.Component
	Links            map[string]*timeslice.Link
	Streams          map[string]*timeslice.Datum
	Labels           map[string][]timeslice.Label
	Conflicts        []string
	Objects          map[string]*objects.Object
}

// PostProcessFunc customizes a frame before objects are attached.
type PostProcessFunc func(*Frame)

func newFrame(s *Slice, pose *timeslice.Pose, trackedObjectID string) *Frame {
	return &Frame{
		VehiclePose:      pose,
		TrackedObjectID:  trackedObjectID,
		Features:         copyMap(s.Features),
		Variables:        copyMap(s.Variables),
		PointCloud:       s.PointCloud,
		PointCloudStream: s.PointCloudStream,
		LookAheads:       copyMap(s.LookAheads),
		Components:       copyMap(s.Components),
		Links:            copyMap(s.Links),
		Streams:          copyMap(s.Streams),
		Labels:           copyMap(s.Labels),
		Conflicts:        append([]string(nil), s.Conflicts...),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
