package timeslice

import "math"

// ContentFlags names classes of content a timeslice carries (or lacks).
type ContentFlags uint32

const (
	// ContentVehiclePose marks the primary pose stream.
	ContentVehiclePose ContentFlags = 1 << iota
	// ContentStreams marks the remaining per-stream data.
	ContentStreams

	ContentAll = ContentVehiclePose | ContentStreams
)

// UpdateType is the producer-declared kind of a timeslice update. It is
// recorded and persisted but merging never branches on it.
type UpdateType string

const (
	UpdateIncremental UpdateType = "incremental"
	UpdateComplete    UpdateType = "complete"
)

// Timeslice holds every stream recorded at one logical time.
type Timeslice struct {
	Timestamp           float64           `json:"timestamp"`
	UpdateType          UpdateType        `json:"update_type,omitempty"`
	Streams             map[string]*Datum `json:"streams,omitempty"`
	Links               map[string]*Link  `json:"links,omitempty"`
	MissingContentFlags ContentFlags      `json:"missing_content_flags,omitempty"`
}

// Empty reports whether the timeslice carries no streams and no links.
func (ts *Timeslice) Empty() bool {
	return ts == nil || (len(ts.Streams) == 0 && len(ts.Links) == 0)
}

// Datum is the payload of one stream at one time. Every field is optional.
type Datum struct {
	Time       float64     `json:"time,omitempty"`
	Pose       *Pose       `json:"pose,omitempty"`
	Features   []Feature   `json:"features,omitempty"`
	Variable   *Variable   `json:"variable,omitempty"`
	PointCloud *PointCloud `json:"point_cloud,omitempty"`
	// LookAheads holds predicted future primitive sets, one per look-ahead step.
	LookAheads [][]Feature `json:"look_aheads,omitempty"`
	Components []Component `json:"components,omitempty"`
	Labels     []Label     `json:"labels,omitempty"`
}

// Pose is a vehicle pose in the log's frame of reference.
type Pose struct {
	Time      float64 `json:"time"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Roll      float64 `json:"roll,omitempty"`
	Pitch     float64 `json:"pitch,omitempty"`
	Yaw       float64 `json:"yaw,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Altitude  float64 `json:"altitude,omitempty"`
}

// Feature is a geometric primitive. ID correlates it with a tracked object.
type Feature struct {
	ID       string                 `json:"id,omitempty"`
	Type     string                 `json:"type"`
	Vertices [][3]float64           `json:"vertices,omitempty"`
	Center   *[3]float64            `json:"center,omitempty"`
	Radius   float64                `json:"radius,omitempty"`
	Text     string                 `json:"text,omitempty"`
	Classes  []string               `json:"classes,omitempty"`
	Props    map[string]interface{} `json:"props,omitempty"`
}

// Variable is a scalar or time-series value, optionally bound to an object.
type Variable struct {
	ID         string    `json:"id,omitempty"`
	Values     []float64 `json:"values,omitempty"`
	Strings    []string  `json:"strings,omitempty"`
	Timestamps []float64 `json:"timestamps,omitempty"`
}

// PointCloud is one joined point cloud. Positions are packed x,y,z triples.
type PointCloud struct {
	Positions []float32 `json:"positions"`
	Colors    []uint8   `json:"colors,omitempty"`
	IDs       []string  `json:"ids,omitempty"`
}

// NumPoints returns the number of packed points.
func (pc *PointCloud) NumPoints() int {
	if pc == nil {
		return 0
	}
	return len(pc.Positions) / 3
}

// Component is a UI element attached to a stream.
type Component struct {
	Type  string                 `json:"type"`
	Props map[string]interface{} `json:"props,omitempty"`
}

// Label annotates the object ID with a named value.
type Label struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// Link relates a stream to the pose stream it is expressed in.
type Link struct {
	TargetPose string `json:"target_pose"`
}

// Entry is one element of a per-stream ordered log.
type Entry struct {
	Time  float64
	Datum *Datum
}

// IsFinite reports whether t is neither NaN nor infinite.
func IsFinite(t float64) bool { return !math.IsNaN(t) && !math.IsInf(t, 0) }
