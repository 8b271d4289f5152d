package objects

import (
	"math"

	"github.com/rzbill/vizsync/internal/timeslice"
)

// Reserved per-frame property names.
const (
	PropTrackingPoint = "trackingPoint"
	PropLabel         = "label"
)

// GeometrySummary caches the extent of the last feature recorded for an
// object.
type GeometrySummary struct {
	Stream      string
	Centroid    [3]float64
	Min         [3]float64
	Max         [3]float64
	VertexCount int
}

// Object is a tracked entity.
type Object struct {
	ID    string
	Index int
	// StartTime and EndTime bound every observation of the object.
	StartTime float64
	EndTime   float64
	// State survives frame resets.
	State map[string]interface{}

	props    map[string]interface{}
	geometry *GeometrySummary
}

func newObject(id string, index int, timestamp float64) *Object {
	return &Object{
		ID:        id,
		Index:     index,
		StartTime: timestamp,
		EndTime:   timestamp,
		State:     map[string]interface{}{},
		props:     map[string]interface{}{},
	}
}

func (o *Object) observe(timestamp float64) {
	o.StartTime = math.Min(o.StartTime, timestamp)
	o.EndTime = math.Max(o.EndTime, timestamp)
}

// Valid reports whether the object was placed in the current frame.
func (o *Object) Valid() bool {
	_, ok := o.props[PropTrackingPoint]
	return ok
}

// Position returns the current-frame tracking point.
func (o *Object) Position() ([3]float64, bool) {
	p, ok := o.props[PropTrackingPoint].([3]float64)
	return p, ok
}

// Label returns the current-frame human readable label.
func (o *Object) Label() string {
	s, _ := o.props[PropLabel].(string)
	return s
}

// Prop returns a current-frame property.
func (o *Object) Prop(name string) (interface{}, bool) {
	v, ok := o.props[name]
	return v, ok
}

// SetProp sets a current-frame property.
func (o *Object) SetProp(name string, value interface{}) { o.props[name] = value }

// SetLabel sets the current-frame label.
func (o *Object) SetLabel(label string) { o.props[PropLabel] = label }

// SetState sets a persistent state value; empty names are ignored.
func (o *Object) SetState(name string, value interface{}) {
	if name != "" {
		o.State[name] = value
	}
}

// Props returns a copy of the current-frame properties plus index and state.
func (o *Object) Props() map[string]interface{} {
	out := make(map[string]interface{}, len(o.props)+2)
	out["index"] = o.Index
	out["state"] = o.State
	for k, v := range o.props {
		out[k] = v
	}
	return out
}

// Geometry returns the cached geometry summary, if any feature was recorded.
func (o *Object) Geometry() (GeometrySummary, bool) {
	if o.geometry == nil {
		return GeometrySummary{}, false
	}
	return *o.geometry, true
}

// SetTrackingPoint places the object. A multi-point input uses its first
// point; a missing z is zero.
func (o *Object) SetTrackingPoint(points [][3]float64) {
	if len(points) == 0 {
		return
	}
	o.props[PropTrackingPoint] = points[0]
}

// AddFeature records a feature observed for this object in the current
// frame: it becomes the tracking point and refreshes the geometry summary.
func (o *Object) AddFeature(stream string, f *timeslice.Feature) {
	switch {
	case f.Center != nil:
		o.props[PropTrackingPoint] = *f.Center
	case len(f.Vertices) > 0:
		o.props[PropTrackingPoint] = centroid(f.Vertices)
	default:
		return
	}
	o.geometry = summarize(stream, f)
}

// AddVariable records a variable observed for this object in the current
// frame under its stream name. Variables carry no geometry, so the object's
// validity is unchanged.
func (o *Object) AddVariable(stream string, v *timeslice.Variable) {
	if v == nil {
		return
	}
	o.props[stream] = v
}

// BearingTo returns the bearing in degrees from o to other on the xy plane.
func (o *Object) BearingTo(other *Object) (float64, bool) {
	p, ok1 := o.Position()
	q, ok2 := other.Position()
	if !ok1 || !ok2 {
		return 0, false
	}
	return math.Atan2(q[1]-p[1], q[0]-p[0]) / math.Pi * 180, true
}

// DistanceTo returns the xy distance to other rounded to 0.1.
func (o *Object) DistanceTo(other *Object) (float64, bool) {
	p, ok1 := o.Position()
	q, ok2 := other.Position()
	if !ok1 || !ok2 {
		return 0, false
	}
	d := math.Hypot(q[0]-p[0], q[1]-p[1])
	return math.Round(d*10) / 10, true
}

func (o *Object) reset() {
	if len(o.props) > 0 {
		clear(o.props)
	}
}

func centroid(vs [][3]float64) [3]float64 {
	var c [3]float64
	for _, v := range vs {
		c[0] += v[0]
		c[1] += v[1]
		c[2] += v[2]
	}
	n := float64(len(vs))
	return [3]float64{c[0] / n, c[1] / n, c[2] / n}
}

func summarize(stream string, f *timeslice.Feature) *GeometrySummary {
	vs := f.Vertices
	if len(vs) == 0 && f.Center != nil {
		r := f.Radius
		c := *f.Center
		vs = [][3]float64{{c[0] - r, c[1] - r, c[2]}, {c[0] + r, c[1] + r, c[2]}}
	}
	g := &GeometrySummary{Stream: stream, VertexCount: len(f.Vertices), Centroid: centroid(vs)}
	g.Min, g.Max = vs[0], vs[0]
	for _, v := range vs[1:] {
		for i := 0; i < 3; i++ {
			g.Min[i] = math.Min(g.Min[i], v[i])
			g.Max[i] = math.Max(g.Max[i], v[i])
		}
	}
	return g
}
