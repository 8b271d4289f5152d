package slice

import (
	"sort"
	"time"

	"github.com/rzbill/vizsync/internal/filter"
	"github.com/rzbill/vizsync/internal/objects"
	"github.com/rzbill/vizsync/internal/timeslice"
	"github.com/rzbill/vizsync/pkg/log"
)

// LabelName is the label that sets an object's human readable name.
const LabelName = "label"

// MetricsHook observes assembly.
type MetricsHook interface {
	ObserveAssemble(elapsed time.Duration, streams int)
	ObservePointCloudConflict()
	ObserveFrame(elapsed time.Duration, objects int)
}

// NoopMetrics is used when no hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveAssemble(time.Duration, int) {}
func (NoopMetrics) ObservePointCloudConflict()         {}
func (NoopMetrics) ObserveFrame(time.Duration, int)    {}

// Options configures an Assembler.
type Options struct {
	// Registry is required for object decoration; a nil registry skips it.
	Registry *objects.Registry
	// ObjectStream names the stream whose features are objects. When empty,
	// every stream whose first feature carries an id is treated as one.
	ObjectStream string
	PostProcess  PostProcessFunc
	Logger       log.Logger
	Metrics      MetricsHook
}

// Assembler builds slices and frames. It is not safe for concurrent use.
type Assembler struct {
	registry     *objects.Registry
	objectStream string
	postProcess  PostProcessFunc
	logger       log.Logger
	metrics      MetricsHook
}

// NewAssembler returns an Assembler.
func NewAssembler(opts Options) *Assembler {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Assembler{
		registry:     opts.Registry,
		objectStream: opts.ObjectStream,
		postProcess:  opts.PostProcess,
		logger:       logger.With(log.Component("slice")),
		metrics:      metrics,
	}
}

// Assemble merges records, which must be ordered newest first, into a Slice.
// Streams rejected by f are skipped. Within one record, streams are visited
// in name order so point-cloud precedence is deterministic.
func (a *Assembler) Assemble(f filter.Filter, lookAheadIndex int, records []*timeslice.Timeslice) *Slice {
	start := time.Now()
	s := newSlice()
	var names []string
	for _, rec := range records {
		if rec == nil {
			continue
		}
		names = names[:0]
		for name := range rec.Streams {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, claimed := s.Streams[name]; claimed || !filter.Includes(f, name) {
				continue
			}
			a.addDatum(s, name, rec.Streams[name], lookAheadIndex)
		}
		for name, link := range rec.Links {
			if _, claimed := s.Links[name]; claimed || !filter.Includes(f, name) {
				continue
			}
			s.Links[name] = link
		}
	}
	a.metrics.ObserveAssemble(time.Since(start), len(s.Streams))
	return s
}

func (a *Assembler) addDatum(s *Slice, name string, d *timeslice.Datum, lookAheadIndex int) {
	s.Streams[name] = d
	if d == nil {
		return
	}
	for _, l := range d.Labels {
		if l.ID != "" {
			s.Labels[l.ID] = append(s.Labels[l.ID], l)
		}
	}
	if len(d.Features) > 0 {
		s.Features[name] = d.Features
	}
	if len(d.Components) > 0 {
		s.Components[name] = d.Components
	}
	if len(d.LookAheads) > 0 {
		if lookAheadIndex >= 0 && lookAheadIndex < len(d.LookAheads) {
			s.LookAheads[name] = d.LookAheads[lookAheadIndex]
		} else {
			s.LookAheads[name] = []timeslice.Feature{}
		}
	}
	if d.PointCloud != nil {
		if s.PointCloud == nil {
			s.PointCloud = d.PointCloud
			s.PointCloudStream = name
		} else {
			s.Conflicts = append(s.Conflicts, name)
			a.metrics.ObservePointCloudConflict()
			a.logger.Warn("point cloud conflict, keeping the most recent",
				log.Str("kept", s.PointCloudStream),
				log.Str("dropped", name))
		}
	}
	if d.Variable != nil {
		s.Variables[name] = d.Variable
	}
}

// CurrentFrame anchors s on pose. It returns nil when pose is nil. The
// registry's per-frame state is reset, the post-process hook runs, then
// every object feature places its object and is replaced in the frame by a
// copy carrying the object's labels. Without an object stream, id-bearing
// variables are attached to their objects as well.
func (a *Assembler) CurrentFrame(s *Slice, pose *timeslice.Pose, trackedObjectID string) *Frame {
	if s == nil || pose == nil {
		return nil
	}
	start := time.Now()
	if a.registry != nil {
		a.registry.ResetAll()
	}
	frame := newFrame(s, pose, trackedObjectID)
	if a.postProcess != nil {
		a.postProcess(frame)
	}
	if a.registry == nil {
		a.metrics.ObserveFrame(time.Since(start), 0)
		return frame
	}

	if a.objectStream != "" {
		a.decorate(frame, a.objectStream)
	} else {
		for name, features := range frame.Features {
			if len(features) > 0 && features[0].ID != "" {
				a.decorate(frame, name)
			}
		}
		for name, v := range frame.Variables {
			if v == nil || v.ID == "" {
				continue
			}
			if obj := a.registry.Get(v.ID); obj != nil {
				obj.AddVariable(name, v)
				applyLabels(obj, frame.Labels[v.ID])
			}
		}
	}
	frame.Objects = a.registry.GetAllInCurrentFrame()
	a.metrics.ObserveFrame(time.Since(start), len(frame.Objects))
	return frame
}

func (a *Assembler) decorate(frame *Frame, stream string) {
	features := frame.Features[stream]
	if len(features) == 0 {
		return
	}
	out := make([]timeslice.Feature, len(features))
	for i := range features {
		f := features[i]
		obj := a.registry.Get(f.ID)
		if obj == nil {
			out[i] = f
			continue
		}
		obj.AddFeature(stream, &f)
		applyLabels(obj, frame.Labels[f.ID])

		props := make(map[string]interface{}, len(f.Props)+2)
		for k, v := range f.Props {
			props[k] = v
		}
		if label := obj.Label(); label != "" {
			props[LabelName] = label
		}
		for _, l := range frame.Labels[f.ID] {
			if l.Name != LabelName && l.Name != "" {
				props[l.Name], _ = obj.Prop(l.Name)
			}
		}
		f.Props = props
		out[i] = f
	}
	frame.Features[stream] = out
}

// applyLabels sets the label first, then properties. Labels arrive newest
// first and are applied oldest first so the newest value wins.
func applyLabels(obj *objects.Object, labels []timeslice.Label) {
	for i := len(labels) - 1; i >= 0; i-- {
		if l := labels[i]; l.Name == LabelName {
			if s, ok := l.Value.(string); ok {
				obj.SetLabel(s)
			}
		}
	}
	for i := len(labels) - 1; i >= 0; i-- {
		if l := labels[i]; l.Name != LabelName && l.Name != "" {
			obj.SetProp(l.Name, l.Value)
		}
	}
}
