package synchronizer

import (
	"fmt"
	"math"

	"github.com/rzbill/vizsync/internal/config"
	"github.com/rzbill/vizsync/internal/filter"
	"github.com/rzbill/vizsync/internal/objects"
	"github.com/rzbill/vizsync/internal/slice"
	"github.com/rzbill/vizsync/internal/timeslice"
	"github.com/rzbill/vizsync/pkg/log"
)

// MetricsHook observes cache behavior.
type MetricsHook interface {
	ObserveSliceCache(hit bool)
	ObserveFrameCache(hit bool)
	ObserveMissingPose()
}

// NoopMetrics is used when no hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveSliceCache(bool) {}
func (NoopMetrics) ObserveFrameCache(bool) {}
func (NoopMetrics) ObserveMissingPose()    {}

// Options configures a synchronizer.
type Options struct {
	Config config.Config
	// StartTime anchors SetDeltaTime for the stream variant; the log variant
	// takes it as an argument.
	StartTime    float64
	Registry     *objects.Registry
	PostProcess  slice.PostProcessFunc
	Logger       log.Logger
	Metrics      MetricsHook
	SliceMetrics slice.MetricsHook
}

// Synchronizer is the query surface shared by both variants.
type Synchronizer interface {
	SetTime(t float64)
	SetDeltaTime(d float64)
	SetLookAheadTimeOffset(seconds float64)
	Time() float64
	LogSlice(f filter.Filter) *slice.Slice
	CurrentFrame(f filter.Filter, trackedObjectID string) *slice.Frame
	Invalidate()
}

// source is what a variant plugs into the base.
type source interface {
	empty() bool
	// recordsInReverse returns the records in the window newest first and a
	// fingerprint identifying them.
	recordsInReverse(start, end float64) ([]*timeslice.Timeslice, uint64)
	// hiResPose returns a pose resolved at the hi-res time, if the source
	// supports it.
	hiResPose() *timeslice.Pose
}

type sliceKey struct {
	filter         string
	lookAheadIndex int
	fingerprint    uint64
}

type frameKey struct {
	slice   sliceKey
	pose    timeslice.Pose
	tracked string
}

type base struct {
	cfg       config.Config
	src       source
	asm       *slice.Assembler
	logger    log.Logger
	metrics   MetricsHook
	startTime float64

	time           float64
	hiResTime      float64
	loResTime      float64
	lookAheadIndex int

	sliceOK  bool
	sliceKey sliceKey
	slice    *slice.Slice

	frameOK  bool
	frameKey frameKey
	frame    *slice.Frame
}

func newBase(startTime float64, src source, opts Options, component string) base {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	b := base{
		cfg:       opts.Config,
		src:       src,
		logger:    logger.With(log.Component(component)),
		metrics:   metrics,
		startTime: startTime,
		asm: slice.NewAssembler(slice.Options{
			Registry:     opts.Registry,
			ObjectStream: opts.Config.ObjectStream,
			PostProcess:  opts.PostProcess,
			Logger:       logger,
			Metrics:      opts.SliceMetrics,
		}),
	}
	if timeslice.IsFinite(startTime) {
		b.SetTime(startTime)
	}
	return b
}

func quantize(t, resolution float64) float64 {
	if resolution <= 0 {
		return t
	}
	return math.Round(t/resolution) * resolution
}

// SetTime sets the query time. t must be finite.
func (b *base) SetTime(t float64) {
	if !timeslice.IsFinite(t) {
		panic(fmt.Sprintf("synchronizer: time must be finite, got %v", t))
	}
	b.time = t
	b.hiResTime = quantize(t, b.cfg.HiResolution)
	b.loResTime = quantize(t, b.cfg.LoResolution)
}

// SetDeltaTime sets the query time relative to the start time.
func (b *base) SetDeltaTime(d float64) { b.SetTime(b.startTime + d) }

// SetLookAheadTimeOffset selects the look-ahead entry surfaced in slices.
func (b *base) SetLookAheadTimeOffset(seconds float64) {
	idx := math.Floor(seconds * b.cfg.LookAheadRate)
	switch {
	case !(idx > 0):
		b.lookAheadIndex = 0
	case idx > math.MaxInt32:
		b.lookAheadIndex = math.MaxInt32
	default:
		b.lookAheadIndex = int(idx)
	}
}

func (b *base) Time() float64       { return b.time }
func (b *base) HiResTime() float64  { return b.hiResTime }
func (b *base) LoResTime() float64  { return b.loResTime }
func (b *base) LookAheadIndex() int { return b.lookAheadIndex }
func (b *base) StartTime() float64  { return b.startTime }

// Invalidate drops the cached slice and frame.
func (b *base) Invalidate() {
	b.sliceOK, b.slice = false, nil
	b.frameOK, b.frame = false, nil
}

// LogSlice returns the merged slice for [loRes-TimeWindow, loRes], or nil
// when the source holds nothing.
func (b *base) LogSlice(f filter.Filter) *slice.Slice {
	s, _ := b.logSlice(f)
	return s
}

func (b *base) logSlice(f filter.Filter) (*slice.Slice, sliceKey) {
	if b.src.empty() {
		return nil, sliceKey{}
	}
	records, fp := b.src.recordsInReverse(b.loResTime-b.cfg.TimeWindow, b.loResTime)
	key := sliceKey{filter: filter.KeyOf(f), lookAheadIndex: b.lookAheadIndex, fingerprint: fp}
	if b.sliceOK && b.sliceKey == key {
		b.metrics.ObserveSliceCache(true)
		return b.slice, key
	}
	b.metrics.ObserveSliceCache(false)
	b.slice = b.asm.Assemble(f, b.lookAheadIndex, records)
	b.sliceKey, b.sliceOK = key, true
	return b.slice, key
}

// CurrentFrame returns the frame at the current time, or nil when there is
// no slice or no pose to anchor it.
func (b *base) CurrentFrame(f filter.Filter, trackedObjectID string) *slice.Frame {
	s, sk := b.logSlice(f)
	if s == nil {
		return nil
	}
	pose := b.resolvePose(s)
	if pose == nil {
		b.metrics.ObserveMissingPose()
		b.logger.Debug("no vehicle pose, skipping frame", log.Float64("time", b.time))
		return nil
	}
	key := frameKey{slice: sk, pose: *pose, tracked: trackedObjectID}
	if b.frameOK && b.frameKey == key {
		b.metrics.ObserveFrameCache(true)
		return b.frame
	}
	b.metrics.ObserveFrameCache(false)
	b.frame = b.asm.CurrentFrame(s, pose, trackedObjectID)
	b.frameKey, b.frameOK = key, true
	return b.frame
}

func (b *base) resolvePose(s *slice.Slice) *timeslice.Pose {
	if p := b.src.hiResPose(); p != nil {
		return p
	}
	if d := s.Streams[b.cfg.PrimaryPoseStream]; d != nil && d.Pose != nil {
		return d.Pose
	}
	if b.cfg.AllowMissingPrimaryPose {
		return &timeslice.Pose{}
	}
	return nil
}
