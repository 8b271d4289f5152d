// Package replay drives a synchronizer over a recorded session and writes one
// JSON line per produced frame.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfgpkg "github.com/rzbill/vizsync/internal/config"
	"github.com/rzbill/vizsync/internal/filter"
	"github.com/rzbill/vizsync/internal/ingest"
	"github.com/rzbill/vizsync/internal/metrics"
	"github.com/rzbill/vizsync/internal/objects"
	"github.com/rzbill/vizsync/internal/runtime"
	"github.com/rzbill/vizsync/internal/sessionlog"
	"github.com/rzbill/vizsync/internal/slice"
	"github.com/rzbill/vizsync/internal/streambuffer"
	"github.com/rzbill/vizsync/internal/synchronizer"
	"github.com/rzbill/vizsync/pkg/log"
)

// Mode selects the synchronizer variant.
type Mode string

const (
	// ModeLog loads the whole session into a LogSynchronizer.
	ModeLog Mode = "log"
	// ModeBuffer streams records into a StreamBuffer as the playhead moves.
	ModeBuffer Mode = "buffer"
)

// ErrEmptySession is returned when there is nothing to replay.
var ErrEmptySession = errors.New("replay: session has no timeslices")

const cursorCommitEvery = 100

// Options configures Run.
type Options struct {
	Config  cfgpkg.Config
	Session string
	Mode    Mode
	// Start and End bound playback; nil means the session's own bounds.
	Start *float64
	End   *float64
	// FrameRate is frames per second of session time; zero uses
	// Config.PlaybackFrameRate.
	FrameRate float64
	// Speed paces output against the wall clock; zero plays as fast as
	// possible.
	Speed         float64
	LookAhead     float64
	Filter        filter.Filter
	TrackedObject string
	// Follow keeps playing as new timeslices arrive. Buffer mode only.
	Follow bool
	// Input, in follow mode, is ingested into the session while playing.
	Input io.Reader
	// Group commits the playhead under this consumer group; Resume starts
	// from the committed playhead.
	Group       string
	Resume      bool
	MetricsAddr string
	PostProcess slice.PostProcessFunc
	Out         io.Writer
	Logger      log.Logger
}

// Summary reports what a run produced.
type Summary struct {
	Frames  int     `json:"frames"`
	Skipped int     `json:"skipped"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

func (o *Options) normalize() error {
	if o.Session == "" {
		return errors.New("replay: session is required")
	}
	if o.Mode == "" {
		o.Mode = ModeLog
	}
	if o.Mode != ModeLog && o.Mode != ModeBuffer {
		return fmt.Errorf("replay: unknown mode %q", o.Mode)
	}
	if o.Follow && o.Mode != ModeBuffer {
		return errors.New("replay: follow requires buffer mode")
	}
	if o.FrameRate == 0 {
		o.FrameRate = o.Config.PlaybackFrameRate
	}
	if !(o.FrameRate > 0) || o.Speed < 0 {
		return fmt.Errorf("replay: invalid frame rate %v or speed %v", o.FrameRate, o.Speed)
	}
	if o.Resume && o.Group == "" {
		return errors.New("replay: resume requires a cursor group")
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Logger == nil {
		o.Logger = log.NewLogger()
	}
	o.Logger = o.Logger.With(log.Component("replay"), log.Str("session", o.Session))
	return nil
}

// Run replays a session until its end, ctx is done, or, in follow mode, the
// input is exhausted and played out.
func Run(ctx context.Context, opts Options) (Summary, error) {
	if err := opts.normalize(); err != nil {
		return Summary{}, err
	}
	logger := opts.Logger

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var hooks runtime.Hooks
	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		hooks = runtime.Hooks{Storage: m, Buffer: m, Slice: m, Synchronizer: m, Trim: m}
		metricsDone := make(chan struct{})
		go func() {
			defer close(metricsDone)
			if err := metrics.Serve(ctx, opts.MetricsAddr, reg, logger); err != nil {
				logger.Error("metrics server failed", log.Err(err))
			}
		}()
		defer func() {
			cancel()
			<-metricsDone
		}()
	}

	rt, err := runtime.Open(runtime.Options{Config: opts.Config, Logger: logger, Hooks: hooks})
	if err != nil {
		return Summary{}, err
	}
	defer rt.Close()

	l, err := rt.OpenLog(opts.Session)
	if err != nil {
		return Summary{}, err
	}
	p := &player{opts: opts, log: l, logger: logger}
	if opts.Follow && opts.Input != nil {
		p.ingestDone = make(chan error, 1)
		im := ingest.New(rt.DB(), l, ingest.Options{BatchSize: 1, Blacklisted: opts.Config.Blacklisted, Logger: logger})
		in := interruptible(ctx, opts.Input)
		go func() {
			_, err := im.Import(ctx, in)
			p.ingestDone <- err
		}()
		// The importer writes to the store, so it must stop before the
		// runtime closes.
		defer func() {
			cancel()
			if !p.drained {
				<-p.ingestDone
				p.drained = true
			}
		}()
	}

	if err := p.waitForData(ctx); err != nil {
		return Summary{}, err
	}
	st := l.Stats()
	if st.Count == 0 {
		return Summary{}, ErrEmptySession
	}

	start, end := st.First, st.Last
	if opts.Follow {
		end = math.Inf(1)
	}
	if opts.Start != nil {
		start = *opts.Start
	}
	if opts.End != nil {
		end = *opts.End
	}
	if opts.Resume {
		cur, err := l.GetCursor(opts.Group)
		switch {
		case err == nil:
			start = math.Max(start, cur)
		case !errors.Is(err, sessionlog.ErrNotFound):
			return Summary{}, err
		}
	}
	if start > end {
		return Summary{Start: start, End: end}, nil
	}

	reg := objects.New()
	switch opts.Mode {
	case ModeLog:
		s, err := rt.LoadLogSynchronizer(ctx, opts.Session, reg, opts.PostProcess)
		if err != nil {
			return Summary{}, err
		}
		p.sync = s
	case ModeBuffer:
		buf := rt.NewBuffer(reg)
		p.buf = buf
		p.next = math.Inf(-1)
		p.sync = rt.NewStreamSynchronizer(buf, reg, start, opts.PostProcess)
	}
	p.sync.SetLookAheadTimeOffset(opts.LookAhead)

	logger.Info("replay started",
		log.Str("mode", string(opts.Mode)),
		log.Float64("start", start),
		log.Float64("end", end),
		log.Float64("frame_rate", opts.FrameRate))
	sum, err := p.play(ctx, start, end)
	logger.Info("replay finished", log.Int("frames", sum.Frames), log.Int("skipped", sum.Skipped))
	return sum, err
}

type player struct {
	opts       Options
	log        *sessionlog.Log
	logger     log.Logger
	sync       synchronizer.Synchronizer
	buf        *streambuffer.Buffer
	next       float64
	ingestDone chan error
	// drained is set once the follow input is exhausted.
	drained bool
}

func (p *player) play(ctx context.Context, start, end float64) (Summary, error) {
	sum := Summary{Start: start, End: start}
	enc := json.NewEncoder(p.opts.Out)
	wallStart := time.Now()
	played := math.NaN()

	for i := 0; ; i++ {
		t := start + float64(i)/p.opts.FrameRate
		if t > end {
			break
		}
		if p.opts.Follow {
			if ok := p.waitUntil(ctx, t); !ok {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		if err := p.pace(ctx, wallStart, t-start); err != nil {
			break
		}
		if p.buf != nil {
			if err := p.feed(t); err != nil {
				return sum, err
			}
		}

		p.sync.SetTime(t)
		frame := p.sync.CurrentFrame(p.opts.Filter, p.opts.TrackedObject)
		played, sum.End = t, t
		if frame == nil {
			sum.Skipped++
			continue
		}
		if err := enc.Encode(newFrameRecord(t, frame)); err != nil {
			return sum, fmt.Errorf("replay: write frame: %w", err)
		}
		sum.Frames++
		if p.opts.Group != "" && sum.Frames%cursorCommitEvery == 0 {
			if err := p.log.CommitCursor(p.opts.Group, t); err != nil {
				return sum, err
			}
		}
	}
	if p.opts.Group != "" && !math.IsNaN(played) {
		if err := p.log.CommitCursor(p.opts.Group, played); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// feed loads every stored record up to the buffer's reach for playhead t.
func (p *player) feed(t float64) error {
	p.buf.SetCurrentTime(t)
	upTo := t
	if start, end, ok := p.buf.BufferRange(); ok && p.opts.Config.Buffer.Policy == cfgpkg.PolicyOffset {
		upTo = end
		p.next = math.Max(p.next, start)
	}
	if p.next > upTo {
		return nil
	}
	recs, err := p.log.Read(sessionlog.ReadOptions{Start: p.next, End: upTo})
	if err != nil {
		return err
	}
	for _, ts := range recs {
		for name := range ts.Streams {
			if p.opts.Config.Blacklisted(name) {
				delete(ts.Streams, name)
			}
		}
		p.buf.Insert(ts)
	}
	p.next = math.Nextafter(upTo, math.Inf(1))
	return nil
}

// waitForData blocks, in follow mode, until the session has a first record.
func (p *player) waitForData(ctx context.Context) error {
	if !p.opts.Follow {
		return nil
	}
	for p.log.Stats().Count == 0 {
		if !p.wait(ctx) && p.log.Stats().Count == 0 {
			return ErrEmptySession
		}
	}
	return nil
}

// waitUntil blocks until a record at or after t is stored. It returns false
// when no more data can arrive.
func (p *player) waitUntil(ctx context.Context, t float64) bool {
	for p.log.Stats().Last < t {
		if !p.wait(ctx) {
			return p.log.Stats().Last >= t
		}
	}
	return true
}

func (p *player) wait(ctx context.Context) bool {
	if ctx.Err() != nil || p.drained {
		return false
	}
	if p.ingestDone != nil {
		select {
		case err := <-p.ingestDone:
			if err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("ingest stopped", log.Err(err))
			}
			p.drained = true
			return false
		default:
		}
	}
	p.log.WaitForAppend(250 * time.Millisecond)
	return true
}

func (p *player) pace(ctx context.Context, wallStart time.Time, elapsed float64) error {
	if p.opts.Speed <= 0 {
		return nil
	}
	due := wallStart.Add(time.Duration(elapsed / p.opts.Speed * float64(time.Second)))
	d := time.Until(due)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// interruptible returns a reader over r whose pending Read fails once ctx is
// done. r is read on its own goroutine; it is closed on cancellation when it
// implements io.Closer.
func interruptible(ctx context.Context, r io.Reader) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		_, err := io.Copy(pw, r)
		pw.CloseWithError(err)
	}()
	go func() {
		<-ctx.Done()
		pr.CloseWithError(ctx.Err())
		if c, ok := r.(io.Closer); ok {
			_ = c.Close()
		}
	}()
	return pr
}
