// Package metrics exports vizsync observations to Prometheus. A *Metrics
// satisfies the MetricsHook of streambuffer, slice, synchronizer and the
// Pebble store, and the sessionlog TrimHook.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzbill/vizsync/pkg/log"
)

const namespace = "vizsync"

// Metrics holds every collector, registered on one registry.
type Metrics struct {
	bufferInserts *prometheus.CounterVec
	bufferRejects prometheus.Counter
	bufferEvicted prometheus.Counter
	bufferSize    prometheus.Gauge

	assembleLatency prometheus.Summary
	assembleStreams prometheus.Gauge
	pcConflicts     prometheus.Counter
	frameLatency    prometheus.Summary
	frameObjects    prometheus.Gauge

	cacheLookups *prometheus.CounterVec
	missingPose  prometheus.Counter

	storageLatency *prometheus.SummaryVec
	storageBytes   *prometheus.CounterVec
	batchOps       prometheus.Counter

	trimmed *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		bufferInserts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "buffer", Name: "inserts_total",
			Help: "Accepted timeslice inserts by outcome.",
		}, []string{"outcome"}),
		bufferRejects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "buffer", Name: "rejects_total",
			Help: "Timeslices rejected outside the active window.",
		}),
		bufferEvicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "buffer", Name: "evicted_total",
			Help: "Timeslices evicted when the window moved.",
		}),
		bufferSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "buffer", Name: "timeslices",
			Help: "Timeslices currently buffered.",
		}),
		assembleLatency: f.NewSummary(prometheus.SummaryOpts{
			Namespace: namespace, Subsystem: "slice", Name: "assemble_seconds",
			Help: "Slice assembly latency.", Objectives: map[float64]float64{0.5: 0.05, 0.99: 0.001},
		}),
		assembleStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "slice", Name: "streams",
			Help: "Streams in the last assembled slice.",
		}),
		pcConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "slice", Name: "point_cloud_conflicts_total",
			Help: "Slices where more than one stream carried a point cloud.",
		}),
		frameLatency: f.NewSummary(prometheus.SummaryOpts{
			Namespace: namespace, Subsystem: "frame", Name: "build_seconds",
			Help: "Frame construction latency.", Objectives: map[float64]float64{0.5: 0.05, 0.99: 0.001},
		}),
		frameObjects: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "frame", Name: "objects",
			Help: "Objects visible in the last frame.",
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "synchronizer", Name: "cache_lookups_total",
			Help: "Memo cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		missingPose: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "synchronizer", Name: "missing_pose_total",
			Help: "Frames not produced for lack of a vehicle pose.",
		}),
		storageLatency: f.NewSummaryVec(prometheus.SummaryOpts{
			Namespace: namespace, Subsystem: "storage", Name: "op_seconds",
			Help: "Storage operation latency.", Objectives: map[float64]float64{0.5: 0.05, 0.99: 0.001},
		}, []string{"op"}),
		storageBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "bytes_total",
			Help: "Bytes moved by storage operations.",
		}, []string{"op"}),
		batchOps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "batch_ops_total",
			Help: "Operations committed in batches.",
		}),
		trimmed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sessionlog", Name: "trimmed_total",
			Help: "Timeslice records deleted by retention.",
		}, []string{"session"}),
	}
}

// streambuffer

func (m *Metrics) ObserveInsert(merged bool, size int) {
	outcome := "new"
	if merged {
		outcome = "merged"
	}
	m.bufferInserts.WithLabelValues(outcome).Inc()
	m.bufferSize.Set(float64(size))
}

func (m *Metrics) ObserveReject() { m.bufferRejects.Inc() }

func (m *Metrics) ObserveEvict(evicted, size int) {
	m.bufferEvicted.Add(float64(evicted))
	m.bufferSize.Set(float64(size))
}

// slice

func (m *Metrics) ObserveAssemble(elapsed time.Duration, streams int) {
	m.assembleLatency.Observe(elapsed.Seconds())
	m.assembleStreams.Set(float64(streams))
}

func (m *Metrics) ObservePointCloudConflict() { m.pcConflicts.Inc() }

func (m *Metrics) ObserveFrame(elapsed time.Duration, objects int) {
	m.frameLatency.Observe(elapsed.Seconds())
	m.frameObjects.Set(float64(objects))
}

// synchronizer

func (m *Metrics) ObserveSliceCache(hit bool) { m.observeCache("slice", hit) }
func (m *Metrics) ObserveFrameCache(hit bool) { m.observeCache("frame", hit) }
func (m *Metrics) ObserveMissingPose()        { m.missingPose.Inc() }

func (m *Metrics) observeCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// storage

func (m *Metrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.storageLatency.WithLabelValues("write").Observe(elapsed.Seconds())
	m.storageBytes.WithLabelValues("write").Add(float64(bytes))
}

func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.storageLatency.WithLabelValues("read").Observe(elapsed.Seconds())
	m.storageBytes.WithLabelValues("read").Add(float64(bytes))
}

func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	m.storageLatency.WithLabelValues("commit").Observe(elapsed.Seconds())
	m.storageBytes.WithLabelValues("commit").Add(float64(bytes))
	m.batchOps.Add(float64(numOps))
}

// sessionlog

func (m *Metrics) TrimmedRange(session string, _, _ float64, count int) {
	m.trimmed.WithLabelValues(session).Add(float64(count))
}

// Handler serves the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("metrics listening", log.Str("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// The listener is released once ListenAndServe returns.
		<-errCh
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
