package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rzbill/vizsync/internal/sessionlog"
	"github.com/rzbill/vizsync/internal/slice"
	pebblestore "github.com/rzbill/vizsync/internal/storage/pebble"
	"github.com/rzbill/vizsync/internal/streambuffer"
	"github.com/rzbill/vizsync/internal/synchronizer"
)

var (
	_ streambuffer.MetricsHook = (*Metrics)(nil)
	_ slice.MetricsHook        = (*Metrics)(nil)
	_ synchronizer.MetricsHook = (*Metrics)(nil)
	_ pebblestore.MetricsHook  = (*Metrics)(nil)
	_ sessionlog.TrimHook      = (*Metrics)(nil)
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveInsert(false, 1)
	m.ObserveInsert(true, 1)
	m.ObserveInsert(false, 2)
	m.ObserveReject()
	m.ObserveEvict(2, 0)
	m.ObserveSliceCache(true)
	m.ObserveSliceCache(false)
	m.ObserveFrameCache(true)
	m.ObserveMissingPose()
	m.ObservePointCloudConflict()
	m.ObserveBatchCommit(time.Millisecond, 3, 100)
	m.TrimmedRange("drive", 1, 2, 4)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"new inserts", testutil.ToFloat64(m.bufferInserts.WithLabelValues("new")), 2},
		{"merged inserts", testutil.ToFloat64(m.bufferInserts.WithLabelValues("merged")), 1},
		{"rejects", testutil.ToFloat64(m.bufferRejects), 1},
		{"evicted", testutil.ToFloat64(m.bufferEvicted), 2},
		{"size", testutil.ToFloat64(m.bufferSize), 0},
		{"slice hits", testutil.ToFloat64(m.cacheLookups.WithLabelValues("slice", "hit")), 1},
		{"slice misses", testutil.ToFloat64(m.cacheLookups.WithLabelValues("slice", "miss")), 1},
		{"frame hits", testutil.ToFloat64(m.cacheLookups.WithLabelValues("frame", "hit")), 1},
		{"missing pose", testutil.ToFloat64(m.missingPose), 1},
		{"conflicts", testutil.ToFloat64(m.pcConflicts), 1},
		{"batch ops", testutil.ToFloat64(m.batchOps), 3},
		{"commit bytes", testutil.ToFloat64(m.storageBytes.WithLabelValues("commit")), 100},
		{"trimmed", testutil.ToFloat64(m.trimmed.WithLabelValues("drive")), 4},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s: got %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveReject()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "vizsync_buffer_rejects_total 1") {
		t.Fatalf("missing counter in output:\n%s", body)
	}
}

func TestNewPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic registering twice")
		}
	}()
	New(reg)
}
