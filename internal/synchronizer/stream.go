package synchronizer

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/rzbill/vizsync/internal/streambuffer"
	"github.com/rzbill/vizsync/internal/timeslice"
)

// StreamSynchronizer synchronizes a live stream buffer.
type StreamSynchronizer struct {
	base
	buf    *streambuffer.Buffer
	digest *xxhash.Digest
}

// NewStreamSynchronizer returns a synchronizer reading buf.
func NewStreamSynchronizer(buf *streambuffer.Buffer, opts Options) *StreamSynchronizer {
	s := &StreamSynchronizer{buf: buf, digest: xxhash.New()}
	s.base = newBase(opts.StartTime, s, opts, "stream-synchronizer")
	return s
}

// Buffer returns the underlying buffer.
func (s *StreamSynchronizer) Buffer() *streambuffer.Buffer { return s.buf }

func (s *StreamSynchronizer) empty() bool { return s.buf.Size() == 0 }

func (s *StreamSynchronizer) recordsInReverse(start, end float64) ([]*timeslice.Timeslice, uint64) {
	in := s.buf.TimeslicesBetween(start, end)
	out := make([]*timeslice.Timeslice, 0, len(in))
	for i := len(in) - 1; i >= 0; i-- {
		if !in[i].Empty() {
			out = append(out, in[i])
		}
	}

	s.digest.Reset()
	var buf [8]byte
	write := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = s.digest.Write(buf[:])
	}
	write(s.buf.Generation())
	write(uint64(len(out)))
	if len(out) > 0 {
		write(math.Float64bits(out[0].Timestamp))
		write(math.Float64bits(out[len(out)-1].Timestamp))
	}
	return out, s.digest.Sum64()
}

func (s *StreamSynchronizer) hiResPose() *timeslice.Pose { return nil }
