package sessionlog

import (
	"encoding/binary"
	"math"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - sess/{name}/m                 session metadata (package session)
// - sess/{name}/tm                log metadata
// - sess/{name}/ts/{time_sort8}   timeslice records
// - sess/{name}/cursor/{group}    playhead cursors

var (
	sessPrefix    = []byte("sess/")
	metaSuffix    = []byte("/m")
	logMetaSuffix = []byte("/tm")
	sliceSeg      = []byte("/ts/")
	cursorSeg     = []byte("/cursor/")
)

// SortableTime maps t onto a uint64 whose big-endian bytes order the same way
// as the floats. Negative zero maps to the key of zero.
func SortableTime(t float64) uint64 {
	if t == 0 {
		t = 0
	}
	bits := math.Float64bits(t)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | 1<<63
}

// TimeFromSortable inverts SortableTime.
func TimeFromSortable(v uint64) float64 {
	if v&(1<<63) != 0 {
		return math.Float64frombits(v &^ (1 << 63))
	}
	return math.Float64frombits(^v)
}

func appendTime(dst []byte, t float64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], SortableTime(t))
	return append(dst, b[:]...)
}

// KeySessionPrefix returns the prefix shared by every key of a session.
func KeySessionPrefix(name string) []byte {
	k := make([]byte, 0, len(name)+8)
	k = append(k, sessPrefix...)
	k = append(k, name...)
	return append(k, '/')
}

// KeySessionMeta builds the session metadata key.
func KeySessionMeta(name string) []byte {
	k := make([]byte, 0, len(name)+8)
	k = append(k, sessPrefix...)
	k = append(k, name...)
	return append(k, metaSuffix...)
}

// KeyLogMeta builds the log metadata key.
func KeyLogMeta(name string) []byte {
	k := make([]byte, 0, len(name)+8)
	k = append(k, sessPrefix...)
	k = append(k, name...)
	return append(k, logMetaSuffix...)
}

// KeySlicePrefix returns the prefix of every timeslice record of a session.
func KeySlicePrefix(name string) []byte {
	k := make([]byte, 0, len(name)+16)
	k = append(k, sessPrefix...)
	k = append(k, name...)
	return append(k, sliceSeg...)
}

// KeySlice builds the record key for the timeslice at t.
func KeySlice(name string, t float64) []byte {
	return appendTime(KeySlicePrefix(name), t)
}

// KeyCursor builds the playhead cursor key for a consumer group.
func KeyCursor(name, group string) []byte {
	k := make([]byte, 0, len(name)+len(group)+16)
	k = append(k, sessPrefix...)
	k = append(k, name...)
	k = append(k, cursorSeg...)
	return append(k, group...)
}

func timeFromKey(k []byte) float64 {
	return TimeFromSortable(binary.BigEndian.Uint64(k[len(k)-8:]))
}
